package toolcall

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	ToolReadSection       = "read_section"
	ToolSearchLegislation = "search_legislation"
	ToolUpdateObject      = "update_object"
	ToolCreateObject      = "create_object"
	ToolGetObject         = "get_object"
	ToolListObjects       = "list_objects"
)

// Describe returns a present-tense activity label for known tools
func Describe(call Call) (string, bool) {
	switch call.Name {
	case ToolReadSection:
		return describeReadSection(call), true
	case ToolSearchLegislation:
		if query := call.String("query"); query != "" {
			return fmt.Sprintf("Searching legislation for %q", query), true
		}
		return "Searching legislation", true
	case ToolUpdateObject:
		return "Updating " + objectRef(call), true
	case ToolCreateObject:
		return "Creating " + objectKind(call), true
	case ToolGetObject:
		return "Loading " + objectRef(call), true
	case ToolListObjects:
		return "Listing " + objectKind(call) + " entries", true
	default:
		return "", false
	}
}

// Activity returns the label of the last known call, if any
func Activity(calls []Call) (string, bool) {
	for i := len(calls) - 1; i >= 0; i-- {
		if label, ok := Describe(calls[i]); ok {
			return label, true
		}
	}
	return "", false
}

func describeReadSection(call Call) string {
	var parts []string
	if chapter := call.String("chapter"); chapter != "" {
		parts = append(parts, "chapter "+ChapterNumber(chapter))
	}
	article := call.String("article")
	if article == "" {
		article = call.String("section")
	}
	if article != "" {
		parts = append(parts, "article "+article)
	}

	label := "Reading"
	if len(parts) > 0 {
		label += " " + strings.Join(parts, ", ")
	} else {
		label += " section"
	}

	law := call.String("law")
	if law == "" {
		law = call.String("gesetz")
	}
	if law != "" {
		label += " of " + law
	}
	return label
}

func objectKind(call Call) string {
	if kind := call.String("object_type"); kind != "" {
		return kind
	}
	return "object"
}

func objectRef(call Call) string {
	kind := objectKind(call)
	if id := call.String("object_id"); id != "" {
		return kind + " " + id
	}
	return kind
}

// ChapterNumber renders a chapter identifier as a decimal number. Roman
// numerals are decoded; anything that is not a valid numeral is returned
// unchanged.
func ChapterNumber(s string) string {
	trimmed := strings.TrimSpace(s)
	if _, err := strconv.Atoi(trimmed); err == nil {
		return trimmed
	}
	if n, ok := ParseRoman(trimmed); ok {
		return strconv.Itoa(n)
	}
	return s
}

var romanValues = map[byte]int{
	'I': 1,
	'V': 5,
	'X': 10,
	'L': 50,
	'C': 100,
	'D': 500,
	'M': 1000,
}

// ParseRoman decodes a roman numeral in canonical form
func ParseRoman(s string) (int, bool) {
	upper := strings.ToUpper(s)
	if upper == "" {
		return 0, false
	}

	total := 0
	for i := 0; i < len(upper); i++ {
		v, ok := romanValues[upper[i]]
		if !ok {
			return 0, false
		}
		if i+1 < len(upper) && v < romanValues[upper[i+1]] {
			total -= v
		} else {
			total += v
		}
	}

	if total <= 0 || FormatRoman(total) != upper {
		return 0, false
	}
	return total, true
}

var romanTable = []struct {
	value  int
	symbol string
}{
	{1000, "M"}, {900, "CM"}, {500, "D"}, {400, "CD"},
	{100, "C"}, {90, "XC"}, {50, "L"}, {40, "XL"},
	{10, "X"}, {9, "IX"}, {5, "V"}, {4, "IV"}, {1, "I"},
}

// FormatRoman encodes n as a roman numeral
func FormatRoman(n int) string {
	var b strings.Builder
	for _, entry := range romanTable {
		for n >= entry.value {
			b.WriteString(entry.symbol)
			n -= entry.value
		}
	}
	return b.String()
}
