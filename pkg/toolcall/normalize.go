package toolcall

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// Call is a tool invocation in canonical form
type Call struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Unrecognized is an entry that matched neither call shape
type Unrecognized struct {
	Raw    any
	Reason string
}

// Normalize converts tool-call metadata into canonical calls, dropping
// entries it cannot interpret. It never fails.
func Normalize(v any) []Call {
	calls, _ := Parse(v)
	return calls
}

// Parse converts tool-call metadata into canonical calls. It accepts the
// inline {name, args} shape and the nested {function: {name, arguments}}
// shape, as a single object or a list, decoded or as JSON text. Arguments
// that fail to decode yield empty args.
func Parse(v any) ([]Call, []Unrecognized) {
	var (
		calls   []Call
		skipped []Unrecognized
	)

	for _, item := range entries(v) {
		call, err := parseEntry(item)
		if err != nil {
			skipped = append(skipped, Unrecognized{Raw: item, Reason: err.Error()})
			continue
		}
		calls = append(calls, call)
	}
	return calls, skipped
}

// entries flattens the accepted container shapes into single entries
func entries(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case []map[string]any:
		out := make([]any, len(t))
		for i, m := range t {
			out[i] = m
		}
		return out
	case []llms.ToolCall:
		out := make([]any, len(t))
		for i, tc := range t {
			out[i] = tc
		}
		return out
	case json.RawMessage:
		return entries(decodeJSON(t))
	case []byte:
		return entries(decodeJSON(t))
	case string:
		trimmed := strings.TrimSpace(t)
		if trimmed == "" {
			return nil
		}
		return entries(decodeJSON([]byte(trimmed)))
	default:
		return []any{t}
	}
}

// invalidJSON is text that was offered as JSON but did not decode
type invalidJSON string

func decodeJSON(data []byte) any {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return invalidJSON(data)
	}
	return v
}

func parseEntry(item any) (Call, error) {
	switch t := item.(type) {
	case llms.ToolCall:
		return fromToolCall(t)
	case *llms.ToolCall:
		if t == nil {
			return Call{}, fmt.Errorf("nil tool call")
		}
		return fromToolCall(*t)
	case map[string]any:
		if fn, ok := t["function"].(map[string]any); ok {
			return fromFunctionShape(t, fn)
		}
		return fromInlineShape(t)
	default:
		return Call{}, fmt.Errorf("unsupported tool call type %T", item)
	}
}

// fromFunctionShape decodes {id, type, function: {name, arguments}} through
// the langchain tool-call type
func fromFunctionShape(entry, fn map[string]any) (Call, error) {
	tc := llms.ToolCall{
		FunctionCall: &llms.FunctionCall{},
	}
	tc.ID, _ = entry["id"].(string)
	tc.Type, _ = entry["type"].(string)
	tc.FunctionCall.Name, _ = fn["name"].(string)

	switch args := fn["arguments"].(type) {
	case string:
		tc.FunctionCall.Arguments = args
	case map[string]any:
		return withName(tc.ID, tc.FunctionCall.Name, args)
	}
	return fromToolCall(tc)
}

func fromToolCall(tc llms.ToolCall) (Call, error) {
	if tc.FunctionCall == nil {
		return Call{}, fmt.Errorf("tool call %q has no function", tc.ID)
	}
	return withName(tc.ID, tc.FunctionCall.Name, decodeArgs(tc.FunctionCall.Arguments))
}

func fromInlineShape(entry map[string]any) (Call, error) {
	name, _ := entry["name"].(string)
	id, _ := entry["id"].(string)

	raw, ok := entry["args"]
	if !ok {
		raw = entry["arguments"]
	}

	switch args := raw.(type) {
	case map[string]any:
		return withName(id, name, args)
	case string:
		return withName(id, name, decodeArgs(args))
	default:
		return withName(id, name, map[string]any{})
	}
}

func withName(id, name string, args map[string]any) (Call, error) {
	if name == "" {
		return Call{}, fmt.Errorf("tool call without a name")
	}
	if args == nil {
		args = map[string]any{}
	}
	return Call{ID: id, Name: name, Args: args}, nil
}

// decodeArgs decodes serialized arguments; anything but a JSON object yields empty args
func decodeArgs(s string) map[string]any {
	args := map[string]any{}
	if strings.TrimSpace(s) == "" {
		return args
	}
	if err := json.Unmarshal([]byte(s), &args); err != nil {
		return map[string]any{}
	}
	return args
}

// String returns the argument as text. Whole numbers are rendered without
// a fractional part.
func (c Call) String(key string) string {
	switch v := c.Args[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
