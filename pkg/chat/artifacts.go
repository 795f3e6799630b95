package chat

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	ArtifactStreaming = "streaming"
	ArtifactComplete  = "complete"

	// ArtifactMarkdown is the type given to tool output that is not structured
	ArtifactMarkdown = "markdown"
	// ArtifactJSON is the type given to tool output that is a bare JSON array
	ArtifactJSON = "json"
)

// Artifact is a document-like result surfaced by a tool call
type Artifact struct {
	ID        string         `json:"id"`
	Node      string         `json:"node"`
	Type      string         `json:"type"`
	Title     string         `json:"title,omitempty"`
	Content   string         `json:"content"`
	Status    string         `json:"status"`
	Meta      map[string]any `json:"meta,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (a Artifact) IsDraft() bool {
	return IsDraftID(a.ID)
}

func (a Artifact) IsComplete() bool {
	return a.Status == ArtifactComplete
}

func (a Artifact) Clone() Artifact {
	a.Meta = CloneMeta(a.Meta)
	return a
}

// ArtifactSet holds the artifacts of one session in arrival order. It is not
// safe for concurrent use.
type ArtifactSet struct {
	items  []Artifact
	tokens *TokenAccumulator
}

func NewArtifactSet(tokens *TokenAccumulator) *ArtifactSet {
	if tokens == nil {
		tokens = NewTokenAccumulator()
	}
	return &ArtifactSet{
		items:  make([]Artifact, 0),
		tokens: tokens,
	}
}

// reserved keys of structured tool output that are mapped onto artifact fields
var reservedArtifactKeys = map[string]bool{
	"content": true,
	"type":    true,
	"title":   true,
	"status":  true,
	"task":    true,
}

// FinalizeToolMessage turns a final tool message into an artifact. Output
// with an empty payload is discarded and reported with ok=false. The returned
// artifact either replaces the entry with the same id or the node's draft, or
// is appended.
func (s *ArtifactSet) FinalizeToolMessage(node, content string, meta map[string]any) (Artifact, bool) {
	data := parseToolOutput(content)
	payload := extractPayload(data)
	if strings.TrimSpace(payload) == "" {
		return Artifact{}, false
	}

	task, _ := data["task"].(map[string]any)
	toolName, _ := meta["name"].(string)

	art := Artifact{
		ID:        DraftID(node),
		Node:      node,
		Type:      firstString(data["type"], toolName, ArtifactMarkdown),
		Title:     firstString(data["title"], task["title"], toolName),
		Content:   payload,
		Status:    ArtifactComplete,
		Meta:      CloneMeta(meta),
		UpdatedAt: time.Now(),
	}
	if id, ok := meta["tool_call_id"].(string); ok && id != "" {
		art.ID = id
	}
	if status, ok := data["status"].(string); ok && status == ArtifactStreaming {
		art.Status = ArtifactStreaming
	}
	for k, v := range data {
		if reservedArtifactKeys[k] {
			continue
		}
		if art.Meta == nil {
			art.Meta = make(map[string]any)
		}
		if _, exists := art.Meta[k]; !exists {
			art.Meta[k] = v
		}
	}

	s.upsert(node, art)
	s.tokens.Reset(node)
	return art.Clone(), true
}

// Add appends art unless an artifact with the same id already exists
func (s *ArtifactSet) Add(art Artifact) bool {
	if s.indexOf(art.ID) >= 0 {
		return false
	}
	s.items = append(s.items, art.Clone())
	return true
}

// Get returns the artifact with id
func (s *ArtifactSet) Get(id string) (Artifact, bool) {
	if i := s.indexOf(id); i >= 0 {
		return s.items[i].Clone(), true
	}
	return Artifact{}, false
}

// Artifacts returns a copy of all artifacts in arrival order
func (s *ArtifactSet) Artifacts() []Artifact {
	out := make([]Artifact, len(s.items))
	for i, a := range s.items {
		out[i] = a.Clone()
	}
	return out
}

func (s *ArtifactSet) Len() int {
	return len(s.items)
}

// Reset drops every artifact
func (s *ArtifactSet) Reset() {
	s.items = make([]Artifact, 0)
}

func (s *ArtifactSet) upsert(node string, art Artifact) {
	draftID := DraftID(node)
	for i := range s.items {
		if s.items[i].ID == art.ID || s.items[i].ID == draftID {
			s.items[i] = art
			return
		}
	}
	s.items = append(s.items, art)
}

func (s *ArtifactSet) indexOf(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

// parseToolOutput decodes bracketed tool output as JSON. Anything else, and
// JSON that fails to decode, is wrapped as markdown text. A top-level array
// is its own payload.
func parseToolOutput(content string) map[string]any {
	trimmed := strings.TrimSpace(content)
	markdown := map[string]any{"type": ArtifactMarkdown, "content": content}

	switch {
	case strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}"):
		var obj map[string]any
		if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
			return markdown
		}
		return obj
	case strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]"):
		var list []any
		if err := json.Unmarshal([]byte(trimmed), &list); err != nil {
			return markdown
		}
		return map[string]any{"type": ArtifactJSON, "content": list}
	default:
		return markdown
	}
}

// extractPayload returns the displayable payload of decoded tool output,
// taken from "content" or a nested "task.content". Structured payloads are
// re-serialized as JSON.
func extractPayload(data map[string]any) string {
	v, ok := data["content"]
	if !ok || v == nil {
		if task, isTask := data["task"].(map[string]any); isTask {
			v = task["content"]
		}
	}

	switch p := v.(type) {
	case nil:
		return ""
	case string:
		return p
	default:
		encoded, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}

func firstString(values ...any) string {
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return ""
}
