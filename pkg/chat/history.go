package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/killallgit/agentstream/pkg/logger"
	"github.com/killallgit/agentstream/pkg/stream"
)

const (
	// ClassificationChat marks history entries meant for the transcript
	ClassificationChat = "chat"
	// MetaMessageType is the metadata key carrying the classification
	MetaMessageType = "message_type"
)

// HistoryRecord is one persisted message as returned by the backend
type HistoryRecord struct {
	Type             string          `json:"type"`
	ID               string          `json:"id,omitempty"`
	RunID            string          `json:"run_id,omitempty"`
	Name             string          `json:"name,omitempty"`
	Node             string          `json:"langgraph_node,omitempty"`
	Content          json.RawMessage `json:"content"`
	ToolCallID       string          `json:"tool_call_id,omitempty"`
	ToolCalls        json.RawMessage `json:"tool_calls,omitempty"`
	Metadata         map[string]any  `json:"metadata,omitempty"`
	AdditionalKwargs map[string]any  `json:"additional_kwargs,omitempty"`
}

// historyFile accepts either a bare list of records or {"messages": [...]}
type historyFile struct {
	Messages []HistoryRecord `json:"messages"`
}

// ReadHistoryFile loads persisted records from a JSON file
func ReadHistoryFile(path string) ([]HistoryRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}
	return DecodeHistory(data)
}

// DecodeHistory decodes a JSON history document
func DecodeHistory(data []byte) ([]HistoryRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var records []HistoryRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("failed to decode history: %w", err)
		}
		return records, nil
	}

	var file historyFile
	if err := json.Unmarshal(trimmed, &file); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	return file.Messages, nil
}

// Role maps the record type onto the transcript roles
func (r HistoryRecord) Role() string {
	return stream.NormalizeRole(r.Type)
}

// key is the identity used to skip duplicate records
func (r HistoryRecord) key(index int) string {
	switch {
	case r.RunID != "":
		return r.RunID
	case r.ID != "":
		return r.ID
	default:
		return fmt.Sprintf("history_%d", index)
	}
}

func (r HistoryRecord) node() string {
	if r.Node != "" {
		return r.Node
	}
	if node, ok := r.Metadata["langgraph_node"].(string); ok && node != "" {
		return node
	}
	return DefaultNode
}

func (r HistoryRecord) meta() map[string]any {
	meta := CloneMeta(r.Metadata)
	if meta == nil {
		meta = make(map[string]any)
	}
	if r.ToolCallID != "" {
		meta["tool_call_id"] = r.ToolCallID
	}
	if r.Name != "" {
		meta["name"] = r.Name
	}
	if calls := bytes.TrimSpace(r.ToolCalls); len(calls) > 0 && string(calls) != "null" {
		var v any
		if err := json.Unmarshal(calls, &v); err == nil {
			meta["tool_calls"] = v
		}
	}
	return meta
}

// text returns the record content as a string: JSON strings are unquoted,
// text parts are joined and other JSON is kept verbatim.
func (r HistoryRecord) text() string {
	trimmed := bytes.TrimSpace(r.Content)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}

	var parts []map[string]any
	if err := json.Unmarshal(trimmed, &parts); err == nil {
		var b strings.Builder
		for _, part := range parts {
			if text, ok := part["text"].(string); ok {
				b.WriteString(text)
			}
		}
		return b.String()
	}
	return string(trimmed)
}

// classify returns the transcript text of a record and its classification.
// Structured content supplies both when the metadata does not classify the
// record. Plain text and content that fails to decode fall back to the chat
// classification.
func (r HistoryRecord) classify() (string, string) {
	class, _ := r.Metadata[MetaMessageType].(string)
	if class == "" {
		class, _ = r.AdditionalKwargs[MetaMessageType].(string)
	}

	text := r.text()
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		if class == "" {
			class = ClassificationChat
		}
		return text, class
	}

	var structured map[string]any
	if err := json.Unmarshal([]byte(trimmed), &structured); err != nil {
		if class == "" {
			class = ClassificationChat
		}
		return text, class
	}

	if class == "" {
		class, _ = structured[MetaMessageType].(string)
	}
	if inner, ok := structured["content"].(string); ok {
		text = inner
	}
	return text, class
}

// HistoryLoader reconstructs a transcript and artifact list from records
type HistoryLoader struct {
	conv *Conversation
	arts *ArtifactSet
	log  *logger.Logger
}

func NewHistoryLoader(conv *Conversation, arts *ArtifactSet) *HistoryLoader {
	return &HistoryLoader{
		conv: conv,
		arts: arts,
		log:  logger.WithComponent("history"),
	}
}

// Load applies records in order. Human records are kept whenever they carry
// text, ai and system records only when classified as chat, and tool records
// go through artifact finalization. Records whose identity was already seen
// are skipped. It returns how many messages and artifacts were added.
func (h *HistoryLoader) Load(records []HistoryRecord) (int, int) {
	seen := make(map[string]bool, len(records))
	var messages, artifacts int

	for i, rec := range records {
		key := rec.key(i)
		if seen[key] {
			h.log.Debug("Skipping duplicate history record", "id", key)
			continue
		}
		seen[key] = true

		role := rec.Role()
		switch role {
		case RoleHuman, RoleAI, RoleSystem:
			text, class := rec.classify()
			if strings.TrimSpace(text) == "" {
				continue
			}
			if role != RoleHuman && class != ClassificationChat {
				h.log.Debug("Excluding non-chat history record", "id", key, "classification", class)
				continue
			}
			msg := Message{
				ID:      key,
				Role:    role,
				Content: text,
				Meta:    rec.meta(),
			}
			if h.conv.Add(msg) {
				messages++
			}
		case RoleTool:
			if _, ok := h.arts.FinalizeToolMessage(rec.node(), rec.text(), rec.meta()); ok {
				artifacts++
			}
		default:
			h.log.Debug("Ignoring history record with unknown type", "id", key, "type", rec.Type)
		}
	}

	h.log.Info("History loaded", "records", len(records), "messages", messages, "artifacts", artifacts)
	return messages, artifacts
}
