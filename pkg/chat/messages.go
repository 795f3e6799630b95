package chat

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tmc/langchaingo/llms"
)

const (
	RoleHuman  = string(llms.ChatMessageTypeHuman)
	RoleAI     = string(llms.ChatMessageTypeAI)
	RoleTool   = string(llms.ChatMessageTypeTool)
	RoleSystem = string(llms.ChatMessageTypeSystem)
)

const (
	// DraftPrefix marks in-progress messages and artifacts; the rest of the id is the node
	DraftPrefix = "streaming_"
	// HumanPrefix marks client-assigned ids of outgoing user text
	HumanPrefix = "human_"
	// DefaultNode is used when the backend does not name a node
	DefaultNode = "default"
)

type Message struct {
	ID        string         `json:"id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Meta      map[string]any `json:"meta,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// DraftID returns the synthetic id of the draft for node
func DraftID(node string) string {
	return DraftPrefix + node
}

// IsDraftID reports whether id belongs to a draft message or artifact
func IsDraftID(id string) bool {
	return strings.HasPrefix(id, DraftPrefix)
}

var lastHumanMillis atomic.Int64

// nextHumanID returns "human_<unix millis>", bumped forward when two messages
// are created within the same millisecond so ids stay unique.
func nextHumanID() string {
	for {
		now := time.Now().UnixMilli()
		last := lastHumanMillis.Load()
		if now <= last {
			now = last + 1
		}
		if lastHumanMillis.CompareAndSwap(last, now) {
			return fmt.Sprintf("%s%d", HumanPrefix, now)
		}
	}
}

func NewHumanMessage(content string) Message {
	return Message{
		ID:        nextHumanID(),
		Role:      RoleHuman,
		Content:   strings.TrimSpace(content),
		Timestamp: time.Now(),
	}
}

func NewDraftMessage(node, content string) Message {
	return Message{
		ID:        DraftID(node),
		Role:      RoleAI,
		Content:   content,
		Meta:      map[string]any{"node": node},
		Timestamp: time.Now(),
	}
}

func (m Message) IsDraft() bool {
	return IsDraftID(m.ID)
}

func (m Message) IsHuman() bool {
	return m.Role == RoleHuman
}

func (m Message) IsAI() bool {
	return m.Role == RoleAI
}

func (m Message) IsTool() bool {
	return m.Role == RoleTool
}

func (m Message) IsEmpty() bool {
	return strings.TrimSpace(m.Content) == ""
}

// Node returns the node a draft belongs to, or "" for final messages
func (m Message) Node() string {
	if !m.IsDraft() {
		return ""
	}
	return strings.TrimPrefix(m.ID, DraftPrefix)
}

// ToolCalls returns the raw tool-call metadata of the message, if any
func (m Message) ToolCalls() any {
	if m.Meta == nil {
		return nil
	}
	return m.Meta["tool_calls"]
}

// Clone returns a copy that shares no maps with m
func (m Message) Clone() Message {
	m.Meta = CloneMeta(m.Meta)
	return m
}

// CloneMeta copies a metadata map one level deep
func CloneMeta(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

// CloneMessages copies a message slice including metadata maps
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
