package chat

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskTracker receives task-progress summaries carried by final messages
type TaskTracker interface {
	UpdateTasks(summary []string, currentIndex int)
}

// Final describes a completed message as delivered by the backend
type Final struct {
	Role    string
	RunID   string
	Content string
	Meta    map[string]any
}

// Conversation is the ordered transcript of one session. It is not safe for
// concurrent use; callers serialize access.
type Conversation struct {
	messages []Message
	tokens   *TokenAccumulator
	tracker  TaskTracker
}

// NewConversation creates an empty transcript sharing tokens with the artifact side
func NewConversation(tokens *TokenAccumulator, tracker TaskTracker) *Conversation {
	if tokens == nil {
		tokens = NewTokenAccumulator()
	}
	return &Conversation{
		messages: make([]Message, 0),
		tokens:   tokens,
		tracker:  tracker,
	}
}

// AppendToken adds text to the node's accumulation and creates or replaces
// the node's draft with the accumulated content.
func (c *Conversation) AppendToken(node, text string) Message {
	content := c.tokens.Append(node, text)

	if i := c.indexOf(DraftID(node)); i >= 0 {
		draft := c.messages[i]
		draft.Content = content
		draft.Timestamp = time.Now()
		c.messages[i] = draft
		return draft.Clone()
	}

	draft := NewDraftMessage(node, content)
	c.messages = append(c.messages, draft)
	return draft.Clone()
}

// SetDraftMeta merges meta into the node's draft, creating an empty draft
// when the node has not streamed any text yet.
func (c *Conversation) SetDraftMeta(node string, meta map[string]any) Message {
	i := c.indexOf(DraftID(node))
	if i < 0 {
		c.messages = append(c.messages, NewDraftMessage(node, c.tokens.Content(node)))
		i = len(c.messages) - 1
	}

	draft := c.messages[i]
	merged := CloneMeta(draft.Meta)
	if merged == nil {
		merged = make(map[string]any, len(meta))
	}
	for k, v := range meta {
		merged[k] = v
	}
	draft.Meta = merged
	c.messages[i] = draft
	return draft.Clone()
}

// Finalize replaces the node's draft and any message sharing the run id with
// one final message appended at the tail. Repeating the call with the same
// run id leaves exactly one message for it.
func (c *Conversation) Finalize(node string, f Final) Message {
	id := f.RunID
	if id == "" {
		id = fallbackID(f.Role)
	}
	role := f.Role
	if role == "" {
		role = RoleAI
	}

	draftID := DraftID(node)
	kept := make([]Message, 0, len(c.messages)+1)
	for _, m := range c.messages {
		if m.ID == draftID || m.ID == id {
			continue
		}
		kept = append(kept, m)
	}

	msg := Message{
		ID:        id,
		Role:      role,
		Content:   f.Content,
		Meta:      CloneMeta(f.Meta),
		Timestamp: time.Now(),
	}
	c.messages = append(kept, msg)
	c.tokens.Reset(node)

	c.forwardTasks(msg.Meta)
	return msg.Clone()
}

// ResolveNode maps a final message that names no node onto the open draft
// it completes. A draft whose text equals content wins; otherwise a lone open
// draft is taken. With several unrelated drafts the node is returned as is and
// no draft is replaced.
func (c *Conversation) ResolveNode(node, content string) string {
	if node != DefaultNode || c.indexOf(DraftID(node)) >= 0 {
		return node
	}

	var drafts []string
	for i := len(c.messages) - 1; i >= 0; i-- {
		m := c.messages[i]
		if !m.IsDraft() {
			continue
		}
		if content != "" && m.Content == content {
			return m.Node()
		}
		drafts = append(drafts, m.Node())
	}
	if len(drafts) == 1 {
		return drafts[0]
	}
	return node
}

// DropDraft removes the node's draft without finalizing it
func (c *Conversation) DropDraft(node string) bool {
	i := c.indexOf(DraftID(node))
	if i < 0 {
		return false
	}
	c.messages = append(c.messages[:i], c.messages[i+1:]...)
	c.tokens.Reset(node)
	return true
}

// AddHuman appends outgoing user text with a client-assigned id
func (c *Conversation) AddHuman(text string) Message {
	msg := NewHumanMessage(text)
	c.messages = append(c.messages, msg)
	return msg.Clone()
}

// Add appends msg unless a message with the same id is already present
func (c *Conversation) Add(msg Message) bool {
	if msg.ID != "" && c.indexOf(msg.ID) >= 0 {
		return false
	}
	c.messages = append(c.messages, msg.Clone())
	return true
}

// Messages returns a copy of the transcript
func (c *Conversation) Messages() []Message {
	return CloneMessages(c.messages)
}

// Drafts returns the drafts still open in the transcript
func (c *Conversation) Drafts() []Message {
	var drafts []Message
	for _, m := range c.messages {
		if m.IsDraft() {
			drafts = append(drafts, m.Clone())
		}
	}
	return drafts
}

func (c *Conversation) Len() int {
	return len(c.messages)
}

// Replace swaps the transcript for msgs
func (c *Conversation) Replace(msgs []Message) {
	c.messages = CloneMessages(msgs)
	if c.messages == nil {
		c.messages = make([]Message, 0)
	}
}

// Reset clears the transcript
func (c *Conversation) Reset() {
	c.messages = make([]Message, 0)
}

func (c *Conversation) indexOf(id string) int {
	for i := range c.messages {
		if c.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Conversation) forwardTasks(meta map[string]any) {
	if c.tracker == nil || meta == nil {
		return
	}
	summary, current, ok := TaskProgress(meta)
	if !ok {
		return
	}
	c.tracker.UpdateTasks(summary, current)
}

// TaskProgress extracts the task summary under meta["task_summary"] and the
// current index under meta["current_task_index"]. Summary entries may be
// plain strings or objects with a title, description or name.
func TaskProgress(meta map[string]any) ([]string, int, bool) {
	items, ok := meta["task_summary"].([]any)
	if !ok {
		return nil, 0, false
	}

	summary := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			summary = append(summary, v)
		case map[string]any:
			summary = append(summary, taskLabel(v))
		default:
			summary = append(summary, fmt.Sprint(v))
		}
	}

	current := 0
	switch v := meta["current_task_index"].(type) {
	case float64:
		current = int(v)
	case int:
		current = v
	}
	return summary, current, true
}

func taskLabel(task map[string]any) string {
	for _, key := range []string{"title", "description", "name"} {
		if s, ok := task[key].(string); ok && s != "" {
			return s
		}
	}
	return fmt.Sprint(task)
}

func fallbackID(role string) string {
	if role == "" {
		role = RoleAI
	}
	return role + "_" + uuid.NewString()
}
