package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/killallgit/agentstream/pkg/chat"
	"github.com/killallgit/agentstream/pkg/logger"
)

var ErrNotFound = errors.New("session not found")

// Context ties a session to the domain object it is about. Only ObjectKind
// and ObjectID take part in identity.
type Context struct {
	ObjectKind string         `json:"object_kind"`
	ObjectID   string         `json:"object_id"`
	Title      string         `json:"title,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

func (c Context) Matches(other Context) bool {
	return c.ObjectKind == other.ObjectKind && c.ObjectID == other.ObjectID
}

type Session struct {
	ID          string         `json:"id"`
	ThreadID    string         `json:"thread_id"`
	Messages    []chat.Message `json:"messages"`
	IsStreaming bool           `json:"is_streaming"`
	Context     Context        `json:"context"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (s *Session) clone() Session {
	out := *s
	out.Messages = chat.CloneMessages(s.Messages)
	out.Context.Extra = chat.CloneMeta(s.Context.Extra)
	return out
}

// Store holds every chat session of the process. All operations replace
// whole values under the store's lock and reads return copies.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string
	subs     map[int]chan string
	nextSub  int
	log      *logger.Logger
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		subs:     make(map[int]chan string),
		log:      logger.WithComponent("session"),
	}
}

// FindOrCreateSession returns the session for the object named by ctx,
// creating it with fresh session and thread ids when none exists.
func (s *Store) FindOrCreateSession(ctx Context) string {
	s.mu.Lock()
	for _, id := range s.order {
		if s.sessions[id].Context.Matches(ctx) {
			s.mu.Unlock()
			return id
		}
	}

	now := time.Now()
	sess := &Session{
		ID:        uuid.NewString(),
		ThreadID:  uuid.NewString(),
		Messages:  make([]chat.Message, 0),
		Context:   Context{ObjectKind: ctx.ObjectKind, ObjectID: ctx.ObjectID, Title: ctx.Title, Extra: chat.CloneMeta(ctx.Extra)},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[sess.ID] = sess
	s.order = append(s.order, sess.ID)
	s.notifyLocked(sess.ID)
	s.mu.Unlock()

	s.log.Info("Session created", "session_id", sess.ID, "object_kind", ctx.ObjectKind, "object_id", ctx.ObjectID)
	return sess.ID
}

// Get returns a copy of the session
func (s *Store) Get(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	return sess.clone(), true
}

// List returns copies of all sessions in creation order
func (s *Store) List() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Session, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.sessions[id].clone())
	}
	return out
}

// AddMessage appends msg unless the session already has a message with its id
func (s *Store) AddMessage(id string, msg chat.Message) error {
	return s.update(id, func(sess *Session) {
		for _, m := range sess.Messages {
			if m.ID == msg.ID {
				return
			}
		}
		sess.Messages = append(sess.Messages, msg.Clone())
	})
}

// UpdateStreamingMessage records draft progress. A chunk with an id replaces
// the draft with that id or starts it. A chunk without an id appends its text
// to the last message if that is a draft, and otherwise starts a new draft.
func (s *Store) UpdateStreamingMessage(id string, chunk chat.Message) error {
	return s.update(id, func(sess *Session) {
		if chunk.ID == "" {
			if n := len(sess.Messages); n > 0 && sess.Messages[n-1].IsDraft() {
				sess.Messages[n-1].Content += chunk.Content
				return
			}
			sess.Messages = append(sess.Messages, chat.NewDraftMessage(chat.DefaultNode, chunk.Content))
			return
		}

		draft := chunk.Clone()
		if draft.Role == "" {
			draft.Role = chat.RoleAI
		}
		for i := range sess.Messages {
			if sess.Messages[i].ID == draft.ID {
				sess.Messages[i] = draft
				return
			}
		}
		sess.Messages = append(sess.Messages, draft)
	})
}

// SetStreamingDraftMeta merges meta into the current draft, creating an
// empty draft when there is none. The current draft is the last message
// when it is a draft; meta["node"] selects the draft for that node instead.
func (s *Store) SetStreamingDraftMeta(id string, meta map[string]any) error {
	return s.update(id, func(sess *Session) {
		idx := -1
		if node, ok := meta["node"].(string); ok && node != "" {
			draftID := chat.DraftID(node)
			for i := range sess.Messages {
				if sess.Messages[i].ID == draftID {
					idx = i
				}
			}
			if idx < 0 {
				sess.Messages = append(sess.Messages, chat.NewDraftMessage(node, ""))
				idx = len(sess.Messages) - 1
			}
		} else if n := len(sess.Messages); n > 0 && sess.Messages[n-1].IsDraft() {
			idx = n - 1
		} else {
			sess.Messages = append(sess.Messages, chat.NewDraftMessage(chat.DefaultNode, ""))
			idx = len(sess.Messages) - 1
		}

		draft := sess.Messages[idx]
		merged := chat.CloneMeta(draft.Meta)
		if merged == nil {
			merged = make(map[string]any, len(meta))
		}
		for k, v := range meta {
			merged[k] = v
		}
		draft.Meta = merged
		sess.Messages[idx] = draft
	})
}

// FinalizeStreamingMessage drops the draft the message completes together
// with any earlier copy of it, then appends msg. The draft is chosen by
// msg.Meta["node"]; without a node every draft is dropped.
func (s *Store) FinalizeStreamingMessage(id string, msg chat.Message) error {
	return s.update(id, func(sess *Session) {
		node, _ := msg.Meta["node"].(string)
		draftID := chat.DraftID(node)

		kept := make([]chat.Message, 0, len(sess.Messages)+1)
		for _, m := range sess.Messages {
			if m.ID == msg.ID {
				continue
			}
			if m.IsDraft() && (node == "" || m.ID == draftID) {
				continue
			}
			kept = append(kept, m)
		}
		sess.Messages = append(kept, msg.Clone())
	})
}

// SetStreaming flips the streaming flag. Starting a stream clears a previous error.
func (s *Store) SetStreaming(id string, streaming bool) error {
	return s.update(id, func(sess *Session) {
		sess.IsStreaming = streaming
		if streaming {
			sess.Error = ""
		}
	})
}

// SetError records a user-visible error and ends streaming
func (s *Store) SetError(id string, message string) error {
	return s.update(id, func(sess *Session) {
		sess.Error = message
		if message != "" {
			sess.IsStreaming = false
		}
	})
}

// ClearSession empties the transcript and starts a new thread. The session
// id and context are kept.
func (s *Store) ClearSession(id string) error {
	return s.update(id, func(sess *Session) {
		sess.Messages = make([]chat.Message, 0)
		sess.ThreadID = uuid.NewString()
		sess.Error = ""
		sess.IsStreaming = false
	})
}

// ReplaceMessages swaps the transcript wholesale, e.g. after loading history
func (s *Store) ReplaceMessages(id string, msgs []chat.Message) error {
	return s.update(id, func(sess *Session) {
		sess.Messages = chat.CloneMessages(msgs)
		if sess.Messages == nil {
			sess.Messages = make([]chat.Message, 0)
		}
	})
}

// Subscribe returns a channel that receives the id of each changed session
// and a function ending the subscription. Notifications are dropped for
// subscribers that are not keeping up.
func (s *Store) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 32)

	s.mu.Lock()
	subID := s.nextSub
	s.nextSub++
	s.subs[subID] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, subID)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) update(id string, fn func(*Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	fn(sess)
	sess.UpdatedAt = time.Now()
	s.notifyLocked(id)
	return nil
}

func (s *Store) notifyLocked(id string) {
	for _, ch := range s.subs {
		select {
		case ch <- id:
		default:
		}
	}
}
