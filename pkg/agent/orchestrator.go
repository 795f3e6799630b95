package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/killallgit/agentstream/pkg/auth"
	"github.com/killallgit/agentstream/pkg/chat"
	"github.com/killallgit/agentstream/pkg/config"
	"github.com/killallgit/agentstream/pkg/logger"
	"github.com/killallgit/agentstream/pkg/process"
	"github.com/killallgit/agentstream/pkg/refresh"
	"github.com/killallgit/agentstream/pkg/session"
	"github.com/killallgit/agentstream/pkg/stream"
	"github.com/killallgit/agentstream/pkg/toolcall"
)

const updateBufferSize = 100

// Options wires the orchestrator to its collaborators
type Options struct {
	Client Streamer
	Auth   auth.TokenProvider

	// Sessions and Refresh are shared across orchestrators. Both are optional.
	Sessions *session.Store
	Refresh  *refresh.Registry

	// TaskTracker is called while the orchestrator holds its lock and must
	// not call back into it.
	TaskTracker chat.TaskTracker

	AgentID     string
	UserID      string
	AgentConfig map[string]any

	RefreshDelay time.Duration
	RefreshKinds []string

	// ThreadID continues an existing thread; a new one is minted when empty
	ThreadID string
}

// OptionsFromConfig builds options from the loaded settings
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Client:       NewClientFromConfig(cfg.Backend),
		Auth:         auth.FromConfig(cfg.Auth),
		AgentID:      cfg.Agent.ID,
		UserID:       cfg.Agent.UserID,
		AgentConfig:  cfg.Agent.Config,
		RefreshDelay: cfg.Refresh.Delay,
		RefreshKinds: cfg.Refresh.Kinds,
	}
}

// Orchestrator drives stream invocations for one conversation: it opens the
// stream, decodes frames in arrival order, feeds the assemblers, mirrors the
// result into the session store and schedules refresh signals.
type Orchestrator struct {
	opts Options
	log  *logger.Logger

	mu        sync.Mutex
	asm       *chat.Assembler
	threadID  string
	streaming bool
	state     process.State
	err       error
	cancel    context.CancelFunc
	done      chan struct{}
	pending   []*refresh.Pending
}

// streamState identifies one invocation inside the read loop
type streamState struct {
	id        string
	sessionID string
}

func New(opts Options) *Orchestrator {
	if opts.Auth == nil {
		opts.Auth = auth.StaticToken("")
	}
	if opts.Refresh == nil {
		opts.Refresh = refresh.NewRegistry()
	}
	if opts.RefreshDelay <= 0 {
		opts.RefreshDelay = config.DefaultRefreshDelay
	}
	if len(opts.RefreshKinds) == 0 {
		opts.RefreshKinds = toolcall.DefaultObjectKinds
	}

	threadID := opts.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}

	return &Orchestrator{
		opts:     opts,
		log:      logger.WithComponent("orchestrator"),
		asm:      chat.NewAssembler(opts.TaskTracker),
		threadID: threadID,
	}
}

// Send starts a stream invocation for text. Empty text asks the backend to
// continue the thread. The returned channel is closed when the invocation
// ends and must be drained by the caller. Send fails with ErrStreamActive
// while a previous invocation is still running.
func (o *Orchestrator) Send(ctx context.Context, text, sessionID string) (<-chan Update, error) {
	if o.opts.Client == nil {
		return nil, errors.New("no stream client configured")
	}

	o.mu.Lock()
	if o.streaming {
		o.mu.Unlock()
		return nil, ErrStreamActive
	}

	if sessionID != "" && o.opts.Sessions != nil {
		if sess, ok := o.opts.Sessions.Get(sessionID); ok {
			o.threadID = sess.ThreadID
		}
	}

	o.streaming = true
	o.state = process.StateConnecting
	o.err = nil
	o.asm.Begin()

	var human *chat.Message
	if strings.TrimSpace(text) != "" {
		msg := o.asm.Conversation.AddHuman(text)
		human = &msg
	}

	streamCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	o.cancel = cancel
	o.done = done

	req := Request{
		ThreadID: o.threadID,
		UserID:   o.opts.UserID,
		Message:  text,
		AgentID:  o.opts.AgentID,
		Config:   chat.CloneMeta(o.opts.AgentConfig),
	}
	o.mu.Unlock()

	o.mirror(sessionID, func(s *session.Store) error {
		if human != nil {
			if err := s.AddMessage(sessionID, *human); err != nil {
				return err
			}
		}
		return s.SetStreaming(sessionID, true)
	})

	st := streamState{id: uuid.NewString(), sessionID: sessionID}
	updates := make(chan Update, updateBufferSize)

	o.log.Info("Stream starting", "stream_id", st.id, "session_id", sessionID, "thread_id", req.ThreadID, "message_length", len(text))
	go o.run(streamCtx, cancel, done, st, req, updates)
	return updates, nil
}

func (o *Orchestrator) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}, st streamState, req Request, updates chan<- Update) {
	defer close(done)
	defer close(updates)
	defer cancel()

	o.publish(ctx, updates, Update{Type: StreamStarted, StreamID: st.id, SessionID: st.sessionID})

	token, err := o.opts.Auth.Token(ctx)
	if err != nil {
		o.fail(ctx, st, updates, &TransportError{Op: "auth", Cause: err})
		return
	}
	req.Token = token

	body, err := o.opts.Client.Stream(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			o.finish(ctx, st, updates)
			return
		}
		o.fail(ctx, st, updates, wrapTransportError(err, "stream request"))
		return
	}
	defer body.Close()

	// Closing the body unblocks a read that is waiting for bytes
	stop := context.AfterFunc(ctx, func() { body.Close() })
	defer stop()

	err = stream.Read(ctx, body, func(f stream.Frame) error {
		o.handleFrame(ctx, st, f, updates)
		return nil
	})

	switch {
	case ctx.Err() != nil:
		o.log.Info("Stream cancelled", "stream_id", st.id)
		o.finish(ctx, st, updates)
	case err != nil:
		o.fail(ctx, st, updates, wrapTransportError(err, "stream read"))
	default:
		o.finish(ctx, st, updates)
	}
}

func (o *Orchestrator) handleFrame(ctx context.Context, st streamState, f stream.Frame, updates chan<- Update) {
	switch fr := f.(type) {
	case stream.Token:
		o.handleToken(ctx, st, fr, updates)
	case stream.Message:
		o.handleMessage(ctx, st, fr, updates)
	case stream.Done:
		o.log.Debug("Stream sentinel received", "stream_id", st.id)
	case stream.Unrecognized:
		o.log.Debug("Ignoring unrecognized frame", "stream_id", st.id, "kind", fr.Kind)
		o.publish(ctx, updates, Update{Type: FrameIgnored, StreamID: st.id, SessionID: st.sessionID, Raw: fr.Raw})
	case stream.Lost:
		o.log.Warn("Stream ended with an incomplete record", "stream_id", st.id, "bytes", len(fr.Raw))
		o.publish(ctx, updates, Update{Type: FrameLost, StreamID: st.id, SessionID: st.sessionID, Raw: fr.Raw})
	}
}

func (o *Orchestrator) handleToken(ctx context.Context, st streamState, tok stream.Token, updates chan<- Update) {
	var calls []toolcall.Call
	if tok.Meta != nil {
		calls = toolcall.Normalize(tok.Meta["tool_call_chunks"])
		if len(calls) == 0 {
			calls = toolcall.Normalize(tok.Meta["tool_calls"])
		}
	}
	label, hasActivity := toolcall.Activity(calls)
	hasText := tok.Content != ""
	if !hasText && !hasActivity {
		return
	}

	var draft, announced chat.Message
	o.mu.Lock()
	if hasText {
		draft = o.asm.Conversation.AppendToken(tok.Node, tok.Content)
		o.state = process.StateReceiving
	}
	if hasActivity {
		o.state = process.StateToolUse
		announced = o.asm.Conversation.SetDraftMeta(tok.Node, map[string]any{
			"activity":   label,
			"tool_calls": calls,
		})
	}
	o.mu.Unlock()

	if hasText {
		o.mirror(st.sessionID, func(s *session.Store) error {
			return s.UpdateStreamingMessage(st.sessionID, draft)
		})
		o.publish(ctx, updates, Update{Type: DraftUpdated, StreamID: st.id, SessionID: st.sessionID, Node: tok.Node, Message: draft})
	}
	if hasActivity {
		o.mirror(st.sessionID, func(s *session.Store) error {
			return s.SetStreamingDraftMeta(st.sessionID, map[string]any{
				"node":       tok.Node,
				"activity":   label,
				"tool_calls": calls,
			})
		})
		o.publish(ctx, updates, Update{
			Type:      ToolActivity,
			StreamID:  st.id,
			SessionID: st.sessionID,
			Node:      tok.Node,
			Message:   announced,
			Activity:  label,
			Calls:     calls,
		})
	}
}

func (o *Orchestrator) handleMessage(ctx context.Context, st streamState, msg stream.Message, updates chan<- Update) {
	switch msg.Role {
	case chat.RoleTool:
		o.mu.Lock()
		art, ok := o.asm.Artifacts.FinalizeToolMessage(msg.Node, msg.Content, msg.Meta)
		o.mu.Unlock()
		if !ok {
			o.log.Debug("Discarded tool message without payload", "stream_id", st.id, "node", msg.Node)
			return
		}
		o.publish(ctx, updates, Update{Type: ArtifactUpdated, StreamID: st.id, SessionID: st.sessionID, Node: msg.Node, Artifact: art})

	case chat.RoleHuman:
		// the outgoing text is already in the transcript under its client id
		o.publish(ctx, updates, Update{Type: FrameIgnored, StreamID: st.id, SessionID: st.sessionID, Node: msg.Node, Raw: msg.Content})

	default:
		meta := chat.CloneMeta(msg.Meta)
		if meta == nil {
			meta = make(map[string]any)
		}

		o.mu.Lock()
		node := o.asm.Conversation.ResolveNode(msg.Node, msg.Content)
		meta["node"] = node
		final := o.asm.Conversation.Finalize(node, chat.Final{
			Role:    msg.Role,
			RunID:   msg.RunID,
			Content: msg.Content,
			Meta:    meta,
		})
		o.mu.Unlock()

		o.mirror(st.sessionID, func(s *session.Store) error {
			return s.FinalizeStreamingMessage(st.sessionID, final)
		})
		o.publish(ctx, updates, Update{Type: MessageFinalized, StreamID: st.id, SessionID: st.sessionID, Node: node, Message: final})

		calls := toolcall.Normalize(meta["tool_calls"])
		if len(calls) == 0 {
			return
		}
		if label, ok := toolcall.Activity(calls); ok {
			o.setState(process.StateToolUse)
			o.publish(ctx, updates, Update{
				Type:      ToolActivity,
				StreamID:  st.id,
				SessionID: st.sessionID,
				Node:      node,
				Message:   final,
				Activity:  label,
				Calls:     calls,
			})
		}
		o.scheduleRefresh(ctx, calls)
	}
}

// scheduleRefresh raises delayed refresh signals for object updates. Nothing
// is scheduled once the invocation has been cancelled.
func (o *Orchestrator) scheduleRefresh(ctx context.Context, calls []toolcall.Call) {
	keys := toolcall.ObjectUpdates(calls, o.opts.RefreshKinds)
	if len(keys) == 0 {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if ctx.Err() != nil {
		return
	}

	live := o.pending[:0]
	for _, p := range o.pending {
		select {
		case <-p.Fired():
		default:
			if !p.Cancelled() {
				live = append(live, p)
			}
		}
	}
	o.pending = live

	for _, key := range keys {
		o.pending = append(o.pending, o.opts.Refresh.Schedule(key.Kind, key.ID, o.opts.RefreshDelay))
		o.log.Debug("Refresh scheduled for object update", "kind", key.Kind, "id", key.ID, "delay", o.opts.RefreshDelay)
	}
}

func (o *Orchestrator) finish(ctx context.Context, st streamState, updates chan<- Update) {
	o.mu.Lock()
	o.streaming = false
	o.state = process.StateIdle
	o.mu.Unlock()

	o.mirror(st.sessionID, func(s *session.Store) error {
		return s.SetStreaming(st.sessionID, false)
	})
	o.log.Info("Stream complete", "stream_id", st.id)
	o.publish(ctx, updates, Update{Type: StreamComplete, StreamID: st.id, SessionID: st.sessionID})
}

// fail records a transport failure. The transcript is kept as it is.
func (o *Orchestrator) fail(ctx context.Context, st streamState, updates chan<- Update, err error) {
	o.mu.Lock()
	o.streaming = false
	o.state = process.StateFailed
	o.err = err
	o.mu.Unlock()

	o.mirror(st.sessionID, func(s *session.Store) error {
		return s.SetError(st.sessionID, err.Error())
	})
	o.log.Error("Stream failed", "stream_id", st.id, "error", err)
	o.publish(ctx, updates, Update{Type: StreamError, StreamID: st.id, SessionID: st.sessionID, Error: err})
}

// publish delivers u unless the invocation was cancelled and the consumer
// has stopped reading
func (o *Orchestrator) publish(ctx context.Context, updates chan<- Update, u Update) {
	select {
	case updates <- u:
	case <-ctx.Done():
		select {
		case updates <- u:
		default:
			o.log.Debug("Dropped update after cancellation", "type", u.Type.String())
		}
	}
}

func (o *Orchestrator) setState(state process.State) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()
}

func (o *Orchestrator) mirror(sessionID string, fn func(*session.Store) error) {
	if o.opts.Sessions == nil || sessionID == "" {
		return
	}
	if err := fn(o.opts.Sessions); err != nil {
		o.log.Warn("Failed to update session", "session_id", sessionID, "error", err)
	}
}

// Cancel stops the running invocation, if any, and every refresh signal
// that has not fired yet.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	pending := o.pending
	o.pending = nil
	o.mu.Unlock()

	cancelled := 0
	for _, p := range pending {
		if p.Cancel() {
			cancelled++
		}
	}
	if cancelled > 0 {
		o.log.Debug("Cancelled pending refresh signals", "count", cancelled)
	}
}

// Close cancels and waits for the running invocation to end
func (o *Orchestrator) Close() {
	o.Cancel()

	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Reset starts a fresh conversation on a new thread
func (o *Orchestrator) Reset(sessionID string) error {
	o.Close()

	o.mu.Lock()
	o.asm.Reset()
	o.state = process.StateIdle
	o.err = nil
	o.threadID = uuid.NewString()
	o.mu.Unlock()

	if o.opts.Sessions == nil || sessionID == "" {
		return nil
	}
	if err := o.opts.Sessions.ClearSession(sessionID); err != nil {
		return err
	}
	if sess, ok := o.opts.Sessions.Get(sessionID); ok {
		o.mu.Lock()
		o.threadID = sess.ThreadID
		o.mu.Unlock()
	}
	return nil
}

// LoadHistory rebuilds the transcript and artifacts from persisted records
func (o *Orchestrator) LoadHistory(records []chat.HistoryRecord, sessionID string) (int, int) {
	o.mu.Lock()
	messages, artifacts := o.asm.LoadHistory(records)
	transcript := o.asm.Conversation.Messages()
	o.mu.Unlock()

	o.mirror(sessionID, func(s *session.Store) error {
		return s.ReplaceMessages(sessionID, transcript)
	})
	return messages, artifacts
}

func (o *Orchestrator) Messages() []chat.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.asm.Conversation.Messages()
}

func (o *Orchestrator) Artifacts() []chat.Artifact {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.asm.Artifacts.Artifacts()
}

func (o *Orchestrator) IsStreaming() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.streaming
}

// State returns the phase of the running or last invocation
func (o *Orchestrator) State() process.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Err returns the transport error of the last invocation
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

func (o *Orchestrator) ThreadID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.threadID
}

// Refresh returns the registry that receives this orchestrator's refresh signals
func (o *Orchestrator) Refresh() *refresh.Registry {
	return o.opts.Refresh
}
