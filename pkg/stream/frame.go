package stream

// Frame is one decoded unit of the agent event stream. The concrete type is
// one of Token, Message, Done, Unrecognized or Lost; consumers are expected to
// switch over all of them.
type Frame interface {
	isFrame()
}

// Token is an incremental piece of text for one node
type Token struct {
	Node    string
	Content string
	// Meta carries tool-call announcements seen on the token record, if any
	Meta map[string]any
}

// Message is a finalized message emitted by the backend
type Message struct {
	Role    string
	RunID   string
	Node    string
	Content string
	Meta    map[string]any
}

// Done marks the terminal sentinel line
type Done struct{}

// Unrecognized is a well-formed record whose discriminator is not known.
// It is reported rather than dropped so new backend frame types show up in tests.
type Unrecognized struct {
	Kind string
	Raw  string
}

// Lost holds a partial record still sitting in the recovery buffer when the
// body ended.
type Lost struct {
	Raw string
}

func (Token) isFrame()        {}
func (Message) isFrame()      {}
func (Done) isFrame()         {}
func (Unrecognized) isFrame() {}
func (Lost) isFrame()         {}

// Kind returns a short name for a frame, used in logs
func Kind(f Frame) string {
	switch f.(type) {
	case Token:
		return "token"
	case Message:
		return "message"
	case Done:
		return "done"
	case Unrecognized:
		return "unrecognized"
	case Lost:
		return "lost"
	default:
		return "unknown"
	}
}
