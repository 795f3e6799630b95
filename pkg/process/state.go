package process

// State is the phase of one stream invocation
type State string

const (
	// StateIdle indicates no invocation is running
	StateIdle State = ""

	// StateConnecting indicates the request is open and no frame has arrived yet
	StateConnecting State = "connecting"

	// StateReceiving indicates text is streaming into a draft
	StateReceiving State = "receiving"

	// StateToolUse indicates the backend announced or ran a tool call
	StateToolUse State = "tool"

	// StateFailed indicates the last invocation ended with a transport error
	StateFailed State = "failed"
)

func (s State) String() string {
	return string(s)
}

// Active reports whether an invocation is running in this state
func (s State) Active() bool {
	switch s {
	case StateConnecting, StateReceiving, StateToolUse:
		return true
	default:
		return false
	}
}

// GetIcon returns the status icon for a state
func (s State) GetIcon() string {
	switch s {
	case StateConnecting:
		return "↑"
	case StateReceiving:
		return "↓"
	case StateToolUse:
		return "🔨"
	case StateFailed:
		return "✗"
	default:
		return ""
	}
}

// GetDisplayName returns a human-readable name for the state
func (s State) GetDisplayName() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateReceiving:
		return "Receiving"
	case StateToolUse:
		return "Using tools"
	case StateFailed:
		return "Failed"
	case StateIdle:
		return "Idle"
	default:
		return ""
	}
}
