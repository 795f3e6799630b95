package agent

import (
	"github.com/killallgit/agentstream/pkg/chat"
	"github.com/killallgit/agentstream/pkg/toolcall"
)

// UpdateType identifies what changed during a stream
type UpdateType int

const (
	StreamStarted UpdateType = iota
	DraftUpdated
	ToolActivity
	MessageFinalized
	ArtifactUpdated
	FrameIgnored
	FrameLost
	StreamError
	StreamComplete
)

func (t UpdateType) String() string {
	switch t {
	case StreamStarted:
		return "stream_started"
	case DraftUpdated:
		return "draft_updated"
	case ToolActivity:
		return "tool_activity"
	case MessageFinalized:
		return "message_finalized"
	case ArtifactUpdated:
		return "artifact_updated"
	case FrameIgnored:
		return "frame_ignored"
	case FrameLost:
		return "frame_lost"
	case StreamError:
		return "stream_error"
	case StreamComplete:
		return "stream_complete"
	default:
		return "unknown"
	}
}

// Update is published for every observable change of a stream
type Update struct {
	Type      UpdateType
	StreamID  string
	SessionID string
	Node      string

	// Message is set for DraftUpdated and MessageFinalized
	Message chat.Message
	// Artifact is set for ArtifactUpdated
	Artifact chat.Artifact
	// Activity and Calls are set for ToolActivity
	Activity string
	Calls    []toolcall.Call
	// Raw is the undecoded payload for FrameIgnored and FrameLost
	Raw string
	// Error is set for StreamError
	Error error
}
