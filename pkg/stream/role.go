package stream

import (
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// NormalizeRole maps the message type names used on the wire and in
// persisted history onto the transcript roles. Unknown names yield "".
func NormalizeRole(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "human", "user", "humanmessage", "humanmessagechunk":
		return string(llms.ChatMessageTypeHuman)
	case "ai", "assistant", "aimessage", "aimessagechunk":
		return string(llms.ChatMessageTypeAI)
	case "tool", "toolmessage", "toolmessagechunk", "function":
		return string(llms.ChatMessageTypeTool)
	case "system", "systemmessage":
		return string(llms.ChatMessageTypeSystem)
	default:
		return ""
	}
}

func roleOr(names ...string) string {
	for _, name := range names {
		if role := NormalizeRole(name); role != "" {
			return role
		}
	}
	return string(llms.ChatMessageTypeAI)
}
