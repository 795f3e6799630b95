package stream

import (
	"bytes"
	"encoding/json"
	"strings"
)

const (
	// DataPrefix marks lines that carry a payload; everything else is protocol noise
	DataPrefix = "data:"
	// DoneSentinel is the terminal payload. It is not JSON.
	DoneSentinel = "[DONE]"
	// DefaultNode is used for tokens and messages that do not name their node
	DefaultNode = "default"
)

// record is the outer shape of every JSON payload
type record struct {
	Type           string          `json:"type"`
	Node           string          `json:"langgraph_node"`
	Role           string          `json:"role"`
	Content        json.RawMessage `json:"content"`
	Metadata       map[string]any  `json:"metadata"`
	ToolCalls      json.RawMessage `json:"tool_calls"`
	ToolCallChunks json.RawMessage `json:"tool_call_chunks"`
}

// messageRecord is the nested content of a "message" record
type messageRecord struct {
	Type             string          `json:"type"`
	ID               string          `json:"id"`
	RunID            string          `json:"run_id"`
	Name             string          `json:"name"`
	Node             string          `json:"langgraph_node"`
	Content          json.RawMessage `json:"content"`
	ToolCalls        json.RawMessage `json:"tool_calls"`
	ToolCallID       string          `json:"tool_call_id"`
	AdditionalKwargs map[string]any  `json:"additional_kwargs"`
	ResponseMetadata map[string]any  `json:"response_metadata"`
	Metadata         map[string]any  `json:"metadata"`
}

// Decoder turns raw body bytes into frames. It keeps the incomplete tail of
// the last chunk and a recovery buffer for records that were split across
// several data lines. A Decoder belongs to exactly one stream invocation.
type Decoder struct {
	buf      []byte
	recovery strings.Builder
	done     bool
}

// NewDecoder creates a decoder with empty buffers
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed consumes one chunk of bytes and returns the frames completed by it.
// After the sentinel has been seen all further input is ignored.
func (d *Decoder) Feed(chunk []byte) []Frame {
	if d.done {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	var frames []Frame
	for !d.done {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			break
		}
		line := string(d.buf[:idx])
		d.buf = d.buf[idx+1:]
		frames = append(frames, d.processLine(line)...)
	}

	if d.done {
		d.buf = nil
	}
	return frames
}

// Close flushes an unterminated final line and reports a recovery buffer that
// never became a complete record as a Lost frame.
func (d *Decoder) Close() []Frame {
	var frames []Frame
	if !d.done && len(d.buf) > 0 {
		line := string(d.buf)
		d.buf = nil
		frames = append(frames, d.processLine(line)...)
	}
	if !d.done && d.recovery.Len() > 0 {
		frames = append(frames, Lost{Raw: d.recovery.String()})
		d.recovery.Reset()
	}
	return frames
}

// Done reports whether the terminal sentinel has been seen
func (d *Decoder) Done() bool {
	return d.done
}

// Residual returns the unresolved contents of the recovery buffer
func (d *Decoder) Residual() string {
	return d.recovery.String()
}

// Buffered returns the number of bytes held back waiting for a line break
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

func (d *Decoder) processLine(line string) []Frame {
	line = strings.TrimSuffix(line, "\r")
	if !strings.HasPrefix(line, DataPrefix) {
		return nil
	}

	// raw keeps inner whitespace for fragments; one separator space is not part of the data
	raw := strings.TrimPrefix(strings.TrimPrefix(line, DataPrefix), " ")
	payload := strings.TrimSpace(raw)

	if payload == DoneSentinel {
		d.done = true
		d.recovery.Reset()
		return []Frame{Done{}}
	}

	if payload != "" && json.Valid([]byte(payload)) {
		return []Frame{decodeRecord([]byte(payload))}
	}

	if payload == "" && d.recovery.Len() == 0 {
		return nil
	}

	d.recovery.WriteString(raw)
	joined := strings.TrimSpace(d.recovery.String())
	if !json.Valid([]byte(joined)) {
		return nil
	}
	d.recovery.Reset()
	return []Frame{decodeRecord([]byte(joined))}
}

// decodeRecord maps a complete JSON payload onto a frame variant
func decodeRecord(payload []byte) Frame {
	var rec record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return Unrecognized{Raw: string(payload)}
	}

	switch rec.Type {
	case "token":
		return decodeToken(rec)
	case "message":
		return decodeMessage(rec)
	default:
		return Unrecognized{Kind: rec.Type, Raw: string(payload)}
	}
}

func decodeToken(rec record) Token {
	tok := Token{
		Node:    nodeOr(rec.Node, DefaultNode),
		Content: contentText(rec.Content),
	}

	meta := map[string]any{}
	if calls := decodeAny(rec.ToolCallChunks); calls != nil {
		meta["tool_call_chunks"] = calls
	}
	if calls := decodeAny(rec.ToolCalls); calls != nil {
		meta["tool_calls"] = calls
	}
	if len(meta) > 0 {
		tok.Meta = meta
	}
	return tok
}

func decodeMessage(rec record) Frame {
	trimmed := bytes.TrimSpace(rec.Content)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		// Flat form: the content is the message text itself
		text := contentText(rec.Content)
		if text == "" {
			return Unrecognized{Kind: "message", Raw: string(trimmed)}
		}
		return Message{
			Role:    roleOr(rec.Role),
			Node:    nodeOr(rec.Node, DefaultNode),
			Content: text,
			Meta:    copyMap(rec.Metadata),
		}
	}

	var msg messageRecord
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return Unrecognized{Kind: "message", Raw: string(trimmed)}
	}

	meta := copyMap(msg.Metadata)
	for k, v := range rec.Metadata {
		if _, exists := meta[k]; !exists {
			meta[k] = v
		}
	}

	if calls := decodeAny(msg.ToolCalls); calls != nil {
		meta["tool_calls"] = calls
	} else if calls, ok := msg.AdditionalKwargs["tool_calls"]; ok && calls != nil {
		meta["tool_calls"] = calls
	}
	if msg.ToolCallID != "" {
		meta["tool_call_id"] = msg.ToolCallID
	}
	if msg.Name != "" {
		meta["name"] = msg.Name
	}
	if len(msg.AdditionalKwargs) > 0 {
		meta["additional_kwargs"] = msg.AdditionalKwargs
	}
	if len(msg.ResponseMetadata) > 0 {
		meta["response_metadata"] = msg.ResponseMetadata
	}

	metaNode, _ := meta["langgraph_node"].(string)
	node := nodeOr(rec.Node, nodeOr(msg.Node, nodeOr(metaNode, DefaultNode)))

	runID := msg.RunID
	if runID == "" {
		runID = msg.ID
	}

	text := contentText(msg.Content)
	if text == "" && runID == "" && meta["tool_calls"] == nil {
		return Unrecognized{Kind: "message", Raw: string(trimmed)}
	}

	return Message{
		Role:    roleOr(msg.Type, rec.Role),
		RunID:   runID,
		Node:    node,
		Content: text,
		Meta:    meta,
	}
}

// contentText renders a content field as text. Strings are returned as is,
// lists of text parts are concatenated and anything else is kept as JSON.
func contentText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
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
			text, ok := part["text"].(string)
			if !ok {
				return string(trimmed)
			}
			b.WriteString(text)
		}
		return b.String()
	}

	return string(trimmed)
}

func decodeAny(raw json.RawMessage) any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return nil
	}
	if list, ok := v.([]any); ok && len(list) == 0 {
		return nil
	}
	return v
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func nodeOr(node, fallback string) string {
	if node == "" {
		return fallback
	}
	return node
}
