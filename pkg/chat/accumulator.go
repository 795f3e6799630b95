package chat

import (
	"sort"
	"strings"
	"time"
)

// nodeBuffer is the text accumulated for one node during a stream
type nodeBuffer struct {
	Content    strings.Builder
	ChunkCount int
	StartTime  time.Time
	LastUpdate time.Time
}

// TokenAccumulator collects token text per node. It is cleared at the start
// of each stream invocation and per node once that node's message is final.
type TokenAccumulator struct {
	nodes map[string]*nodeBuffer
}

func NewTokenAccumulator() *TokenAccumulator {
	return &TokenAccumulator{
		nodes: make(map[string]*nodeBuffer),
	}
}

// Append adds text to the node's buffer and returns the accumulated content
func (ta *TokenAccumulator) Append(node, text string) string {
	buf, exists := ta.nodes[node]
	now := time.Now()
	if !exists {
		buf = &nodeBuffer{StartTime: now}
		ta.nodes[node] = buf
	}

	buf.Content.WriteString(text)
	buf.ChunkCount++
	buf.LastUpdate = now
	return buf.Content.String()
}

// Content returns the accumulated text for node
func (ta *TokenAccumulator) Content(node string) string {
	if buf, exists := ta.nodes[node]; exists {
		return buf.Content.String()
	}
	return ""
}

// Has reports whether node has an open buffer
func (ta *TokenAccumulator) Has(node string) bool {
	_, exists := ta.nodes[node]
	return exists
}

// Reset drops the buffer for node
func (ta *TokenAccumulator) Reset(node string) {
	delete(ta.nodes, node)
}

// ResetAll drops every buffer
func (ta *TokenAccumulator) ResetAll() {
	ta.nodes = make(map[string]*nodeBuffer)
}

// Nodes returns the nodes with open buffers in sorted order
func (ta *TokenAccumulator) Nodes() []string {
	nodes := make([]string, 0, len(ta.nodes))
	for node := range ta.nodes {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	return nodes
}

// NodeStats describes the accumulation for one node
type NodeStats struct {
	Node          string
	ChunkCount    int
	ContentLength int
	Duration      time.Duration
}

// Stats returns statistics about a node's buffer
func (ta *TokenAccumulator) Stats(node string) (NodeStats, bool) {
	buf, exists := ta.nodes[node]
	if !exists {
		return NodeStats{}, false
	}
	return NodeStats{
		Node:          node,
		ChunkCount:    buf.ChunkCount,
		ContentLength: buf.Content.Len(),
		Duration:      buf.LastUpdate.Sub(buf.StartTime),
	}, true
}
