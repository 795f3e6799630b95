package testutil

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/killallgit/agentstream/pkg/agent"
)

// FakeStreamer implements agent.Streamer over an in-memory event stream
type FakeStreamer struct {
	body         string
	chunkDelay   time.Duration // Delay between chunks
	chunkSize    int           // Bytes per chunk
	failAfter    int           // Fail after N chunks (0 = no failure)
	errorMessage string        // Custom error message
	openErr      error

	mu       sync.Mutex
	requests []agent.Request
}

// NewFakeStreamer creates a streamer that delivers lines, each terminated by
// a newline, to every request
func NewFakeStreamer(lines ...string) *FakeStreamer {
	body := ""
	if len(lines) > 0 {
		body = strings.Join(lines, "\n") + "\n"
	}
	return &FakeStreamer{
		body:      body,
		chunkSize: 16,
	}
}

// Stream implements agent.Streamer
func (f *FakeStreamer) Stream(ctx context.Context, req agent.Request) (io.ReadCloser, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	openErr := f.openErr
	f.mu.Unlock()

	if openErr != nil {
		return nil, openErr
	}

	pr, pw := io.Pipe()
	go f.write(ctx, pw)
	return pr, nil
}

func (f *FakeStreamer) write(ctx context.Context, pw *io.PipeWriter) {
	data := f.body
	chunkCount := 0
	for len(data) > 0 {
		chunkCount++
		if f.failAfter > 0 && chunkCount > f.failAfter {
			msg := f.errorMessage
			if msg == "" {
				msg = "simulated streaming error"
			}
			pw.CloseWithError(errors.New(msg))
			return
		}

		if f.chunkDelay > 0 {
			select {
			case <-time.After(f.chunkDelay):
			case <-ctx.Done():
				pw.CloseWithError(ctx.Err())
				return
			}
		}

		n := f.chunkSize
		if n <= 0 || n > len(data) {
			n = len(data)
		}
		if _, err := pw.Write([]byte(data[:n])); err != nil {
			// reader closed the body
			return
		}
		data = data[n:]
	}
	pw.Close()
}

// Requests returns the requests received so far
func (f *FakeStreamer) Requests() []agent.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]agent.Request, len(f.requests))
	copy(out, f.requests)
	return out
}

// SetChunkDelay sets the delay between chunks
func (f *FakeStreamer) SetChunkDelay(delay time.Duration) {
	f.chunkDelay = delay
}

// SetChunkSize sets the number of bytes per chunk
func (f *FakeStreamer) SetChunkSize(size int) {
	f.chunkSize = size
}

// SetFailAfter configures the body to fail after N chunks
func (f *FakeStreamer) SetFailAfter(chunks int, errorMessage string) {
	f.failAfter = chunks
	f.errorMessage = errorMessage
}

// SetOpenError makes every Stream call fail with err
func (f *FakeStreamer) SetOpenError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openErr = err
}
