package stream

import (
	"context"
	"errors"
	"io"
)

const readBufferSize = 4096

// ErrStopped can be returned from a frame callback to end the read loop early
// without reporting a failure.
var ErrStopped = errors.New("stream stopped")

// Read runs the read loop over body: one chunk at a time, decoded and handed
// to fn in arrival order. It returns nil when the sentinel is seen or the body
// ends, ctx.Err() when ctx is cancelled, and the read or callback error
// otherwise.
func Read(ctx context.Context, body io.Reader, fn func(Frame) error) error {
	dec := NewDecoder()
	buf := make([]byte, readBufferSize)

	emit := func(frames []Frame) error {
		for _, f := range frames {
			if err := fn(f); err != nil {
				return err
			}
		}
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if err := emit(dec.Feed(buf[:n])); err != nil {
				if errors.Is(err, ErrStopped) {
					return nil
				}
				return err
			}
			if dec.Done() {
				return nil
			}
		}

		if readErr == nil {
			continue
		}
		if errors.Is(readErr, io.EOF) {
			err := emit(dec.Close())
			if errors.Is(err, ErrStopped) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return readErr
	}
}
