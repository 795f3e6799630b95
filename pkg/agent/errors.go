package agent

import (
	"errors"
	"fmt"
)

// ErrStreamActive is returned by Send while a stream is still running
var ErrStreamActive = errors.New("a stream is already active")

// TransportError is a failed or unsuccessful request to the backend. It is
// the only error class surfaced to users.
type TransportError struct {
	Op         string
	StatusCode int
	Message    string
	Cause      error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s failed with status %d: %s", e.Op, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s failed with status %d", e.Op, e.StatusCode)
	case e.Cause != nil:
		return fmt.Sprintf("%s failed: %v", e.Op, e.Cause)
	default:
		return fmt.Sprintf("%s failed: %s", e.Op, e.Message)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// wrapTransportError attaches the operation to a request failure
func wrapTransportError(err error, op string) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Cause: err}
}

// IsTransportError reports whether err came from talking to the backend
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
