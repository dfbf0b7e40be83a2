package acp

import (
	"errors"
	"fmt"
)

// Sentinel errors for connection failures.
var (
	// ErrMalformedFrame indicates a frame that could not be interpreted.
	// Always fatal to the connection.
	ErrMalformedFrame = errors.New("malformed protocol frame")

	// ErrUnsupportedVersion indicates the agent negotiated a protocol
	// version this client does not speak.
	ErrUnsupportedVersion = errors.New("unsupported protocol version")

	// ErrConnectionClosed indicates the connection was shut down, either
	// deliberately or because the subprocess exited.
	ErrConnectionClosed = errors.New("connection closed")
)

// ProtocolError is a fatal connection-level failure. Once raised, the
// connection is dead: all pending calls fail, the subprocess is terminated
// and the owning session transitions to its error state.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsProtocolError reports whether err is a fatal protocol error.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
