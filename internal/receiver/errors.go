package receiver

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Framing and decode failures are contained: they are logged, signaled to the
// sender and end the connection quietly. The others surface as ConnectionError.
var (
	ErrFraming           = errors.New("receiver: unreadable frame")
	ErrDecode            = errors.New("receiver: undecodable frame payload")
	ErrQueueNotFound     = errors.New("receiver: queue does not exist")
	ErrStorage           = errors.New("receiver: storage failure")
	ErrProtocolViolation = errors.New("receiver: unexpected acknowledgment from sender")
	ErrTimeout           = errors.New("receiver: liveness timeout")
)

// errNegativeLength ends a connection without any wire signal
var errNegativeLength = errors.New("receiver: negative frame length")

// ConnectionError is the failure of one connection's processing
type ConnectionError struct {
	ConnID uuid.UUID
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %s: %v", e.ConnID, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
