// Package codec converts frame payloads to message batches and back.
package codec

import (
	"errors"

	"github.com/ibs-source/queue-receiver/internal/message"
)

// ErrMalformed is returned for payloads that do not describe a batch
var ErrMalformed = errors.New("codec: malformed payload")

// Codec parses a frame payload into a batch
type Codec interface {
	Decode(payload []byte) (message.Batch, error)
}

// Func adapts a plain function to Codec
type Func func(payload []byte) (message.Batch, error)

// Decode calls f
func (f Func) Decode(payload []byte) (message.Batch, error) {
	return f(payload)
}
