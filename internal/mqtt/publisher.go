package mqtt

import "context"

// Publisher delivers encoded payloads to the broker.
// Implemented by a single Client and by a Pool.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
	Close() error
}

var (
	_ Publisher = (*Client)(nil)
	_ Publisher = (*Pool)(nil)
)
