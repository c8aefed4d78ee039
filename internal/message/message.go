// Package message provides the records delivered by the receive pipeline.
package message

import (
	"time"

	"github.com/google/uuid"
)

// Header is one key/value pair of message metadata
type Header struct {
	Key   string
	Value string
}

// Headers keeps message metadata in sender order
type Headers []Header

// Get returns the first value stored under key
func (h Headers) Get(key string) (string, bool) {
	for _, kv := range h {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Map flattens the headers; later duplicates win
func (h Headers) Map() map[string]string {
	m := make(map[string]string, len(h))
	for _, kv := range h {
		m[kv.Key] = kv.Value
	}
	return m
}

// Incoming is one delivered message. The ID is generated by the sender.
type Incoming struct {
	ID      uuid.UUID
	Queue   string
	Data    []byte
	Headers Headers
	SentAt  time.Time
}

// Batch is the set of messages carried by one frame.
// All of them share a single store transaction.
type Batch struct {
	Messages []Incoming
}

// Len returns the number of messages in the batch
func (b Batch) Len() int {
	return len(b.Messages)
}

// Queues returns the distinct destination queues in first-seen order
func (b Batch) Queues() []string {
	seen := make(map[string]struct{}, len(b.Messages))
	queues := make([]string, 0, 1)
	for i := range b.Messages {
		q := b.Messages[i].Queue
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		queues = append(queues, q)
	}
	return queues
}
