// Package store defines the durable message store consumed by the receiver.
package store

import (
	"context"
	"errors"

	"github.com/ibs-source/queue-receiver/internal/message"
)

var (
	// ErrQueueNotFound is returned by Begin when a batch targets an unknown queue
	ErrQueueNotFound = errors.New("store: queue does not exist")
	// ErrTransactionDone is returned by a second Commit or Rollback
	ErrTransactionDone = errors.New("store: transaction already finished")
)

// Store begins one transaction per batch. Begins from different connections may run concurrently.
type Store interface {
	Begin(ctx context.Context, batch message.Batch) (Transaction, error)
}

// Transaction is finished by exactly one of Commit or Rollback
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
