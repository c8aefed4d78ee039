package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/ibs-source/queue-receiver/internal/message"
)

// Memory is an in-process Store
type Memory struct {
	mu     sync.RWMutex
	queues map[string][]message.Incoming
}

var _ Store = (*Memory)(nil)

// NewMemory creates a store holding the given queues
func NewMemory(queues ...string) *Memory {
	m := &Memory{queues: make(map[string][]message.Incoming, len(queues))}
	for _, q := range queues {
		m.queues[q] = nil
	}
	return m
}

// CreateQueue registers a queue; existing queues are left untouched
func (m *Memory) CreateQueue(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queues[name]; !ok {
		m.queues[name] = nil
	}
}

// Messages returns a snapshot of a queue's committed messages
func (m *Memory) Messages(queue string) []message.Incoming {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]message.Incoming, len(m.queues[queue]))
	copy(out, m.queues[queue])
	return out
}

// Begin checks every destination queue and stages the batch
func (m *Memory) Begin(ctx context.Context, batch message.Batch) (Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, q := range batch.Queues() {
		if _, ok := m.queues[q]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrQueueNotFound, q)
		}
	}
	staged := make([]message.Incoming, len(batch.Messages))
	copy(staged, batch.Messages)
	return &memoryTx{store: m, staged: staged}, nil
}

type memoryTx struct {
	mu     sync.Mutex
	store  *Memory
	staged []message.Incoming
	done   bool
}

func (tx *memoryTx) finish() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return ErrTransactionDone
	}
	tx.done = true
	return nil
}

func (tx *memoryTx) Commit(_ context.Context) error {
	if err := tx.finish(); err != nil {
		return err
	}
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	for _, msg := range tx.staged {
		tx.store.queues[msg.Queue] = append(tx.store.queues[msg.Queue], msg)
	}
	tx.staged = nil
	return nil
}

func (tx *memoryTx) Rollback(_ context.Context) error {
	if err := tx.finish(); err != nil {
		return err
	}
	tx.staged = nil
	return nil
}
