package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ibs-source/queue-receiver/internal/message"
	"github.com/ibs-source/queue-receiver/internal/store"
	"github.com/redis/go-redis/v9"
)

var _ store.Store = (*Client)(nil)

// Stream entry fields
const (
	fieldID      = "id"
	fieldQueue   = "queue"
	fieldSent    = "sent"
	fieldHeaders = "headers"
	fieldData    = "data"
)

// Begin checks every destination queue and stages one XADD per message in a
// MULTI/EXEC pipeline. Nothing reaches Redis until Commit.
func (c *Client) Begin(ctx context.Context, batch message.Batch) (store.Transaction, error) {
	for _, q := range batch.Queues() {
		ok, err := c.QueueExists(ctx, q)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", store.ErrQueueNotFound, q)
		}
	}

	pipe := c.rdb.TxPipeline()
	for i := range batch.Messages {
		values, err := entryValues(&batch.Messages[i])
		if err != nil {
			pipe.Discard()
			return nil, err
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: c.StreamKey(batch.Messages[i].Queue),
			Values: values,
		})
	}

	c.log.Debug("Staged %d messages", batch.Len())
	return &transaction{pipe: pipe, size: batch.Len()}, nil
}

// Messages reads back every committed message of a queue in stream order
func (c *Client) Messages(ctx context.Context, queue string) ([]message.Incoming, error) {
	entries, err := c.rdb.XRange(ctx, c.StreamKey(queue), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("xrange failed for queue %s: %w", queue, err)
	}
	msgs := make([]message.Incoming, 0, len(entries))
	for _, e := range entries {
		m, err := parseEntry(e.Values)
		if err != nil {
			return nil, fmt.Errorf("entry %s in queue %s: %w", e.ID, queue, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

type transaction struct {
	mu   sync.Mutex
	pipe redis.Pipeliner
	size int
	done bool
}

func (tx *transaction) finish() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return store.ErrTransactionDone
	}
	tx.done = true
	return nil
}

func (tx *transaction) Commit(ctx context.Context) error {
	if err := tx.finish(); err != nil {
		return err
	}
	if tx.size == 0 {
		tx.pipe.Discard()
		return nil
	}
	if _, err := tx.pipe.Exec(ctx); err != nil {
		return fmt.Errorf("exec failed: %w", err)
	}
	return nil
}

func (tx *transaction) Rollback(_ context.Context) error {
	if err := tx.finish(); err != nil {
		return err
	}
	tx.pipe.Discard()
	return nil
}

type headerPair [2]string

func entryValues(m *message.Incoming) ([]interface{}, error) {
	pairs := make([]headerPair, len(m.Headers))
	for i, h := range m.Headers {
		pairs[i] = headerPair{h.Key, h.Value}
	}
	headers, err := json.Marshal(pairs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode headers of message %s: %w", m.ID, err)
	}
	return []interface{}{
		fieldID, m.ID.String(),
		fieldQueue, m.Queue,
		fieldSent, strconv.FormatInt(m.SentAt.UnixMilli(), 10),
		fieldHeaders, string(headers),
		fieldData, string(m.Data),
	}, nil
}

func parseEntry(values map[string]interface{}) (message.Incoming, error) {
	str := func(k string) (string, error) {
		v, ok := values[k].(string)
		if !ok {
			return "", fmt.Errorf("missing field %s", k)
		}
		return v, nil
	}

	var m message.Incoming
	var errs []error
	id, err := str(fieldID)
	errs = append(errs, err)
	if err == nil {
		m.ID, err = uuid.Parse(id)
		errs = append(errs, err)
	}
	m.Queue, err = str(fieldQueue)
	errs = append(errs, err)

	sent, err := str(fieldSent)
	errs = append(errs, err)
	if err == nil {
		ms, perr := strconv.ParseInt(sent, 10, 64)
		errs = append(errs, perr)
		m.SentAt = time.UnixMilli(ms).UTC()
	}

	data, err := str(fieldData)
	errs = append(errs, err)
	m.Data = []byte(data)

	headers, err := str(fieldHeaders)
	errs = append(errs, err)
	if err == nil {
		var pairs []headerPair
		errs = append(errs, json.Unmarshal([]byte(headers), &pairs))
		for _, p := range pairs {
			m.Headers = append(m.Headers, message.Header{Key: p[0], Value: p[1]})
		}
	}

	if err := errors.Join(errs...); err != nil {
		return message.Incoming{}, err
	}
	return m, nil
}
