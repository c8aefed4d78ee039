package receiver

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ibs-source/queue-receiver/internal/message"
	"github.com/ibs-source/queue-receiver/internal/protocol"
	"github.com/ibs-source/queue-receiver/internal/store"
	"github.com/sirupsen/logrus"
)

// handshake stores one batch and confirms it with the sender:
// begin -> Received -> await Acknowledged -> commit, rolling back on a bad reply.
type handshake struct {
	rw    io.ReadWriter
	store store.Store
	log   *logrus.Entry
}

func (h *handshake) run(ctx context.Context, batch message.Batch) error {
	tx, err := h.store.Begin(ctx, batch)
	if err != nil {
		if errors.Is(err, store.ErrQueueNotFound) {
			h.log.WithError(err).Error("Batch targets a queue that does not exist")
			h.signal(protocol.QueueDoesNotExist)
			return fmt.Errorf("%w: %w", ErrQueueNotFound, err)
		}
		h.log.WithError(err).Error("Failed to begin transaction")
		h.signal(protocol.ProcessingFailure)
		return fmt.Errorf("%w: begin: %w", ErrStorage, err)
	}

	if err := h.confirm(); err != nil {
		h.log.WithError(err).Error("Sender did not acknowledge batch, rolling back")
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			h.log.WithError(rbErr).Error("Failed to roll back transaction")
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		h.log.WithError(err).Error("Failed to commit transaction, reverting")
		h.signal(protocol.Revert)
		return fmt.Errorf("%w: commit: %w", ErrStorage, err)
	}
	return nil
}

// confirm tells the sender the batch is staged and waits for its acknowledgment
func (h *handshake) confirm() error {
	if _, err := protocol.Received.WriteTo(h.rw); err != nil {
		return fmt.Errorf("%w: send received: %w", ErrProtocolViolation, err)
	}
	reply, err := protocol.Acknowledged.Read(h.rw)
	if err != nil {
		return fmt.Errorf("%w: read acknowledgment: %w", ErrProtocolViolation, err)
	}
	if !protocol.Acknowledged.Matches(reply) {
		return fmt.Errorf("%w: got %x", ErrProtocolViolation, reply)
	}
	return nil
}

// signal is best effort; the error being reported matters more than the write
func (h *handshake) signal(s protocol.Signal) {
	if _, err := s.WriteTo(h.rw); err != nil {
		h.log.WithError(err).WithField("signal", s.String()).Debug("Failed to send signal")
	}
}
