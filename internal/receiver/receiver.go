// Package receiver implements the receive side of the queue transfer protocol.
//
// Each sender connection carries length-prefixed frames. Every decoded batch is
// staged in the store, announced with a Received signal, and committed only
// after the sender answers Acknowledged. Committed messages from all
// connections are merged into one Stream guarded by a liveness timeout.
package receiver

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ibs-source/queue-receiver/internal/codec"
	"github.com/ibs-source/queue-receiver/internal/log"
	"github.com/ibs-source/queue-receiver/internal/message"
	"github.com/ibs-source/queue-receiver/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout is how long the merged stream may go without a delivery
const DefaultTimeout = 5 * time.Second

// Receiver runs one pipeline per sender connection
type Receiver struct {
	store     store.Store
	codec     codec.Codec
	clock     clockwork.Clock
	timeout   time.Duration
	onConnErr func(*ConnectionError)
	log       *log.Logger
}

// Option configures a Receiver
type Option func(*Receiver)

// WithClock replaces the clock driving the liveness timeout
func WithClock(c clockwork.Clock) Option {
	return func(r *Receiver) {
		r.clock = c
	}
}

// WithTimeout sets the liveness timeout; non-positive values keep the default
func WithTimeout(d time.Duration) Option {
	return func(r *Receiver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithConnectionErrorHandler receives every surfaced connection failure.
// It is called from the failing connection's goroutine.
func WithConnectionErrorHandler(fn func(*ConnectionError)) Option {
	return func(r *Receiver) {
		r.onConnErr = fn
	}
}

// New creates a receiver
func New(st store.Store, c codec.Codec, logger *log.Logger, opts ...Option) *Receiver {
	r := &Receiver{
		store:   st,
		codec:   c,
		clock:   clockwork.NewRealClock(),
		timeout: DefaultTimeout,
		log:     logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Stream is the merged sequence of committed messages
type Stream struct {
	out  chan message.Incoming
	done chan struct{}
	err  error
}

// Messages is closed when the stream ends
func (s *Stream) Messages() <-chan message.Incoming {
	return s.out
}

// Done is closed when the stream ends
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err blocks until the stream ends. It returns nil when the source was closed
// and every connection finished, an ErrTimeout wrap, or the context error.
func (s *Stream) Err() error {
	<-s.done
	return s.err
}

func (s *Stream) finish(err error) {
	s.err = err
	close(s.done)
	close(s.out)
}

// Receive processes every connection read from conns concurrently and merges
// their committed messages. Cancelling ctx or the liveness timeout ends the
// stream for the consumer; running connections are left to finish on their own.
func (r *Receiver) Receive(ctx context.Context, conns <-chan io.ReadWriter) *Stream {
	s := &Stream{
		out:  make(chan message.Incoming),
		done: make(chan struct{}),
	}
	merged := make(chan message.Incoming)
	timer := r.clock.NewTimer(r.timeout)

	// Store calls outlive the consumer so a transaction is never cut short.
	storeCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.accept(storeCtx, conns, merged, s.done, &wg)
	}()
	go func() {
		wg.Wait()
		close(merged)
	}()
	go r.watch(ctx, s, merged, timer)

	return s
}

func (r *Receiver) accept(
	ctx context.Context,
	conns <-chan io.ReadWriter,
	merged chan<- message.Incoming,
	done <-chan struct{},
	wg *sync.WaitGroup,
) {
	for {
		select {
		case <-done:
			return
		case conn, ok := <-conns:
			if !ok {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				r.serve(ctx, conn, merged, done)
			}()
		}
	}
}

// watch forwards merged messages to the consumer and fails the stream when
// nothing was delivered for a whole timeout window.
func (r *Receiver) watch(ctx context.Context, s *Stream, merged <-chan message.Incoming, timer clockwork.Timer) {
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			s.finish(ctx.Err())
			return
		case <-timer.Chan():
			r.log.Warn("No message received for %s, ending receive stream", r.timeout)
			s.finish(fmt.Errorf("%w: nothing delivered for %s", ErrTimeout, r.timeout))
			return
		case msg, ok := <-merged:
			if !ok {
				s.finish(nil)
				return
			}
			resetTimer(timer, r.timeout)
			if err := r.handOff(ctx, s, msg, timer); err != nil {
				s.finish(err)
				return
			}
		}
	}
}

// handOff blocks until the consumer takes msg. A window that runs out while
// the consumer is still busy starts over once the message is taken.
func (r *Receiver) handOff(ctx context.Context, s *Stream, msg message.Incoming, timer clockwork.Timer) error {
	select {
	case s.out <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
	}
	select {
	case s.out <- msg:
		timer.Reset(r.timeout)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func resetTimer(t clockwork.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
	t.Reset(d)
}

// serve runs one connection's pipeline. Frames are handled strictly in order:
// the next frame is not read until the current batch is committed and handed off.
func (r *Receiver) serve(ctx context.Context, conn io.ReadWriter, merged chan<- message.Incoming, done <-chan struct{}) {
	id := uuid.New()
	entry := r.log.WithField("conn", id.String())
	entry.Debug("Connection pipeline started")

	defer func() {
		if c, ok := conn.(io.Closer); ok {
			if err := c.Close(); err != nil {
				entry.WithError(err).Debug("Failed to close connection")
			}
		}
		entry.Debug("Connection pipeline finished")
	}()

	frames := &frameDecoder{rw: conn, codec: r.codec, log: entry}
	hs := &handshake{rw: conn, store: r.store, log: entry}

	for {
		batch, err := frames.next()
		if err != nil {
			return
		}

		if err := hs.run(ctx, batch); err != nil {
			r.connectionFailed(id, entry, err)
			return
		}

		dropped := 0
		for i := range batch.Messages {
			select {
			case merged <- batch.Messages[i]:
			case <-done:
				dropped++
			}
		}
		if dropped > 0 {
			entry.WithField("dropped", dropped).Debug("Receive stream ended, committed messages not delivered")
		}
	}
}

func (r *Receiver) connectionFailed(id uuid.UUID, entry *logrus.Entry, err error) {
	entry.WithError(err).Error("Connection processing failed")
	if r.onConnErr != nil {
		r.onConnErr(&ConnectionError{ConnID: id, Err: err})
	}
}
