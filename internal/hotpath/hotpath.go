// Package hotpath wires sender connections through the receiver into the MQTT sink.
package hotpath

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ibs-source/queue-receiver/internal/codec"
	"github.com/ibs-source/queue-receiver/internal/config"
	"github.com/ibs-source/queue-receiver/internal/log"
	"github.com/ibs-source/queue-receiver/internal/message"
	"github.com/ibs-source/queue-receiver/internal/mqtt"
	"github.com/ibs-source/queue-receiver/internal/receiver"
	"github.com/ibs-source/queue-receiver/internal/store"
	"github.com/ibs-source/queue-receiver/pkg/jsonfast"
)

const acceptBackoff = 100 * time.Millisecond

// HotPath orchestrates listener → receiver → MQTT
type HotPath struct {
	listener       net.Listener
	receiver       *receiver.Receiver
	mqtt           mqtt.Publisher
	msgChan        chan message.Incoming
	publishWorkers int
	publishTimeout time.Duration
	sessions       atomic.Int64
	connFailures   atomic.Int64
	closeOnce      sync.Once
	log            *log.Logger
}

// New creates the orchestrator. opts are passed to the receiver after the
// orchestrator's own connection error handler.
func New(
	ln net.Listener,
	st store.Store,
	c codec.Codec,
	publisher mqtt.Publisher,
	cfg *config.Config,
	logger *log.Logger,
	opts ...receiver.Option,
) *HotPath {
	hp := &HotPath{
		listener:       ln,
		mqtt:           publisher,
		msgChan:        make(chan message.Incoming, cfg.Pipeline.BufferCapacity),
		publishWorkers: max(cfg.Pipeline.PublishWorkers, 1),
		publishTimeout: cfg.Pipeline.PublishTimeout,
		log:            logger,
	}
	rcvOpts := append([]receiver.Option{
		receiver.WithTimeout(cfg.Pipeline.LivenessTimeout),
		receiver.WithConnectionErrorHandler(hp.handleConnectionError),
	}, opts...)
	hp.receiver = receiver.New(st, c, logger, rcvOpts...)
	return hp
}

// startLoop starts a loop goroutine and reports non-canceled errors
func (hp *HotPath) startLoop(
	ctx context.Context,
	wg *sync.WaitGroup,
	name string,
	loop func(context.Context) error,
	errCh chan<- error,
) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := loop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("%s loop error: %w", name, err)
		}
	}()
}

// Run serves until ctx is cancelled or the listener is closed.
// It returns nil when the listener was closed and every connection finished.
func (hp *HotPath) Run(ctx context.Context) error {
	hp.log.Info("Starting receive pipeline on %s", hp.listener.Addr())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	accepted := make(chan io.ReadWriter)
	var wg sync.WaitGroup
	errCh := make(chan error, 1+hp.publishWorkers)

	hp.startLoop(ctx, &wg, "accept", func(ctx context.Context) error {
		return hp.acceptLoop(ctx, accepted)
	}, errCh)

	hp.log.Info("Starting %d publish workers", hp.publishWorkers)
	for i := range hp.publishWorkers {
		hp.startLoop(ctx, &wg, fmt.Sprintf("publish-%d", i), hp.publishLoop, errCh)
	}

	recvErr := make(chan error, 1)
	go func() {
		recvErr <- hp.receiveLoop(ctx, accepted)
	}()

	var err error
	received := false
	select {
	case <-ctx.Done():
		hp.log.Info("Shutting down receive pipeline")
		err = ctx.Err()
	case err = <-errCh:
		hp.log.Error("Receive pipeline error: %v", err)
	case err = <-recvErr:
		received = true
	}

	cancel()
	_ = hp.Close()
	wg.Wait()
	if !received {
		<-recvErr
	}
	return err
}

// acceptLoop feeds accepted connections to the receive loop and closes
// accepted once the listener stops.
func (hp *HotPath) acceptLoop(ctx context.Context, accepted chan<- io.ReadWriter) error {
	defer close(accepted)
	for {
		conn, err := hp.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			hp.log.Error("Failed to accept connection: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(acceptBackoff):
			}
			continue
		}

		hp.log.Debug("Accepted connection from %s", conn.RemoteAddr())
		select {
		case accepted <- conn:
		case <-ctx.Done():
			_ = conn.Close()
			return nil
		}
	}
}

// receiveLoop runs receive sessions back to back. A session that ends on the
// liveness timeout is replaced by a fresh one over the same connection source.
// Connections still attached to an ended session are closed, since that session
// no longer delivers; their senders reconnect into the next one.
func (hp *HotPath) receiveLoop(ctx context.Context, accepted <-chan io.ReadWriter) error {
	var pending io.ReadWriter
	for {
		conns := make(chan io.ReadWriter)
		stream := hp.receiver.Receive(ctx, conns)
		live := newSessionConns()
		hp.sessions.Add(1)

		held := make(chan io.ReadWriter, 1)
		go func(first io.ReadWriter) {
			held <- forward(first, accepted, conns, stream.Done(), live)
		}(pending)

		dropped := 0
		for msg := range stream.Messages() {
			select {
			case hp.msgChan <- msg:
			case <-ctx.Done():
				dropped++
			}
		}
		if dropped > 0 {
			hp.log.Debug("Shutdown left %d stored messages unpublished", dropped)
		}

		err := stream.Err()
		pending = <-held
		if err != nil {
			if n := live.closeAll(); n > 0 {
				hp.log.Info("Closed %d connections left on the ended receive session", n)
			}
		}

		switch {
		case err == nil:
			hp.log.Info("Connection source closed, receive pipeline finished")
			return nil
		case errors.Is(err, receiver.ErrTimeout):
			hp.log.Info("Receive session idle, starting a new one: %v", err)
		default:
			if c, ok := pending.(io.Closer); ok {
				_ = c.Close()
			}
			return err
		}
	}
}

// forward hands connections from accepted to one session until it ends.
// A connection taken but not yet handed over when the session ends is returned
// so the next session can start with it. conns is closed when accepted is.
func forward(
	first io.ReadWriter,
	accepted <-chan io.ReadWriter,
	conns chan<- io.ReadWriter,
	done <-chan struct{},
	live *sessionConns,
) io.ReadWriter {
	next := first
	for {
		if next == nil {
			select {
			case c, ok := <-accepted:
				if !ok {
					close(conns)
					return nil
				}
				next = c
			case <-done:
				return nil
			}
		}
		tracked := live.track(next)
		select {
		case conns <- tracked:
			next = nil
		case <-done:
			live.forget(tracked)
			return next
		}
	}
}

// sessionConns is the set of connections one session is still serving
type sessionConns struct {
	mu   sync.Mutex
	live map[*trackedConn]struct{}
}

func newSessionConns() *sessionConns {
	return &sessionConns{live: make(map[*trackedConn]struct{})}
}

func (s *sessionConns) track(rw io.ReadWriter) *trackedConn {
	c := &trackedConn{ReadWriter: rw, owner: s}
	s.mu.Lock()
	s.live[c] = struct{}{}
	s.mu.Unlock()
	return c
}

func (s *sessionConns) forget(c *trackedConn) {
	s.mu.Lock()
	delete(s.live, c)
	s.mu.Unlock()
}

func (s *sessionConns) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// closeAll closes every connection still in the set and returns how many there were
func (s *sessionConns) closeAll() int {
	s.mu.Lock()
	open := make([]*trackedConn, 0, len(s.live))
	for c := range s.live {
		open = append(open, c)
	}
	s.mu.Unlock()

	for _, c := range open {
		_ = c.Close()
	}
	return len(open)
}

// trackedConn leaves its set when closed, by the receiver or by closeAll
type trackedConn struct {
	io.ReadWriter
	owner *sessionConns
}

func (c *trackedConn) Close() error {
	c.owner.forget(c)
	if closer, ok := c.ReadWriter.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// publishLoop publishes delivered messages to MQTT
func (hp *HotPath) publishLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-hp.msgChan:
			payload := buildPayload(&msg)

			pubCtx, cancel := hp.publishContext(ctx)
			err := hp.mqtt.Publish(pubCtx, payload)
			cancel()
			if err != nil {
				// Already committed to the store; nothing to roll back.
				hp.log.Error("Failed to publish message %s from queue %s: %v", msg.ID, msg.Queue, err)
				continue
			}
			hp.log.Debug("Published message %s from queue %s", msg.ID, msg.Queue)
		}
	}
}

func (hp *HotPath) publishContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if hp.publishTimeout > 0 {
		return context.WithTimeout(ctx, hp.publishTimeout)
	}
	return context.WithCancel(ctx)
}

// buildPayload encodes msg as
// {"id":"<uuid>","queue":"<q>","sent":"<rfc3339>","headers":[{"key":k,"value":v}],"data":"<base64>"}
func buildPayload(msg *message.Incoming) []byte {
	b := jsonfast.New(base64.StdEncoding.EncodedLen(len(msg.Data)) + len(msg.Queue) + 128)
	b.AddStringField("id", msg.ID.String())
	b.AddStringField("queue", msg.Queue)
	b.AddTimeField("sent", msg.SentAt)
	b.AddPairsField("headers", len(msg.Headers), func(i int) (string, string) {
		return msg.Headers[i].Key, msg.Headers[i].Value
	})
	b.AddBase64Field("data", msg.Data)
	b.EndObject()
	return b.Bytes()
}

// handleConnectionError logs a surfaced connection failure by class
func (hp *HotPath) handleConnectionError(cerr *receiver.ConnectionError) {
	total := hp.connFailures.Add(1)
	entry := hp.log.WithField("conn", cerr.ConnID.String()).WithField("failures", total)
	switch {
	case errors.Is(cerr, receiver.ErrProtocolViolation):
		entry.Warnf("Sender broke the acknowledgment handshake: %v", cerr.Err)
	case errors.Is(cerr, receiver.ErrQueueNotFound):
		entry.Warnf("Sender addressed an unknown queue: %v", cerr.Err)
	default:
		entry.Errorf("Storage failed for sender batch: %v", cerr.Err)
	}
}

// ConnectionFailures returns how many connections ended with a surfaced error
func (hp *HotPath) ConnectionFailures() int64 {
	return hp.connFailures.Load()
}

// Close stops accepting connections
func (hp *HotPath) Close() error {
	var err error
	hp.closeOnce.Do(func() {
		err = hp.listener.Close()
	})
	return err
}
