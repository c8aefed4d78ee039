package receiver

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ibs-source/queue-receiver/internal/codec"
	"github.com/ibs-source/queue-receiver/internal/log"
	"github.com/ibs-source/queue-receiver/internal/message"
	"github.com/ibs-source/queue-receiver/internal/protocol"
	"github.com/ibs-source/queue-receiver/internal/store"
	"github.com/sirupsen/logrus"
)

var (
	errBoom     = errors.New("boom")
	helloMsgID  = uuid.MustParse("6f1c8c1e-3b0f-4f51-9d2a-0a4a5f0b7e11")
	helloSentAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

// helloCodec decodes the payload "hello" into the single-message batch of the reference scenario
var helloCodec = codec.Func(func(p []byte) (message.Batch, error) {
	if string(p) != "hello" {
		return message.Batch{}, codec.ErrMalformed
	}
	return message.Batch{Messages: []message.Incoming{{
		ID:      helloMsgID,
		Queue:   "q1",
		Data:    []byte("hello"),
		Headers: message.Headers{{Key: "mykey", Value: "myvalue"}},
		SentAt:  helloSentAt,
	}}}, nil
})

func testEntry() *logrus.Entry {
	return log.Discard().WithField("conn", "test")
}

// lockedBuffer collects what the receiver writes back to the sender
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

// scriptConn replays a fixed sender script and records the replies
type scriptConn struct {
	in     io.Reader
	out    lockedBuffer
	mu     sync.Mutex
	closed bool
}

func newScriptConn(script ...[]byte) *scriptConn {
	return &scriptConn{in: bytes.NewReader(bytes.Join(script, nil))}
}

func (c *scriptConn) Read(p []byte) (int, error)  { return c.in.Read(p) }
func (c *scriptConn) Write(p []byte) (int, error) { return c.out.Write(p) }

func (c *scriptConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *scriptConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// pipeConn lets a test feed sender bytes at a moment of its choosing
type pipeConn struct {
	r   *io.PipeReader
	w   *io.PipeWriter
	out lockedBuffer
}

func newPipeConn() *pipeConn {
	r, w := io.Pipe()
	return &pipeConn{r: r, w: w}
}

func (c *pipeConn) Read(p []byte) (int, error)  { return c.r.Read(p) }
func (c *pipeConn) Write(p []byte) (int, error) { return c.out.Write(p) }
func (c *pipeConn) Close() error                { return c.r.Close() }

// send blocks until the receiver has consumed all of p
func (c *pipeConn) send(t *testing.T, p ...[]byte) {
	t.Helper()
	if _, err := c.w.Write(bytes.Join(p, nil)); err != nil {
		t.Fatalf("sender write failed: %v", err)
	}
}

// failingWriter accepts reads from in but rejects every write
type failingWriter struct {
	io.Reader
}

func (failingWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func frame(payload string) []byte {
	return protocol.AppendFrame(nil, []byte(payload))
}

func negativeFrame() []byte {
	return protocol.AppendLength(nil, -1)
}

func signals(s ...protocol.Signal) []byte {
	var out []byte
	for _, sig := range s {
		out = append(out, sig.Bytes()...)
	}
	return out
}

// fakeStore records every transaction and can be told to fail
type fakeStore struct {
	mu         sync.Mutex
	beginErr   error
	commitErr  error
	commitGate chan struct{}
	txs        []*fakeTx
	committed  []message.Incoming
}

var _ store.Store = (*fakeStore)(nil)

func (s *fakeStore) Begin(_ context.Context, batch message.Batch) (store.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	tx := &fakeTx{store: s, batch: batch}
	s.txs = append(s.txs, tx)
	return tx, nil
}

func (s *fakeStore) transactions() []*fakeTx {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeTx(nil), s.txs...)
}

func (s *fakeStore) committedMessages() []message.Incoming {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]message.Incoming(nil), s.committed...)
}

type fakeTx struct {
	store     *fakeStore
	batch     message.Batch
	commits   int
	rollbacks int
}

func (tx *fakeTx) Commit(_ context.Context) error {
	if gate := tx.store.commitGate; gate != nil {
		<-gate
	}
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	tx.commits++
	if tx.store.commitErr != nil {
		return tx.store.commitErr
	}
	tx.store.committed = append(tx.store.committed, tx.batch.Messages...)
	return nil
}

func (tx *fakeTx) Rollback(_ context.Context) error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	tx.rollbacks++
	return nil
}

func (tx *fakeTx) counts() (commits, rollbacks int) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	return tx.commits, tx.rollbacks
}

// collect drains a stream, failing the test if it does not end in time
func collect(t *testing.T, s *Stream) []message.Incoming {
	t.Helper()
	var got []message.Incoming
	deadline := time.After(5 * time.Second)
	for {
		select {
		case msg, ok := <-s.Messages():
			if !ok {
				return got
			}
			got = append(got, msg)
		case <-deadline:
			t.Fatal("receive stream did not end")
			return nil
		}
	}
}

// next waits for one message
func next(t *testing.T, s *Stream) message.Incoming {
	t.Helper()
	select {
	case msg, ok := <-s.Messages():
		if !ok {
			t.Fatalf("stream ended early: %v", s.Err())
		}
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("no message delivered")
		return message.Incoming{}
	}
}

// source returns a closed channel holding conns
func source(conns ...io.ReadWriter) <-chan io.ReadWriter {
	ch := make(chan io.ReadWriter, len(conns))
	for _, c := range conns {
		ch <- c
	}
	close(ch)
	return ch
}
