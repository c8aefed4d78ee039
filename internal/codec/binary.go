package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/ibs-source/queue-receiver/internal/message"
)

// Binary is the little-endian batch layout spoken by the sending peer:
//
//	int32 count
//	count x { id[16] | str queue | int64 sent(unix ms) | int32 n | n x {str key | str value} | int32 len | data }
//
// where str is an int32 byte length followed by UTF-8 bytes.
type Binary struct{}

var _ Codec = Binary{}

// Decode parses a payload; trailing bytes are rejected
func (Binary) Decode(payload []byte) (message.Batch, error) {
	r := reader{buf: payload}

	count := r.count("message count")
	msgs := make([]message.Incoming, 0, min(count, len(payload)/minMessageSize+1))
	for i := 0; i < count && r.err == nil; i++ {
		msgs = append(msgs, r.message())
	}
	if r.err != nil {
		return message.Batch{}, r.err
	}
	if r.off != len(payload) {
		return message.Batch{}, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(payload)-r.off)
	}
	return message.Batch{Messages: msgs}, nil
}

// Encode writes the batch in the layout Decode reads
func (Binary) Encode(batch message.Batch) ([]byte, error) {
	buf := make([]byte, 0, 64*len(batch.Messages)+4)
	var err error
	if buf, err = appendCount(buf, len(batch.Messages)); err != nil {
		return nil, err
	}
	for i := range batch.Messages {
		m := &batch.Messages[i]
		buf = append(buf, m.ID[:]...)
		if buf, err = appendString(buf, m.Queue); err != nil {
			return nil, err
		}
		buf = binary.LittleEndian.AppendUint64(buf, uint64(m.SentAt.UnixMilli())) // #nosec G115 - signed on the wire
		if buf, err = appendCount(buf, len(m.Headers)); err != nil {
			return nil, err
		}
		for _, h := range m.Headers {
			if buf, err = appendString(buf, h.Key); err != nil {
				return nil, err
			}
			if buf, err = appendString(buf, h.Value); err != nil {
				return nil, err
			}
		}
		if buf, err = appendCount(buf, len(m.Data)); err != nil {
			return nil, err
		}
		buf = append(buf, m.Data...)
	}
	return buf, nil
}

// id + empty queue + sent + header count + data length
const minMessageSize = 16 + 4 + 8 + 4 + 4

func appendCount(dst []byte, n int) ([]byte, error) {
	if n > math.MaxInt32 {
		return nil, fmt.Errorf("codec: length %d exceeds int32", n)
	}
	return binary.LittleEndian.AppendUint32(dst, uint32(n)), nil // #nosec G115 - range checked
}

func appendString(dst []byte, s string) ([]byte, error) {
	dst, err := appendCount(dst, len(s))
	if err != nil {
		return nil, err
	}
	return append(dst, s...), nil
}

// reader is a sticky-error cursor over a payload
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: "+format, append([]any{ErrMalformed}, args...)...)
	}
}

func (r *reader) take(n int, what string) []byte {
	if r.err != nil {
		return nil
	}
	if n > len(r.buf)-r.off {
		r.fail("%s needs %d bytes, %d left", what, n, len(r.buf)-r.off)
		return nil
	}
	p := r.buf[r.off : r.off+n]
	r.off += n
	return p
}

func (r *reader) count(what string) int {
	p := r.take(4, what)
	if p == nil {
		return 0
	}
	n := int32(binary.LittleEndian.Uint32(p)) // #nosec G115 - signed on the wire
	if n < 0 {
		r.fail("negative %s %d", what, n)
		return 0
	}
	return int(n)
}

func (r *reader) bytes(what string) []byte {
	n := r.count(what)
	p := r.take(n, what)
	if p == nil {
		return nil
	}
	out := make([]byte, len(p))
	copy(out, p)
	return out
}

func (r *reader) string(what string) string {
	return string(r.bytes(what))
}

func (r *reader) message() message.Incoming {
	var m message.Incoming
	if p := r.take(len(uuid.UUID{}), "message id"); p != nil {
		copy(m.ID[:], p)
	}
	m.Queue = r.string("queue name")
	if p := r.take(8, "sent timestamp"); p != nil {
		m.SentAt = time.UnixMilli(int64(binary.LittleEndian.Uint64(p))).UTC() // #nosec G115 - signed on the wire
	}
	n := r.count("header count")
	if n > 0 && r.err == nil {
		m.Headers = make(message.Headers, 0, min(n, (len(r.buf)-r.off)/8+1))
		for i := 0; i < n && r.err == nil; i++ {
			k := r.string("header key")
			v := r.string("header value")
			m.Headers = append(m.Headers, message.Header{Key: k, Value: v})
		}
	}
	m.Data = r.bytes("message data")
	return m
}
