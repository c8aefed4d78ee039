package receiver

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ibs-source/queue-receiver/internal/codec"
	"github.com/ibs-source/queue-receiver/internal/message"
	"github.com/ibs-source/queue-receiver/internal/protocol"
	"github.com/sirupsen/logrus"
)

// frameDecoder turns one connection's byte stream into batches
type frameDecoder struct {
	rw    io.ReadWriter
	codec codec.Codec
	log   *logrus.Entry
}

// next reads and decodes one frame. Failures have already been logged and
// signaled when it returns; every error ends the connection.
func (d *frameDecoder) next() (message.Batch, error) {
	n, err := protocol.ReadLength(d.rw)
	if err != nil {
		if errors.Is(err, io.EOF) {
			d.log.Debug("Connection closed before frame length")
		} else {
			d.log.WithError(err).Error("Failed to read frame length")
		}
		d.rejectFrame()
		return message.Batch{}, fmt.Errorf("%w: length: %w", ErrFraming, err)
	}

	if n < 0 {
		d.log.WithField("length", n).Debug("Negative frame length, ending connection")
		return message.Batch{}, errNegativeLength
	}

	payload, err := d.readPayload(n)
	if err != nil {
		d.log.WithError(err).WithField("length", n).Error("Failed to read frame payload")
		d.rejectFrame()
		return message.Batch{}, fmt.Errorf("%w: payload: %w", ErrFraming, err)
	}

	batch, err := d.codec.Decode(payload)
	if err != nil {
		d.log.WithError(err).WithField("length", n).Error("Failed to decode frame payload")
		d.rejectFrame()
		return message.Batch{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	d.log.WithFields(logrus.Fields{"length": n, "messages": batch.Len()}).Debug("Decoded frame")
	return batch, nil
}

// readPayload grows the buffer as bytes arrive so a bogus length cannot force a huge allocation
func (d *frameDecoder) readPayload(n int32) ([]byte, error) {
	var buf bytes.Buffer
	read, err := buf.ReadFrom(io.LimitReader(d.rw, int64(n)))
	if err != nil {
		return nil, err
	}
	if read != int64(n) {
		return nil, io.ErrUnexpectedEOF
	}
	return buf.Bytes(), nil
}

func (d *frameDecoder) rejectFrame() {
	if _, err := protocol.SerializationFailure.WriteTo(d.rw); err != nil {
		d.log.WithError(err).Debug("Failed to send serialization failure signal")
	}
}
