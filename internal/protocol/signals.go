// Package protocol defines the byte-level vocabulary shared with the sending peer.
package protocol

import (
	"bytes"
	"fmt"
	"io"

	"golang.org/x/text/encoding/unicode"
)

// Signal is a fixed-length marker exchanged outside the length-prefixed frames.
type Signal struct {
	name string
	wire []byte
}

// Markers are the UTF-16LE encoding of short ASCII words.
var (
	Received             = newSignal("Received")
	Acknowledged         = newSignal("Acknowledged")
	Revert               = newSignal("Revert")
	SerializationFailure = newSignal("FailDesr")
	ProcessingFailure    = newSignal("FailPrcs")
	QueueDoesNotExist    = newSignal("Qu-Exist")
)

// Signals lists every marker of the protocol
func Signals() []Signal {
	return []Signal{Received, Acknowledged, Revert, SerializationFailure, ProcessingFailure, QueueDoesNotExist}
}

func newSignal(word string) Signal {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	wire, err := enc.Bytes([]byte(word))
	if err != nil {
		panic(fmt.Sprintf("protocol: encode signal %q: %v", word, err))
	}
	return Signal{name: word, wire: wire}
}

// String returns the marker word
func (s Signal) String() string {
	return s.name
}

// Len is the number of bytes the marker occupies on the wire
func (s Signal) Len() int {
	return len(s.wire)
}

// Bytes returns a copy of the wire form
func (s Signal) Bytes() []byte {
	out := make([]byte, len(s.wire))
	copy(out, s.wire)
	return out
}

// Matches reports whether p is exactly this marker
func (s Signal) Matches(p []byte) bool {
	return bytes.Equal(s.wire, p)
}

// WriteTo writes the marker to w
func (s Signal) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(s.wire)
	return int64(n), err
}

// Read reads exactly Len() bytes from r and returns them unchecked
func (s Signal) Read(r io.Reader) ([]byte, error) {
	buf := make([]byte, len(s.wire))
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
