// Package jsonfast provides a small, allocation-aware JSON object builder for fixed schemas.
package jsonfast

import (
	"encoding/base64"
	"strconv"
	"time"
)

// Builder appends one flat JSON object into a reusable byte slice.
// It is not a general purpose encoder: field names are written verbatim
// and must not need escaping.
type Builder struct {
	buf    []byte
	opened bool
	first  bool
}

// New creates a builder with the given initial capacity.
func New(capacity int) *Builder {
	if capacity <= 0 {
		capacity = 256
	}
	return &Builder{
		buf:   make([]byte, 0, capacity),
		first: true,
	}
}

// Reset clears the builder for reuse, keeping its buffer.
func (b *Builder) Reset() {
	b.buf = b.buf[:0]
	b.opened = false
	b.first = true
}

// Bytes returns the underlying buffer. It is only valid until the next Reset.
func (b *Builder) Bytes() []byte {
	return b.buf
}

// BeginObject starts a JSON object.
func (b *Builder) BeginObject() {
	b.buf = append(b.buf, '{')
	b.opened = true
	b.first = true
}

// EndObject ends a JSON object.
func (b *Builder) EndObject() {
	b.buf = append(b.buf, '}')
	b.opened = false
}

// AddStringField adds "name":"value" with escaping.
func (b *Builder) AddStringField(name, value string) {
	b.key(name)
	b.quoted(value)
}

// AddInt64Field adds "name":v.
func (b *Builder) AddInt64Field(name string, v int64) {
	b.key(name)
	b.buf = strconv.AppendInt(b.buf, v, 10)
}

// AddBase64Field adds "name":"<std base64 of data>".
func (b *Builder) AddBase64Field(name string, data []byte) {
	b.key(name)
	b.buf = append(b.buf, '"')
	b.buf = base64.StdEncoding.AppendEncode(b.buf, data)
	b.buf = append(b.buf, '"')
}

// AddTimeField adds "name":"RFC3339 in UTC with milliseconds".
func (b *Builder) AddTimeField(name string, t time.Time) {
	b.key(name)
	b.buf = append(b.buf, '"')
	b.buf = t.UTC().AppendFormat(b.buf, rfc3339Milli)
	b.buf = append(b.buf, '"')
}

// AddPairsField adds "name":[{"key":k,"value":v},...] for n ordered pairs.
// Duplicated keys are kept, which an object encoding could not do.
func (b *Builder) AddPairsField(name string, n int, pair func(i int) (key, value string)) {
	b.key(name)
	b.buf = append(b.buf, '[')
	for i := range n {
		if i > 0 {
			b.buf = append(b.buf, ',')
		}
		k, v := pair(i)
		b.buf = append(b.buf, `{"key":`...)
		b.quoted(k)
		b.buf = append(b.buf, `,"value":`...)
		b.quoted(v)
		b.buf = append(b.buf, '}')
	}
	b.buf = append(b.buf, ']')
}

// AddRawJSONField adds "name":<raw>. raw must already be valid JSON.
func (b *Builder) AddRawJSONField(name string, raw []byte) {
	b.key(name)
	b.buf = append(b.buf, raw...)
}

func (b *Builder) key(name string) {
	b.sep()
	b.buf = append(b.buf, '"')
	b.buf = append(b.buf, name...)
	b.buf = append(b.buf, '"', ':')
}

func (b *Builder) sep() {
	if !b.opened {
		b.BeginObject()
	}
	if b.first {
		b.first = false
		return
	}
	b.buf = append(b.buf, ',')
}

func (b *Builder) quoted(s string) {
	b.buf = append(b.buf, '"')
	b.escapeString(s)
	b.buf = append(b.buf, '"')
}

// escapeString escapes JSON special characters. Bytes >= 0x80 pass through,
// so valid UTF-8 stays valid.
func (b *Builder) escapeString(s string) {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\', '"':
			b.buf = append(b.buf, '\\', c)
		case '\n':
			b.buf = append(b.buf, '\\', 'n')
		case '\r':
			b.buf = append(b.buf, '\\', 'r')
		case '\t':
			b.buf = append(b.buf, '\\', 't')
		default:
			if c < 0x20 {
				b.buf = append(b.buf, '\\', 'u', '0', '0', hex[c>>4], hex[c&0x0f])
			} else {
				b.buf = append(b.buf, c)
			}
		}
	}
}

const (
	rfc3339Milli = "2006-01-02T15:04:05.000Z07:00"
	hex          = "0123456789abcdef"
)
