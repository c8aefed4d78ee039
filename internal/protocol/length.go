package protocol

import (
	"encoding/binary"
	"io"
)

// LengthSize is the size of the frame length prefix
const LengthSize = 4

// ReadLength reads the signed little-endian frame length
func ReadLength(r io.Reader) (int32, error) {
	var buf [LengthSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(buf[:])), nil // #nosec G115 - wire value is signed
}

// AppendLength appends the little-endian frame length to dst
func AppendLength(dst []byte, n int32) []byte {
	return binary.LittleEndian.AppendUint32(dst, uint32(n)) // #nosec G115 - wire value is signed
}

// AppendFrame appends a complete frame (length prefix and payload) to dst
func AppendFrame(dst, payload []byte) []byte {
	dst = AppendLength(dst, int32(len(payload))) // #nosec G115 - payloads are far below 2GiB
	return append(dst, payload...)
}
