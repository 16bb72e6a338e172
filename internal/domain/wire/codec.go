package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// encoder writes length-prefixed fields in a fixed order. It is the binary
// analogue of the schema-compiled submessages the spec treats as opaque:
// every Marshal/Unmarshal pair here round-trips (type, payload) exactly, but
// the on-the-wire shape is this node's own, not a borrowed protobuf schema.
type encoder struct {
	buf bytes.Buffer
}

func newEncoder() *encoder { return &encoder{} }

func (e *encoder) string(s string) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
	e.buf.Write(lenBuf[:])
	e.buf.WriteString(s)
}

func (e *encoder) bytes(b []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	e.buf.Write(lenBuf[:])
	e.buf.Write(b)
}

func (e *encoder) int64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	e.buf.Write(b[:])
}

func (e *encoder) int32(v int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	e.buf.Write(b[:])
}

func (e *encoder) bytesOut() []byte { return e.buf.Bytes() }

// decoder is the reverse of encoder; it reads fields in the order they were
// written and returns an error the moment the buffer is exhausted early,
// which is how malformed/truncated payloads are detected (spec §7,
// ProtocolFraming/PayloadDecode).
type decoder struct {
	r *bytes.Reader
}

func newDecoder(payload []byte) *decoder {
	return &decoder{r: bytes.NewReader(payload)}
}

func (d *decoder) string() (string, error) {
	b, err := d.bytesField()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) bytesField() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(d.r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("wire: truncated length prefix: %w", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxPayloadSize {
		return nil, ErrFrameTooLarge
	}
	b := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(d.r, b); err != nil {
			return nil, fmt.Errorf("wire: truncated field: %w", err)
		}
	}
	return b, nil
}

func (d *decoder) int64() (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return 0, fmt.Errorf("wire: truncated int64: %w", err)
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}

func (d *decoder) int32() (int32, error) {
	var b [4]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return 0, fmt.Errorf("wire: truncated int32: %w", err)
	}
	return int32(binary.BigEndian.Uint32(b[:])), nil
}
