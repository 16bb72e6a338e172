// Package wire implements the binary framing spoken over the node's TCP
// listener: a fixed 6-byte header (2-byte big-endian message type, 4-byte
// big-endian payload length) followed by that many payload bytes.
package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderSize is the number of bytes in the fixed frame header.
const HeaderSize = 6

// MaxPayloadSize bounds a single frame's payload. A receiver that observes a
// declared length above this closes the connection rather than allocating.
const MaxPayloadSize = 16 * 1024 * 1024 // 16 MiB

// ErrFrameTooLarge is returned by ReadFrame when a declared payload length
// exceeds MaxPayloadSize.
var ErrFrameTooLarge = errors.New("wire: frame payload exceeds maximum size")

// ReadFrame blocks until one full frame (header + payload) has been read
// from r, tolerating stream fragmentation: the caller's bufio.Reader may
// have delivered the bytes of several frames, or parts of one, in a single
// underlying read.
func ReadFrame(r *bufio.Reader) (msgType uint16, payload []byte, err error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}

	msgType = binary.BigEndian.Uint16(header[0:2])
	length := binary.BigEndian.Uint32(header[2:6])
	if length > MaxPayloadSize {
		return 0, nil, ErrFrameTooLarge
	}

	payload = make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, err
		}
	}
	return msgType, payload, nil
}

// WriteFrame encodes one frame and writes it to w in a single call, so that
// concurrent writers serialized upstream of w never interleave a header with
// another frame's payload.
func WriteFrame(w io.Writer, msgType uint16, payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return fmt.Errorf("wire: refusing to write %d byte payload: %w", len(payload), ErrFrameTooLarge)
	}

	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], msgType)
	binary.BigEndian.PutUint32(buf[2:6], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)

	_, err := w.Write(buf)
	return err
}
