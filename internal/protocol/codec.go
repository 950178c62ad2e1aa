// Package protocol implements the LightDM greeter wire format.
//
// Every frame is a big-endian message id and payload length followed by the
// payload. Payload fields are unsigned 32-bit integers and length-prefixed
// strings; a zero-length string stands for "none".
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderSize is the size of the id and length words preceding each payload
	HeaderSize = 8

	// MaxMessageLength bounds a single payload
	MaxMessageLength = 64 * 1024

	intLength = 4
)

var (
	// ErrMalformed is returned for payloads that end before all fields are read
	ErrMalformed = errors.New("malformed message")

	// ErrUnknownMessage is returned for message ids outside the protocol
	ErrUnknownMessage = errors.New("unknown message")

	// ErrTooLarge is returned for frames above MaxMessageLength
	ErrTooLarge = errors.New("message too large")
)

// Frame is one undecoded message read off the wire
type Frame struct {
	ID      uint32
	Payload []byte
}

// ReadFrame reads a single frame from r
func ReadFrame(r io.Reader) (Frame, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, err
	}

	id := binary.BigEndian.Uint32(header[0:4])
	length := binary.BigEndian.Uint32(header[4:8])
	if length > MaxMessageLength {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, fmt.Errorf("failed to read payload: %w", err)
	}

	return Frame{ID: id, Payload: payload}, nil
}

// writer accumulates payload fields
type writer struct {
	buf []byte
}

func (w *writer) putInt(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *writer) putBool(v bool) {
	if v {
		w.putInt(1)
		return
	}
	w.putInt(0)
}

func (w *writer) putString(s string) {
	w.putInt(uint32(len(s))) //nolint:gosec // bounded by MaxMessageLength on the wire
	w.buf = append(w.buf, s...)
}

func (w *writer) putHints(hints map[string]string) {
	for _, key := range sortedKeys(hints) {
		w.putString(key)
		w.putString(hints[key])
	}
}

// reader consumes payload fields in order
type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

func (r *reader) int() (uint32, error) {
	if r.remaining() < intLength {
		return 0, fmt.Errorf("%w: want integer at offset %d", ErrMalformed, r.off)
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += intLength
	return v, nil
}

func (r *reader) string() (string, error) {
	n, err := r.int()
	if err != nil {
		return "", err
	}
	if uint64(n) > uint64(r.remaining()) {
		return "", fmt.Errorf("%w: string of %d bytes at offset %d", ErrMalformed, n, r.off)
	}
	s := string(r.buf[r.off : r.off+int(n)])
	r.off += int(n)
	return s, nil
}

// hintsToEnd reads key/value pairs until the payload is exhausted
func (r *reader) hintsToEnd() (map[string]string, error) {
	hints := make(map[string]string)
	for r.remaining() > 0 {
		key, err := r.string()
		if err != nil {
			return nil, err
		}
		value, err := r.string()
		if err != nil {
			return nil, err
		}
		hints[key] = value
	}
	return hints, nil
}

func (r *reader) hintsCounted() (map[string]string, error) {
	n, err := r.int()
	if err != nil {
		return nil, err
	}
	hints := make(map[string]string)
	for i := uint32(0); i < n; i++ {
		key, err := r.string()
		if err != nil {
			return nil, err
		}
		value, err := r.string()
		if err != nil {
			return nil, err
		}
		hints[key] = value
	}
	return hints, nil
}

func (r *reader) strings() ([]string, error) {
	n, err := r.int()
	if err != nil {
		return nil, err
	}
	// Each string needs at least its length word
	if uint64(n)*intLength > uint64(r.remaining()) {
		return nil, fmt.Errorf("%w: %d strings do not fit in %d bytes", ErrMalformed, n, r.remaining())
	}
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := r.string()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
