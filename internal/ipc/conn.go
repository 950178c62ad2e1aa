package ipc

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/bnema/lightgreet/internal/protocol"
)

// ErrClosed is returned by operations on a closed connection
var ErrClosed = errors.New("connection closed")

// Conn frames LightDM greeter messages over a byte stream
type Conn struct {
	rwc io.ReadWriteCloser

	wmu sync.Mutex

	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

// NewConn wraps rwc. The Conn owns rwc from here on.
func NewConn(rwc io.ReadWriteCloser) *Conn {
	return &Conn{
		rwc:    rwc,
		closed: make(chan struct{}),
	}
}

// ReadFrame reads the next frame. Only one goroutine may read at a time.
func (c *Conn) ReadFrame() (protocol.Frame, error) {
	frame, err := protocol.ReadFrame(c.rwc)
	if err != nil {
		select {
		case <-c.closed:
			return protocol.Frame{}, ErrClosed
		default:
		}
		return protocol.Frame{}, err
	}
	return frame, nil
}

// WriteMessage frames and writes msg. Safe for concurrent use. Messages
// above protocol.MaxMessageLength are refused without writing anything.
func (c *Conn) WriteMessage(msg protocol.Message) error {
	data := protocol.Encode(msg)
	if n := len(data) - protocol.HeaderSize; n > protocol.MaxMessageLength {
		return fmt.Errorf("%w: message %d needs %d bytes", protocol.ErrTooLarge, msg.MessageID(), n)
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	if _, err := c.rwc.Write(data); err != nil {
		return fmt.Errorf("failed to write message %d: %w", msg.MessageID(), err)
	}

	// Force flush if the writer supports it
	if flusher, ok := c.rwc.(interface{ Flush() error }); ok {
		if err := flusher.Flush(); err != nil {
			return fmt.Errorf("failed to flush message %d: %w", msg.MessageID(), err)
		}
	}

	return nil
}

// Close closes the underlying stream. Later calls return the first result.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.closeErr = c.rwc.Close()
	})
	return c.closeErr
}

// Closed is closed once Close has been called
func (c *Conn) Closed() <-chan struct{} {
	return c.closed
}
