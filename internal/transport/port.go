package transport

import (
	"io"
	"sync"
	"time"

	"github.com/banshee-data/glitch.report/internal/timeutil"
)

// Port defines the minimal interface needed from a serial port. go.bug.st/serial
// ports satisfy it, as does MockPort.
type Port interface {
	io.ReadWriteCloser

	// SetReadTimeout bounds each Read call. A Read that times out returns 0, nil.
	SetReadTimeout(timeout time.Duration) error

	// ResetInputBuffer discards unread input.
	ResetInputBuffer() error
}

// PortChannel adapts a Port to the Channel interface.
type PortChannel struct {
	mu     sync.Mutex
	port   Port
	clock  timeutil.Clock
	closed bool
}

// NewPortChannel wraps port. A nil clock uses the real clock.
func NewPortChannel(port Port, clock timeutil.Clock) *PortChannel {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &PortChannel{port: port, clock: clock}
}

// Write sends p to the port.
func (c *PortChannel) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrClosed
	}
	return c.port.Write(p)
}

// ReadN reads until n bytes arrive or the timeout elapses.
func (c *PortChannel) ReadN(n int, timeout time.Duration) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	buf := make([]byte, n)
	got := 0
	start := c.clock.Now()
	for got < n {
		remaining := timeout - c.clock.Since(start)
		if remaining <= 0 {
			break
		}
		if err := c.port.SetReadTimeout(remaining); err != nil {
			return buf[:got], err
		}
		m, err := c.port.Read(buf[got:])
		got += m
		if err != nil {
			return buf[:got], err
		}
		if m == 0 {
			// Read timed out with nothing pending.
			break
		}
	}
	return buf[:got], nil
}

// Drain discards buffered input.
func (c *PortChannel) Drain() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.port.ResetInputBuffer()
}

// Close closes the underlying port. Closing twice is a no-op.
func (c *PortChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.port.Close()
}
