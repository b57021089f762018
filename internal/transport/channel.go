// Package transport provides the byte-channel boundary used by the scope
// session (USB bulk) and the target link (UART). Higher layers impose their
// own framing; a Channel only moves bytes.
package transport

import (
	"errors"
	"io"
	"time"
)

// Channel is an opened, byte-oriented connection to a device.
type Channel interface {
	io.Writer
	io.Closer

	// ReadN reads up to n bytes, returning early once n bytes have arrived
	// or the timeout elapses. A short result with a nil error means the
	// device went quiet; a non-nil error means the channel itself failed.
	ReadN(n int, timeout time.Duration) ([]byte, error)

	// Drain discards any input buffered but not yet read.
	Drain() error
}

// ErrClosed is returned by operations on a closed channel.
var ErrClosed = errors.New("transport: channel closed")

// ErrShortWrite is returned when fewer bytes were written than requested.
var ErrShortWrite = errors.New("transport: short write")

// WriteAll writes p in full, converting a short write into ErrShortWrite.
func WriteAll(c Channel, p []byte) error {
	n, err := c.Write(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return ErrShortWrite
	}
	return nil
}
