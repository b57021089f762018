// Package target implements the request/response link to the device under
// test.
package target

import (
	"fmt"
	"time"

	apperrors "github.com/banshee-data/glitch.report/internal/errors"
	"github.com/banshee-data/glitch.report/internal/transport"
)

// Link speaks a Framing over a transport channel. A Link belongs to exactly
// one scope session.
type Link struct {
	ch      transport.Channel
	framing Framing
}

// NewLink returns a link on ch using framing (text framing when nil).
func NewLink(ch transport.Channel, framing Framing) *Link {
	if framing == nil {
		framing = TextFraming{}
	}
	return &Link{ch: ch, framing: framing}
}

// Send writes one framed command.
func (l *Link) Send(cmd byte, payload []byte) error {
	if err := transport.WriteAll(l.ch, l.framing.Encode(cmd, payload)); err != nil {
		return apperrors.ErrFaulted.WithCause(fmt.Errorf("target send %q: %w", cmd, err))
	}
	return nil
}

// Write sends raw bytes without framing.
func (l *Link) Write(raw []byte) error {
	if err := transport.WriteAll(l.ch, raw); err != nil {
		return apperrors.ErrFaulted.WithCause(fmt.Errorf("target write: %w", err))
	}
	return nil
}

// Receive waits up to timeout for a reply to cmd carrying n payload bytes.
// A silent or malformed reply is reported through Response; only a failing
// channel returns an error.
func (l *Link) Receive(cmd byte, n int, timeout time.Duration) (Response, error) {
	raw, err := l.ch.ReadN(l.framing.ResponseLen(n), timeout)
	if err != nil {
		return Response{Raw: raw}, apperrors.ErrFaulted.WithCause(fmt.Errorf("target receive: %w", err))
	}
	return l.framing.Decode(cmd, n, raw), nil
}

// Flush discards buffered target output.
func (l *Link) Flush() error {
	return l.ch.Drain()
}

// Close closes the underlying channel.
func (l *Link) Close() error {
	return l.ch.Close()
}
