package scope

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	apperrors "github.com/banshee-data/glitch.report/internal/errors"
	"github.com/banshee-data/glitch.report/internal/transport"
)

// Request codes for register access.
const (
	CodeRead  = 0x80
	CodeWrite = 0xC0
)

// RegisterBus is addressed register access on the scope's FPGA.
// ReadRegister may return fewer than n bytes when the device goes quiet.
type RegisterBus interface {
	ReadRegister(addr uint8, n int) ([]byte, error)
	WriteRegister(addr uint8, data []byte) error
}

// Device is an opened scope: register access plus its hardware profile.
type Device interface {
	RegisterBus
	io.Closer
	Profile() HardwareProfile
}

// Opener locates and opens a scope. identifier selects a serial number; an
// empty identifier means "the only scope attached".
type Opener interface {
	Open(identifier string) (Device, error)
}

// WireBus frames register requests over a transport channel as
// [code, addr, len (uint32 LE), payload...]. A read request is answered with
// len raw bytes.
type WireBus struct {
	ch      transport.Channel
	timeout time.Duration
}

// NewWireBus returns a bus on ch. Reads give up after timeout.
func NewWireBus(ch transport.Channel, timeout time.Duration) *WireBus {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &WireBus{ch: ch, timeout: timeout}
}

func header(code, addr uint8, n int) []byte {
	h := make([]byte, 6)
	h[0] = code
	h[1] = addr
	binary.LittleEndian.PutUint32(h[2:], uint32(n))
	return h
}

// ReadRegister requests n bytes from addr.
func (b *WireBus) ReadRegister(addr uint8, n int) ([]byte, error) {
	if err := transport.WriteAll(b.ch, header(CodeRead, addr, n)); err != nil {
		return nil, err
	}
	return b.ch.ReadN(n, b.timeout)
}

// WriteRegister writes data to addr.
func (b *WireBus) WriteRegister(addr uint8, data []byte) error {
	return transport.WriteAll(b.ch, append(header(CodeWrite, addr, len(data)), data...))
}

type wireDevice struct {
	*WireBus
	ch      transport.Channel
	profile HardwareProfile
}

func (d *wireDevice) Profile() HardwareProfile { return d.profile }
func (d *wireDevice) Close() error             { return d.ch.Close() }

// NewWireDevice wraps an opened channel as a Device of the given profile.
func NewWireDevice(ch transport.Channel, profile HardwareProfile, timeout time.Duration) Device {
	return &wireDevice{WireBus: NewWireBus(ch, timeout), ch: ch, profile: profile}
}

// USBOpener opens scopes over gousb bulk endpoints.
type USBOpener struct {
	Timeout time.Duration
}

// Open implements Opener.
func (o USBOpener) Open(identifier string) (Device, error) {
	ch, err := transport.OpenUSB(identifier)
	if err != nil {
		if errors.Is(err, transport.ErrNoDevice) {
			return nil, apperrors.ErrDeviceNotFound.Withf("serial %q", identifier)
		}
		return nil, apperrors.ErrDeviceNotFound.WithCause(err)
	}
	profile, err := ProfileForProduct(ch.Info().PID)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("open scope: %w", err)
	}
	return NewWireDevice(ch, profile, o.Timeout), nil
}
