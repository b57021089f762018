// Package sim provides in-memory stand-ins for the scope and for a
// simpleserial glitch target, for tests and for dry runs of a campaign.
package sim

import (
	"encoding/binary"
	"sync"

	apperrors "github.com/banshee-data/glitch.report/internal/errors"
	"github.com/banshee-data/glitch.report/internal/scope"
	"github.com/banshee-data/glitch.report/internal/transport"
)

// RegisterHook lets a test fail or observe a register access.
type RegisterHook func(addr uint8, data []byte) error

// Instrument emulates the register file of a scope. It implements both
// scope.Opener and scope.Device.
type Instrument struct {
	mu      sync.Mutex
	profile scope.HardwareProfile
	regs    map[uint8][]byte
	byAddr  map[uint8]scope.Setting

	// Serial is matched against the identifier passed to Open.
	Serial string
	// Absent makes Open report that no device is attached.
	Absent bool
	// LockAfter is the number of clock resets before the clock locks.
	LockAfter int
	// AutoTrigger completes every arm immediately.
	AutoTrigger bool
	// ShortBy drops this many bytes from every sample read.
	ShortBy int
	// TriggerHigh holds the trigger input asserted.
	TriggerHigh bool

	OnRead  RegisterHook
	OnWrite RegisterHook

	onTargetReset func()

	open        bool
	armed       bool
	clockResets int
	trigCount   uint32
	opens       int
	arms        int
	nrstPulses  int
}

// NewInstrument creates a simulated scope of the given profile whose clock
// is locked from the start.
func NewInstrument(profile scope.HardwareProfile) *Instrument {
	in := &Instrument{
		profile: profile,
		regs:    make(map[uint8][]byte),
		byAddr:  make(map[uint8]scope.Setting),
	}
	for _, s := range scope.Table(profile) {
		if s.Live || s.Software {
			continue
		}
		in.byAddr[profile.Registers.Setting[s.Name]] = s
	}
	return in
}

// Open implements scope.Opener.
func (in *Instrument) Open(identifier string) (scope.Device, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.Absent || (identifier != "" && identifier != in.Serial) {
		return nil, apperrors.ErrDeviceNotFound.Withf("serial %q", identifier)
	}
	in.open = true
	in.opens++
	return in, nil
}

// Profile implements scope.Device.
func (in *Instrument) Profile() scope.HardwareProfile { return in.profile }

// Close implements scope.Device.
func (in *Instrument) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.open = false
	in.armed = false
	return nil
}

// ReadRegister implements scope.RegisterBus.
func (in *Instrument) ReadRegister(addr uint8, n int) ([]byte, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.open {
		return nil, transport.ErrClosed
	}
	if in.OnRead != nil {
		if err := in.OnRead(addr, nil); err != nil {
			return nil, err
		}
	}

	r := in.profile.Registers
	switch addr {
	case r.Status:
		return []byte{in.status()}, nil
	case r.TrigCount:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, in.trigCount)
		return b[:min(n, 4)], nil
	case r.ADCData:
		return in.samples(n), nil
	}
	b := make([]byte, n)
	copy(b, in.regs[addr])
	return b, nil
}

func (in *Instrument) status() byte {
	var st byte
	if in.armed {
		st |= scope.StatusArmed
	}
	if in.TriggerHigh {
		st |= scope.StatusTriggerHigh
	}
	if in.clockResets >= in.LockAfter {
		st |= scope.StatusClockLocked
	}
	return st
}

func (in *Instrument) samples(n int) []byte {
	n -= in.ShortBy
	if n < 0 {
		n = 0
	}
	n -= n % 2
	mask := 1<<uint(in.profile.BitsPerSample) - 1
	b := make([]byte, n)
	for i := 0; i < n/2; i++ {
		binary.LittleEndian.PutUint16(b[2*i:], uint16((i*37)&mask))
	}
	return b
}

// WriteRegister implements scope.RegisterBus.
func (in *Instrument) WriteRegister(addr uint8, data []byte) error {
	in.mu.Lock()
	if !in.open {
		in.mu.Unlock()
		return transport.ErrClosed
	}
	if in.OnWrite != nil {
		if err := in.OnWrite(addr, data); err != nil {
			in.mu.Unlock()
			return err
		}
	}

	var reset func()
	r := in.profile.Registers
	switch addr {
	case r.Settings:
		ctl := byte(0)
		if len(data) > 0 {
			ctl = data[0]
		}
		if ctl&scope.SettingsReset != 0 {
			in.regs = make(map[uint8][]byte)
			in.armed = false
		}
		in.armed = ctl&scope.SettingsArm != 0
		if in.armed {
			in.arms++
			if in.AutoTrigger {
				in.fire()
			}
		}
	case r.ClockReset:
		in.clockResets++
	default:
		in.regs[addr] = append([]byte(nil), data...)
		if s, ok := in.byAddr[addr]; ok && s.Name == "io.nrst" && s.Decode(data) == "low" {
			in.nrstPulses++
			in.TriggerHigh = false
			reset = in.onTargetReset
		}
	}
	in.mu.Unlock()

	if reset != nil {
		reset()
	}
	return nil
}

func (in *Instrument) fire() {
	if in.armed {
		in.armed = false
		in.trigCount++
	}
}

// Trigger emulates a trigger edge from the target.
func (in *Instrument) Trigger() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.fire()
}

// SetTriggerHigh drives the trigger input level.
func (in *Instrument) SetTriggerHigh(high bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.TriggerHigh = high
}

// Value decodes the current register value of a writable setting.
func (in *Instrument) Value(name string) interface{} {
	in.mu.Lock()
	defer in.mu.Unlock()
	addr, ok := in.profile.Registers.Setting[name]
	if !ok {
		return nil
	}
	s, ok := in.byAddr[addr]
	if !ok {
		return nil
	}
	b, ok := in.regs[addr]
	if !ok {
		b = s.Encode(s.Default)
	}
	return s.Decode(b)
}

// Stats reports how often the device was opened, armed and had its target reset.
func (in *Instrument) Stats() (opens, arms, nrstPulses, clockResets int) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.opens, in.arms, in.nrstPulses, in.clockResets
}

// IsOpen reports whether a session holds the device.
func (in *Instrument) IsOpen() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.open
}
