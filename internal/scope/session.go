// Package scope drives a fault-injection scope: its connection lifecycle,
// arm/capture sequencing, fault handling and configuration model.
package scope

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/banshee-data/glitch.report/internal/errors"
	"github.com/banshee-data/glitch.report/internal/monitoring"
	"github.com/banshee-data/glitch.report/internal/timeutil"
)

// Flusher discards buffered target I/O after a target reset.
type Flusher interface {
	Flush() error
}

// Options tune a Session. Zero values select the defaults.
type Options struct {
	Clock timeutil.Clock
	// Target is flushed at the end of ResetTarget.
	Target Flusher
	// ResetSettle is held on each side of the reset pulse.
	ResetSettle time.Duration
	// PollInterval spaces status polls while waiting for a trigger.
	PollInterval time.Duration
}

const (
	defaultResetSettle  = 50 * time.Millisecond
	defaultPollInterval = time.Millisecond
)

// Session is one scope connection. It is driven by a single goroutine; the
// mutex only protects state for concurrent observers such as status pages.
type Session struct {
	opener Opener
	opts   Options
	clock  timeutil.Clock

	mu         sync.RWMutex
	state      State
	dev        Device
	profile    HardwareProfile
	config     *Config
	identifier string
	lastTrace  []uint16
}

// NewSession creates a disconnected session that opens devices via opener.
func NewSession(opener Opener, opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.ResetSettle <= 0 {
		opts.ResetSettle = defaultResetSettle
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &Session{opener: opener, opts: opts, clock: opts.Clock, state: StateDisconnected}
}

// SetTarget attaches the target I/O flushed by ResetTarget.
func (s *Session) SetTarget(f Flusher) {
	s.opts.Target = f
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Profile returns the hardware profile of the connected device.
func (s *Session) Profile() HardwareProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// Config returns the configuration model, or nil before the first connect.
func (s *Session) Config() *Config {
	return s.config
}

func (s *Session) setState(next State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == next {
		return nil
	}
	if !allowedTransition(s.state, next) {
		return errInvalidTransition{from: s.state, to: next}
	}
	monitoring.Logf("scope: %s -> %s", s.state, next)
	s.state = next
	return nil
}

// fault moves the session to Faulted and wraps err as a FaultedError.
func (s *Session) fault(op string, err error) error {
	if e := s.setState(StateFaulted); e != nil {
		monitoring.Logf("scope: %v", e)
	}
	monitoring.Logf("scope: %s failed: %v", op, err)
	return apperrors.ErrFaulted.WithCause(fmt.Errorf("%s: %w", op, err))
}

// guard gates configuration access on the lifecycle state. Reads and writes
// share the gate: a read may touch the device on a cache miss.
func (s *Session) guard() error {
	switch st := s.State(); st {
	case StateConnected, StateArmed:
		return nil
	case StateFaulted:
		return apperrors.ErrFaulted.Withf("configuration access while faulted")
	default:
		return apperrors.ErrNotConnected.Withf("configuration access while %s", st)
	}
}

// Connect opens the scope, resets it and loads its power-on configuration.
func (s *Session) Connect(identifier string) error {
	if st := s.State(); st != StateDisconnected {
		return apperrors.ErrAlreadyConnected.Withf("state is %s", st)
	}
	if err := s.setState(StateConnecting); err != nil {
		return err
	}

	dev, err := s.opener.Open(identifier)
	if err != nil {
		_ = s.setState(StateDisconnected)
		return err
	}

	s.mu.Lock()
	s.dev = dev
	s.profile = dev.Profile()
	s.identifier = identifier
	s.mu.Unlock()
	s.config = newConfig(s.profile, dev, s.guard, s.fault)

	regs := s.profile.Registers
	if err := dev.WriteRegister(regs.Settings, []byte{SettingsReset}); err != nil {
		return s.fault("reset", err)
	}
	if err := dev.WriteRegister(regs.Settings, []byte{0}); err != nil {
		return s.fault("reset", err)
	}
	s.config.loadDefaults()

	monitoring.Logf("scope: connected to %s (%q)", s.profile.Name, identifier)
	return s.setState(StateConnected)
}

// Disconnect releases the device from any state. It is idempotent.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	dev := s.dev
	s.dev = nil
	s.mu.Unlock()

	if s.config != nil {
		s.config.invalidate()
	}
	var err error
	if dev != nil {
		err = dev.Close()
	}
	if e := s.setState(StateDisconnected); e != nil {
		return e
	}
	return err
}

// Arm prepares the scope to capture on the next trigger.
func (s *Session) Arm() error {
	if st := s.State(); st != StateConnected {
		if st == StateFaulted {
			return apperrors.ErrFaulted.Withf("arm while faulted")
		}
		return apperrors.ErrNotConnected.Withf("arm requires connected, state is %s", st)
	}
	regs := s.profile.Registers
	if err := s.dev.WriteRegister(regs.Settings, []byte{SettingsArm}); err != nil {
		return s.fault("arm", err)
	}
	return s.setState(StateArmed)
}

// CaptureStatus is the non-fatal result class of a capture.
type CaptureStatus int

const (
	Captured CaptureStatus = iota
	TimedOut
	ShortRead
)

func (c CaptureStatus) String() string {
	switch c {
	case Captured:
		return "captured"
	case TimedOut:
		return "timed_out"
	case ShortRead:
		return "short_read"
	default:
		return fmt.Sprintf("CaptureStatus(%d)", int(c))
	}
}

// CaptureOutcome is the result of one capture.
type CaptureOutcome struct {
	Status   CaptureStatus
	Trace    []uint16
	Expected int
	Bits     int
}

// Floats scales the trace to [-0.5, 0.5).
func (o CaptureOutcome) Floats() []float64 {
	out := make([]float64, len(o.Trace))
	full := float64(uint32(1) << uint(o.Bits))
	for i, v := range o.Trace {
		out[i] = float64(v)/full - 0.5
	}
	return out
}

type pumpResult struct {
	data    []byte
	stopped bool
	err     error
}

// Capture waits up to timeout for the trigger and reads the trace. A
// timeout or short read is reported in the outcome, not as an error; only
// transport failures fault the session. A timeout <= 0 uses adc.timeout.
func (s *Session) Capture(timeout time.Duration) (CaptureOutcome, error) {
	if st := s.State(); st != StateArmed {
		if st == StateFaulted {
			return CaptureOutcome{}, apperrors.ErrFaulted.Withf("capture while faulted")
		}
		return CaptureOutcome{}, apperrors.ErrNotConnected.Withf("capture requires armed, state is %s", st)
	}
	if timeout <= 0 {
		secs, _ := s.config.Get("adc.timeout")
		if f, ok := secs.(float64); ok {
			timeout = time.Duration(f * float64(time.Second))
		}
	}
	samplesV, err := s.config.Get("adc.samples")
	if err != nil {
		return CaptureOutcome{}, err
	}
	samples := int(samplesV.(float64))
	if err := s.setState(StateCapturing); err != nil {
		return CaptureOutcome{}, err
	}

	// The pump never outlives this call.
	stop := make(chan struct{})
	results := make(chan pumpResult, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		results <- s.pump(stop, samples*s.profile.BytesPerSample())
	}()

	var r pumpResult
	select {
	case r = <-results:
	case <-s.clock.After(timeout):
		close(stop)
		wg.Wait()
		r = <-results
	}
	wg.Wait()

	out := CaptureOutcome{Expected: samples, Bits: s.profile.BitsPerSample}
	if r.err != nil {
		return out, s.fault("capture", r.err)
	}
	if r.stopped {
		if err := s.dev.WriteRegister(s.profile.Registers.Settings, []byte{0}); err != nil {
			return out, s.fault("disarm", err)
		}
		out.Status = TimedOut
		monitoring.Logf("scope: capture timed out after %s", timeout)
		return out, s.setState(StateConnected)
	}

	out.Trace = decodeSamples(r.data, s.profile.BitsPerSample)
	if len(out.Trace) < samples {
		out.Status = ShortRead
		monitoring.Logf("scope: received fewer points than expected: %d vs %d", len(out.Trace), samples)
	} else {
		s.mu.Lock()
		s.lastTrace = out.Trace
		s.mu.Unlock()
	}
	return out, s.setState(StateConnected)
}

// pump polls the status register until the trigger has fired, then reads
// the sample FIFO. It returns early with stopped set once stop closes.
func (s *Session) pump(stop <-chan struct{}, n int) pumpResult {
	regs := s.profile.Registers
	for {
		select {
		case <-stop:
			return pumpResult{stopped: true}
		default:
		}
		status, err := s.dev.ReadRegister(regs.Status, 1)
		if err != nil {
			return pumpResult{err: err}
		}
		if len(status) == 1 && status[0]&StatusArmed == 0 {
			break
		}
		s.clock.Sleep(s.opts.PollInterval)
	}
	data, err := s.dev.ReadRegister(regs.ADCData, n)
	if err != nil {
		return pumpResult{err: err}
	}
	return pumpResult{data: data}
}

func decodeSamples(b []byte, bits int) []uint16 {
	mask := uint16(1)<<uint(bits) - 1
	out := make([]uint16, len(b)/2)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(b[2*i:]) & mask
	}
	return out
}

// LastTrace returns the most recent complete capture.
func (s *Session) LastTrace() []uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]uint16(nil), s.lastTrace...)
}

// ResetTarget pulses the target reset line low then releases it, holding
// the settle delay on each side, and flushes target I/O. It does not
// change the lifecycle state unless the pulse itself fails.
func (s *Session) ResetTarget() error {
	st := s.State()
	if st == StateDisconnected || s.config == nil {
		return apperrors.ErrNotConnected.Withf("reset target while %s", st)
	}
	nrst, err := s.config.lookup("io.nrst")
	if err != nil {
		return err
	}
	monitoring.Logf("scope: resetting target")
	if err := s.config.write(nrst, "low"); err != nil {
		return err
	}
	s.clock.Sleep(s.opts.ResetSettle)
	if err := s.config.write(nrst, "high_z"); err != nil {
		return err
	}
	s.clock.Sleep(s.opts.ResetSettle)
	if s.opts.Target != nil {
		if err := s.opts.Target.Flush(); err != nil {
			return fmt.Errorf("flush target: %w", err)
		}
	}
	return nil
}

// Get reads a configuration value.
func (s *Session) Get(name string) (interface{}, error) {
	if s.config == nil {
		return nil, apperrors.ErrNotConnected.Withf("get %s", name)
	}
	return s.config.Get(name)
}

// Set writes a configuration value.
func (s *Session) Set(name string, v interface{}) error {
	if s.config == nil {
		return apperrors.ErrNotConnected.Withf("set %s", name)
	}
	return s.config.Set(name, v)
}

// Describe returns the table entry for a setting.
func (s *Session) Describe(name string) (Setting, error) {
	if s.config == nil {
		return Setting{}, apperrors.ErrNotConnected.Withf("describe %s", name)
	}
	return s.config.Describe(name)
}

// RegRead reads raw bytes from an FPGA register. Intended for debugging.
func (s *Session) RegRead(addr uint8, n int) ([]byte, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	b, err := s.dev.ReadRegister(addr, n)
	if err != nil {
		return nil, s.fault("register read", err)
	}
	return b, nil
}

// RegWrite writes raw bytes to an FPGA register. Intended for debugging.
func (s *Session) RegWrite(addr uint8, data []byte) error {
	if err := s.guard(); err != nil {
		return err
	}
	if err := s.dev.WriteRegister(addr, data); err != nil {
		return s.fault("register write", err)
	}
	return nil
}
