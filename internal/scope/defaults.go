package scope

import (
	"time"

	apperrors "github.com/banshee-data/glitch.report/internal/errors"
	"github.com/banshee-data/glitch.report/internal/monitoring"
)

const (
	maxLockAttempts  = 10
	reconnectAttempt = 5
	lockRetryDelay   = 50 * time.Millisecond
	reconnectDelay   = 250 * time.Millisecond
)

// Baseline returns the known-good capture setup for a profile:
// 25 dB gain, 5000 samples at offset 0 on a rising edge, a 7.37 MHz clock
// on hs2 with a 4x ADC clock, serial on tio1/tio2 and CDC settings off.
func Baseline(p HardwareProfile) []Value {
	vs := []Value{
		{"gain.db", 25.0},
		{"adc.samples", 5000.0},
		{"adc.offset", 0.0},
		{"adc.basic_mode", "rising_edge"},
		{"clock.clkgen_freq", 7.37e6},
		{"trigger.triggers", "tio4"},
		{"io.tio1", "serial_rx"},
		{"io.tio2", "serial_tx"},
		{"io.hs2", "clkgen"},
		{"io.cdc_settings", 0.0},
	}
	if p.IsHusky() {
		return append(vs,
			Value{"clock.clkgen_src", "system"},
			Value{"clock.adc_mul", 4.0},
			Value{"glitch.enabled", false},
		)
	}
	return append(vs, Value{"clock.adc_src", "clkgen_x4"})
}

// DefaultSetup applies Baseline and waits for the clock to lock, resetting
// the clock block between polls. DCM-clocked scopes are reconnected once
// midway. It is idempotent: repeating it converges to the same settings.
func (s *Session) DefaultSetup() error {
	if s.config == nil {
		return apperrors.ErrNotConnected.Withf("default setup")
	}
	if err := s.applyBaseline(); err != nil {
		return err
	}

	husky := s.profile.IsHusky()
	for count := 0; ; {
		locked, err := s.Get("clock.clkgen_locked")
		if err != nil {
			return err
		}
		if locked.(bool) {
			if count > 0 {
				monitoring.Logf("scope: clock locked after %d resets", count)
			}
			return nil
		}

		count++
		if err := s.resetClocks(); err != nil {
			return err
		}
		if !husky {
			s.clock.Sleep(lockRetryDelay)
			if count == reconnectAttempt {
				monitoring.Logf("scope: could not lock clock, reconnecting and retrying")
				if err := s.reconnect(); err != nil {
					return err
				}
			}
		}
		if count > maxLockAttempts {
			return apperrors.ErrClockLockFailed.Withf("%s after %d attempts", s.profile.Name, count)
		}
	}
}

func (s *Session) applyBaseline() error {
	return s.config.Apply(Baseline(s.profile))
}

func (s *Session) resetClocks() error {
	if err := s.guard(); err != nil {
		return err
	}
	if err := s.dev.WriteRegister(s.profile.Registers.ClockReset, []byte{1}); err != nil {
		return s.fault("clock reset", err)
	}
	return nil
}

func (s *Session) reconnect() error {
	id := s.identifier
	if err := s.Disconnect(); err != nil {
		monitoring.Logf("scope: disconnect before retry: %v", err)
	}
	s.clock.Sleep(reconnectDelay)
	if err := s.Connect(id); err != nil {
		return err
	}
	s.clock.Sleep(reconnectDelay)
	return s.applyBaseline()
}
