package scope_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/banshee-data/glitch.report/internal/errors"
	"github.com/banshee-data/glitch.report/internal/scope"
	"github.com/banshee-data/glitch.report/internal/sim"
	"github.com/banshee-data/glitch.report/internal/timeutil"
)

func TestSetRejectsOutOfDomainWithoutMutation(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
	}{
		{"gain.db", 79},
		{"gain.db", -1},
		{"adc.samples", 0},
		{"adc.samples", 10.5},
		{"adc.basic_mode", "sideways"},
		{"io.tio1", 3},
		{"glitch.width", 49.9},
		{"glitch.offset", "wide"},
		{"glitch.repeat", 0},
		{"clock.clkgen_freq", 1e3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, instr := connected(t, scope.ProfileLite)
			before, err := s.Get(tt.name)
			require.NoError(t, err)
			hwBefore := instr.Value(tt.name)

			err = s.Set(tt.name, tt.value)
			assert.ErrorIs(t, err, apperrors.ErrInvalidConfiguration)
			assert.ErrorIs(t, err, apperrors.ErrConfiguration)

			after, err := s.Get(tt.name)
			require.NoError(t, err)
			assert.Equal(t, before, after)
			assert.Equal(t, hwBefore, instr.Value(tt.name))
		})
	}
}

func TestSetWritesThroughToHardware(t *testing.T) {
	s, instr := connected(t, scope.ProfileLite)

	require.NoError(t, s.Set("glitch.offset", -11))
	require.NoError(t, s.Set("glitch.width", "8"))
	require.NoError(t, s.Set("glitch.trigger_src", "EXT_SINGLE"))

	assert.Equal(t, -11.0, instr.Value("glitch.offset"))
	assert.Equal(t, 8.0, instr.Value("glitch.width"))
	assert.Equal(t, "ext_single", instr.Value("glitch.trigger_src"))

	v, err := s.Get("glitch.trigger_src")
	require.NoError(t, err)
	assert.Equal(t, "ext_single", v)
}

func TestReadOnlyAndUnsupported(t *testing.T) {
	s, _ := connected(t, scope.ProfileLite)

	assert.ErrorIs(t, s.Set("clock.clkgen_locked", true), apperrors.ErrUnsupportedOperation)
	assert.ErrorIs(t, s.Set("adc.state", false), apperrors.ErrUnsupportedOperation)
	assert.ErrorIs(t, s.Set("clock.adc_mul", 4), apperrors.ErrUnsupportedOperation)
	assert.ErrorIs(t, s.Set("glitch.enabled", true), apperrors.ErrUnsupportedOperation)
	assert.ErrorIs(t, s.Set("gain.turbo", 1), apperrors.ErrUnknownSetting)

	husky, _ := connected(t, scope.ProfileHusky)
	assert.ErrorIs(t, husky.Set("clock.adc_src", "clkgen_x4"), apperrors.ErrUnsupportedOperation)
	require.NoError(t, husky.Set("clock.adc_mul", 4))
}

func TestConfigRequiresSession(t *testing.T) {
	s := scope.NewSession(sim.NewInstrument(scope.ProfileLite), scope.Options{})
	assert.ErrorIs(t, s.Set("gain.db", 10), apperrors.ErrNotConnected)

	require.NoError(t, s.Connect(""))
	require.NoError(t, s.Set("gain.db", 10))
	require.NoError(t, s.Disconnect())

	assert.ErrorIs(t, s.Set("gain.db", 12), apperrors.ErrNotConnected)
	_, err := s.Get("gain.db")
	assert.ErrorIs(t, err, apperrors.ErrNotConnected)
}

func TestConfigAccessFollowsState(t *testing.T) {
	s, instr := connected(t, scope.ProfileLite)
	require.NoError(t, s.Arm())
	_, err := s.Get("gain.db")
	require.NoError(t, err, "read while armed")
	require.NoError(t, s.Set("gain.db", 20), "write while armed")

	instr.OnRead = func(uint8, []byte) error { return errors.New("libusb: pipe error") }
	_, err = s.Capture(time.Second)
	require.ErrorIs(t, err, apperrors.ErrFaulted)
	instr.OnRead = nil

	_, err = s.Get("gain.db")
	assert.ErrorIs(t, err, apperrors.ErrFaulted)
	assert.ErrorIs(t, s.Set("gain.db", 21), apperrors.ErrFaulted)
	_, err = s.RegRead(scope.ProfileLite.Registers.Settings, 1)
	assert.ErrorIs(t, err, apperrors.ErrFaulted)
	assert.ErrorIs(t, s.RegWrite(scope.ProfileLite.Registers.Settings, []byte{0}), apperrors.ErrFaulted)
	assert.Equal(t, scope.StateFaulted, s.State())
}

func TestCacheInvalidatedOnReconnect(t *testing.T) {
	s, _ := connected(t, scope.ProfileLite)
	require.NoError(t, s.Set("gain.db", 30))
	require.NoError(t, s.Disconnect())
	require.NoError(t, s.Connect(""))

	v, err := s.Get("gain.db")
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)
}

func TestLiveSettings(t *testing.T) {
	s, instr := connected(t, scope.ProfileLite)

	high, err := s.Get("adc.state")
	require.NoError(t, err)
	assert.Equal(t, false, high)

	instr.SetTriggerHigh(true)
	high, err = s.Get("adc.state")
	require.NoError(t, err)
	assert.Equal(t, true, high)

	locked, err := s.Get("clock.clkgen_locked")
	require.NoError(t, err)
	assert.Equal(t, true, locked)
}

func TestNamesByGroup(t *testing.T) {
	s, _ := connected(t, scope.ProfileLite)
	names := s.Config().Names("glitch")
	assert.Contains(t, names, "glitch.width")
	assert.NotContains(t, names, "glitch.enabled")
	for _, n := range names {
		assert.Contains(t, n, "glitch.")
	}
}

func TestDefaultSetupIdempotent(t *testing.T) {
	for _, profile := range []scope.HardwareProfile{scope.ProfileLite, scope.ProfileHusky} {
		t.Run(profile.Name, func(t *testing.T) {
			s, _ := connected(t, profile)

			require.NoError(t, s.DefaultSetup())
			first := s.Config().Snapshot()
			require.NoError(t, s.DefaultSetup())
			second := s.Config().Snapshot()

			if diff := cmp.Diff(first, second); diff != "" {
				t.Errorf("snapshot changed after second DefaultSetup (-first +second):\n%s", diff)
			}
			for _, kv := range scope.Baseline(profile) {
				assert.Equal(t, kv.Value, second[kv.Name], kv.Name)
			}
		})
	}
}

func TestDefaultSetupRetriesClockLock(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	instr := sim.NewInstrument(scope.ProfileLite)
	instr.LockAfter = 3
	s := scope.NewSession(instr, scope.Options{Clock: clock})
	require.NoError(t, s.Connect(""))

	require.NoError(t, s.DefaultSetup())
	_, _, _, resets := instr.Stats()
	assert.Equal(t, 3, resets)
	assert.Len(t, clock.Sleeps(), 3)
}

func TestDefaultSetupReconnectsThenFails(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	instr := sim.NewInstrument(scope.ProfileLite)
	instr.LockAfter = 1000
	s := scope.NewSession(instr, scope.Options{Clock: clock})
	require.NoError(t, s.Connect(""))

	err := s.DefaultSetup()
	assert.ErrorIs(t, err, apperrors.ErrClockLockFailed)
	opens, _, _, resets := instr.Stats()
	assert.Equal(t, 2, opens, "expected one reconnect")
	assert.Equal(t, 11, resets)
	assert.Equal(t, scope.StateConnected, s.State())

	// Baseline survives the reconnect.
	v, err := s.Get("gain.db")
	require.NoError(t, err)
	assert.Equal(t, 25.0, v)
}

func TestDefaultSetupHuskyDoesNotReconnect(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	instr := sim.NewInstrument(scope.ProfileHusky)
	instr.LockAfter = 1000
	s := scope.NewSession(instr, scope.Options{Clock: clock})
	require.NoError(t, s.Connect(""))

	assert.ErrorIs(t, s.DefaultSetup(), apperrors.ErrClockLockFailed)
	opens, _, _, _ := instr.Stats()
	assert.Equal(t, 1, opens)
	assert.Empty(t, clock.Sleeps())
}
