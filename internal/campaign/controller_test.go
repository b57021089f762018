package campaign

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/banshee-data/glitch.report/internal/errors"
	"github.com/banshee-data/glitch.report/internal/monitoring"
	"github.com/banshee-data/glitch.report/internal/scope"
	"github.com/banshee-data/glitch.report/internal/sweep"
	"github.com/banshee-data/glitch.report/internal/target"
)

func init() {
	monitoring.SetLogger(nil)
}

// fakeInstrument records what the controller asks of the scope.
type fakeInstrument struct {
	values       map[string]interface{}
	calls        []string
	resets       int
	arms         int
	disconnected bool

	domains     map[string]scope.Domain
	triggerHigh func(width, offset float64) bool
	timesOut    func(width, offset float64) bool
	failArmAt   int
}

func newFakeInstrument() *fakeInstrument {
	return &fakeInstrument{values: map[string]interface{}{}}
}

func (f *fakeInstrument) wo() (float64, float64) {
	w, _ := f.values["glitch.width"].(float64)
	o, _ := f.values["glitch.offset"].(float64)
	return w, o
}

func (f *fakeInstrument) Describe(name string) (scope.Setting, error) {
	if d, ok := f.domains[name]; ok {
		return scope.Setting{Name: name, Domain: d}, nil
	}
	return scope.Setting{Name: name, Domain: scope.Range{Min: -1e9, Max: 1e9}}, nil
}

func (f *fakeInstrument) Get(name string) (interface{}, error) {
	if name == "adc.state" {
		if f.triggerHigh != nil {
			return f.triggerHigh(f.wo()), nil
		}
		return false, nil
	}
	return f.values[name], nil
}

func (f *fakeInstrument) Set(name string, v interface{}) error {
	if name == "glitch.repeat" {
		if n, ok := v.(float64); ok && n > 10 {
			return apperrors.ErrInvalidConfiguration.Withf("repeat %v", v)
		}
	}
	f.values[name] = v
	return nil
}

func (f *fakeInstrument) Arm() error {
	f.arms++
	f.calls = append(f.calls, "arm")
	if f.failArmAt > 0 && f.arms == f.failArmAt {
		return apperrors.ErrFaulted.WithCause(errors.New("usb: pipe error"))
	}
	return nil
}

func (f *fakeInstrument) Capture(time.Duration) (scope.CaptureOutcome, error) {
	f.calls = append(f.calls, "capture")
	if f.timesOut != nil && f.timesOut(f.wo()) {
		return scope.CaptureOutcome{Status: scope.TimedOut}, nil
	}
	return scope.CaptureOutcome{Status: scope.Captured}, nil
}

func (f *fakeInstrument) ResetTarget() error {
	f.resets++
	f.calls = append(f.calls, "reset_target")
	return nil
}

func (f *fakeInstrument) Disconnect() error {
	f.disconnected = true
	return nil
}

// fakeLink answers each stimulus from the instrument's current setting.
type fakeLink struct {
	instr   *fakeInstrument
	respond func(width, offset float64) target.Response
	sent    int
	raw     [][]byte
	failRx  bool
}

func (l *fakeLink) Send(cmd byte, payload []byte) error {
	l.sent++
	l.instr.calls = append(l.instr.calls, "send")
	return nil
}

func (l *fakeLink) Write(raw []byte) error {
	l.raw = append(l.raw, raw)
	l.instr.calls = append(l.instr.calls, "write")
	return nil
}

func (l *fakeLink) Receive(cmd byte, n int, timeout time.Duration) (target.Response, error) {
	l.instr.calls = append(l.instr.calls, "receive")
	if l.failRx {
		return target.Response{}, apperrors.ErrFaulted.WithCause(errors.New("uart gone"))
	}
	return l.respond(l.instr.wo()), nil
}

func count(v uint32) target.Response {
	p := make([]byte, 4)
	binary.LittleEndian.PutUint32(p, v)
	return target.Response{Valid: true, Payload: p}
}

func scenarioSpace(t *testing.T) *sweep.Space {
	t.Helper()
	s, err := sweep.NewSpace(0,
		sweep.Axis{Name: "width", Low: 0, High: 20, Step: 8},
		sweep.Axis{Name: "offset", Low: 0, High: 10, Step: 1},
	)
	require.NoError(t, err)
	return s
}

func runScenario(t *testing.T, instr *fakeInstrument, link *fakeLink, cfg Config) (*Result, error) {
	t.Helper()
	cfg.Space = scenarioSpace(t)
	c, err := NewController(instr, link, cfg)
	require.NoError(t, err)
	return c.Run(context.Background())
}

func TestScenarioAllNormal(t *testing.T) {
	instr := newFakeInstrument()
	link := &fakeLink{instr: instr, respond: func(float64, float64) target.Response { return count(2500) }}

	res, err := runScenario(t, instr, link, Config{})
	require.NoError(t, err)
	assert.Equal(t, 33, res.Len())
	assert.Equal(t, map[Outcome]int{Normal: 33}, res.Counts())
	assert.Empty(t, res.Filter(Success))
	assert.Equal(t, 33, link.sent)
	assert.Zero(t, instr.resets)
}

func TestScenarioSingleSuccess(t *testing.T) {
	instr := newFakeInstrument()
	link := &fakeLink{instr: instr, respond: func(w, o float64) target.Response {
		if w == 8 && o == 3 {
			return count(2491)
		}
		return count(2500)
	}}

	res, err := runScenario(t, instr, link, Config{})
	require.NoError(t, err)
	succ := res.Filter(Success)
	require.Len(t, succ, 1)
	assert.Equal(t, map[string]float64{"width": 8, "offset": 3}, succ[0].Setting.Map())
	assert.Equal(t, ReasonPredicate, succ[0].Reason)
	assert.Equal(t, 32, res.Counts()[Normal])
}

func TestScenarioResponseTimeouts(t *testing.T) {
	instr := newFakeInstrument()
	link := &fakeLink{instr: instr, respond: func(_, o float64) target.Response {
		if o > 5 {
			return target.Response{TimedOut: true}
		}
		return count(2500)
	}}

	res, err := runScenario(t, instr, link, Config{})
	require.NoError(t, err)

	resets := res.Filter(Reset)
	assert.Len(t, resets, 3*5)
	for _, r := range resets {
		o, _ := r.Setting.Get("offset")
		assert.Greater(t, o, 5.0)
		assert.Equal(t, ReasonResponseTimeout, r.Reason)
		assert.True(t, r.Recovered)
	}
	assert.Equal(t, 15, instr.resets, "one target reset per timed out trial")
	assert.Equal(t, 18, res.Counts()[Normal])
}

func TestTrialSequence(t *testing.T) {
	instr := newFakeInstrument()
	link := &fakeLink{instr: instr, respond: func(float64, float64) target.Response { return count(2500) }}
	space, err := sweep.NewSpace(1, sweep.Axis{Name: "width", Low: 1, High: 1})
	require.NoError(t, err)

	c, err := NewController(instr, link, Config{Space: space})
	require.NoError(t, err)
	_, err = c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"arm", "send", "capture", "receive"}, instr.calls)
}

func TestTriggerHighSkipsCapture(t *testing.T) {
	instr := newFakeInstrument()
	instr.triggerHigh = func(w, o float64) bool { return w == 16 && o == 0 }
	link := &fakeLink{instr: instr, respond: func(float64, float64) target.Response { return count(2500) }}

	res, err := runScenario(t, instr, link, Config{})
	require.NoError(t, err)

	resets := res.Filter(Reset)
	require.Len(t, resets, 1)
	assert.Equal(t, ReasonTriggerHigh, resets[0].Reason)
	assert.Equal(t, 1, instr.resets)
	assert.Equal(t, 32, instr.arms, "no arm for the pre-check failure")
	assert.Equal(t, 32, link.sent)
}

func TestCaptureTimeoutRecordedAsReset(t *testing.T) {
	instr := newFakeInstrument()
	instr.timesOut = func(w, _ float64) bool { return w == 0 }
	link := &fakeLink{instr: instr, respond: func(float64, float64) target.Response { return count(2500) }}

	res, err := runScenario(t, instr, link, Config{})
	require.NoError(t, err)
	assert.Equal(t, 33, res.Len())

	resets := res.Filter(Reset)
	require.Len(t, resets, 11)
	for _, r := range resets {
		assert.Equal(t, ReasonCaptureTimeout, r.Reason)
		assert.Equal(t, scope.TimedOut, r.Capture)
	}
	assert.Empty(t, res.Filter(Timeout), "timeouts are folded into reset")
	assert.Equal(t, 11, instr.resets)
}

func TestInvalidResponseNeedsNoRecovery(t *testing.T) {
	instr := newFakeInstrument()
	link := &fakeLink{instr: instr, respond: func(_, o float64) target.Response {
		if o == 2 {
			return target.Response{Raw: []byte("r#"), ErrorCode: 1}
		}
		return count(2500)
	}}

	res, err := runScenario(t, instr, link, Config{})
	require.NoError(t, err)
	resets := res.Filter(Reset)
	require.Len(t, resets, 3)
	for _, r := range resets {
		assert.Equal(t, ReasonInvalidResponse, r.Reason)
		assert.False(t, r.Recovered)
		assert.Equal(t, 1, r.ErrorCode)
	}
	assert.Zero(t, instr.resets)
}

func TestUnusablePayloadSkipsTrial(t *testing.T) {
	instr := newFakeInstrument()
	link := &fakeLink{instr: instr, respond: func(w, o float64) target.Response {
		switch {
		case o == 0:
			return target.Response{Valid: true}
		case o == 1:
			return target.Response{Valid: true, Payload: []byte{1, 2}}
		}
		return count(2500)
	}}

	res, err := runScenario(t, instr, link, Config{})
	require.NoError(t, err)
	assert.Equal(t, 33-6, res.Len())
	for i, r := range res.Records() {
		assert.Equal(t, i, r.Seq)
		o, _ := r.Setting.Get("offset")
		assert.GreaterOrEqual(t, o, 2.0)
	}
}

func TestFaultHaltsWithPartialResult(t *testing.T) {
	instr := newFakeInstrument()
	instr.failArmAt = 5
	link := &fakeLink{instr: instr, respond: func(float64, float64) target.Response { return count(2500) }}
	tracker := NewTracker()

	res, err := runScenario(t, instr, link, Config{Tracker: tracker})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrFaulted)
	assert.Equal(t, 4, res.Len(), "records before the fault are kept")
	assert.True(t, instr.disconnected)

	st := tracker.Snapshot()
	assert.Equal(t, StatusError, st.Status)
	assert.Equal(t, 4, st.Completed)
	assert.NotEmpty(t, st.Error)
}

func TestLinkFaultHalts(t *testing.T) {
	instr := newFakeInstrument()
	link := &fakeLink{instr: instr, failRx: true}

	res, err := runScenario(t, instr, link, Config{})
	assert.ErrorIs(t, err, apperrors.ErrFaulted)
	assert.Zero(t, res.Len())
	assert.True(t, instr.disconnected)
}

func TestFixedSettingsAndRepeat(t *testing.T) {
	instr := newFakeInstrument()
	link := &fakeLink{instr: instr, respond: func(float64, float64) target.Response { return count(2500) }}
	var progress []int

	res, err := runScenario(t, instr, link, Config{
		Fixed:    []scope.Value{{Name: "repeat", Value: 4.0}, {Name: "gain.db", Value: 30.0}},
		Repeat:   2,
		Stimulus: Stimulus{Raw: []byte("g\n"), ResponseCommand: 'r', ResponseLength: 4},
		Progress: func(done, total int, _ Record) {
			assert.Equal(t, 66, total)
			progress = append(progress, done)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 66, res.Len())
	assert.Equal(t, 4.0, instr.values["glitch.repeat"])
	assert.Equal(t, 30.0, instr.values["gain.db"])
	assert.Len(t, link.raw, 66)
	assert.Zero(t, link.sent)
	assert.Len(t, progress, 66)
	assert.Equal(t, 66, progress[65])

	recs := res.Records()
	assert.Equal(t, 0, recs[0].Repeat)
	assert.Equal(t, 1, recs[1].Repeat)
	assert.Equal(t, recs[0].Setting.Map(), recs[1].Setting.Map())
}

func TestFixedSettingErrorStopsBeforeSweep(t *testing.T) {
	instr := newFakeInstrument()
	link := &fakeLink{instr: instr}

	res, err := runScenario(t, instr, link, Config{Fixed: []scope.Value{{Name: "repeat", Value: 99.0}}})
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfiguration)
	assert.Zero(t, res.Len())
	assert.False(t, instr.disconnected, "configuration errors do not disconnect")
	assert.Zero(t, instr.arms)
}

func TestAxisOutsideDomainRejectedBeforeSweep(t *testing.T) {
	instr := newFakeInstrument()
	instr.domains = map[string]scope.Domain{"glitch.width": scope.Range{Min: -49.8, Max: 49.8}}
	link := &fakeLink{instr: instr, respond: func(float64, float64) target.Response { return count(2500) }}
	tracker := NewTracker()

	space, err := sweep.NewSpace(0,
		sweep.Axis{Name: "width", Low: 30, High: 60, Step: 10},
		sweep.Axis{Name: "offset", Low: 0, High: 1, Step: 1},
	)
	require.NoError(t, err)
	c, err := NewController(instr, link, Config{Space: space, Tracker: tracker})
	require.NoError(t, err)

	res, err := c.Run(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfiguration)
	assert.Contains(t, err.Error(), "width")
	assert.Zero(t, res.Len())
	assert.Zero(t, instr.arms, "no trial runs")
	assert.Zero(t, link.sent)
	assert.Nil(t, instr.values["glitch.width"], "nothing was written")
	assert.False(t, instr.disconnected)
	assert.Equal(t, StatusError, tracker.Snapshot().Status)
}

func TestIntegerAxisRejectsFractionalStep(t *testing.T) {
	instr := newFakeInstrument()
	instr.domains = map[string]scope.Domain{"glitch.ext_offset": scope.Range{Min: 0, Max: 100, Integer: true}}
	link := &fakeLink{instr: instr}

	space, err := sweep.NewSpace(0, sweep.Axis{Name: "ext_offset", Low: 0, High: 2, Step: 0.5})
	require.NoError(t, err)
	c, err := NewController(instr, link, Config{Space: space})
	require.NoError(t, err)

	_, err = c.Run(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfiguration)
	assert.Zero(t, instr.arms)
}

func TestCancelStopsBetweenTrials(t *testing.T) {
	instr := newFakeInstrument()
	ctx, cancel := context.WithCancel(context.Background())
	link := &fakeLink{instr: instr, respond: func(float64, float64) target.Response { return count(2500) }}

	c, err := NewController(instr, link, Config{
		Space:    scenarioSpace(t),
		Progress: func(done, _ int, _ Record) {
			if done == 3 {
				cancel()
			}
		},
	})
	require.NoError(t, err)
	res, err := c.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, res.Len())
}

type recordingSink struct {
	begun   string
	records []Record
	ended   bool
	endErr  error
}

func (s *recordingSink) Begin(id string, _ *sweep.Space) error {
	s.begun = id
	return nil
}

func (s *recordingSink) Append(_ string, rec Record) error {
	s.records = append(s.records, rec)
	return errors.New("disk full")
}

func (s *recordingSink) End(_ string, err error) error {
	s.ended = true
	s.endErr = err
	return nil
}

func TestSinkReceivesEveryRecord(t *testing.T) {
	instr := newFakeInstrument()
	link := &fakeLink{instr: instr, respond: func(float64, float64) target.Response { return count(2500) }}
	sink := &recordingSink{}

	res, err := runScenario(t, instr, link, Config{ID: "c-1", Sink: sink})
	require.NoError(t, err, "sink errors are not fatal")
	assert.Equal(t, "c-1", sink.begun)
	assert.Len(t, sink.records, 33)
	assert.True(t, sink.ended)
	assert.NoError(t, sink.endErr)
	assert.Equal(t, "c-1", res.ID)
}

func TestNewControllerValidates(t *testing.T) {
	_, err := NewController(nil, nil, Config{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfiguration)

	instr := newFakeInstrument()
	_, err = NewController(instr, &fakeLink{instr: instr}, Config{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfiguration)

	c, err := NewController(instr, &fakeLink{instr: instr}, Config{Space: scenarioSpace(t)})
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID())
	assert.Equal(t, 33, c.Total())
}

func TestSettingName(t *testing.T) {
	assert.Equal(t, "glitch.width", SettingName("width"))
	assert.Equal(t, "clock.clkgen_freq", SettingName("clock.clkgen_freq"))
}

func TestPredicates(t *testing.T) {
	base := BaselineUint32(2500)
	ok, valid := base(count(2500).Payload)
	assert.True(t, valid)
	assert.False(t, ok)
	ok, _ = base(count(7).Payload)
	assert.True(t, ok)
	_, valid = base([]byte{1})
	assert.False(t, valid)

	nz := NonzeroByte(1)
	ok, valid = nz([]byte{0, 3})
	assert.True(t, valid)
	assert.True(t, ok)
	_, valid = nz([]byte{0})
	assert.False(t, valid)

	_, err := PredicateByName("nonzero_byte", 0, 0)
	assert.NoError(t, err)
	_, err = PredicateByName("entropy", 0, 0)
	assert.Error(t, err)
}
