// Package campaign runs glitch campaigns: it walks a parameter space, drives
// the scope and the target for one trial per setting, and classifies what
// the target did.
package campaign

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/banshee-data/glitch.report/internal/errors"
	"github.com/banshee-data/glitch.report/internal/monitoring"
	"github.com/banshee-data/glitch.report/internal/scope"
	"github.com/banshee-data/glitch.report/internal/sweep"
	"github.com/banshee-data/glitch.report/internal/target"
	"github.com/banshee-data/glitch.report/internal/timeutil"
)

// Instrument is the part of a scope session the controller drives.
// *scope.Session implements it.
type Instrument interface {
	Describe(name string) (scope.Setting, error)
	Get(name string) (interface{}, error)
	Set(name string, v interface{}) error
	Arm() error
	Capture(timeout time.Duration) (scope.CaptureOutcome, error)
	ResetTarget() error
	Disconnect() error
}

// TargetLink is the request/response link to the target. *target.Link
// implements it.
type TargetLink interface {
	Send(cmd byte, payload []byte) error
	Write(raw []byte) error
	Receive(cmd byte, n int, timeout time.Duration) (target.Response, error)
}

// Sink receives records as they are produced. Sink failures are logged and
// never stop a campaign.
type Sink interface {
	Begin(id string, space *sweep.Space) error
	Append(id string, rec Record) error
	End(id string, runErr error) error
}

// Stimulus is what the controller sends the target each trial, and the
// reply it expects.
type Stimulus struct {
	Command byte
	Payload []byte
	// Raw, when set, is written verbatim instead of a framed command.
	Raw             []byte
	ResponseCommand byte
	ResponseLength  int
}

// DefaultStimulus runs the glitch loop once and reads back its 4-byte count.
var DefaultStimulus = Stimulus{Command: 'g', ResponseCommand: 'r', ResponseLength: 4}

// Config describes one campaign.
type Config struct {
	ID        string
	Space     *sweep.Space
	Predicate Predicate
	Stimulus  Stimulus
	// Fixed settings are applied once before the first trial.
	Fixed           []scope.Value
	Repeat          int
	CaptureTimeout  time.Duration
	ResponseTimeout time.Duration

	Sink     Sink
	Tracker  *Tracker
	Progress func(done, total int, rec Record)
	Clock    timeutil.Clock
}

const (
	defaultCaptureTimeout  = 500 * time.Millisecond
	defaultResponseTimeout = 100 * time.Millisecond
)

// Controller runs one campaign against exactly one instrument and one
// target link. It is not safe for concurrent use.
type Controller struct {
	instr Instrument
	link  TargetLink
	cfg   Config
}

// NewController validates cfg and fills in defaults.
func NewController(instr Instrument, link TargetLink, cfg Config) (*Controller, error) {
	if instr == nil || link == nil {
		return nil, apperrors.ErrInvalidConfiguration.Withf("campaign needs an instrument and a target link")
	}
	if cfg.Space == nil {
		return nil, apperrors.ErrInvalidConfiguration.Withf("campaign has no parameter space")
	}
	if cfg.Predicate == nil {
		cfg.Predicate = BaselineUint32(DefaultBaseline)
	}
	if cfg.Stimulus.Command == 0 && len(cfg.Stimulus.Raw) == 0 {
		cfg.Stimulus = DefaultStimulus
	}
	if cfg.Repeat <= 0 {
		cfg.Repeat = 1
	}
	if cfg.CaptureTimeout <= 0 {
		cfg.CaptureTimeout = defaultCaptureTimeout
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = defaultResponseTimeout
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Controller{instr: instr, link: link, cfg: cfg}, nil
}

// ID is the campaign identifier.
func (c *Controller) ID() string { return c.cfg.ID }

// Total is the number of trials the campaign will run.
func (c *Controller) Total() int { return c.cfg.Space.Count() * c.cfg.Repeat }

// SettingName maps an axis name to a scope setting. Bare names refer to the
// glitch group, so "width" drives "glitch.width".
func SettingName(axis string) string {
	if strings.Contains(axis, ".") {
		return axis
	}
	return "glitch." + axis
}

// Run executes the campaign. Trials that fail to produce a usable result
// are classified and the sweep continues; only errors from the instrument
// or the link themselves stop it. The result is returned in every case,
// holding every trial recorded before the stop. A Faulted error is
// preceded by a best-effort disconnect. Cancelling ctx stops the campaign
// between trials.
func (c *Controller) Run(ctx context.Context) (*Result, error) {
	cfg := c.cfg
	res := NewResult(cfg.ID, cfg.Space.Names(), cfg.Clock.Now())
	log := monitoring.Entry(logrus.Fields{"campaign": cfg.ID})

	ctx, span := monitoring.Tracer().Start(ctx, "campaign",
		trace.WithAttributes(
			attribute.String("campaign.id", cfg.ID),
			attribute.Int("campaign.trials", c.Total()),
			attribute.StringSlice("campaign.axes", cfg.Space.Names()),
		))
	defer span.End()

	if cfg.Tracker != nil {
		cfg.Tracker.start(cfg.ID, c.Total(), cfg.Clock.Now())
	}
	if cfg.Sink != nil {
		if err := cfg.Sink.Begin(cfg.ID, cfg.Space); err != nil {
			log.WithError(err).Warn("campaign sink: begin failed")
		}
	}
	log.Infof("campaign started: %d settings x %d repeats over %s",
		cfg.Space.Count(), cfg.Repeat, strings.Join(cfg.Space.Names(), ", "))

	err := c.run(ctx, res)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeFaulted) {
			if derr := c.instr.Disconnect(); derr != nil {
				log.WithError(derr).Warn("disconnect after fault failed")
			}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.WithError(err).Errorf("campaign halted after %d trials", res.Len())
	} else {
		log.Infof("campaign complete: %v", res.Counts())
	}

	if cfg.Sink != nil {
		if serr := cfg.Sink.End(cfg.ID, err); serr != nil {
			log.WithError(serr).Warn("campaign sink: end failed")
		}
	}
	if cfg.Tracker != nil {
		cfg.Tracker.finish(err, cfg.Clock.Now())
	}
	return res, err
}

func (c *Controller) run(ctx context.Context, res *Result) error {
	if err := c.checkAxes(); err != nil {
		return err
	}
	for _, v := range c.cfg.Fixed {
		if err := c.instr.Set(SettingName(v.Name), v.Value); err != nil {
			return fmt.Errorf("fixed setting %s: %w", v.Name, err)
		}
	}

	done := 0
	total := c.Total()
	for st := range c.cfg.Space.All() {
		for rep := 0; rep < c.cfg.Repeat; rep++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, skipped, err := c.trial(ctx, st, rep)
			if err != nil {
				return fmt.Errorf("trial %s: %w", st, err)
			}
			done++
			if skipped {
				continue
			}
			rec = res.Append(rec)
			c.publish(rec, done, total)
		}
	}
	return nil
}

// checkAxes rejects a space with any value the instrument would refuse, so
// the sweep never stops halfway on a bad setting.
func (c *Controller) checkAxes() error {
	for _, a := range c.cfg.Space.Axes() {
		name := SettingName(a.Name)
		s, err := c.instr.Describe(name)
		if err != nil {
			return fmt.Errorf("axis %s: %w", a.Name, err)
		}
		if s.ReadOnly {
			return apperrors.ErrInvalidConfiguration.Withf("axis %s: %s is read-only", a.Name, name)
		}
		for i, n := 0, a.Cardinality(); i < n; i++ {
			if _, err := s.Domain.Normalize(a.Value(i)); err != nil {
				return apperrors.ErrInvalidConfiguration.WithMetadata("setting", name).Withf("axis %s: %v", a.Name, err)
			}
		}
	}
	return nil
}

func (c *Controller) publish(rec Record, done, total int) {
	if c.cfg.Sink != nil {
		if err := c.cfg.Sink.Append(c.cfg.ID, rec); err != nil {
			monitoring.Entry(logrus.Fields{"campaign": c.cfg.ID, "trial": rec.Seq}).
				WithError(err).Warn("campaign sink: append failed")
		}
	}
	if c.cfg.Tracker != nil {
		c.cfg.Tracker.record(rec, done)
	}
	if c.cfg.Progress != nil {
		c.cfg.Progress(done, total, rec)
	}
}

// trial runs one glitch attempt. skipped is set when the target answered
// with a frame the predicate could not interpret.
func (c *Controller) trial(ctx context.Context, st sweep.Setting, rep int) (rec Record, skipped bool, err error) {
	attrs := []attribute.KeyValue{attribute.Int("trial.index", st.Index()), attribute.Int("trial.repeat", rep)}
	for _, name := range st.Names() {
		v, _ := st.Get(name)
		attrs = append(attrs, attribute.Float64(SettingName(name), v))
	}
	_, span := monitoring.Tracer().Start(ctx, "trial", trace.WithAttributes(attrs...))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else if !skipped {
			span.SetAttributes(
				attribute.String("trial.outcome", string(rec.Outcome)),
				attribute.String("trial.reason", string(rec.Reason)),
			)
		}
		span.End()
	}()

	log := monitoring.Entry(logrus.Fields{"campaign": c.cfg.ID, "setting": st.String(), "repeat": rep})
	rec = Record{Setting: st, Repeat: rep}
	rec, skipped, err = c.attempt(rec)
	if err != nil {
		return rec, false, err
	}
	if skipped {
		log.Debug("payload unusable, trial skipped")
		return rec, true, nil
	}
	rec.At = c.cfg.Clock.Now()

	if rec.Reason.NeedsRecovery() {
		if err := c.instr.ResetTarget(); err != nil {
			return rec, false, fmt.Errorf("recovery: %w", err)
		}
		rec.Recovered = true
		log.Infof("%s (%s): target reset", rec.Outcome, rec.Reason)
	} else {
		log.Debugf("%s (%s)", rec.Outcome, rec.Reason)
	}
	return rec, false, nil
}

// attempt applies the setting and classifies what happens.
func (c *Controller) attempt(rec Record) (Record, bool, error) {
	st := rec.Setting
	for _, name := range st.Names() {
		v, _ := st.Get(name)
		if err := c.instr.Set(SettingName(name), v); err != nil {
			return rec, false, err
		}
	}

	high, err := c.instr.Get("adc.state")
	if err != nil {
		return rec, false, err
	}
	if b, _ := high.(bool); b {
		rec.Outcome, rec.Reason = Reset, ReasonTriggerHigh
		return rec, false, nil
	}

	if err := c.instr.Arm(); err != nil {
		return rec, false, err
	}
	if err := c.stimulate(); err != nil {
		return rec, false, err
	}
	capture, err := c.instr.Capture(c.cfg.CaptureTimeout)
	if err != nil {
		return rec, false, err
	}
	rec.Capture = capture.Status
	if capture.Status == scope.TimedOut {
		rec.Outcome, rec.Reason = Timeout, ReasonCaptureTimeout
		return rec, false, nil
	}

	s := c.cfg.Stimulus
	resp, err := c.link.Receive(s.ResponseCommand, s.ResponseLength, c.cfg.ResponseTimeout)
	if err != nil {
		return rec, false, err
	}
	rec.ErrorCode = resp.ErrorCode
	switch {
	case resp.TimedOut:
		rec.Outcome, rec.Reason = Reset, ReasonResponseTimeout
		return rec, false, nil
	case !resp.Valid:
		rec.Outcome, rec.Reason = Reset, ReasonInvalidResponse
		return rec, false, nil
	case resp.Payload == nil:
		return rec, true, nil
	}

	success, ok := c.cfg.Predicate(resp.Payload)
	if !ok {
		return rec, true, nil
	}
	rec.Payload = resp.Payload
	rec.Reason = ReasonPredicate
	rec.Outcome = Normal
	if success {
		rec.Outcome = Success
	}
	return rec, false, nil
}

func (c *Controller) stimulate() error {
	s := c.cfg.Stimulus
	if len(s.Raw) > 0 {
		return c.link.Write(s.Raw)
	}
	return c.link.Send(s.Command, s.Payload)
}
