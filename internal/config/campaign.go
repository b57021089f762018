// Package config loads campaign documents and the process environment.
package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/banshee-data/glitch.report/internal/campaign"
	"github.com/banshee-data/glitch.report/internal/scope"
	"github.com/banshee-data/glitch.report/internal/sweep"
	"github.com/banshee-data/glitch.report/internal/target"
)

// ExampleConfigPath is the checked-in example campaign.
const ExampleConfigPath = "config/campaign.example.json"

// AxisConfig is one swept parameter.
type AxisConfig struct {
	Name string   `json:"name"`
	Low  float64  `json:"low"`
	High float64  `json:"high"`
	Step *float64 `json:"step,omitempty"`
}

// StepList is a global step given either as one number for every axis or
// as one number per axis.
type StepList []float64

// UnmarshalJSON accepts a scalar or an array.
func (s *StepList) UnmarshalJSON(b []byte) error {
	var one float64
	if err := json.Unmarshal(b, &one); err == nil {
		*s = StepList{one}
		return nil
	}
	var many []float64
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("global_step must be a number or a list of numbers")
	}
	*s = many
	return nil
}

// StimulusConfig is what to send the target each trial.
type StimulusConfig struct {
	Command         *string `json:"command,omitempty"`
	Payload         *string `json:"payload,omitempty"` // hex
	Raw             *string `json:"raw,omitempty"`     // written verbatim
	ResponseCommand *string `json:"response_command,omitempty"`
	ResponseLength  *int    `json:"response_length,omitempty"`
}

// PredicateConfig selects the success test.
type PredicateConfig struct {
	Kind     *string `json:"kind,omitempty"` // "baseline_u32" or "nonzero_byte"
	Baseline *uint32 `json:"baseline,omitempty"`
	Index    *int    `json:"index,omitempty"`
}

// CampaignConfig is the JSON document describing a campaign. Omitted fields
// fall back to the defaults returned by the Get* methods.
type CampaignConfig struct {
	Axes       []AxisConfig `json:"axes"`
	GlobalStep StepList     `json:"global_step,omitempty"`
	// Order optionally reorders the axes; the first varies slowest.
	Order []string               `json:"order,omitempty"`
	Fixed map[string]interface{} `json:"fixed,omitempty"`

	Stimulus  *StimulusConfig  `json:"stimulus,omitempty"`
	Predicate *PredicateConfig `json:"predicate,omitempty"`

	CaptureTimeout  *string `json:"capture_timeout,omitempty"`  // duration string like "500ms"
	ResponseTimeout *string `json:"response_timeout,omitempty"` // duration string like "100ms"
	DefaultSetup    *bool   `json:"default_setup,omitempty"`
	Framing         *string `json:"framing,omitempty"`
	Repeat          *int    `json:"repeat,omitempty"`
}

// LoadCampaignConfig loads and validates a campaign document. The file must
// have a .json extension and be under 1 MiB.
func LoadCampaignConfig(path string) (*CampaignConfig, error) {
	cfg, _, err := LoadCampaignDocument(path)
	return cfg, err
}

// LoadCampaignDocument is LoadCampaignConfig that also returns the exact
// bytes it parsed, for storing alongside the results.
func LoadCampaignDocument(path string) (*CampaignConfig, []byte, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := ParseCampaignConfig(data)
	if err != nil {
		return nil, nil, err
	}
	return cfg, data, nil
}

// ParseCampaignConfig decodes and validates a campaign document.
func ParseCampaignConfig(data []byte) (*CampaignConfig, error) {
	cfg := &CampaignConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadExampleConfig loads ExampleConfigPath from the repository root.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadExampleConfig() *CampaignConfig {
	candidates := []string{
		ExampleConfigPath,
		"../../" + ExampleConfigPath,    // from internal/config/
		"../../../" + ExampleConfigPath, // from cmd/glitchctl/
	}
	for _, path := range candidates {
		if cfg, err := LoadCampaignConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + ExampleConfigPath + " - run tests from repository root")
}

// Validate checks the document without touching hardware.
func (c *CampaignConfig) Validate() error {
	if len(c.Axes) == 0 {
		return fmt.Errorf("axes must list at least one parameter")
	}
	if n := len(c.GlobalStep); n > 1 && n != len(c.Axes) {
		return fmt.Errorf("global_step lists %d steps for %d axes", n, len(c.Axes))
	}
	if _, err := c.Space(); err != nil {
		return err
	}

	for name, d := range map[string]*string{"capture_timeout": c.CaptureTimeout, "response_timeout": c.ResponseTimeout} {
		if d == nil || *d == "" {
			continue
		}
		v, err := time.ParseDuration(*d)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *d, err)
		}
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *d)
		}
	}

	if c.Repeat != nil && *c.Repeat < 1 {
		return fmt.Errorf("repeat must be at least 1, got %d", *c.Repeat)
	}
	if _, err := target.FramingByName(c.GetFraming()); err != nil {
		return err
	}
	if _, err := c.GetStimulus(); err != nil {
		return err
	}
	if _, err := c.GetPredicate(); err != nil {
		return err
	}
	return nil
}

// Space builds the parameter space.
func (c *CampaignConfig) Space() (*sweep.Space, error) {
	var global float64
	if len(c.GlobalStep) == 1 {
		global = c.GlobalStep[0]
	}
	axes := make([]sweep.Axis, len(c.Axes))
	for i, a := range c.Axes {
		axes[i] = sweep.Axis{Name: a.Name, Low: a.Low, High: a.High}
		switch {
		case a.Step != nil:
			axes[i].Step = *a.Step
		case len(c.GlobalStep) > 1:
			axes[i].Step = c.GlobalStep[i]
		}
	}
	space, err := sweep.NewSpace(global, axes...)
	if err != nil {
		return nil, err
	}
	if len(c.Order) > 0 {
		return space.Reorder(c.Order...)
	}
	return space, nil
}

// GetStimulus returns the stimulus, defaulting to campaign.DefaultStimulus.
func (c *CampaignConfig) GetStimulus() (campaign.Stimulus, error) {
	st := campaign.DefaultStimulus
	s := c.Stimulus
	if s == nil {
		return st, nil
	}
	single := func(field string, v *string, dst *byte) error {
		if v == nil {
			return nil
		}
		if len(*v) != 1 {
			return fmt.Errorf("stimulus %s must be one character, got %q", field, *v)
		}
		*dst = (*v)[0]
		return nil
	}
	if err := single("command", s.Command, &st.Command); err != nil {
		return st, err
	}
	if err := single("response_command", s.ResponseCommand, &st.ResponseCommand); err != nil {
		return st, err
	}
	if s.Payload != nil {
		p, err := hex.DecodeString(*s.Payload)
		if err != nil {
			return st, fmt.Errorf("stimulus payload: %w", err)
		}
		st.Payload = p
	}
	if s.Raw != nil {
		st.Raw = []byte(*s.Raw)
	}
	if s.ResponseLength != nil {
		if *s.ResponseLength < 0 || *s.ResponseLength > 255 {
			return st, fmt.Errorf("stimulus response_length out of range: %d", *s.ResponseLength)
		}
		st.ResponseLength = *s.ResponseLength
	}
	return st, nil
}

// GetPredicate returns the success predicate, defaulting to a uint32
// baseline of campaign.DefaultBaseline.
func (c *CampaignConfig) GetPredicate() (campaign.Predicate, error) {
	kind, baseline, index := "", uint32(campaign.DefaultBaseline), 0
	if p := c.Predicate; p != nil {
		if p.Kind != nil {
			kind = *p.Kind
		}
		if p.Baseline != nil {
			baseline = *p.Baseline
		}
		if p.Index != nil {
			index = *p.Index
		}
	}
	return campaign.PredicateByName(kind, baseline, index)
}

// FixedValues returns the fixed settings in name order.
func (c *CampaignConfig) FixedValues() []scope.Value {
	names := make([]string, 0, len(c.Fixed))
	for n := range c.Fixed {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]scope.Value, len(names))
	for i, n := range names {
		out[i] = scope.Value{Name: n, Value: c.Fixed[n]}
	}
	return out
}

// GetCaptureTimeout returns the capture timeout or the default.
func (c *CampaignConfig) GetCaptureTimeout() time.Duration {
	return durationOr(c.CaptureTimeout, 500*time.Millisecond)
}

// GetResponseTimeout returns the response timeout or the default.
func (c *CampaignConfig) GetResponseTimeout() time.Duration {
	return durationOr(c.ResponseTimeout, 100*time.Millisecond)
}

func durationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}

// GetDefaultSetup reports whether to run the scope's default setup first.
func (c *CampaignConfig) GetDefaultSetup() bool {
	if c.DefaultSetup == nil {
		return true
	}
	return *c.DefaultSetup
}

// GetFraming returns the target framing name.
func (c *CampaignConfig) GetFraming() string {
	if c.Framing == nil || *c.Framing == "" {
		return "text"
	}
	return *c.Framing
}

// GetRepeat returns the number of trials per setting.
func (c *CampaignConfig) GetRepeat() int {
	if c.Repeat == nil {
		return 1
	}
	return *c.Repeat
}

// Campaign assembles a controller configuration from the document.
func (c *CampaignConfig) Campaign() (campaign.Config, error) {
	space, err := c.Space()
	if err != nil {
		return campaign.Config{}, err
	}
	stim, err := c.GetStimulus()
	if err != nil {
		return campaign.Config{}, err
	}
	pred, err := c.GetPredicate()
	if err != nil {
		return campaign.Config{}, err
	}
	return campaign.Config{
		Space:           space,
		Predicate:       pred,
		Stimulus:        stim,
		Fixed:           c.FixedValues(),
		Repeat:          c.GetRepeat(),
		CaptureTimeout:  c.GetCaptureTimeout(),
		ResponseTimeout: c.GetResponseTimeout(),
	}, nil
}
