package scope

import (
	"fmt"
	"sort"

	apperrors "github.com/banshee-data/glitch.report/internal/errors"
)

// Config is the instrument configuration model: named, validated settings
// grouped by subsystem. Cached settings are served from software; live
// settings are read from hardware on every Get.
type Config struct {
	profile  HardwareProfile
	bus      RegisterBus
	order    []string
	settings map[string]Setting
	absent   map[string]bool // known settings this profile lacks
	cache    map[string]interface{}
	valid    bool

	// guard reports whether the owning session allows access now.
	guard func() error
	// fault converts a bus error into a session fault.
	fault func(op string, err error) error
}

func newConfig(profile HardwareProfile, bus RegisterBus, guard func() error, fault func(string, error) error) *Config {
	c := &Config{
		profile:  profile,
		bus:      bus,
		settings: make(map[string]Setting),
		absent:   make(map[string]bool),
		cache:    make(map[string]interface{}),
		guard:    guard,
		fault:    fault,
	}
	for _, s := range Table(profile) {
		if s.Needs != "" && !profile.Has(s.Needs) {
			c.absent[s.Name] = true
			continue
		}
		c.order = append(c.order, s.Name)
		c.settings[s.Name] = s
	}
	return c
}

// loadDefaults fills the cache with the values a freshly reset device holds.
func (c *Config) loadDefaults() {
	c.cache = make(map[string]interface{}, len(c.settings))
	for name, s := range c.settings {
		if !s.Live {
			c.cache[name] = s.Default
		}
	}
	c.valid = true
}

// invalidate drops every cached value.
func (c *Config) invalidate() {
	c.cache = make(map[string]interface{})
	c.valid = false
}

func (c *Config) lookup(name string) (Setting, error) {
	if s, ok := c.settings[name]; ok {
		return s, nil
	}
	if c.absent[name] {
		return Setting{}, apperrors.ErrUnsupportedOperation.Withf("%s not available on %s", name, c.profile.Name)
	}
	return Setting{}, apperrors.ErrUnknownSetting.Withf("%q", name)
}

// Describe returns the declaration of a setting.
func (c *Config) Describe(name string) (Setting, error) {
	return c.lookup(name)
}

// Names lists setting names in group ("" for all), in declaration order.
func (c *Config) Names(group string) []string {
	var out []string
	for _, name := range c.order {
		if group == "" || c.settings[name].Group() == group {
			out = append(out, name)
		}
	}
	return out
}

// Get returns the current value of a setting.
func (c *Config) Get(name string) (interface{}, error) {
	s, err := c.lookup(name)
	if err != nil {
		return nil, err
	}
	if !s.Live {
		if !c.valid {
			return nil, apperrors.ErrNotConnected.Withf("configuration not loaded")
		}
		return c.cache[name], nil
	}

	if err := c.guard(); err != nil {
		return nil, err
	}
	addr := c.profile.Registers.Setting[name]
	b, err := c.bus.ReadRegister(addr, s.Width)
	if err == nil && len(b) < s.Width {
		err = fmt.Errorf("register %d: got %d of %d bytes", addr, len(b), s.Width)
	}
	if err != nil {
		return nil, c.fault("read "+name, err)
	}
	return s.Decode(b), nil
}

// Set validates v against the setting's domain and writes it. A value
// outside the domain fails with InvalidConfiguration and changes nothing.
func (c *Config) Set(name string, v interface{}) error {
	s, err := c.lookup(name)
	if err != nil {
		return err
	}
	if s.ReadOnly {
		return apperrors.ErrUnsupportedOperation.Withf("%s is read-only", name)
	}
	if err := c.guard(); err != nil {
		return err
	}
	nv, err := s.Domain.Normalize(v)
	if err != nil {
		return apperrors.ErrInvalidConfiguration.WithMetadata("setting", name).Withf("%s: %v", name, err)
	}
	return c.write(s, nv)
}

// write stores an already-normalised value, bypassing the state guard.
func (c *Config) write(s Setting, v interface{}) error {
	if !s.Software {
		addr := c.profile.Registers.Setting[s.Name]
		if err := c.bus.WriteRegister(addr, s.Encode(v)); err != nil {
			return c.fault("write "+s.Name, err)
		}
	}
	c.cache[s.Name] = v
	return nil
}

// Apply sets each value in order, stopping at the first failure.
func (c *Config) Apply(values []Value) error {
	for _, kv := range values {
		if err := c.Set(kv.Name, kv.Value); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot returns a copy of every cached value.
func (c *Config) Snapshot() map[string]interface{} {
	out := make(map[string]interface{}, len(c.cache))
	for k, v := range c.cache {
		out[k] = v
	}
	return out
}

// Value is one name/value assignment.
type Value struct {
	Name  string
	Value interface{}
}

// SortedNames returns the keys of m in lexical order.
func SortedNames(m map[string]interface{}) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
