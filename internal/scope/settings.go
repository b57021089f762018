package scope

import (
	"math"
	"strings"
)

// Setting describes one named configuration value.
type Setting struct {
	Name     string // group.name
	Domain   Domain
	Default  interface{} // value after a device reset
	Width    int         // register width in bytes
	Scale    float64     // numeric values are stored as round(v*Scale)
	Mask     byte        // flags read from a shared status register
	Live     bool        // read from hardware on every Get
	ReadOnly bool
	Software bool // no backing register
	Needs    Subsystem
}

// Group returns the subsystem group prefix of the setting name.
func (s Setting) Group() string {
	if i := strings.IndexByte(s.Name, '.'); i >= 0 {
		return s.Name[:i]
	}
	return s.Name
}

func (s Setting) scale() float64 {
	if s.Scale == 0 {
		return 1
	}
	return s.Scale
}

// Encode converts a normalised value to its register bytes.
func (s Setting) Encode(v interface{}) []byte {
	out := make([]byte, s.Width)
	var raw uint64
	switch d := s.Domain.(type) {
	case Range:
		raw = uint64(int64(math.Round(v.(float64) * s.scale())))
	case Enum:
		raw = uint64(d.index(v.(string)))
	case Flag:
		if v.(bool) {
			raw = 1
			if s.Mask != 0 {
				raw = uint64(s.Mask)
			}
		}
	}
	for i := range out {
		out[i] = byte(raw >> (8 * i))
	}
	return out
}

// Decode converts register bytes back to a normalised value.
func (s Setting) Decode(b []byte) interface{} {
	var raw uint64
	for i := len(b) - 1; i >= 0; i-- {
		raw = raw<<8 | uint64(b[i])
	}
	switch d := s.Domain.(type) {
	case Range:
		n := int64(raw)
		if d.Min < 0 && len(b) < 8 {
			shift := uint(64 - 8*len(b))
			n = int64(raw<<shift) >> shift
		}
		return float64(n) / s.scale()
	case Enum:
		if int(raw) < len(d) {
			return d[raw]
		}
		return ""
	case Flag:
		if s.Mask != 0 {
			return byte(raw)&s.Mask != 0
		}
		return raw != 0
	}
	return nil
}

var (
	ioPinModes = Enum{"serial_rx", "serial_tx", "high_z", "gpio_low", "gpio_high", "gpio_disabled"}
	adcModes   = Enum{"low", "high", "rising_edge", "falling_edge"}
)

// Table returns the configuration table of a profile, in display order.
// Settings whose Needs subsystem the profile lacks are included.
func Table(p HardwareProfile) []Setting {
	gain := Range{Min: 0, Max: 78}
	glitchSpan := Range{Min: -49.8, Max: 49.8}
	glitchScale := 100.0
	clkSrc := Enum{"target", "clkgen"}
	if p.IsHusky() {
		gain = Range{Min: -6.5, Max: 56}
		glitchSpan = Range{Min: -4592, Max: 4592, Integer: true}
		glitchScale = 1
		clkSrc = Enum{"target", "clkgen", "pll"}
	}

	return []Setting{
		{Name: "gain.db", Domain: gain, Default: 0.0, Width: 2, Scale: 10},
		{Name: "gain.mode", Domain: Enum{"low", "high"}, Default: "low", Width: 1},

		{Name: "adc.samples", Domain: Range{Min: 1, Max: float64(p.MaxSamples), Integer: true}, Default: float64(p.MaxSamples), Width: 4},
		{Name: "adc.offset", Domain: Range{Min: 0, Max: math.MaxUint32, Integer: true}, Default: 0.0, Width: 4},
		{Name: "adc.basic_mode", Domain: adcModes, Default: "low", Width: 1},
		{Name: "adc.timeout", Domain: Range{Min: 0, Max: 60}, Default: 2.0, Software: true},
		{Name: "adc.state", Domain: Flag{}, Width: 1, Mask: StatusTriggerHigh, Live: true, ReadOnly: true},
		{Name: "adc.trig_count", Domain: Range{Min: 0, Max: math.MaxUint32, Integer: true}, Width: 4, Live: true, ReadOnly: true},

		{Name: "clock.clkgen_freq", Domain: Range{Min: 3.2e6, Max: 200e6}, Default: 10e6, Width: 4},
		{Name: "clock.adc_src", Domain: Enum{"clkgen_x1", "clkgen_x4", "extclk_x1", "extclk_x4", "extclk_dir"}, Default: "extclk_x4", Width: 1, Needs: SubsystemDCM},
		{Name: "clock.clkgen_src", Domain: Enum{"system", "extclk"}, Default: "system", Width: 1, Needs: SubsystemPLL},
		{Name: "clock.adc_mul", Domain: Range{Min: 1, Max: 16, Integer: true}, Default: 1.0, Width: 1, Needs: SubsystemPLL},
		{Name: "clock.clkgen_locked", Domain: Flag{}, Width: 1, Mask: StatusClockLocked, Live: true, ReadOnly: true},

		{Name: "trigger.triggers", Domain: Enum{"tio1", "tio2", "tio3", "tio4", "nrst", "sma", "tio1_and_tio4", "tio1_or_tio4"}, Default: "tio4", Width: 1},

		{Name: "io.tio1", Domain: ioPinModes, Default: "serial_tx", Width: 1},
		{Name: "io.tio2", Domain: ioPinModes, Default: "serial_rx", Width: 1},
		{Name: "io.tio3", Domain: ioPinModes, Default: "high_z", Width: 1},
		{Name: "io.tio4", Domain: ioPinModes, Default: "high_z", Width: 1},
		{Name: "io.hs2", Domain: Enum{"disabled", "clkgen", "glitch"}, Default: "disabled", Width: 1},
		{Name: "io.nrst", Domain: Enum{"high_z", "low", "high"}, Default: "high_z", Width: 1},
		{Name: "io.cdc_settings", Domain: Range{Min: 0, Max: 1, Integer: true}, Default: 1.0, Width: 1},

		{Name: "glitch.width", Domain: glitchSpan, Default: 10.0, Width: 2, Scale: glitchScale},
		{Name: "glitch.offset", Domain: glitchSpan, Default: 10.0, Width: 2, Scale: glitchScale},
		{Name: "glitch.repeat", Domain: Range{Min: 1, Max: 8192, Integer: true}, Default: 1.0, Width: 2},
		{Name: "glitch.ext_offset", Domain: Range{Min: 0, Max: math.MaxUint32, Integer: true}, Default: 0.0, Width: 4},
		{Name: "glitch.clk_src", Domain: clkSrc, Default: "target", Width: 1},
		{Name: "glitch.output", Domain: Enum{"clock_xor", "clock_or", "glitch_only", "clock_only", "enable_only"}, Default: "clock_xor", Width: 1},
		{Name: "glitch.trigger_src", Domain: Enum{"continuous", "manual", "ext_single", "ext_continuous"}, Default: "manual", Width: 1},
		{Name: "glitch.enabled", Domain: Flag{}, Default: false, Width: 1, Needs: SubsystemPLL},
	}
}
