package scope

import (
	"fmt"

	"github.com/banshee-data/glitch.report/internal/transport"
)

// Subsystem names an optional block of scope hardware.
type Subsystem string

const (
	SubsystemGain       Subsystem = "gain"
	SubsystemADC        Subsystem = "adc"
	SubsystemClock      Subsystem = "clock"
	SubsystemTrigger    Subsystem = "trigger"
	SubsystemIO         Subsystem = "io"
	SubsystemGlitch     Subsystem = "glitch"
	SubsystemDCM        Subsystem = "dcm" // Spartan-6 DCM clocking (Lite, Pro)
	SubsystemPLL        Subsystem = "pll" // external PLL clocking (Husky)
	SubsystemProTrigger Subsystem = "pro_trigger"
)

// Bits in the control register.
const (
	SettingsReset = 0x01
	SettingsArm   = 0x08
)

// Bits in the status register.
const (
	StatusArmed       = 0x01 // armed and waiting for a trigger
	StatusTriggerHigh = 0x02 // trigger input currently asserted
	StatusClockLocked = 0x04 // clock generator locked
)

// Registers is the address map of one hardware variant.
type Registers struct {
	Settings   uint8
	Status     uint8
	ADCData    uint8
	TrigCount  uint8
	ClockReset uint8

	// Setting maps a configuration setting name to its backing register.
	Setting map[string]uint8
}

// HardwareProfile describes one scope variant. A Session is parameterised by
// a profile instead of per-product types.
type HardwareProfile struct {
	Name          string
	ProductID     uint16
	BitsPerSample int
	MaxSamples    int
	Subsystems    []Subsystem
	Registers     Registers
}

// Has reports whether the profile carries the subsystem.
func (p HardwareProfile) Has(s Subsystem) bool {
	for _, have := range p.Subsystems {
		if have == s {
			return true
		}
	}
	return false
}

// IsHusky reports whether the profile uses Husky-style PLL clocking.
func (p HardwareProfile) IsHusky() bool {
	return p.Has(SubsystemPLL)
}

// BytesPerSample is the width of one sample in the ADC FIFO.
func (p HardwareProfile) BytesPerSample() int {
	return (p.BitsPerSample + 7) / 8
}

func openADCRegisters() Registers {
	return Registers{
		Settings:   1,
		Status:     2,
		ADCData:    3,
		TrigCount:  20,
		ClockReset: 6,
		Setting: map[string]uint8{
			"gain.db":             0,
			"gain.mode":           4,
			"adc.samples":         16,
			"adc.offset":          26,
			"adc.basic_mode":      17,
			"clock.clkgen_freq":   5,
			"clock.adc_src":       7,
			"trigger.triggers":    39,
			"io.tio1":             55,
			"io.tio2":             56,
			"io.tio3":             57,
			"io.tio4":             58,
			"io.hs2":              59,
			"io.nrst":             60,
			"io.cdc_settings":     61,
			"glitch.width":        51,
			"glitch.offset":       52,
			"glitch.repeat":       53,
			"glitch.ext_offset":   25,
			"glitch.clk_src":      47,
			"glitch.output":       48,
			"glitch.trigger_src":  49,
			"glitch.enabled":      50,
			"clock.clkgen_src":    8,
			"clock.adc_mul":       9,
			"adc.state":           2,
			"adc.trig_count":      20,
			"clock.clkgen_locked": 2,
		},
	}
}

var (
	// ProfileLite is the ChipWhisperer-Lite: 10-bit ADC, DCM clocking.
	ProfileLite = HardwareProfile{
		Name:          "cwlite",
		ProductID:     transport.ProductIDCWLite,
		BitsPerSample: 10,
		MaxSamples:    24400,
		Subsystems: []Subsystem{SubsystemGain, SubsystemADC, SubsystemClock, SubsystemTrigger,
			SubsystemIO, SubsystemGlitch, SubsystemDCM},
		Registers: openADCRegisters(),
	}

	// ProfilePro is the CW1200: Lite feature set plus the pro trigger block.
	ProfilePro = HardwareProfile{
		Name:          "cw1200",
		ProductID:     transport.ProductIDCW1200,
		BitsPerSample: 10,
		MaxSamples:    98119,
		Subsystems: []Subsystem{SubsystemGain, SubsystemADC, SubsystemClock, SubsystemTrigger,
			SubsystemIO, SubsystemGlitch, SubsystemDCM, SubsystemProTrigger},
		Registers: openADCRegisters(),
	}

	// ProfileHusky is the ChipWhisperer-Husky: 12-bit ADC, PLL clocking.
	ProfileHusky = HardwareProfile{
		Name:          "cwhusky",
		ProductID:     transport.ProductIDCWHusky,
		BitsPerSample: 12,
		MaxSamples:    131070,
		Subsystems: []Subsystem{SubsystemGain, SubsystemADC, SubsystemClock, SubsystemTrigger,
			SubsystemIO, SubsystemGlitch, SubsystemPLL},
		Registers: openADCRegisters(),
	}
)

// ProfileForProduct maps a USB product id to its profile.
func ProfileForProduct(pid uint16) (HardwareProfile, error) {
	for _, p := range []HardwareProfile{ProfileLite, ProfilePro, ProfileHusky} {
		if p.ProductID == pid {
			return p, nil
		}
	}
	return HardwareProfile{}, fmt.Errorf("unknown scope product id %#04x", pid)
}

// ProfileByName looks a profile up by its short name.
func ProfileByName(name string) (HardwareProfile, error) {
	for _, p := range []HardwareProfile{ProfileLite, ProfilePro, ProfileHusky} {
		if p.Name == name {
			return p, nil
		}
	}
	return HardwareProfile{}, fmt.Errorf("unknown scope profile %q", name)
}
