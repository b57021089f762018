package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/glitch.report/internal/monitoring"
	"github.com/banshee-data/glitch.report/internal/scope"
	"github.com/banshee-data/glitch.report/internal/sim"
	"github.com/banshee-data/glitch.report/internal/sweep"
	"github.com/banshee-data/glitch.report/internal/target"
	"github.com/banshee-data/glitch.report/internal/transport"
)

// Hardware selection flags shared by every command that opens a scope.
var (
	scopeSerial string
	targetPort  string
	targetBaud  int
	simulate    bool
	simProfile  string
	simWidth    string
	simOffset   string
	simCrash    float64
)

func addRigFlags(c *cobra.Command) {
	c.Flags().StringVar(&scopeSerial, "serial", "", "scope serial number; default $GLITCH_SCOPE_SERIAL or the first scope found")
	c.Flags().StringVar(&targetPort, "port", "", "target UART device; default $GLITCH_TARGET_PORT")
	c.Flags().IntVar(&targetBaud, "baud", 0, "target UART baud rate; default $GLITCH_TARGET_BAUD")
	c.Flags().BoolVar(&simulate, "simulate", false, "use a simulated scope and target instead of hardware")
	c.Flags().StringVar(&simProfile, "sim-profile", scope.ProfileLite.Name, "simulated scope profile (cwlite, cw1200, cwhusky)")
	c.Flags().StringVar(&simWidth, "sim-width", "8:8", "simulated glitch window on width, min:max")
	c.Flags().StringVar(&simOffset, "sim-offset", "3:3", "simulated glitch window on offset, min:max")
	c.Flags().Float64Var(&simCrash, "sim-crash-above", 1e9, "simulated target crashes for offsets above this")
}

// rig is a connected scope and, when a target is configured, its link.
type rig struct {
	session *scope.Session
	link    *target.Link
}

func (r *rig) Close() {
	if err := r.session.Disconnect(); err != nil {
		monitoring.Logf("disconnect scope: %v", err)
	}
	if r.link != nil {
		if err := r.link.Close(); err != nil {
			monitoring.Logf("close target link: %v", err)
		}
	}
}

// openRig connects the scope and, if needTarget, the target link. framing
// may be nil for the text protocol.
func openRig(needTarget bool, framing target.Framing) (*rig, error) {
	if simulate {
		return openSimRig(framing)
	}

	serial := scopeSerial
	if serial == "" {
		serial = environ.ScopeSerial
	}
	r := &rig{}
	if needTarget {
		port := targetPort
		if port == "" {
			port = environ.TargetPort
		}
		if port == "" {
			return nil, fmt.Errorf("no target port: pass --port or set GLITCH_TARGET_PORT")
		}
		baud := targetBaud
		if baud == 0 {
			baud = environ.TargetBaud
		}
		ch, err := transport.OpenSerial(port, transport.PortOptions{BaudRate: baud})
		if err != nil {
			return nil, fmt.Errorf("open target port: %w", err)
		}
		r.link = target.NewLink(ch, framing)
	}

	r.session = scope.NewSession(scope.USBOpener{Timeout: time.Second}, scope.Options{})
	if r.link != nil {
		r.session.SetTarget(r.link)
	}
	if err := r.session.Connect(serial); err != nil {
		if r.link != nil {
			r.link.Close()
		}
		return nil, err
	}
	return r, nil
}

func openSimRig(framing target.Framing) (*rig, error) {
	profile, err := scope.ProfileByName(simProfile)
	if err != nil {
		return nil, err
	}
	width, err := sweep.ParseRangeSpec(simWidth)
	if err != nil {
		return nil, fmt.Errorf("--sim-width: %w", err)
	}
	offset, err := sweep.ParseRangeSpec(simOffset)
	if err != nil {
		return nil, fmt.Errorf("--sim-offset: %w", err)
	}

	instr := sim.NewInstrument(profile)
	tgt := sim.NewTarget(instr, sim.WindowModel(width.Min, width.Max, offset.Min, offset.Max, simCrash))
	link := target.NewLink(transport.NewPortChannel(tgt, nil), framing)
	session := scope.NewSession(instr, scope.Options{Target: link, ResetSettle: 10 * time.Millisecond})
	if err := session.Connect(""); err != nil {
		return nil, err
	}
	monitoring.Logf("connected simulated %s", profile.Name)
	return &rig{session: session, link: link}, nil
}
