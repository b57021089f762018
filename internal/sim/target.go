package sim

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"sync"
	"time"

	"github.com/banshee-data/glitch.report/internal/transport"
)

// Behavior is how the simulated firmware reacts to one glitched run.
type Behavior int

const (
	// Normal completes the loop and reports the expected count.
	Normal Behavior = iota
	// Glitched completes the loop with a corrupted count.
	Glitched
	// Crash never raises the trigger and never answers.
	Crash
	// Hang raises the trigger, then stops answering with the line held high.
	Hang
	// Garble answers with a frame that fails validation.
	Garble
)

// Glitch is the glitch setting the simulated target sees on a run.
type Glitch struct {
	Width     float64
	Offset    float64
	ExtOffset float64
	Repeat    float64
}

// Model decides the behaviour for a glitch setting.
type Model func(g Glitch) Behavior

// WindowModel glitches inside an inclusive width/offset window and crashes
// for offsets above crashAbove.
func WindowModel(widthLo, widthHi, offLo, offHi, crashAbove float64) Model {
	return func(g Glitch) Behavior {
		switch {
		case g.Offset > crashAbove:
			return Crash
		case g.Width >= widthLo && g.Width <= widthHi && g.Offset >= offLo && g.Offset <= offHi:
			return Glitched
		default:
			return Normal
		}
	}
}

// LoopCount is the count the glitch firmware reports for an unglitched run.
const LoopCount = 2500

// Target emulates the simpleserial glitch firmware behind a UART. It
// implements transport.Port: commands written to it are answered on Read.
type Target struct {
	mu      sync.Mutex
	instr   *Instrument
	model   Model
	pending bytes.Buffer
	out     bytes.Buffer
	dead    bool
	runs    int
	closed  bool
}

// NewTarget attaches a simulated target to instr. The target watches the
// scope's reset line and glitch settings.
func NewTarget(instr *Instrument, model Model) *Target {
	t := &Target{instr: instr, model: model}
	instr.mu.Lock()
	instr.onTargetReset = t.reset
	instr.mu.Unlock()
	return t
}

func (t *Target) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dead = false
	t.pending.Reset()
}

// Runs reports how many stimuli the target processed.
func (t *Target) Runs() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runs
}

// Write consumes newline-terminated simpleserial commands.
func (t *Target) Write(p []byte) (int, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, transport.ErrClosed
	}
	t.pending.Write(p)
	var lines [][]byte
	for {
		i := bytes.IndexByte(t.pending.Bytes(), '\n')
		if i < 0 {
			break
		}
		lines = append(lines, append([]byte(nil), t.pending.Next(i+1)[:i]...))
	}
	t.mu.Unlock()

	for _, line := range lines {
		t.handle(line)
	}
	return len(p), nil
}

func (t *Target) handle(line []byte) {
	if len(line) == 0 {
		return
	}
	t.mu.Lock()
	if t.dead {
		t.mu.Unlock()
		return
	}
	t.runs++
	t.mu.Unlock()

	g := Glitch{
		Width:     asFloat(t.instr.Value("glitch.width")),
		Offset:    asFloat(t.instr.Value("glitch.offset")),
		ExtOffset: asFloat(t.instr.Value("glitch.ext_offset")),
		Repeat:    asFloat(t.instr.Value("glitch.repeat")),
	}
	behavior := Normal
	if t.model != nil {
		behavior = t.model(g)
	}

	count := uint32(LoopCount)
	switch behavior {
	case Crash:
		t.die()
		return
	case Hang:
		t.instr.Trigger()
		t.instr.SetTriggerHigh(true)
		t.die()
		return
	case Glitched:
		count = LoopCount - 1 - uint32(g.Width)
	}

	t.instr.Trigger()
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, count)
	frame := "r" + hex.EncodeToString(payload) + "\n"
	if behavior == Garble {
		frame = "r" + hex.EncodeToString(payload)[:7] + "g\n"
	}

	t.mu.Lock()
	t.out.WriteString(frame)
	t.out.WriteString("z00\n")
	t.mu.Unlock()
}

func (t *Target) die() {
	t.mu.Lock()
	t.dead = true
	t.mu.Unlock()
}

func asFloat(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}

// Read returns buffered output; an empty buffer reads as a timeout.
func (t *Target) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, transport.ErrClosed
	}
	if t.out.Len() == 0 {
		return 0, nil
	}
	return t.out.Read(p)
}

// Close implements transport.Port.
func (t *Target) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// SetReadTimeout implements transport.Port.
func (t *Target) SetReadTimeout(time.Duration) error { return nil }

// ResetInputBuffer implements transport.Port.
func (t *Target) ResetInputBuffer() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.out.Reset()
	return nil
}
