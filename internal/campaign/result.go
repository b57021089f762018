package campaign

import (
	"sync"
	"time"

	"github.com/banshee-data/glitch.report/internal/scope"
	"github.com/banshee-data/glitch.report/internal/sweep"
)

// Record is one classified trial.
type Record struct {
	Seq     int           `json:"seq"`
	Setting sweep.Setting `json:"-"`
	// Repeat is the index of this trial among the repeats of its setting.
	Repeat    int                 `json:"repeat"`
	Outcome   Outcome             `json:"outcome"`
	Reason    Reason              `json:"reason"`
	Capture   scope.CaptureStatus `json:"-"`
	Payload   []byte              `json:"payload,omitempty"`
	ErrorCode int                 `json:"error_code"`
	Recovered bool                `json:"recovered"`
	At        time.Time           `json:"at"`
}

// Result is the append-only log of a campaign. Appended records are never
// changed. It is safe to read while the campaign runs.
type Result struct {
	ID        string
	Axes      []string
	StartedAt time.Time

	mu      sync.RWMutex
	records []Record
	counts  map[Outcome]int
}

// NewResult starts an empty result.
func NewResult(id string, axes []string, started time.Time) *Result {
	return &Result{
		ID:        id,
		Axes:      append([]string(nil), axes...),
		StartedAt: started,
		counts:    make(map[Outcome]int),
	}
}

// Append records rec with its outcome folded into its group and returns
// the stored copy.
func (r *Result) Append(rec Record) Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.Outcome = rec.Outcome.Group()
	rec.Seq = len(r.records)
	rec.Payload = append([]byte(nil), rec.Payload...)
	r.records = append(r.records, rec)
	r.counts[rec.Outcome]++
	return rec
}

// Len is the number of records.
func (r *Result) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Records returns a copy of the log.
func (r *Result) Records() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Record(nil), r.records...)
}

// Counts returns the number of records per outcome.
func (r *Result) Counts() map[Outcome]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[Outcome]int, len(r.counts))
	for k, v := range r.counts {
		out[k] = v
	}
	return out
}

// Filter returns the records with outcome o.
func (r *Result) Filter(o Outcome) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Record
	for _, rec := range r.records {
		if rec.Outcome == o {
			out = append(out, rec)
		}
	}
	return out
}
