package campaign

import (
	"net/http"
	"sync"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/glitch.report/internal/httputil"
)

// Status is the lifecycle of a tracked campaign.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// TrialSummary is the JSON view of a record.
type TrialSummary struct {
	Seq       int                `json:"seq"`
	Setting   map[string]float64 `json:"setting"`
	Outcome   Outcome            `json:"outcome"`
	Reason    Reason             `json:"reason"`
	Recovered bool               `json:"recovered"`
}

// State is a snapshot of campaign progress.
type State struct {
	Status      Status          `json:"status"`
	ID          string          `json:"id,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Total       int             `json:"total_trials"`
	Completed   int             `json:"completed_trials"`
	Counts      map[Outcome]int `json:"counts"`
	Recoveries  int             `json:"recoveries"`
	Last        *TrialSummary   `json:"last,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Tracker keeps the progress of the current campaign for status pages.
type Tracker struct {
	mu    sync.RWMutex
	state State
}

// NewTracker returns an idle tracker.
func NewTracker() *Tracker {
	return &Tracker{state: State{Status: StatusIdle, Counts: map[Outcome]int{}}}
}

func (t *Tracker) start(id string, total int, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = State{
		Status:    StatusRunning,
		ID:        id,
		StartedAt: &now,
		Total:     total,
		Counts:    map[Outcome]int{},
	}
}

func (t *Tracker) record(rec Record, done int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Completed = done
	t.state.Counts[rec.Outcome]++
	if rec.Recovered {
		t.state.Recoveries++
	}
	t.state.Last = &TrialSummary{
		Seq:       rec.Seq,
		Setting:   rec.Setting.Map(),
		Outcome:   rec.Outcome,
		Reason:    rec.Reason,
		Recovered: rec.Recovered,
	}
}

func (t *Tracker) finish(err error, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.CompletedAt = &now
	if err != nil {
		t.state.Status = StatusError
		t.state.Error = err.Error()
		return
	}
	t.state.Status = StatusComplete
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st := t.state
	st.Counts = make(map[Outcome]int, len(t.state.Counts))
	for k, v := range t.state.Counts {
		st.Counts[k] = v
	}
	return st
}

// AttachAdminRoutes serves the tracker state as JSON at /debug/campaign.
func (t *Tracker) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("campaign", "Glitch campaign progress (JSON)", func(w http.ResponseWriter, r *http.Request) {
		if !httputil.MethodNotAllowed(w, r, http.MethodGet) {
			return
		}
		httputil.WriteJSONOK(w, t.Snapshot())
	})
}
