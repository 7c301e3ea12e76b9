package anomaly

import (
	"sync"

	"github.com/founderpulse/insights/internal/domain"
	"github.com/founderpulse/insights/internal/stats"
)

// Threshold bounds: the adaptive walk can never push detection outside
// this range regardless of feedback volume.
const (
	thresholdFloor = 0.30
	thresholdCeil  = 0.90
)

// ThresholdState is the adaptive detection cutoff for one (tenant, KPI).
// It moves only through Apply, one bounded step per feedback event.
type ThresholdState struct {
	Tenant    string  `json:"tenant"`
	KPI       string  `json:"kpi"`
	Threshold float64 `json:"threshold"`
	Updates   int     `json:"updates"`
}

// Apply nudges the threshold by one step: a dismissed anomaly means the
// detector was too eager (raise), an accepted one means it can afford to
// be more eager (lower). Ignored feedback leaves the state unchanged.
func (s *ThresholdState) Apply(action domain.FeedbackAction, step float64) {
	switch action {
	case domain.FeedbackDismissed:
		s.Threshold += step
	case domain.FeedbackAccepted:
		s.Threshold -= step
	default:
		return
	}
	s.Threshold = stats.Clamp(s.Threshold, thresholdFloor, thresholdCeil)
	s.Updates++
}

// ThresholdStore hands out per-(tenant, KPI) threshold state. Safe for
// concurrent tenants; each tenant only touches its own keys.
type ThresholdStore struct {
	mu       sync.Mutex
	defaults float64
	states   map[string]*ThresholdState
}

// NewThresholdStore creates a store seeded with the configured default.
func NewThresholdStore(defaultThreshold float64) *ThresholdStore {
	return &ThresholdStore{
		defaults: defaultThreshold,
		states:   make(map[string]*ThresholdState),
	}
}

// Get returns a snapshot of the current state, creating it at the
// default on first use. Callers never see the live struct; feedback
// may be arriving on another goroutine.
func (ts *ThresholdStore) Get(tenant, kpi string) ThresholdState {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return *ts.locked(tenant, kpi)
}

// locked returns the live state. Callers must hold ts.mu.
func (ts *ThresholdStore) locked(tenant, kpi string) *ThresholdState {
	key := tenant + "/" + kpi
	st, ok := ts.states[key]
	if !ok {
		st = &ThresholdState{Tenant: tenant, KPI: kpi, Threshold: ts.defaults}
		ts.states[key] = st
	}
	return st
}

// Feedback applies one founder action to the relevant KPI threshold.
func (ts *ThresholdStore) Feedback(tenant, kpi string, action domain.FeedbackAction, step float64) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.locked(tenant, kpi).Apply(action, step)
}
