package recommend

import (
	"fmt"
	"sync"
	"time"

	"github.com/founderpulse/insights/internal/domain"
	"github.com/founderpulse/insights/internal/stats"
)

// Transition validates the recommendation state machine: pending is the
// only state with outgoing transitions.
func Transition(current domain.RecommendationStatus, next domain.RecommendationStatus) (domain.RecommendationStatus, error) {
	if current != domain.StatusPending {
		return current, fmt.Errorf("recommendation already %s, cannot move to %s", current, next)
	}
	switch next {
	case domain.StatusAccepted, domain.StatusScheduled, domain.StatusDismissed, domain.StatusExpired:
		return next, nil
	default:
		return current, fmt.Errorf("invalid target status %q", next)
	}
}

// Expire moves pending recommendations past their window to expired.
func Expire(recs []domain.Recommendation, now time.Time, after time.Duration) []domain.Recommendation {
	out := make([]domain.Recommendation, len(recs))
	copy(out, recs)
	for i := range out {
		if out[i].Status == domain.StatusPending && now.Sub(out[i].CreatedAt) > after {
			out[i].Status = domain.StatusExpired
		}
	}
	return out
}

// Calibration is the learned confidence multiplier for one
// (tenant, rule-or-pattern) pair. It drifts one clamped step per
// feedback event, so no amount of feedback can run it unbounded.
type Calibration struct {
	Factor  float64 `json:"factor"`
	Samples int     `json:"samples"`
}

// CalibrationStore keeps per-(tenant, rule) calibration state.
type CalibrationStore struct {
	mu    sync.Mutex
	step  float64
	min   float64
	max   float64
	state map[string]*Calibration
}

// NewCalibrationStore creates a store with the configured step and bounds.
func NewCalibrationStore(step, min, max float64) *CalibrationStore {
	return &CalibrationStore{
		step:  step,
		min:   min,
		max:   max,
		state: make(map[string]*Calibration),
	}
}

// Factor returns the current multiplier, 1.0 for unseen rules.
func (cs *CalibrationStore) Factor(tenant, ruleID string) float64 {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if c, ok := cs.state[tenant+"/"+ruleID]; ok {
		return c.Factor
	}
	return 1.0
}

// Apply folds one founder action into the rule's multiplier: accepts
// push confidence up, dismissals push it down, ignores decay it gently
// toward neutral.
func (cs *CalibrationStore) Apply(tenant, ruleID string, action domain.FeedbackAction) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	key := tenant + "/" + ruleID
	c, ok := cs.state[key]
	if !ok {
		c = &Calibration{Factor: 1.0}
		cs.state[key] = c
	}

	switch action {
	case domain.FeedbackAccepted:
		c.Factor += cs.step
	case domain.FeedbackDismissed:
		c.Factor -= cs.step
	case domain.FeedbackIgnored:
		c.Factor += (1.0 - c.Factor) * cs.step
	}
	c.Factor = stats.Clamp(c.Factor, cs.min, cs.max)
	c.Samples++
}
