package briefing

import (
	"sync"

	"github.com/founderpulse/insights/internal/domain"
)

// minEngagementSamples is the history depth required before
// personalization moves off the neutral factor.
const minEngagementSamples = 5

// EngagementSource supplies the bounded personalization multiplier for
// one (tenant, content type).
type EngagementSource interface {
	Factor(tenant string, ct domain.ContentType) float64
}

// EngagementHistory accumulates founder actions per content type and
// derives the multiplier from the acceptance ratio. With insufficient
// history it stays exactly neutral.
type EngagementHistory struct {
	mu     sync.Mutex
	counts map[string]*engagementCounts
}

type engagementCounts struct {
	engaged int // accepted
	ignored int // dismissed or ignored
}

// NewEngagementHistory returns an empty history.
func NewEngagementHistory() *EngagementHistory {
	return &EngagementHistory{counts: make(map[string]*engagementCounts)}
}

// Record folds one feedback event into the history.
func (h *EngagementHistory) Record(tenant string, ct domain.ContentType, action domain.FeedbackAction) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := tenant + "/" + string(ct)
	c, ok := h.counts[key]
	if !ok {
		c = &engagementCounts{}
		h.counts[key] = c
	}
	if action == domain.FeedbackAccepted {
		c.engaged++
	} else {
		c.ignored++
	}
}

// Factor maps the acceptance ratio onto [0.7, 1.3] linearly: a founder
// who always engages a type gets 1.3, one who never does gets 0.7.
// The selector clamps further to its configured bounds.
func (h *EngagementHistory) Factor(tenant string, ct domain.ContentType) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.counts[tenant+"/"+string(ct)]
	if !ok {
		return 1.0
	}
	total := c.engaged + c.ignored
	if total < minEngagementSamples {
		return 1.0
	}
	ratio := float64(c.engaged) / float64(total)
	return 0.7 + 0.6*ratio
}
