package correlation

import (
	"fmt"

	"github.com/founderpulse/insights/internal/config"
	"github.com/founderpulse/insights/internal/domain"
)

// EvaluatePatterns checks every configured multi-KPI pattern against
// the current period's trend directions. A pattern matches when at
// least minFrac of its conditions hold; conditions whose KPI has no
// trend this run count as unsatisfied, not as errors.
func EvaluatePatterns(patterns []config.Pattern, trends map[string]domain.Trend, minFrac float64) []domain.PatternMatch {
	out := make([]domain.PatternMatch, 0, len(patterns))
	for _, p := range patterns {
		if len(p.Conditions) == 0 {
			continue // malformed pattern: skip it, never the run
		}

		satisfied := 0
		conds := make([]string, 0, len(p.Conditions))
		for _, c := range p.Conditions {
			ok := false
			if tr, found := trends[c.KPI]; found {
				ok = string(tr.Direction) == c.Direction
			}
			mark := "✗"
			if ok {
				satisfied++
				mark = "✓"
			}
			conds = append(conds, fmt.Sprintf("%s %s %s", mark, c.KPI, c.Direction))
		}

		frac := float64(satisfied) / float64(len(p.Conditions))
		out = append(out, domain.PatternMatch{
			Name:        p.Name,
			Matched:     frac >= minFrac,
			Fraction:    frac,
			Conditions:  conds,
			Confidence:  frac,
			Description: p.Description,
		})
	}
	return out
}
