package recommend

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/founderpulse/insights/internal/config"
	"github.com/founderpulse/insights/internal/domain"
	"github.com/founderpulse/insights/internal/stats"
)

// Signals is everything the upstream stages hand the recommendation
// pipeline for one tenant's run.
type Signals struct {
	Metrics   map[string]float64 // latest snapshot values, e.g. runway_months
	Anomalies []domain.Anomaly
	Trends    map[string]domain.Trend
	Patterns  []domain.PatternMatch
	RootCauses []domain.RootCause
	TasksOpen int
}

// Engine runs the three-stage pipeline and ranks the output.
type Engine struct {
	cfg         config.RecommendConfig
	rules       []config.Rule
	patterns    map[string]config.Pattern
	enricher    Enricher
	calibration *CalibrationStore
	now         func() time.Time
}

// NewEngine wires the pipeline. A nil enricher disables stage three.
func NewEngine(cfg config.RecommendConfig, rules []config.Rule, patterns []config.Pattern, enricher Enricher, calibration *CalibrationStore) *Engine {
	byName := make(map[string]config.Pattern, len(patterns))
	for _, p := range patterns {
		byName[p.Name] = p
	}
	return &Engine{
		cfg:         cfg,
		rules:       rules,
		patterns:    byName,
		enricher:    enricher,
		calibration: calibration,
		now:         time.Now,
	}
}

// Generate produces the tenant's ranked recommendation list: rules
// first, then matched patterns, then ranking, diversity capping, and
// enrichment of the survivors.
func (e *Engine) Generate(ctx context.Context, tenant string, sig Signals) []domain.Recommendation {
	candidates := e.evaluateRules(tenant, sig)
	candidates = append(candidates, e.evaluatePatterns(tenant, sig)...)

	for i := range candidates {
		candidates[i].PriorityScore = e.Priority(candidates[i])
	}
	sortRecommendations(candidates)
	candidates = e.applyDiversityCap(candidates)
	if len(candidates) > e.cfg.MaxTotal {
		candidates = candidates[:e.cfg.MaxTotal]
	}

	e.enrichTop(ctx, candidates, sig)
	return candidates
}

// Priority is the documented weighted sum, scaled to 0-100. It is
// monotonic non-decreasing in every input.
func (e *Engine) Priority(rec domain.Recommendation) float64 {
	w := e.cfg.Weights
	score := w.Urgency*rec.Urgency + w.Impact*rec.Impact +
		w.Feasibility*rec.Feasibility + w.Confidence*rec.Confidence
	return stats.Clamp(score*100, 0, 100)
}

// evaluateRules is stage one: every rule in the versioned table is
// evaluated against the metric snapshot, always, regardless of other
// signals. A malformed rule is skipped alone; the run continues.
func (e *Engine) evaluateRules(tenant string, sig Signals) []domain.Recommendation {
	var out []domain.Recommendation
	for _, rule := range e.rules {
		value, ok := sig.Metrics[rule.Metric]
		if !ok {
			continue
		}
		fired, err := rule.Evaluate(value)
		if err != nil {
			log.Warn().Str("tenant", tenant).Str("rule", rule.ID).Err(err).
				Msg("malformed rule skipped")
			continue
		}
		if !fired {
			continue
		}

		conf := stats.Clamp(0.9*e.calibration.Factor(tenant, rule.ID), 0, 1)
		urgency := rule.Urgency
		if rule.Priority == "critical" {
			urgency = 1.0
		}
		out = append(out, domain.Recommendation{
			ID:          uuid.NewString(),
			Tenant:      tenant,
			RuleID:      rule.ID,
			Category:    rule.Category,
			Title:       rule.Title,
			Description: rule.Fill(value),
			ActionItems: rule.ActionItems,
			Urgency:     urgency,
			Impact:      rule.Impact,
			Feasibility: rule.Feasibility,
			Confidence:  conf,
			Source:      domain.SourceRule,
			Status:      domain.StatusPending,
			CreatedAt:   e.now(),
		})
	}
	return out
}

// evaluatePatterns is stage two: matched scenario patterns become
// moderate-confidence candidates, scaled by how fully they matched.
func (e *Engine) evaluatePatterns(tenant string, sig Signals) []domain.Recommendation {
	var out []domain.Recommendation
	for _, m := range sig.Patterns {
		if !m.Matched {
			continue
		}
		p, ok := e.patterns[m.Name]
		if !ok {
			continue
		}
		conf := stats.Clamp(0.6*m.Fraction*e.calibration.Factor(tenant, p.Name), 0, 1)
		out = append(out, domain.Recommendation{
			ID:          uuid.NewString(),
			Tenant:      tenant,
			RuleID:      p.Name,
			Category:    p.Category,
			Title:       p.Title,
			Description: fmt.Sprintf("%s (%d%% of pattern conditions hold)", p.Description, int(m.Fraction*100)),
			ActionItems: p.ActionItems,
			Urgency:     p.Urgency,
			Impact:      p.Impact,
			Feasibility: p.Feasibility,
			Confidence:  conf,
			Source:      domain.SourcePattern,
			Status:      domain.StatusPending,
			CreatedAt:   e.now(),
		})
	}
	return out
}

// enrichTop is stage three: only the top-K survivors get the external
// call, and failure leaves the template output in place.
func (e *Engine) enrichTop(ctx context.Context, recs []domain.Recommendation, sig Signals) {
	if e.enricher == nil {
		return
	}
	evidence := buildEvidence(sig)
	k := e.cfg.EnrichTopK
	for i := range recs {
		if i >= k {
			break
		}
		enr, err := e.enricher.Enrich(ctx, recs[i], evidence)
		if err != nil {
			continue // fall back to the unenriched candidate
		}
		if enr.Rationale != "" {
			recs[i].Description = recs[i].Description + " " + enr.Rationale
		}
		recs[i].ActionItems = append(recs[i].ActionItems, enr.ActionItems...)
		recs[i].Source = domain.SourceEnriched
	}
}

// applyDiversityCap bounds recommendations per category before the
// final truncation, so one noisy category cannot crowd out the rest.
func (e *Engine) applyDiversityCap(recs []domain.Recommendation) []domain.Recommendation {
	seen := make(map[string]int)
	out := recs[:0:0]
	for _, r := range recs {
		if seen[r.Category] >= e.cfg.MaxPerCategory {
			continue
		}
		seen[r.Category]++
		out = append(out, r)
	}
	return out
}

// sortRecommendations orders by priority descending. Ties break by
// higher confidence, then lexical id, so identical inputs always rank
// identically.
func sortRecommendations(recs []domain.Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].PriorityScore != recs[j].PriorityScore {
			return recs[i].PriorityScore > recs[j].PriorityScore
		}
		if recs[i].Confidence != recs[j].Confidence {
			return recs[i].Confidence > recs[j].Confidence
		}
		return recs[i].ID < recs[j].ID
	})
}

func buildEvidence(sig Signals) []string {
	var out []string
	for _, a := range sig.Anomalies {
		out = append(out, a.Explanation)
	}
	for _, rc := range sig.RootCauses {
		out = append(out, rc.Explanation)
	}
	for name, tr := range sig.Trends {
		if tr.Significant {
			out = append(out, fmt.Sprintf("%s trending %s (%+.1f%%)", name, tr.Direction, tr.Magnitude*100))
		}
	}
	sort.Strings(out)
	return out
}
