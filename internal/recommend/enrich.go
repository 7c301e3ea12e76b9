// Package recommend turns the run's signals into ranked, actionable
// recommendations through three stages: deterministic rules, scenario
// patterns, and optional text enrichment of the top candidates.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/founderpulse/insights/internal/domain"
)

// ErrEnrichmentUnavailable covers timeouts, open breakers, and exhausted
// budgets. Callers fall back to the unenriched candidate; the error is
// never fatal to the run.
var ErrEnrichmentUnavailable = errors.New("enrichment unavailable")

// Enrichment is the optional prose added to a top candidate.
type Enrichment struct {
	Rationale   string
	ActionItems []string
}

// Enricher is the injected text-generation capability. Production wires
// an external service; tests wire deterministic fakes.
type Enricher interface {
	Enrich(ctx context.Context, rec domain.Recommendation, evidence []string) (Enrichment, error)
}

// TemplateEnricher composes the rationale locally from the run's
// evidence. It is the default inner enricher until an external text
// service is configured.
type TemplateEnricher struct{}

func (TemplateEnricher) Enrich(_ context.Context, rec domain.Recommendation, evidence []string) (Enrichment, error) {
	rationale := rec.Description
	if len(evidence) > 0 {
		rationale += " Supporting signals:"
		for _, ev := range evidence {
			rationale += " " + ev + "."
		}
	}
	return Enrichment{Rationale: rationale, ActionItems: rec.ActionItems}, nil
}

// GuardedEnricher wraps an Enricher with the three protections the
// pipeline requires: a per-call timeout, a circuit breaker, and a
// per-run call budget.
type GuardedEnricher struct {
	inner   Enricher
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
	budget  *rate.Limiter
}

// NewGuardedEnricher builds the guard stack around an enricher.
func NewGuardedEnricher(inner Enricher, timeout time.Duration, budget int) *GuardedEnricher {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "enrichment",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	return &GuardedEnricher{
		inner:   inner,
		timeout: timeout,
		breaker: breaker,
		// The burst is the whole per-run budget; the refill rate keeps
		// sustained usage near one run's worth per scheduling interval.
		budget: rate.NewLimiter(rate.Every(time.Minute), budget),
	}
}

// Enrich applies budget, breaker, and timeout in that order. A stalled
// call is abandoned at the timeout without cancelling the rest of the
// run.
func (g *GuardedEnricher) Enrich(ctx context.Context, rec domain.Recommendation, evidence []string) (Enrichment, error) {
	if !g.budget.Allow() {
		return Enrichment{}, fmt.Errorf("%w: call budget exhausted", ErrEnrichmentUnavailable)
	}

	out, err := g.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		type result struct {
			enr Enrichment
			err error
		}
		ch := make(chan result, 1)
		go func() {
			enr, err := g.inner.Enrich(callCtx, rec, evidence)
			ch <- result{enr, err}
		}()

		select {
		case r := <-ch:
			return r.enr, r.err
		case <-callCtx.Done():
			return Enrichment{}, fmt.Errorf("%w: %v", ErrEnrichmentUnavailable, callCtx.Err())
		}
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: breaker open", ErrEnrichmentUnavailable)
		}
		log.Warn().Str("recommendation", rec.ID).Err(err).Msg("enrichment failed, using template output")
		return Enrichment{}, err
	}
	return out.(Enrichment), nil
}
