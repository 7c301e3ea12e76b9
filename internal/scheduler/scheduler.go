// Package scheduler drives the batch pipeline on cron expressions: a
// morning run for forward-looking briefings and an evening run for
// retrospectives. Overlapping runs are skipped, never queued.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/founderpulse/insights/internal/config"
	"github.com/founderpulse/insights/internal/domain"
)

// Batch is the unit of scheduled work, implemented by pipeline.Runner.
type Batch interface {
	RunAll(ctx context.Context, btype domain.BriefingType) error
}

// Scheduler owns the cron instance and the run-in-progress guard.
type Scheduler struct {
	cfg     config.SchedulerConfig
	batch   Batch
	cron    *cron.Cron
	running atomic.Bool
}

// New builds a scheduler in the configured timezone. An invalid
// timezone falls back to UTC.
func New(cfg config.SchedulerConfig, batch Batch) *Scheduler {
	loc := time.UTC
	if cfg.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Timezone); err == nil {
			loc = l
		} else {
			log.Warn().Str("timezone", cfg.Timezone).Msg("unknown timezone, using UTC")
		}
	}
	return &Scheduler{
		cfg:   cfg,
		batch: batch,
		cron:  cron.New(cron.WithLocation(loc)),
	}
}

// Start registers both entries and launches the cron loop. The context
// bounds each batch run; cancel it before calling Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.Cron, func() { s.run(ctx, domain.BriefingMorning) }); err != nil {
		return fmt.Errorf("morning schedule %q: %w", s.cfg.Cron, err)
	}
	if _, err := s.cron.AddFunc(s.cfg.EveningCron, func() { s.run(ctx, domain.BriefingEvening) }); err != nil {
		return fmt.Errorf("evening schedule %q: %w", s.cfg.EveningCron, err)
	}
	s.cron.Start()
	log.Info().
		Str("morning", s.cfg.Cron).
		Str("evening", s.cfg.EveningCron).
		Msg("scheduler started")
	return nil
}

// Stop halts the cron loop and waits for a running batch to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Info().Msg("scheduler stopped")
}

// Entries reports the next fire time of each registered entry.
func (s *Scheduler) Entries() []time.Time {
	entries := s.cron.Entries()
	out := make([]time.Time, len(entries))
	for i, e := range entries {
		out[i] = e.Next
	}
	return out
}

func (s *Scheduler) run(ctx context.Context, btype domain.BriefingType) {
	if !s.running.CompareAndSwap(false, true) {
		log.Warn().Str("type", string(btype)).Msg("previous batch still running, skipping")
		return
	}
	defer s.running.Store(false)

	start := time.Now()
	if err := s.batch.RunAll(ctx, btype); err != nil {
		log.Error().Err(err).Str("type", string(btype)).Msg("batch run finished with errors")
	} else {
		log.Info().
			Str("type", string(btype)).
			Dur("elapsed", time.Since(start)).
			Msg("batch run complete")
	}
}
