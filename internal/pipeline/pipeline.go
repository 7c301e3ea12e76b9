// Package pipeline orchestrates one analytical run per tenant: detect
// anomalies, classify trends, rebuild the correlation graph, generate
// recommendations, and assemble the briefing. Stages within a tenant
// run serially; tenants run in parallel up to the configured limit.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/founderpulse/insights/internal/anomaly"
	"github.com/founderpulse/insights/internal/briefing"
	"github.com/founderpulse/insights/internal/config"
	"github.com/founderpulse/insights/internal/correlation"
	"github.com/founderpulse/insights/internal/domain"
	ilog "github.com/founderpulse/insights/internal/log"
	"github.com/founderpulse/insights/internal/metrics"
	"github.com/founderpulse/insights/internal/persistence"
	"github.com/founderpulse/insights/internal/recommend"
	"github.com/founderpulse/insights/internal/trend"
)

// Feeds bundles the read-only productivity inputs for one tenant.
type Feeds struct {
	Tasks    []domain.Task
	Meetings []domain.Meeting
	Messages []domain.Message
}

// Source supplies tenants, profiles, KPI series, and feeds. Series and
// feed failures degrade a run, they never abort it entirely.
type Source interface {
	Tenants(ctx context.Context) ([]string, error)
	Profile(ctx context.Context, tenant string) (domain.FounderProfile, error)
	Series(ctx context.Context, tenant string) (map[string]domain.KPISeries, error)
	Feeds(ctx context.Context, tenant string) (Feeds, error)
}

// Deliverer pushes a finished briefing to its channel (email, in-app).
// Nil disables delivery; the briefing is still persisted.
type Deliverer interface {
	Deliver(ctx context.Context, b domain.Briefing) error
}

// Runner executes tenant runs against a fixed set of collaborators.
type Runner struct {
	cfg      *config.Config
	source   Source
	repo     persistence.RunRepo
	ensemble *anomaly.Ensemble
	trends   *trend.Analyzer
	corr     *correlation.Engine
	recs     *recommend.Engine
	scorer   *briefing.Scorer
	selector *briefing.Selector
	reg      *metrics.Registry
	deliver  Deliverer

	now func() time.Time
}

// New wires a Runner. deliver and reg may be nil.
func New(cfg *config.Config, source Source, repo persistence.RunRepo,
	ensemble *anomaly.Ensemble, trends *trend.Analyzer, corr *correlation.Engine,
	recs *recommend.Engine, scorer *briefing.Scorer, selector *briefing.Selector,
	reg *metrics.Registry, deliver Deliverer) *Runner {
	return &Runner{
		cfg:      cfg,
		source:   source,
		repo:     repo,
		ensemble: ensemble,
		trends:   trends,
		corr:     corr,
		recs:     recs,
		scorer:   scorer,
		selector: selector,
		reg:      reg,
		deliver:  deliver,
		now:      time.Now,
	}
}

// RunAll executes one run for every tenant, bounded by the configured
// concurrency. A failing tenant does not stop the others; the combined
// error lists every failure.
func (r *Runner) RunAll(ctx context.Context, btype domain.BriefingType) error {
	tenants, err := r.source.Tenants(ctx)
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	limit := r.cfg.Scheduler.MaxConcurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	errs := make([]error, len(tenants))
	for i, tenant := range tenants {
		i, tenant := i, tenant
		g.Go(func() error {
			if _, err := r.RunTenant(ctx, tenant, btype); err != nil {
				l := ilog.ForTenant(tenant)
				l.Error().Err(err).Msg("tenant run failed")
				errs[i] = fmt.Errorf("tenant %s: %w", tenant, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// RunTenant executes the full stage sequence for one tenant and returns
// the generated briefing. A briefing is produced even when upstream
// stages degrade; the data-quality note records what was missing.
func (r *Runner) RunTenant(ctx context.Context, tenant string, btype domain.BriefingType) (domain.Briefing, error) {
	logger := ilog.ForTenant(tenant)
	runAt := r.now()
	if r.reg != nil {
		r.reg.ActiveRuns.Inc()
		defer r.reg.ActiveRuns.Dec()
	}

	profile, err := r.source.Profile(ctx, tenant)
	if err != nil {
		logger.Warn().Err(err).Msg("profile unavailable, using balanced defaults")
		profile = domain.FounderProfile{Tenant: tenant, Sensitivity: domain.SensitivityBalanced}
	}

	var notes []string
	series, err := r.stageSeries(ctx, tenant)
	if err != nil {
		logger.Warn().Err(err).Msg("kpi source unavailable")
		notes = append(notes, "KPI data was unavailable for this run")
		series = map[string]domain.KPISeries{}
	}

	anomalies, skipped := r.stageAnomalies(tenant, profile, series, logger)
	if skipped > 0 {
		notes = append(notes, fmt.Sprintf("%d of %d KPIs lacked history for anomaly detection", skipped, len(series)))
	}

	feeds, err := r.source.Feeds(ctx, tenant)
	if err != nil {
		logger.Warn().Err(err).Msg("feed source unavailable")
		notes = append(notes, "task, calendar, and message feeds were unavailable")
	}

	trends := r.stageTrends(tenant, series, logger)
	graph, patterns, rootCauses := r.stageCorrelation(series, trends, anomalies)
	recs := r.stageRecommend(ctx, tenant, series, feeds, anomalies, trends, patterns, rootCauses)

	r.persistRun(ctx, tenant, runAt, anomalies, trends, graph, recs, logger)

	b := r.stageBriefing(tenant, btype, profile, feeds, series, anomalies, trends, recs, joinNotes(notes))
	if err := r.repo.SaveBriefing(ctx, b); err != nil {
		r.countRun("error")
		return b, fmt.Errorf("save briefing: %w", err)
	}
	if r.deliver != nil {
		if err := r.deliver.Deliver(ctx, b); err != nil {
			logger.Warn().Err(err).Msg("briefing delivery failed")
		}
	}

	r.countRun("ok")
	logger.Info().
		Int("kpis", len(series)).
		Int("anomalies", len(anomalies)).
		Int("trends", len(trends)).
		Int("recommendations", len(recs)).
		Int("briefing_items", b.ItemCount()).
		Msg("run complete")
	return b, nil
}

func (r *Runner) stageSeries(ctx context.Context, tenant string) (map[string]domain.KPISeries, error) {
	t := r.startStage("fetch_series")
	series, err := r.source.Series(ctx, tenant)
	if err != nil {
		t.stop("error")
		return nil, err
	}
	t.stop("success")
	return series, nil
}

// stageAnomalies runs the ensemble over every KPI. One KPI failing
// never blocks the rest.
func (r *Runner) stageAnomalies(tenant string, profile domain.FounderProfile, series map[string]domain.KPISeries, logger zerolog.Logger) ([]domain.Anomaly, int) {
	t := r.startStage("anomaly")
	defer t.stop("success")

	sens := r.cfg.Profile(string(profile.Sensitivity))
	names := sortedKeys(series)
	cross := crossKPI(series)

	var out []domain.Anomaly
	skipped := 0
	for _, name := range names {
		s := series[name]
		actx := anomaly.Context{
			Tenant:   tenant,
			KPI:      name,
			Profile:  sens,
			CrossKPI: cross,
		}
		a, err := r.ensemble.Detect(s, actx)
		if err != nil {
			if errors.Is(err, anomaly.ErrInsufficientHistory) || errors.Is(err, anomaly.ErrNoDetectorRan) {
				skipped++
				if r.reg != nil {
					r.reg.KPIsSkipped.WithLabelValues("insufficient_history").Inc()
				}
				continue
			}
			logger.Warn().Err(err).Str("kpi", name).Msg("anomaly detection failed")
			if r.reg != nil {
				r.reg.KPIsSkipped.WithLabelValues("detector_error").Inc()
			}
			continue
		}
		if a != nil {
			out = append(out, *a)
			if r.reg != nil {
				r.reg.AnomaliesTotal.WithLabelValues(string(a.Severity)).Inc()
			}
		}
	}
	return out, skipped
}

func (r *Runner) stageTrends(tenant string, series map[string]domain.KPISeries, logger zerolog.Logger) []domain.Trend {
	t := r.startStage("trend")
	defer t.stop("success")

	timeframes := []domain.Timeframe{domain.TimeframeWoW, domain.TimeframeMoM, domain.TimeframeQoQ}
	var out []domain.Trend
	for _, name := range sortedKeys(series) {
		s := series[name]
		for _, tf := range timeframes {
			tr, err := r.trends.Analyze(s, tf)
			if err != nil {
				// Short series cannot cover longer windows; not an error.
				continue
			}
			tr.Tenant = tenant
			out = append(out, tr)
		}
	}
	return out
}

func (r *Runner) stageCorrelation(series map[string]domain.KPISeries, trends []domain.Trend, anomalies []domain.Anomaly) (*correlation.Graph, []domain.PatternMatch, []domain.RootCause) {
	t := r.startStage("correlation")
	defer t.stop("success")

	graph := r.corr.BuildGraph(series)

	wow := trendsByKPI(trends, domain.TimeframeWoW)
	patterns := correlation.EvaluatePatterns(r.cfg.Patterns, wow, r.cfg.Correlation.PatternMinFrac)

	var causes []domain.RootCause
	for _, a := range anomalies {
		if a.Severity != domain.SeverityCritical && a.Severity != domain.SeverityHigh {
			continue
		}
		causes = append(causes, correlation.TraceRootCause(graph, a, anomalies)...)
	}
	return graph, patterns, causes
}

func (r *Runner) stageRecommend(ctx context.Context, tenant string, series map[string]domain.KPISeries, feeds Feeds, anomalies []domain.Anomaly, trends []domain.Trend, patterns []domain.PatternMatch, causes []domain.RootCause) []domain.Recommendation {
	t := r.startStage("recommend")
	defer t.stop("success")

	open := 0
	for _, task := range feeds.Tasks {
		if !task.Completed {
			open++
		}
	}
	sig := recommend.Signals{
		Metrics:    latestValues(series),
		Anomalies:  anomalies,
		Trends:     trendsByKPI(trends, domain.TimeframeWoW),
		Patterns:   patterns,
		RootCauses: causes,
		TasksOpen:  open,
	}
	recs := r.recs.Generate(ctx, tenant, sig)
	if r.reg != nil {
		for _, rec := range recs {
			r.reg.RecommendationsTotal.WithLabelValues(string(rec.Source)).Inc()
		}
	}
	return recs
}

func (r *Runner) persistRun(ctx context.Context, tenant string, runAt time.Time, anomalies []domain.Anomaly, trends []domain.Trend, graph *correlation.Graph, recs []domain.Recommendation, logger zerolog.Logger) {
	t := r.startStage("persist")
	defer t.stop("success")

	if err := r.repo.SaveAnomalies(ctx, tenant, runAt, anomalies); err != nil {
		logger.Warn().Err(err).Msg("save anomalies failed")
	}
	if err := r.repo.SaveTrends(ctx, tenant, runAt, trends); err != nil {
		logger.Warn().Err(err).Msg("save trends failed")
	}
	if err := r.repo.SaveEdges(ctx, tenant, runAt, graph.EdgeList()); err != nil {
		logger.Warn().Err(err).Msg("save edges failed")
	}
	if err := r.repo.SaveRecommendations(ctx, recs); err != nil {
		logger.Warn().Err(err).Msg("save recommendations failed")
	}
}

func (r *Runner) stageBriefing(tenant string, btype domain.BriefingType, profile domain.FounderProfile, feeds Feeds, series map[string]domain.KPISeries, anomalies []domain.Anomaly, trends []domain.Trend, recs []domain.Recommendation, note string) domain.Briefing {
	t := r.startStage("briefing")
	defer t.stop("success")

	items := r.scorer.Score(briefing.Inputs{
		Tenant:          tenant,
		Type:            btype,
		Now:             r.now(),
		Profile:         profile,
		Tasks:           feeds.Tasks,
		Meetings:        feeds.Meetings,
		Messages:        feeds.Messages,
		Anomalies:       anomalies,
		Trends:          trendsByKPI(trends, domain.TimeframeWoW),
		Recommendations: recs,
		Snapshots:       latestValues(series),
	})
	b := r.selector.Select(tenant, btype, items, r.now(), note)
	if r.reg != nil {
		r.reg.BriefingItems.Observe(float64(b.ItemCount()))
	}
	return b
}

func (r *Runner) startStage(name string) stageStop {
	if r.reg == nil {
		return stageStop{}
	}
	return stageStop{t: r.reg.StartStage(name)}
}

func (r *Runner) countRun(status string) {
	if r.reg != nil {
		r.reg.RunsTotal.WithLabelValues(status).Inc()
	}
}

type stageStop struct{ t *metrics.StageTimer }

func (s stageStop) stop(result string) {
	if s.t != nil {
		s.t.Stop(result)
	}
}

func sortedKeys(series map[string]domain.KPISeries) []string {
	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func latestValues(series map[string]domain.KPISeries) map[string]float64 {
	out := make(map[string]float64, len(series))
	for name, s := range series {
		if len(s.Points) > 0 {
			out[name] = s.Points[len(s.Points)-1].Value
		}
	}
	return out
}

// crossKPI exposes each KPI's recent values to the multivariate tier.
func crossKPI(series map[string]domain.KPISeries) map[string][]float64 {
	out := make(map[string][]float64, len(series))
	for name, s := range series {
		tail := s.Tail(14)
		vals := make([]float64, len(tail))
		for i, p := range tail {
			vals[i] = p.Value
		}
		out[name] = vals
	}
	return out
}

func trendsByKPI(trends []domain.Trend, tf domain.Timeframe) map[string]domain.Trend {
	out := make(map[string]domain.Trend)
	for _, t := range trends {
		if t.Timeframe == tf {
			out[t.KPIName] = t
		}
	}
	return out
}

func joinNotes(notes []string) string {
	switch len(notes) {
	case 0:
		return ""
	case 1:
		return notes[0]
	}
	s := notes[0]
	for _, n := range notes[1:] {
		s += "; " + n
	}
	return s
}
