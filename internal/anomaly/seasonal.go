package anomaly

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/founderpulse/insights/internal/domain"
	"github.com/founderpulse/insights/internal/stats"
)

// ErrModelFit is returned when seasonal fitting fails numerically or the
// history cannot support a fit. The ensemble falls back to Tiers 1/3.
var ErrModelFit = errors.New("seasonal model fit failed")

// SeasonalModel is a fitted trend-plus-seasonal forecaster. Models are
// cached per (tenant, KPI) and refit only when stale or drifting.
type SeasonalModel struct {
	Period     int       `json:"period"`
	Intercept  float64   `json:"intercept"`
	Slope      float64   `json:"slope"`
	Seasonal   []float64 `json:"seasonal"` // per-phase offset of the detrended series
	ResidualSD float64   `json:"residual_sd"`
	FitMAE     float64   `json:"fit_mae"`
	TrainLen   int       `json:"train_len"`
	FittedAt   time.Time `json:"fitted_at"`
	RollingMAE float64   `json:"rolling_mae"` // EWMA of out-of-sample abs error
}

// FitSeasonal decomposes the series into a linear trend and per-phase
// seasonal offsets, the classical additive decomposition.
func FitSeasonal(points []domain.Point, period int, now time.Time) (*SeasonalModel, error) {
	if period < 2 {
		return nil, fmt.Errorf("%w: period %d", ErrModelFit, period)
	}
	if len(points) < 2*period {
		return nil, fmt.Errorf("%w: %d points for period %d", ErrModelFit, len(points), period)
	}

	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = float64(i)
		ys[i] = p.Value
	}
	slope, _ := stats.LinearFit(xs, ys)
	intercept := stats.Mean(ys) - slope*stats.Mean(xs)
	if math.IsNaN(slope) || math.IsInf(slope, 0) {
		return nil, fmt.Errorf("%w: degenerate trend", ErrModelFit)
	}

	// Per-phase mean of the detrended series.
	sums := make([]float64, period)
	counts := make([]int, period)
	for i, y := range ys {
		detrended := y - (intercept + slope*float64(i))
		sums[i%period] += detrended
		counts[i%period]++
	}
	seasonal := make([]float64, period)
	for i := range seasonal {
		if counts[i] > 0 {
			seasonal[i] = sums[i] / float64(counts[i])
		}
	}

	// Residuals against the full model.
	resid := make([]float64, len(ys))
	absSum := 0.0
	for i, y := range ys {
		fit := intercept + slope*float64(i) + seasonal[i%period]
		resid[i] = y - fit
		absSum += math.Abs(resid[i])
	}
	sd := stats.StdDev(resid)
	mae := absSum / float64(len(ys))

	return &SeasonalModel{
		Period:     period,
		Intercept:  intercept,
		Slope:      slope,
		Seasonal:   seasonal,
		ResidualSD: sd,
		FitMAE:     mae,
		TrainLen:   len(points),
		FittedAt:   now,
		RollingMAE: mae,
	}, nil
}

// Forecast returns the expected value and 95% interval for index idx.
func (m *SeasonalModel) Forecast(idx int) (expected, lo, hi float64) {
	expected = m.Intercept + m.Slope*float64(idx) + m.Seasonal[idx%m.Period]
	band := 1.96 * m.ResidualSD
	if band == 0 {
		band = math.Abs(expected) * 0.05 // flat training series: 5% guard band
	}
	return expected, expected - band, expected + band
}

// ObserveError folds one out-of-sample absolute error into the rolling
// drift statistic.
func (m *SeasonalModel) ObserveError(absErr float64) {
	const alpha = 0.2
	m.RollingMAE = alpha*absErr + (1-alpha)*m.RollingMAE
}

// NeedsRefit reports whether the model is stale or its rolling error has
// drifted past ratio times the fit-time error.
func (m *SeasonalModel) NeedsRefit(now time.Time, maxAge time.Duration, ratio float64) bool {
	if now.Sub(m.FittedAt) > maxAge {
		return true
	}
	if m.FitMAE > 0 && m.RollingMAE/m.FitMAE > ratio {
		return true
	}
	return false
}

// ModelCache stores fitted seasonal models keyed by (tenant, KPI).
type ModelCache interface {
	GetModel(ctx context.Context, tenant, kpi string) (*SeasonalModel, error)
	PutModel(ctx context.Context, tenant, kpi string, m *SeasonalModel) error
}

// MemoryModelCache is the in-process fallback cache.
type MemoryModelCache struct {
	models map[string]*SeasonalModel
}

// NewMemoryModelCache returns an empty in-process cache.
func NewMemoryModelCache() *MemoryModelCache {
	return &MemoryModelCache{models: make(map[string]*SeasonalModel)}
}

func (c *MemoryModelCache) GetModel(_ context.Context, tenant, kpi string) (*SeasonalModel, error) {
	return c.models[tenant+"/"+kpi], nil
}

func (c *MemoryModelCache) PutModel(_ context.Context, tenant, kpi string, m *SeasonalModel) error {
	c.models[tenant+"/"+kpi] = m
	return nil
}

// SeasonalDetector is Tier 2: forecast the latest point from the cached
// seasonal model and score by distance outside the forecast interval.
type SeasonalDetector struct {
	MinHistory   int
	Period       int
	RefitAfter   time.Duration
	RefitRatio   float64
	Cache        ModelCache
	Now          func() time.Time
}

// NewSeasonalDetector wires a Tier-2 detector to a model cache.
func NewSeasonalDetector(minHistory, period int, refitAfter time.Duration, refitRatio float64, cache ModelCache) *SeasonalDetector {
	return &SeasonalDetector{
		MinHistory: minHistory,
		Period:     period,
		RefitAfter: refitAfter,
		RefitRatio: refitRatio,
		Cache:      cache,
		Now:        time.Now,
	}
}

func (d *SeasonalDetector) Name() string { return "seasonal_forecast" }

// Detect forecasts the latest point. The model is fit on everything
// before it and refit only when missing, stale, or drifting.
func (d *SeasonalDetector) Detect(history []domain.Point, ctx Context) (Result, error) {
	if len(history) < d.MinHistory {
		return Result{}, fmt.Errorf("%s: %w: have %d points, need %d",
			d.Name(), ErrInsufficientHistory, len(history), d.MinHistory)
	}

	now := d.Now()
	train := history[:len(history)-1]
	latest := history[len(history)-1]
	latestIdx := len(history) - 1

	bg := context.Background()
	model, err := d.Cache.GetModel(bg, ctx.Tenant, ctx.KPI)
	if err != nil || model == nil || model.NeedsRefit(now, d.RefitAfter, d.RefitRatio) {
		model, err = FitSeasonal(train, d.Period, now)
		if err != nil {
			return Result{}, fmt.Errorf("%s: %w", d.Name(), err)
		}
		if putErr := d.Cache.PutModel(bg, ctx.Tenant, ctx.KPI, model); putErr != nil {
			// Cache write failure degrades latency, not correctness.
			_ = putErr
		}
	}

	expected, lo, hi := model.Forecast(latestIdx)
	model.ObserveError(math.Abs(latest.Value - expected))
	_ = d.Cache.PutModel(bg, ctx.Tenant, ctx.KPI, model)

	band := (hi - lo) / 2
	if band <= 0 {
		band = math.SmallestNonzeroFloat64
	}
	dist := 0.0
	if latest.Value > hi {
		dist = latest.Value - hi
	} else if latest.Value < lo {
		dist = lo - latest.Value
	}

	// Inside the interval scores 0; one full band outside scores 0.5;
	// saturates toward 1 beyond that.
	score := stats.Clamp(dist/(2*band), 0, 1)

	return Result{
		Method:     d.Name(),
		Score:      score,
		Expected:   expected,
		Confidence: 0.85,
		Detail:     fmt.Sprintf("expected %.2f, interval [%.2f, %.2f], actual %.2f", expected, lo, hi, latest.Value),
	}, nil
}
