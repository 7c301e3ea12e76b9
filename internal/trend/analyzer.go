// Package trend computes multi-timescale trend classifications. Each
// run recomputes every trend from scratch; there is no incremental state,
// so identical history always yields an identical classification.
package trend

import (
	"errors"
	"fmt"
	"math"

	"github.com/founderpulse/insights/internal/config"
	"github.com/founderpulse/insights/internal/domain"
	"github.com/founderpulse/insights/internal/stats"
)

// ErrInsufficientHistory means the series cannot cover two comparison
// windows for the requested timeframe.
var ErrInsufficientHistory = errors.New("insufficient history for timeframe")

// Analyzer classifies direction, significance, effect size, and
// acceleration for one timeframe at a time.
type Analyzer struct {
	cfg config.TrendConfig
}

// NewAnalyzer returns an analyzer with the given thresholds.
func NewAnalyzer(cfg config.TrendConfig) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Analyze compares the current window against the prior window of the
// same length. Near-zero baselines return an explicit indeterminate
// trend instead of an unbounded ratio.
func (a *Analyzer) Analyze(series domain.KPISeries, tf domain.Timeframe) (domain.Trend, error) {
	window := tf.WindowDays()
	need := 2 * window
	if len(series.Points) < need {
		return domain.Trend{}, fmt.Errorf("kpi %s timeframe %s: %w: have %d points, need %d",
			series.KPIName, tf, ErrInsufficientHistory, len(series.Points), need)
	}

	values := series.Values()
	current := values[len(values)-window:]
	prior := values[len(values)-need : len(values)-window]

	trend := domain.Trend{
		Tenant:    series.Tenant,
		KPIName:   series.KPIName,
		Timeframe: tf,
		Method:    "welch_window_compare",
	}

	baseline := stats.Mean(prior)
	if math.Abs(baseline) < a.cfg.NearZeroEps {
		trend.Direction = domain.DirectionFlat
		trend.Indeterminate = true
		trend.Acceleration = domain.Steady
		trend.Confidence = 0.2
		return trend, nil
	}

	curMean := stats.Mean(current)
	trend.Magnitude = (curMean - baseline) / math.Abs(baseline)

	w := stats.WelchTTest(current, prior)
	trend.PValue = w.PValue
	trend.Significant = w.PValue < a.cfg.SignificanceP
	trend.EffectSize = bucketEffect(w.CohensD)

	trend.Direction = a.classify(current, curMean, trend.Magnitude, trend.Significant)

	// Medium and longer windows also report the shape of the change.
	if tf == domain.TimeframeMoM || tf == domain.TimeframeQoQ {
		xs := make([]float64, len(current))
		for i := range xs {
			xs[i] = float64(i)
		}
		trend.Slope, trend.FitQuality = stats.LinearFit(xs, current)
	}
	if tf == domain.TimeframeQoQ || tf == domain.TimeframeYoY {
		trend.GrowthRate = compoundRate(curMean, baseline, subPeriods(tf))
	}

	trend.Acceleration = a.acceleration(values[len(values)-need:])
	trend.Confidence = confidence(w.PValue, trend.Significant)
	return trend, nil
}

// classify applies the two-gate direction rule: a direction other than
// flat requires both the minimum change and statistical significance.
// A noisy current window is reported volatile regardless.
func (a *Analyzer) classify(current []float64, curMean, magnitude float64, significant bool) domain.Direction {
	if curMean != 0 {
		cv := stats.StdDev(current) / math.Abs(curMean)
		if cv > a.cfg.VolatilityRatio {
			return domain.DirectionVolatile
		}
	}
	if math.Abs(magnitude) < a.cfg.MinChange || !significant {
		return domain.DirectionFlat
	}
	if magnitude > 0 {
		return domain.DirectionUp
	}
	return domain.DirectionDown
}

// acceleration takes the sign of the mean second difference of the
// EMA-smoothed window, with a deadband scaled to the series level.
func (a *Analyzer) acceleration(values []float64) domain.Acceleration {
	smoothed := stats.EMA(values, a.cfg.SmoothingAlpha)
	second := stats.Diff(stats.Diff(smoothed))
	if len(second) == 0 {
		return domain.Steady
	}

	m := stats.Mean(second)
	scale := math.Abs(stats.Mean(values))
	deadband := scale * 1e-4
	if deadband == 0 {
		deadband = 1e-9
	}
	switch {
	case m > deadband:
		return domain.Accelerating
	case m < -deadband:
		return domain.Decelerating
	default:
		return domain.Steady
	}
}

// bucketEffect buckets Cohen's d by the conventional cutpoints.
func bucketEffect(d float64) domain.EffectSize {
	abs := math.Abs(d)
	switch {
	case abs < 0.2:
		return domain.EffectNegligible
	case abs < 0.5:
		return domain.EffectSmall
	case abs < 0.8:
		return domain.EffectMedium
	default:
		return domain.EffectLarge
	}
}

// subPeriods is the number of compounding sub-periods in one window.
func subPeriods(tf domain.Timeframe) int {
	if tf == domain.TimeframeYoY {
		return 12
	}
	return 3 // QoQ compounds monthly
}

// compoundRate converts window-over-window growth into a per-sub-period
// compounding rate.
func compoundRate(current, prior float64, periods int) float64 {
	if prior == 0 || periods < 1 {
		return 0
	}
	ratio := current / prior
	if ratio <= 0 {
		return 0
	}
	return math.Pow(ratio, 1/float64(periods)) - 1
}

func confidence(p float64, significant bool) float64 {
	c := 1 - p
	if !significant {
		c *= 0.8
	}
	return stats.Clamp(c, 0.05, 1)
}
