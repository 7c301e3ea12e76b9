package anomaly

import (
	"fmt"
	"math"

	"github.com/founderpulse/insights/internal/domain"
	"github.com/founderpulse/insights/internal/stats"
)

// MultivariateDetector is Tier 3: an isolation-style scorer over a
// normalized feature vector of the latest point. It catches contextual
// anomalies a univariate test misses, e.g. a value that is ordinary in
// absolute terms but wrong for its day-of-period and recent change rate.
type MultivariateDetector struct {
	MinHistory int
	Period     int
}

// NewMultivariateDetector returns a Tier-3 detector.
func NewMultivariateDetector(minHistory, period int) *MultivariateDetector {
	return &MultivariateDetector{MinHistory: minHistory, Period: period}
}

func (d *MultivariateDetector) Name() string { return "multivariate_isolation" }

// featureVector describes the latest point in context.
type featureVector struct {
	levelZ      float64 // robust z of the raw value
	changeRate  float64 // z of the last first-difference
	varRatio    float64 // recent variance vs full-window variance
	phaseZ      float64 // z against same-phase historical values
	crossSpread float64 // deviation vs sibling KPI movement, 0 without snapshot
}

func (d *MultivariateDetector) Detect(history []domain.Point, ctx Context) (Result, error) {
	if len(history) < d.MinHistory {
		return Result{}, fmt.Errorf("%s: %w: have %d points, need %d",
			d.Name(), ErrInsufficientHistory, len(history), d.MinHistory)
	}

	values := make([]float64, len(history))
	for i, p := range history {
		values[i] = p.Value
	}
	latest := values[len(values)-1]
	trailing := values[:len(values)-1]

	fv := featureVector{
		levelZ: stats.RobustZScore(latest, trailing),
	}

	diffs := stats.Diff(values)
	if len(diffs) > 1 {
		fv.changeRate = stats.RobustZScore(diffs[len(diffs)-1], diffs[:len(diffs)-1])
	}

	recent := values[max(0, len(values)-d.Period):]
	fullSD := stats.StdDev(trailing)
	if fullSD > 0 {
		fv.varRatio = stats.StdDev(recent) / fullSD
	}

	// Same-phase history: every point with the same day-of-period index.
	phase := (len(values) - 1) % d.Period
	var samePhase []float64
	for i := phase; i < len(values)-1; i += d.Period {
		samePhase = append(samePhase, values[i])
	}
	if len(samePhase) >= 3 {
		fv.phaseZ = stats.RobustZScore(latest, samePhase)
	}

	if len(ctx.CrossKPI) > 0 {
		fv.crossSpread = crossDeviation(values, ctx.CrossKPI)
	}

	score := isolationScore(fv)

	return Result{
		Method:     d.Name(),
		Score:      score,
		Expected:   stats.Median(trailing),
		Confidence: 0.75,
		Detail: fmt.Sprintf("level_z=%.2f change_z=%.2f var_ratio=%.2f phase_z=%.2f cross=%.2f",
			fv.levelZ, fv.changeRate, fv.varRatio, fv.phaseZ, fv.crossSpread),
	}, nil
}

// crossDeviation measures how far this KPI's latest fractional move sits
// from the distribution of sibling-KPI moves in the same window.
func crossDeviation(values []float64, cross map[string][]float64) float64 {
	ownMove := lastMove(values)
	var moves []float64
	for _, sibling := range cross {
		if len(sibling) >= 2 {
			moves = append(moves, lastMove(sibling))
		}
	}
	if len(moves) < 3 {
		return 0
	}
	return stats.RobustZScore(ownMove, moves)
}

func lastMove(values []float64) float64 {
	n := len(values)
	if n < 2 || values[n-2] == 0 {
		return 0
	}
	return (values[n-1] - values[n-2]) / math.Abs(values[n-2])
}

// isolationScore maps the feature vector onto [0,1). Each feature
// contributes an isolation depth proxy 1-exp(-|z|/2); extreme features
// dominate the average, mimicking short isolation paths.
func isolationScore(fv featureVector) float64 {
	feats := []float64{
		math.Abs(fv.levelZ),
		math.Abs(fv.changeRate),
		math.Abs(fv.phaseZ),
		math.Abs(fv.crossSpread),
		varianceExtremity(fv.varRatio),
	}

	sum, maxDepth := 0.0, 0.0
	for _, f := range feats {
		depth := 1 - math.Exp(-f/2)
		sum += depth
		if depth > maxDepth {
			maxDepth = depth
		}
	}
	mean := sum / float64(len(feats))

	// Blend mean and max so one strongly isolated feature is enough.
	return stats.Clamp(0.5*mean+0.5*maxDepth, 0, 1)
}

// varianceExtremity treats both collapsed and exploded recent variance
// as abnormal.
func varianceExtremity(ratio float64) float64 {
	if ratio <= 0 {
		return 0
	}
	return math.Abs(math.Log2(ratio))
}
