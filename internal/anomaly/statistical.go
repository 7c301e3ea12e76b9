package anomaly

import (
	"fmt"
	"math"

	"github.com/founderpulse/insights/internal/domain"
	"github.com/founderpulse/insights/internal/stats"
)

// StatisticalDetector is the Tier-1 fast path: a median/MAD z-score of
// the latest point against the trailing history. It catches extreme
// deviations cheaply and is robust to prior outliers in the window.
type StatisticalDetector struct {
	MinHistory int
}

// NewStatisticalDetector returns a Tier-1 detector with the given
// minimum history length.
func NewStatisticalDetector(minHistory int) *StatisticalDetector {
	return &StatisticalDetector{MinHistory: minHistory}
}

func (d *StatisticalDetector) Name() string { return "statistical_mad" }

// Detect scores the last point of history. The cutoff comes from the
// tenant's sensitivity profile.
func (d *StatisticalDetector) Detect(history []domain.Point, ctx Context) (Result, error) {
	if len(history) < d.MinHistory {
		return Result{}, fmt.Errorf("%s: %w: have %d points, need %d",
			d.Name(), ErrInsufficientHistory, len(history), d.MinHistory)
	}

	latest := history[len(history)-1].Value
	trailing := make([]float64, 0, len(history)-1)
	for _, p := range history[:len(history)-1] {
		trailing = append(trailing, p.Value)
	}

	z := stats.RobustZScore(latest, trailing)
	cutoff := ctx.Profile.ZScoreCutoff
	if cutoff <= 0 {
		cutoff = 3.5
	}

	// Map |z| onto [0,1): hits 0.5 at the cutoff, saturates beyond 2x.
	score := stats.Clamp(math.Abs(z)/(2*cutoff), 0, 1)

	return Result{
		Method:     d.Name(),
		Score:      score,
		Expected:   stats.Median(trailing),
		Confidence: 0.9,
		Detail:     fmt.Sprintf("robust z=%.2f against cutoff %.1f", z, cutoff),
	}, nil
}
