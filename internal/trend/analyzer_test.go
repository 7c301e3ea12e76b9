package trend

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/founderpulse/insights/internal/config"
	"github.com/founderpulse/insights/internal/domain"
)

func dailySeries(kpi string, days int, gen func(day int) float64) domain.KPISeries {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	pts := make([]domain.Point, days)
	for i := 0; i < days; i++ {
		pts[i] = domain.Point{Timestamp: start.Add(time.Duration(i) * 24 * time.Hour), Value: gen(i)}
	}
	return domain.KPISeries{Tenant: "t1", KPIName: kpi, Frequency: domain.FrequencyDaily, Points: pts}
}

func newAnalyzer() *Analyzer {
	return NewAnalyzer(config.Default().Trend)
}

func TestAnalyze_ClearWeeklyDecline(t *testing.T) {
	// Prior week near 1000, trailing week near 600: down, significant.
	rng := rand.New(rand.NewSource(5))
	series := dailySeries("mrr", 14, func(day int) float64 {
		base := 1000.0
		if day >= 7 {
			base = 600
		}
		return base + rng.NormFloat64()*10
	})

	tr, err := newAnalyzer().Analyze(series, domain.TimeframeWoW)
	require.NoError(t, err)

	assert.Equal(t, domain.DirectionDown, tr.Direction)
	assert.True(t, tr.Significant)
	assert.Less(t, tr.PValue, 0.05)
	assert.Equal(t, domain.EffectLarge, tr.EffectSize)
	assert.InDelta(t, -0.4, tr.Magnitude, 0.05)
}

func TestAnalyze_FlatWhenChangeTooSmall(t *testing.T) {
	// A consistent but sub-threshold 0.5% move stays flat.
	series := dailySeries("mrr", 14, func(day int) float64 {
		if day >= 7 {
			return 1005 + float64(day%3)
		}
		return 1000 + float64(day%3)
	})

	tr, err := newAnalyzer().Analyze(series, domain.TimeframeWoW)
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionFlat, tr.Direction)
}

func TestAnalyze_FlatWhenNotSignificant(t *testing.T) {
	// Means differ by >2% but the windows are too noisy to trust it.
	rng := rand.New(rand.NewSource(9))
	series := dailySeries("signups", 14, func(day int) float64 {
		base := 100.0
		if day >= 7 {
			base = 104
		}
		return base + rng.NormFloat64()*25
	})

	tr, err := newAnalyzer().Analyze(series, domain.TimeframeWoW)
	require.NoError(t, err)
	require.False(t, tr.Significant)
	assert.NotEqual(t, domain.DirectionUp, tr.Direction)
	assert.NotEqual(t, domain.DirectionDown, tr.Direction)
}

func TestAnalyze_Idempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	series := dailySeries("mrr", 60, func(day int) float64 {
		return 1000 + float64(day)*3 + rng.NormFloat64()*20
	})

	a := newAnalyzer()
	first, err := a.Analyze(series, domain.TimeframeMoM)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := a.Analyze(series, domain.TimeframeMoM)
		require.NoError(t, err)
		assert.Equal(t, first, again, "identical input must classify identically")
	}
}

func TestAnalyze_MediumTermLinearFit(t *testing.T) {
	series := dailySeries("mrr", 60, func(day int) float64 {
		return 1000 + 5*float64(day)
	})

	tr, err := newAnalyzer().Analyze(series, domain.TimeframeMoM)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, tr.Slope, 0.01)
	assert.InDelta(t, 1.0, tr.FitQuality, 0.01)
	assert.Equal(t, domain.DirectionUp, tr.Direction)
}

func TestAnalyze_LongTermCompoundGrowth(t *testing.T) {
	// Steady exponential growth: the QoQ compounding rate should land
	// near the true monthly rate.
	series := dailySeries("arr", 180, func(day int) float64 {
		return 1000 * math.Pow(1.05, float64(day)/30)
	})

	tr, err := newAnalyzer().Analyze(series, domain.TimeframeQoQ)
	require.NoError(t, err)
	assert.Greater(t, tr.GrowthRate, 0.03)
	assert.Less(t, tr.GrowthRate, 0.08)
}

func TestAnalyze_NearZeroBaselineIndeterminate(t *testing.T) {
	series := dailySeries("refunds", 14, func(day int) float64 {
		if day >= 7 {
			return 12
		}
		return 0
	})

	tr, err := newAnalyzer().Analyze(series, domain.TimeframeWoW)
	require.NoError(t, err)
	assert.True(t, tr.Indeterminate)
	assert.Equal(t, domain.DirectionFlat, tr.Direction)
	assert.False(t, math.IsInf(tr.Magnitude, 0))
}

func TestAnalyze_VolatileWindow(t *testing.T) {
	series := dailySeries("traffic", 14, func(day int) float64 {
		if day%2 == 0 {
			return 2000
		}
		return 200
	})

	tr, err := newAnalyzer().Analyze(series, domain.TimeframeWoW)
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionVolatile, tr.Direction)
}

func TestAnalyze_Acceleration(t *testing.T) {
	accel := dailySeries("mrr", 60, func(day int) float64 {
		return 1000 + math.Pow(float64(day), 2)
	})
	tr, err := newAnalyzer().Analyze(accel, domain.TimeframeMoM)
	require.NoError(t, err)
	assert.Equal(t, domain.Accelerating, tr.Acceleration)

	decel := dailySeries("mrr", 60, func(day int) float64 {
		return 1000 + 500*math.Sqrt(float64(day))
	})
	tr, err = newAnalyzer().Analyze(decel, domain.TimeframeMoM)
	require.NoError(t, err)
	assert.Equal(t, domain.Decelerating, tr.Acceleration)

	steady := dailySeries("mrr", 60, func(day int) float64 {
		return 1000 + 5*float64(day)
	})
	tr, err = newAnalyzer().Analyze(steady, domain.TimeframeMoM)
	require.NoError(t, err)
	assert.Equal(t, domain.Steady, tr.Acceleration)
}

func TestAnalyze_InsufficientHistory(t *testing.T) {
	series := dailySeries("mrr", 10, func(int) float64 { return 100 })
	_, err := newAnalyzer().Analyze(series, domain.TimeframeWoW)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestAnalyze_TrailingWeekAfterCrash(t *testing.T) {
	// Companion to the detector crash scenario: after a 40% drop the
	// trailing-week trend reports down with significance.
	rng := rand.New(rand.NewSource(7))
	series := dailySeries("mrr", 90, func(day int) float64 {
		base := 1000 * math.Pow(1.02, float64(day)/30)
		v := base + rng.NormFloat64()*5
		if day >= 85 {
			v *= 0.6
		}
		return v
	})

	tr, err := newAnalyzer().Analyze(series, domain.TimeframeWoW)
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionDown, tr.Direction)
	assert.True(t, tr.Significant)
}
