package anomaly

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/founderpulse/insights/internal/config"
	"github.com/founderpulse/insights/internal/domain"
	"github.com/founderpulse/insights/internal/stats"
)

// Ensemble coordinates the detector tiers over one KPI series. Tiers
// that cannot run (insufficient history, fit failure) are skipped and
// their weight redistributed; the ensemble only fails when no tier ran.
type Ensemble struct {
	cfg        config.DetectorConfig
	detectors  []Detector
	weights    map[string]float64
	thresholds *ThresholdStore
}

// NewEnsemble builds the standard three-tier ensemble from config.
func NewEnsemble(cfg config.DetectorConfig, cache ModelCache, thresholds *ThresholdStore) *Ensemble {
	return &Ensemble{
		cfg: cfg,
		detectors: []Detector{
			NewStatisticalDetector(cfg.MinHistory),
			NewSeasonalDetector(cfg.SeasonalMinHistory, cfg.SeasonPeriod, cfg.RefitAfter.Std(), cfg.RefitErrorRatio, cache),
			NewMultivariateDetector(cfg.MinHistory, cfg.SeasonPeriod),
		},
		weights: map[string]float64{
			"statistical_mad":        cfg.Weights.Statistical,
			"seasonal_forecast":      cfg.Weights.Seasonal,
			"multivariate_isolation": cfg.Weights.Multivariate,
		},
		thresholds: thresholds,
	}
}

// ErrNoDetectorRan means every tier skipped; the caller degrades to a
// population prior rather than reporting an anomaly.
var ErrNoDetectorRan = errors.New("no detector tier could run")

// Detect evaluates the latest point of the series. A nil Anomaly with
// nil error means the point was scored below the detection threshold.
func (e *Ensemble) Detect(series domain.KPISeries, ctx Context) (*domain.Anomaly, error) {
	filled, nFilled := FillGaps(series.Points, e.cfg.MaxGapFill)
	if len(filled) == 0 {
		return nil, fmt.Errorf("kpi %s: %w", series.KPIName, ErrInsufficientHistory)
	}

	var (
		weightSum, scoreSum, confSum float64
		expected                     float64
		methods                      []string
		details                      []string
	)
	for _, det := range e.detectors {
		res, err := det.Detect(filled, ctx)
		if err != nil {
			if errors.Is(err, ErrInsufficientHistory) || errors.Is(err, ErrModelFit) {
				log.Debug().Str("tenant", ctx.Tenant).Str("kpi", ctx.KPI).
					Str("tier", det.Name()).Err(err).Msg("detector tier skipped")
				continue
			}
			return nil, fmt.Errorf("tier %s: %w", det.Name(), err)
		}
		w := e.weights[res.Method]
		weightSum += w
		scoreSum += w * res.Score
		confSum += w * res.Confidence
		if res.Method == "seasonal_forecast" || expected == 0 {
			expected = res.Expected
		}
		methods = append(methods, res.Method)
		details = append(details, res.Detail)
	}

	if weightSum == 0 {
		return nil, fmt.Errorf("kpi %s: %w", series.KPIName, ErrNoDetectorRan)
	}

	combined := scoreSum / weightSum
	confidence := confSum / weightSum

	// Degrade confidence for interpolated inputs and for missing tiers,
	// never fabricate certainty the data cannot support.
	if nFilled > 0 {
		confidence *= 1 - stats.Clamp(0.1*float64(nFilled), 0, 0.4)
	}
	confidence *= weightSum // weightSum < 1 when tiers were skipped
	confidence = stats.Clamp(confidence, 0, 1)

	threshold := e.thresholdFor(ctx)
	if combined < threshold {
		return nil, nil
	}

	latest := filled[len(filled)-1]
	direction := domain.DirectionUp
	if latest.Value < expected {
		direction = domain.DirectionDown
	}
	magnitude := 0.0
	if expected != 0 {
		magnitude = math.Abs(latest.Value-expected) / math.Abs(expected)
	}

	sort.Strings(methods)
	return &domain.Anomaly{
		Tenant:      ctx.Tenant,
		KPIName:     series.KPIName,
		Timestamp:   latest.Timestamp,
		Value:       latest.Value,
		Expected:    expected,
		Magnitude:   magnitude,
		Direction:   direction,
		Severity:    bucketSeverity(combined),
		Confidence:  confidence,
		Methods:     methods,
		Explanation: buildExplanation(series.KPIName, latest, expected, direction, details),
	}, nil
}

// thresholdFor resolves precedence: static per-KPI override, then the
// adaptive state scaled by the sensitivity profile.
func (e *Ensemble) thresholdFor(ctx Context) float64 {
	if t, ok := e.cfg.StaticThresholds[ctx.KPI]; ok && t.Threshold > 0 {
		return t.Threshold
	}
	base := e.thresholds.Get(ctx.Tenant, ctx.KPI).Threshold
	scale := ctx.Profile.ThresholdScale
	if scale <= 0 {
		scale = 1
	}
	return stats.Clamp(base*scale, thresholdFloor, thresholdCeil)
}

// bucketSeverity maps the combined ensemble score to a severity bucket.
func bucketSeverity(score float64) domain.Severity {
	switch {
	case score >= 0.85:
		return domain.SeverityCritical
	case score >= 0.70:
		return domain.SeverityHigh
	case score >= 0.55:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

func buildExplanation(kpi string, latest domain.Point, expected float64, dir domain.Direction, details []string) string {
	verb := "above"
	if dir == domain.DirectionDown {
		verb = "below"
	}
	return fmt.Sprintf("%s was %.2f on %s, %s the expected %.2f (%s)",
		kpi, latest.Value, latest.Timestamp.Format("2006-01-02"), verb, expected,
		strings.Join(details, "; "))
}

// FillGaps interpolates runs of missing daily points up to maxGap long.
// Longer gaps are left as-is: the series simply continues after them,
// and downstream confidence reflects the fill count returned.
func FillGaps(points []domain.Point, maxGap int) ([]domain.Point, int) {
	if len(points) < 2 {
		return points, 0
	}
	out := make([]domain.Point, 0, len(points))
	out = append(out, points[0])
	filled := 0
	for i := 1; i < len(points); i++ {
		prev := points[i-1]
		cur := points[i]
		gapDays := int(cur.Timestamp.Sub(prev.Timestamp).Hours()/24) - 1
		if gapDays > 0 && gapDays <= maxGap {
			step := (cur.Value - prev.Value) / float64(gapDays+1)
			for g := 1; g <= gapDays; g++ {
				out = append(out, domain.Point{
					Timestamp: prev.Timestamp.Add(time.Duration(g) * 24 * time.Hour),
					Value:     prev.Value + step*float64(g),
				})
				filled++
			}
		}
		out = append(out, cur)
	}
	return out, filled
}
