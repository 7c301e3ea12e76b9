package correlation

import (
	"math"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/founderpulse/insights/internal/config"
	"github.com/founderpulse/insights/internal/domain"
	"github.com/founderpulse/insights/internal/stats"
)

// Engine builds the per-run dependency graph from the KPI matrix.
type Engine struct {
	cfg config.CorrelationConfig
}

// NewEngine returns a correlation engine with the configured bounds.
func NewEngine(cfg config.CorrelationConfig) *Engine {
	return &Engine{cfg: cfg}
}

// BuildGraph scans every ordered KPI pair, searches the bounded lag
// window for the strongest cross-correlation, and admits a directed
// edge only when both the correlation floor and the lagged-causality
// test pass. Lag 0 never yields an edge: with no temporal precedence
// there is no direction to assign.
func (e *Engine) BuildGraph(series map[string]domain.KPISeries) *Graph {
	g := NewGraph()

	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	sort.Strings(names) // deterministic construction order
	for _, name := range names {
		g.AddNode(name)
	}

	for _, src := range names {
		for _, dst := range names {
			if src == dst {
				continue
			}
			edge, ok := e.testPair(series[src], series[dst])
			if !ok {
				continue
			}
			from, _ := g.NodeID(src)
			to, _ := g.NodeID(dst)
			g.AddEdge(from, to, edge)
		}
	}

	log.Debug().Int("kpis", len(names)).Int("edges", len(g.Edges)).Msg("dependency graph built")
	return g
}

// BestLag searches lags 1..maxLag for the shift of src that best
// predicts dst, returning the lag and the Pearson correlation there.
func (e *Engine) BestLag(src, dst []float64) (int, float64) {
	bestLag, bestCorr := 0, 0.0
	for lag := 1; lag <= e.cfg.MaxLagDays; lag++ {
		a, b := alignLagged(src, dst, lag)
		if len(a) < e.cfg.MinOverlap {
			continue
		}
		r := stats.Pearson(a, b)
		if math.Abs(r) > math.Abs(bestCorr) {
			bestCorr = r
			bestLag = lag
		}
	}
	return bestLag, bestCorr
}

// testPair runs the full admission gate for a directed src→dst edge.
func (e *Engine) testPair(src, dst domain.KPISeries) (domain.CorrelationEdge, bool) {
	sv, dv := src.Values(), dst.Values()

	lag, corr := e.BestLag(sv, dv)
	if lag == 0 || math.Abs(corr) < e.cfg.MinCorrelation {
		return domain.CorrelationEdge{}, false
	}

	a, b := alignLagged(sv, dv, lag)
	rank := stats.Spearman(a, b)

	p := e.causalityPValue(sv, dv, lag)
	if p >= e.cfg.CausalityP {
		return domain.CorrelationEdge{}, false
	}

	return domain.CorrelationEdge{
		SourceKPI:   src.KPIName,
		TargetKPI:   dst.KPIName,
		LagDays:     lag,
		Strength:    corr,
		Correlation: corr,
		RankCorr:    rank,
		PValue:      p,
		Confidence:  stats.Clamp(math.Abs(corr)*(1-p), 0, 1),
		Method:      "lagged_granger",
	}, true
}

// causalityPValue is a Granger-style test: does adding src at the lag
// improve an autoregressive model of dst? Restricted model regresses
// dst on its own previous value; the unrestricted model adds the lagged
// src term. The residual improvement is F-tested.
func (e *Engine) causalityPValue(src, dst []float64, lag int) float64 {
	// Build aligned rows: dst[t] ~ dst[t-1] (+ src[t-lag]).
	start := lag
	if start < 1 {
		start = 1
	}
	var y, x1, x2 []float64
	for t := start; t < len(dst); t++ {
		if t-lag < 0 || t-lag >= len(src) {
			continue
		}
		y = append(y, dst[t])
		x1 = append(x1, dst[t-1])
		x2 = append(x2, src[t-lag])
	}
	n := len(y)
	if n < e.cfg.MinOverlap {
		return 1
	}

	rssR := residualSS(y, x1)
	rssU := residualSS2(y, x1, x2)
	if rssU <= 0 {
		rssU = math.SmallestNonzeroFloat64
	}

	dfU := n - 3 // intercept + two regressors
	if dfU < 1 {
		return 1
	}
	f := (rssR - rssU) / (rssU / float64(dfU))
	return stats.FTestPValue(f, 1, dfU)
}

// alignLagged pairs src[t-lag] with dst[t].
func alignLagged(src, dst []float64, lag int) (a, b []float64) {
	for t := lag; t < len(dst); t++ {
		if t-lag >= len(src) {
			break
		}
		a = append(a, src[t-lag])
		b = append(b, dst[t])
	}
	return a, b
}

// residualSS is the RSS of the one-regressor OLS y ~ 1 + x.
func residualSS(y, x []float64) float64 {
	xs := make([]float64, len(x))
	copy(xs, x)
	slope, _ := stats.LinearFit(xs, y)
	intercept := stats.Mean(y) - slope*stats.Mean(x)
	rss := 0.0
	for i := range y {
		r := y[i] - intercept - slope*x[i]
		rss += r * r
	}
	return rss
}

// residualSS2 is the RSS of the two-regressor OLS y ~ 1 + x1 + x2,
// solved by the 2x2 normal equations on centered data.
func residualSS2(y, x1, x2 []float64) float64 {
	my, m1, m2 := stats.Mean(y), stats.Mean(x1), stats.Mean(x2)

	var s11, s22, s12, s1y, s2y float64
	for i := range y {
		c1, c2, cy := x1[i]-m1, x2[i]-m2, y[i]-my
		s11 += c1 * c1
		s22 += c2 * c2
		s12 += c1 * c2
		s1y += c1 * cy
		s2y += c2 * cy
	}

	det := s11*s22 - s12*s12
	if math.Abs(det) < 1e-12 {
		// Collinear regressors: fall back to the better single fit.
		r1 := residualSS(y, x1)
		r2 := residualSS(y, x2)
		return math.Min(r1, r2)
	}
	b1 := (s22*s1y - s12*s2y) / det
	b2 := (s11*s2y - s12*s1y) / det
	a := my - b1*m1 - b2*m2

	rss := 0.0
	for i := range y {
		r := y[i] - a - b1*x1[i] - b2*x2[i]
		rss += r * r
	}
	return rss
}
