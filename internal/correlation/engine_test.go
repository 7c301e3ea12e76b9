package correlation

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

func dailySeries(kpi string, values []float64) domain.KPISeries {
	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	pts := make([]domain.Point, len(values))
	for i, v := range values {
		pts[i] = domain.Point{Timestamp: start.Add(time.Duration(i) * 24 * time.Hour), Value: v}
	}
	return domain.KPISeries{Tenant: "t1", KPIName: kpi, Frequency: domain.FrequencyDaily, Points: pts}
}

// shiftedPair builds KPI A as a noisy random walk and KPI B as A
// shifted forward by lag days plus independent noise.
func shiftedPair(days, lag int, noise float64, seed int64) (domain.KPISeries, domain.KPISeries) {
	rng := rand.New(rand.NewSource(seed))
	a := make([]float64, days)
	a[0] = 100
	for i := 1; i < days; i++ {
		a[i] = a[i-1] + rng.NormFloat64()*10
	}
	b := make([]float64, days)
	for i := 0; i < days; i++ {
		src := 100.0
		if i >= lag {
			src = a[i-lag]
		}
		b[i] = src*0.8 + rng.NormFloat64()*noise
	}
	return dailySeries("kpi_a", a), dailySeries("kpi_b", b)
}

func TestBestLag_RecoversKnownShift(t *testing.T) {
	eng := NewEngine(config.Default().Correlation)
	a, b := shiftedPair(120, 5, 2, 17)

	lag, corr := eng.BestLag(a.Values(), b.Values())
	assert.Equal(t, 5, lag, "the injected 5-day shift must be recovered")
	assert.Greater(t, math.Abs(corr), 0.6)
}

func TestBuildGraph_LeadingIndicatorEdge(t *testing.T) {
	eng := NewEngine(config.Default().Correlation)
	a, b := shiftedPair(120, 5, 2, 17)

	g := eng.BuildGraph(map[string]domain.KPISeries{"kpi_a": a, "kpi_b": b})

	var found *Edge
	for i := range g.Edges {
		if e := g.Edges[i]; e.Data.SourceKPI == "kpi_a" && e.Data.TargetKPI == "kpi_b" {
			found = &g.Edges[i]
		}
	}
	require.NotNil(t, found, "a→b edge must be admitted")
	assert.Equal(t, 5, found.Data.LagDays)
	assert.Greater(t, math.Abs(found.Data.Correlation), 0.6)
	assert.Less(t, found.Data.PValue, 0.05)
	assert.True(t, found.Data.Confidence > 0 && found.Data.Confidence <= 1)
}

func TestBuildGraph_EdgeInvariants(t *testing.T) {
	cfg := config.Default().Correlation
	eng := NewEngine(cfg)

	rng := rand.New(rand.NewSource(99))
	series := make(map[string]domain.KPISeries)
	names := []string{"mrr", "churn", "signups", "cac"}
	for _, name := range names {
		vals := make([]float64, 90)
		vals[0] = 50
		for i := 1; i < 90; i++ {
			vals[i] = vals[i-1] + rng.NormFloat64()*5
		}
		series[name] = dailySeries(name, vals)
	}

	g := eng.BuildGraph(series)
	for _, e := range g.Edges {
		assert.NotEqual(t, e.Data.SourceKPI, e.Data.TargetKPI, "no self-loops")
		assert.GreaterOrEqual(t, e.Data.LagDays, 0, "no negative lag")
		assert.LessOrEqual(t, e.Data.LagDays, cfg.MaxLagDays, "lag within bound")
	}
}

func TestBuildGraph_NoEdgeForIndependentSeries(t *testing.T) {
	eng := NewEngine(config.Default().Correlation)
	rngA := rand.New(rand.NewSource(1))
	rngB := rand.New(rand.NewSource(2))

	a := make([]float64, 100)
	b := make([]float64, 100)
	for i := range a {
		a[i] = rngA.NormFloat64()
		b[i] = rngB.NormFloat64()
	}

	g := eng.BuildGraph(map[string]domain.KPISeries{
		"white_a": dailySeries("white_a", a),
		"white_b": dailySeries("white_b", b),
	})
	assert.Empty(t, g.Edges, "independent noise should not correlate")
}

func TestBuildGraph_Deterministic(t *testing.T) {
	eng := NewEngine(config.Default().Correlation)
	a, b := shiftedPair(120, 3, 2, 31)
	in := map[string]domain.KPISeries{"kpi_a": a, "kpi_b": b}

	g1 := eng.BuildGraph(in)
	g2 := eng.BuildGraph(in)
	assert.Equal(t, g1.Nodes, g2.Nodes)
	assert.Equal(t, g1.Edges, g2.Edges)
}

func TestCentralities_HubDominates(t *testing.T) {
	g := NewGraph()
	hub := g.AddNode("mrr")
	for _, name := range []string{"signups", "churn", "cac"} {
		id := g.AddNode(name)
		g.AddEdge(id, hub, domain.CorrelationEdge{
			SourceKPI: name, TargetKPI: "mrr", LagDays: 3, Strength: 0.8, Correlation: 0.8,
		})
	}

	cents := Centralities(g, 0.85, 50)
	require.Len(t, cents, 4)
	assert.Equal(t, "mrr", cents[0].KPI, "everything points at mrr")
}

func TestBetweenness_BridgeNode(t *testing.T) {
	g := NewGraph()
	a := g.AddNode("a")
	bridge := g.AddNode("bridge")
	c := g.AddNode("c")
	g.AddEdge(a, bridge, domain.CorrelationEdge{Strength: 0.7})
	g.AddEdge(bridge, c, domain.CorrelationEdge{Strength: 0.7})

	bt := Betweenness(g)
	assert.Greater(t, bt[bridge], bt[a])
	assert.Greater(t, bt[bridge], bt[c])
}

func TestTraceRootCause_RanksPredecessor(t *testing.T) {
	g := NewGraph()
	signups := g.AddNode("signups")
	mrr := g.AddNode("mrr")
	churn := g.AddNode("churn")
	g.AddEdge(signups, mrr, domain.CorrelationEdge{
		SourceKPI: "signups", TargetKPI: "mrr", LagDays: 5, Correlation: 0.85,
	})
	g.AddEdge(churn, mrr, domain.CorrelationEdge{
		SourceKPI: "churn", TargetKPI: "mrr", LagDays: 2, Correlation: -0.6,
	})

	day := func(d int) time.Time {
		return time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(d) * 24 * time.Hour)
	}
	effect := domain.Anomaly{KPIName: "mrr", Timestamp: day(10), Direction: domain.DirectionDown, Confidence: 0.9}
	anomalies := []domain.Anomaly{
		{KPIName: "signups", Timestamp: day(5), Direction: domain.DirectionDown, Confidence: 0.8},
		{KPIName: "churn", Timestamp: day(9), Direction: domain.DirectionUp, Confidence: 0.5},
		// Wrong timing: far outside the edge lag window.
		{KPIName: "churn", Timestamp: day(1), Direction: domain.DirectionUp, Confidence: 0.99},
	}

	causes := TraceRootCause(g, effect, anomalies)
	require.Len(t, causes, 2)
	assert.Equal(t, "signups", causes[0].CauseKPI, "0.85*0.8 beats 0.6*0.5")
	assert.InDelta(t, 0.68, causes[0].Confidence, 1e-9)
	assert.Equal(t, "churn", causes[1].CauseKPI)

	expl := ExplainRootCauses(effect, causes)
	assert.Contains(t, expl, "signups")
	assert.Contains(t, expl, "mrr")
}

func TestTraceRootCause_NoPredecessorAnomaly(t *testing.T) {
	g := NewGraph()
	g.AddNode("mrr")
	effect := domain.Anomaly{KPIName: "mrr", Timestamp: time.Now()}

	causes := TraceRootCause(g, effect, nil)
	assert.Empty(t, causes)
	assert.Contains(t, ExplainRootCauses(effect, causes), "No upstream KPI")
}

func TestEvaluatePatterns_FractionalMatch(t *testing.T) {
	patterns := []config.Pattern{
		{
			Name: "churn_crisis",
			Conditions: []config.PatternCondition{
				{KPI: "active_users", Direction: "down"},
				{KPI: "support_tickets", Direction: "up"},
				{KPI: "churn_rate", Direction: "up"},
			},
		},
	}
	trends := map[string]domain.Trend{
		"active_users":    {Direction: domain.DirectionDown},
		"support_tickets": {Direction: domain.DirectionUp},
		"churn_rate":      {Direction: domain.DirectionFlat},
	}

	matches := EvaluatePatterns(patterns, trends, 0.6)
	require.Len(t, matches, 1)
	assert.True(t, matches[0].Matched, "2/3 >= 0.6")
	assert.InDelta(t, 2.0/3.0, matches[0].Fraction, 1e-9)

	matches = EvaluatePatterns(patterns, trends, 0.75)
	assert.False(t, matches[0].Matched, "2/3 < 0.75")
	assert.InDelta(t, 2.0/3.0, matches[0].Fraction, 1e-9)
}

func TestEvaluatePatterns_SkipsMalformed(t *testing.T) {
	patterns := []config.Pattern{{Name: "empty"}}
	matches := EvaluatePatterns(patterns, nil, 0.5)
	assert.Empty(t, matches, "a pattern without conditions is skipped, not fatal")
}

func TestAttributeJointAnomaly_LeaveOneOut(t *testing.T) {
	quiet := make([]float64, 30)
	spiky := make([]float64, 30)
	for i := range quiet {
		quiet[i] = 100 + float64(i%3)
		spiky[i] = 100 + float64(i%3)
	}
	spiky[29] = 400 // only this KPI is anomalous

	series := map[string]domain.KPISeries{
		"quiet": dailySeries("quiet", quiet),
		"spiky": dailySeries("spiky", spiky),
	}

	attrs := AttributeJointAnomaly(series)
	require.Len(t, attrs, 2)
	assert.Equal(t, "spiky", attrs[0].KPI)
	assert.Greater(t, attrs[0].Share, 0.9)

	total := 0.0
	for _, a := range attrs {
		total += a.Share
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestGraph_RebuildAfterDeserialize(t *testing.T) {
	g := NewGraph()
	g.AddNode("a")
	g.AddNode("b")

	clone := &Graph{Nodes: g.Nodes, Edges: g.Edges}
	clone.Rebuild()
	id, ok := clone.NodeID("b")
	require.True(t, ok)
	assert.Equal(t, 1, id)
}
