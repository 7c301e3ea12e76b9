package correlation

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/founderpulse/insights/internal/domain"
)

// lagSlackDays tolerates imprecision between an edge's fitted lag and
// the observed gap between the two anomalies.
const lagSlackDays = 2

// TraceRootCause walks the incoming edges of the anomalous KPI and
// ranks predecessors whose own anomaly precedes the effect by roughly
// the edge's lag. Candidate confidence is |correlation| times the
// predecessor's anomaly confidence.
func TraceRootCause(g *Graph, effect domain.Anomaly, anomalies []domain.Anomaly) []domain.RootCause {
	id, ok := g.NodeID(effect.KPIName)
	if !ok {
		return nil
	}

	byKPI := make(map[string][]domain.Anomaly)
	for _, a := range anomalies {
		byKPI[a.KPIName] = append(byKPI[a.KPIName], a)
	}

	var causes []domain.RootCause
	for _, ei := range g.InEdges(id) {
		edge := g.Edges[ei]
		causeKPI := g.Nodes[edge.From].KPI

		for _, prior := range byKPI[causeKPI] {
			gap := daysBetween(prior.Timestamp, effect.Timestamp)
			if gap < 0 {
				continue // predecessor anomaly is not actually prior
			}
			if absInt(gap-edge.Data.LagDays) > lagSlackDays {
				continue
			}
			causes = append(causes, domain.RootCause{
				EffectKPI:  effect.KPIName,
				CauseKPI:   causeKPI,
				LagDays:    edge.Data.LagDays,
				Confidence: math.Abs(edge.Data.Correlation) * prior.Confidence,
				Explanation: fmt.Sprintf("%s moved %s %d day(s) earlier (correlation %.2f at lag %d)",
					causeKPI, prior.Direction, gap, edge.Data.Correlation, edge.Data.LagDays),
			})
		}
	}

	sort.Slice(causes, func(i, j int) bool {
		if causes[i].Confidence != causes[j].Confidence {
			return causes[i].Confidence > causes[j].Confidence
		}
		return causes[i].CauseKPI < causes[j].CauseKPI
	})
	return causes
}

// ExplainRootCauses names the top one or two candidates in prose.
func ExplainRootCauses(effect domain.Anomaly, causes []domain.RootCause) string {
	if len(causes) == 0 {
		return fmt.Sprintf("No upstream KPI explains the %s anomaly in %s.", effect.Direction, effect.KPIName)
	}
	top := causes
	if len(top) > 2 {
		top = top[:2]
	}
	parts := make([]string, len(top))
	for i, c := range top {
		parts[i] = c.Explanation
	}
	return fmt.Sprintf("Likely cause of the %s anomaly in %s: %s.",
		effect.Direction, effect.KPIName, strings.Join(parts, "; also "))
}

func daysBetween(earlier, later time.Time) int {
	return int(later.Sub(earlier).Hours() / 24)
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
