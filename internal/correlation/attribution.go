package correlation

import (
	"sort"

	"github.com/founderpulse/insights/internal/domain"
	"github.com/founderpulse/insights/internal/stats"
)

// Attribution assigns a share of a joint multivariate anomaly to one KPI.
type Attribution struct {
	KPI   string  `json:"kpi"`
	Share float64 `json:"share"` // 0.0-1.0, shares sum to 1 when any signal exists
}

// JointAnomalyScore measures how unusual the latest cross-KPI snapshot
// is as a whole: the sum of squared robust z-scores of each KPI's
// latest value against its own history.
func JointAnomalyScore(series map[string]domain.KPISeries) float64 {
	total := 0.0
	for _, s := range series {
		z := latestZ(s)
		total += z * z
	}
	return total
}

// AttributeJointAnomaly scores each KPI by leave-one-out perturbation:
// how much does the joint score fall when this KPI's contribution is
// removed? KPIs whose removal barely changes the joint score get a
// near-zero share.
func AttributeJointAnomaly(series map[string]domain.KPISeries) []Attribution {
	joint := JointAnomalyScore(series)
	if joint == 0 {
		return nil
	}

	out := make([]Attribution, 0, len(series))
	for name, s := range series {
		z := latestZ(s)
		drop := z * z // removing the KPI removes exactly its term
		out = append(out, Attribution{KPI: name, Share: drop / joint})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Share != out[j].Share {
			return out[i].Share > out[j].Share
		}
		return out[i].KPI < out[j].KPI
	})
	return out
}

func latestZ(s domain.KPISeries) float64 {
	values := s.Values()
	if len(values) < 3 {
		return 0
	}
	return stats.RobustZScore(values[len(values)-1], values[:len(values)-1])
}
