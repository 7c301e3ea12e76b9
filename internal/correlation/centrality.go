package correlation

import (
	"math"
	"sort"
)

// Centrality reports how dominant and how bridging each KPI is in the
// dependency graph.
type Centrality struct {
	KPI         string  `json:"kpi"`
	PageRank    float64 `json:"pagerank"`
	Betweenness float64 `json:"betweenness"`
}

// PageRank runs the standard power iteration over edge weights
// |strength|, so strongly correlated dependencies dominate.
func PageRank(g *Graph, damping float64, iters int) []float64 {
	n := len(g.Nodes)
	if n == 0 {
		return nil
	}

	// Out-weight totals per node.
	outWeight := make([]float64, n)
	for _, e := range g.Edges {
		outWeight[e.From] += math.Abs(e.Data.Strength)
	}

	rank := make([]float64, n)
	next := make([]float64, n)
	for i := range rank {
		rank[i] = 1.0 / float64(n)
	}

	for it := 0; it < iters; it++ {
		base := (1 - damping) / float64(n)
		for i := range next {
			next[i] = base
		}
		for _, e := range g.Edges {
			if outWeight[e.From] == 0 {
				continue
			}
			share := math.Abs(e.Data.Strength) / outWeight[e.From]
			next[e.To] += damping * rank[e.From] * share
		}
		// Dangling nodes redistribute uniformly.
		dangling := 0.0
		for i := range rank {
			if outWeight[i] == 0 {
				dangling += rank[i]
			}
		}
		for i := range next {
			next[i] += damping * dangling / float64(n)
		}
		rank, next = next, rank
	}
	return rank
}

// Betweenness computes unweighted betweenness centrality with Brandes'
// accumulation. The graphs here are small (tens of KPIs), so the O(V·E)
// pass per source is plenty fast.
func Betweenness(g *Graph) []float64 {
	n := len(g.Nodes)
	bc := make([]float64, n)

	adj := make([][]int, n)
	for _, e := range g.Edges {
		adj[e.From] = append(adj[e.From], e.To)
	}

	for s := 0; s < n; s++ {
		// BFS from s.
		sigma := make([]float64, n) // shortest path counts
		dist := make([]int, n)
		for i := range dist {
			dist[i] = -1
		}
		preds := make([][]int, n)
		sigma[s] = 1
		dist[s] = 0
		queue := []int{s}
		var order []int

		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			order = append(order, v)
			for _, w := range adj[v] {
				if dist[w] < 0 {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					preds[w] = append(preds[w], v)
				}
			}
		}

		// Back-propagate dependencies.
		delta := make([]float64, n)
		for i := len(order) - 1; i >= 0; i-- {
			w := order[i]
			for _, v := range preds[w] {
				delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
			}
			if w != s {
				bc[w] += delta[w]
			}
		}
	}
	return bc
}

// Centralities returns per-KPI centrality, sorted by PageRank descending
// with the KPI name as the deterministic tiebreak.
func Centralities(g *Graph, damping float64, iters int) []Centrality {
	pr := PageRank(g, damping, iters)
	bt := Betweenness(g)

	out := make([]Centrality, len(g.Nodes))
	for i, node := range g.Nodes {
		out[i] = Centrality{KPI: node.KPI, PageRank: pr[i], Betweenness: bt[i]}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PageRank != out[j].PageRank {
			return out[i].PageRank > out[j].PageRank
		}
		return out[i].KPI < out[j].KPI
	})
	return out
}
