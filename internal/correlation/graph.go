// Package correlation builds the directed KPI dependency graph and the
// analyses on top of it: leading indicators, centrality, root-cause
// tracing, scenario patterns, and joint-anomaly attribution.
package correlation

import (
	"github.com/founderpulse/insights/internal/domain"
)

// Graph is an arena of nodes and edges addressed by index. No pointer
// links: the whole graph serializes directly and concurrent readers are
// safe once construction finishes.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
	byKPI map[string]int
}

// Node is one KPI in the dependency graph.
type Node struct {
	KPI string `json:"kpi"`
}

// Edge is a directed dependency with its arena endpoints.
type Edge struct {
	From int                    `json:"from"`
	To   int                    `json:"to"`
	Data domain.CorrelationEdge `json:"data"`
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{byKPI: make(map[string]int)}
}

// AddNode interns a KPI and returns its index.
func (g *Graph) AddNode(kpi string) int {
	if id, ok := g.byKPI[kpi]; ok {
		return id
	}
	id := len(g.Nodes)
	g.Nodes = append(g.Nodes, Node{KPI: kpi})
	g.byKPI[kpi] = id
	return id
}

// NodeID looks up a KPI's index; the second return is false when the
// KPI is not in the graph.
func (g *Graph) NodeID(kpi string) (int, bool) {
	id, ok := g.byKPI[kpi]
	return id, ok
}

// AddEdge appends a directed edge. Self-loops are rejected by the
// builder before reaching here.
func (g *Graph) AddEdge(from, to int, data domain.CorrelationEdge) {
	g.Edges = append(g.Edges, Edge{From: from, To: to, Data: data})
}

// InEdges returns indices of edges arriving at node id.
func (g *Graph) InEdges(id int) []int {
	var out []int
	for i, e := range g.Edges {
		if e.To == id {
			out = append(out, i)
		}
	}
	return out
}

// OutEdges returns indices of edges leaving node id.
func (g *Graph) OutEdges(id int) []int {
	var out []int
	for i, e := range g.Edges {
		if e.From == id {
			out = append(out, i)
		}
	}
	return out
}

// EdgeList returns the flat edge records for persistence.
func (g *Graph) EdgeList() []domain.CorrelationEdge {
	out := make([]domain.CorrelationEdge, len(g.Edges))
	for i, e := range g.Edges {
		out[i] = e.Data
	}
	return out
}

// Rebuild restores the KPI index after deserialization.
func (g *Graph) Rebuild() {
	g.byKPI = make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		g.byKPI[n.KPI] = i
	}
}
