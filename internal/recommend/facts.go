package recommend

import (
	"strings"

	"github.com/efebarandurmaz/flowscope/internal/diagram"
	"github.com/efebarandurmaz/flowscope/internal/traversal"
)

// Facts is the topology and attribute summary rules are evaluated against.
type Facts struct {
	NodeCount        int                      `json:"node_count"`
	Counts           map[diagram.NodeType]int `json:"counts"`
	CycleCount       int                      `json:"cycle_count"`
	ParallelForks    []string                 `json:"parallel_forks"`
	HasStart         bool                     `json:"has_start"`
	HasEnd           bool                     `json:"has_end"`
	HasAuth          bool                     `json:"has_auth"`
	UnguardedAPI     []string                 `json:"unguarded_api"`
	UndocumentedNode int                      `json:"undocumented_nodes"`
}

// Count returns the number of nodes of type t.
func (f *Facts) Count(t diagram.NodeType) int {
	return f.Counts[t]
}

// BuildFacts derives Facts from d and its graph.
func BuildFacts(d *diagram.Diagram, g *traversal.Graph, lim traversal.Limits) *Facts {
	f := &Facts{Counts: map[diagram.NodeType]int{}}
	if d == nil {
		return f
	}
	if g == nil {
		g = traversal.New(d)
	}

	f.NodeCount = len(d.Nodes)
	f.Counts = d.CountByType()
	f.HasStart = f.Counts[diagram.NodeStart] > 0
	f.HasEnd = f.Counts[diagram.NodeEnd] > 0
	f.CycleCount = len(g.DetectCycles(lim).Cycles)

	for _, n := range d.Nodes {
		if !n.HasData("description") {
			f.UndocumentedNode++
		}
		if n.Type == diagram.NodeExternalService && isAuth(n) {
			f.HasAuth = true
		}
	}

	for _, id := range g.IDs() {
		t := g.TypeOf(id)
		if t == diagram.NodeAPICall && !guarded(g, id) {
			f.UnguardedAPI = append(f.UnguardedAPI, id)
		}
		if t != diagram.NodeDecision && len(g.Successors(id)) > 1 {
			f.ParallelForks = append(f.ParallelForks, id)
		}
	}
	return f
}

func isAuth(n diagram.Node) bool {
	for _, key := range []string{"serviceType", "label"} {
		if strings.Contains(strings.ToLower(n.DataString(key)), "auth") {
			return true
		}
	}
	return false
}

// guarded reports whether an API call is followed by a decision that can
// inspect its outcome.
func guarded(g *traversal.Graph, id string) bool {
	for _, next := range g.Successors(id) {
		if g.TypeOf(next) == diagram.NodeDecision {
			return true
		}
	}
	return false
}
