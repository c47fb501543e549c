// Package flow analyses execution paths through a diagram: the paths
// themselves, the most complex one, shared bottlenecks and branches that
// can run in parallel.
package flow

import (
	"fmt"
	"math"

	"github.com/efebarandurmaz/flowscope/internal/diagram"
	"github.com/efebarandurmaz/flowscope/internal/scoring"
	"github.com/efebarandurmaz/flowscope/internal/traversal"
)

// minBottleneckJoin is the join fan-in treated as a bottleneck.
const minBottleneckJoin = 3

// Path is one entry-to-exit path.
type Path struct {
	Nodes      []string `json:"nodes"`
	Length     int      `json:"length"`
	Complexity float64  `json:"complexity"`
}

// Bottleneck is a node many paths or branches funnel through.
type Bottleneck struct {
	NodeID    string           `json:"nodeId"`
	Type      diagram.NodeType `json:"type"`
	Reason    string           `json:"reason"`
	PathCount int              `json:"pathCount"`
	InDegree  int              `json:"inDegree"`
}

// Parallel is a fork whose branches do not depend on a decision.
type Parallel struct {
	ForkNode string   `json:"forkNode"`
	Branches []string `json:"branches"`
	JoinNode string   `json:"joinNode,omitempty"`
}

// Result is the flow analysis of a diagram.
type Result struct {
	Paths             []Path       `json:"paths"`
	CriticalPath      *Path        `json:"criticalPath"`
	Bottlenecks       []Bottleneck `json:"bottlenecks"`
	ParallelProcesses []Parallel   `json:"parallelProcesses"`
	Truncated         bool         `json:"truncated,omitempty"`
}

// Analyze enumerates entry-to-exit paths of d and derives the critical path,
// bottlenecks and parallel processes from them.
func Analyze(g *traversal.Graph, d *diagram.Diagram, p *scoring.Policy, lim traversal.Limits) *Result {
	res := &Result{
		Paths:             []Path{},
		Bottlenecks:       []Bottleneck{},
		ParallelProcesses: []Parallel{},
	}
	if d == nil {
		return res
	}
	if g == nil {
		g = traversal.New(d)
	}
	nodes := firstNodes(d)

	set := g.EntryExitPaths(lim)
	res.Truncated = set.Truncated
	for _, ids := range set.Paths {
		path := Path{Nodes: ids, Length: len(ids)}
		for _, id := range ids {
			path.Complexity += scoring.NodeComplexity(nodes[id], p)
		}
		path.Complexity = round2(path.Complexity)
		res.Paths = append(res.Paths, path)
	}

	res.CriticalPath = critical(res.Paths)
	res.Bottlenecks = bottlenecks(g, res.Paths)
	res.ParallelProcesses = parallels(g)
	return res
}

// critical picks the most complex path; ties go to the longer path, then to
// the first one found.
func critical(paths []Path) *Path {
	if len(paths) == 0 {
		return nil
	}
	best := 0
	for i := 1; i < len(paths); i++ {
		a, b := paths[i], paths[best]
		if a.Complexity > b.Complexity || (a.Complexity == b.Complexity && a.Length > b.Length) {
			best = i
		}
	}
	cp := paths[best]
	return &cp
}

func bottlenecks(g *traversal.Graph, paths []Path) []Bottleneck {
	onPaths := make(map[string]int)
	for _, p := range paths {
		seen := make(map[string]bool, len(p.Nodes))
		for _, id := range p.Nodes {
			if !seen[id] {
				seen[id] = true
				onPaths[id]++
			}
		}
	}

	out := []Bottleneck{}
	for _, id := range g.IDs() {
		t := g.TypeOf(id)
		if t == diagram.NodeStart || t == diagram.NodeEnd {
			continue
		}
		b := Bottleneck{NodeID: id, Type: t, PathCount: onPaths[id], InDegree: g.InDegree(id)}
		switch {
		case len(paths) >= 2 && 2*b.PathCount > len(paths):
			b.Reason = fmt.Sprintf("on %d of %d paths", b.PathCount, len(paths))
		case b.InDegree >= minBottleneckJoin:
			b.Reason = fmt.Sprintf("join of %d branches", b.InDegree)
		default:
			continue
		}
		out = append(out, b)
	}
	return out
}

func parallels(g *traversal.Graph) []Parallel {
	out := []Parallel{}
	for _, id := range g.IDs() {
		if g.TypeOf(id) == diagram.NodeDecision {
			continue
		}
		branches := g.Successors(id)
		if len(branches) < 2 {
			continue
		}
		out = append(out, Parallel{ForkNode: id, Branches: branches, JoinNode: convergence(g, id, branches)})
	}
	return out
}

// convergence finds the node every branch reaches soonest, measured by the
// slowest branch. Ties go to diagram order. The fork itself is excluded.
func convergence(g *traversal.Graph, fork string, branches []string) string {
	dists := make([]map[string]int, len(branches))
	for i, b := range branches {
		dists[i] = g.Distances(b)
	}

	best, bestCost := "", -1
	for _, id := range g.IDs() {
		if id == fork {
			continue
		}
		cost := 0
		common := true
		for _, d := range dists {
			hop, ok := d[id]
			if !ok {
				common = false
				break
			}
			if hop > cost {
				cost = hop
			}
		}
		if common && (bestCost < 0 || cost < bestCost) {
			best, bestCost = id, cost
		}
	}
	return best
}

func firstNodes(d *diagram.Diagram) map[string]diagram.Node {
	out := make(map[string]diagram.Node, len(d.Nodes))
	for _, n := range d.Nodes {
		if _, ok := out[n.ID]; !ok {
			out[n.ID] = n
		}
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
