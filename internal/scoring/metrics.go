package scoring

import (
	"github.com/efebarandurmaz/flowscope/internal/diagram"
	"github.com/efebarandurmaz/flowscope/internal/traversal"
)

// Metrics exposes every raw measurement the sub-scores are built from.
type Metrics struct {
	NodeCount           int     `json:"node_count"`
	EdgeCount           int     `json:"edge_count"`
	Components          int     `json:"components"`
	DecisionCount       int     `json:"decision_count"`
	Cyclomatic          int     `json:"cyclomatic"`
	BranchingFactor     float64 `json:"branching_factor"`
	Depth               int     `json:"depth"`
	Width               int     `json:"width"`
	ForkCount           int     `json:"fork_count"`
	JoinCount           int     `json:"join_count"`
	CycleCount          int     `json:"cycle_count"`
	TypeVariety         int     `json:"type_variety"`
	PathCount           int     `json:"path_count"`
	AvgPathLength       float64 `json:"avg_path_length"`
	TotalNodeComplexity float64 `json:"total_node_complexity"`
	APICallCount        int     `json:"api_call_count"`
	DatabaseCount       int     `json:"database_count"`
	ExternalCount       int     `json:"external_count"`
	UserActionCount     int     `json:"user_action_count"`
	HTMLElementCount    int     `json:"html_element_count"`
	UndocumentedCount   int     `json:"undocumented_count"`
	IsolatedCount       int     `json:"isolated_count"`
	Truncated           bool    `json:"truncated,omitempty"`
}

// ComputeMetrics measures d through its traversal graph g. Duplicate node
// ids are counted once, and dangling edges are left out of the edge count.
func ComputeMetrics(g *traversal.Graph, d *diagram.Diagram, p *Policy, lim traversal.Limits) Metrics {
	if p == nil {
		p = DefaultPolicy()
	}
	var m Metrics
	if g == nil || d == nil {
		return m
	}

	types := make(map[diagram.NodeType]bool)
	seen := make(map[string]bool, len(d.Nodes))
	for _, n := range d.Nodes {
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		m.NodeCount++
		types[n.Type] = true
		m.TotalNodeComplexity += NodeComplexity(n, p)
		if !n.HasData("description") {
			m.UndocumentedCount++
		}
		switch n.Type {
		case diagram.NodeDecision:
			m.DecisionCount++
		case diagram.NodeAPICall:
			m.APICallCount++
		case diagram.NodeDatabase:
			m.DatabaseCount++
		case diagram.NodeExternalService:
			m.ExternalCount++
		case diagram.NodeUserAction:
			m.UserActionCount++
		case diagram.NodeHTMLElement:
			m.HTMLElementCount++
		}
	}
	m.TypeVariety = len(types)
	m.EdgeCount = len(d.Edges) - len(g.Dangling())
	m.Components = g.ConnectedComponents()
	m.Cyclomatic = m.EdgeCount - m.NodeCount + 2*m.Components + m.DecisionCount

	branching, outgoing := 0, 0
	for _, id := range g.IDs() {
		if deg := g.OutDegree(id); deg > 0 {
			branching += deg
			outgoing++
		}
	}
	if outgoing > 0 {
		m.BranchingFactor = float64(branching) / float64(outgoing)
	}

	shape := g.Shape(lim)
	m.Depth = shape.Depth
	m.Width = shape.Width
	m.ForkCount = len(g.Forks())
	m.JoinCount = len(g.Joins())
	m.IsolatedCount = len(g.Isolated())

	cycles := g.DetectCycles(lim)
	m.CycleCount = len(cycles.Cycles)

	paths := g.EntryExitPaths(lim)
	m.PathCount = len(paths.Paths)
	if m.PathCount > 0 {
		total := 0
		for _, path := range paths.Paths {
			total += len(path)
		}
		m.AvgPathLength = float64(total) / float64(m.PathCount)
	}
	m.Truncated = shape.Truncated || cycles.Truncated || paths.Truncated
	return m
}
