package scoring

import (
	"math"
	"sort"
)

// SubScores holds the four weighted components of the overall score.
type SubScores struct {
	Structural    float64 `json:"structural"`
	Cognitive     float64 `json:"cognitive"`
	Computational float64 `json:"computational"`
	Maintenance   float64 `json:"maintenance"`
}

// Factor is one term's contribution to the overall score.
type Factor struct {
	Name        string  `json:"name"`
	Value       float64 `json:"value"`
	Impact      float64 `json:"impact"`
	Description string  `json:"description"`
}

// Complexity is the scored result for a diagram.
type Complexity struct {
	OverallScore float64   `json:"overallScore"`
	Level        string    `json:"level"`
	Metrics      SubScores `json:"metrics"`
	Factors      []Factor  `json:"factors"`
	Raw          Metrics   `json:"raw"`
}

// maxFactors bounds the factor list to the dominant contributors.
const maxFactors = 5

type term struct {
	name        string
	value       float64
	coef        float64
	description string
}

// Score combines m into sub-scores and an overall score using p. The overall
// score is rounded to two decimals and clamped to [0, 100].
func Score(m Metrics, p *Policy) *Complexity {
	if p == nil {
		p = DefaultPolicy()
	}

	structural := []term{
		{"node_count", float64(m.NodeCount), p.Structural.Nodes, "number of nodes"},
		{"edge_count", float64(m.EdgeCount), p.Structural.Edges, "number of edges"},
		{"cyclomatic", float64(m.Cyclomatic), p.Structural.Cyclomatic, "independent paths through the flow"},
		{"branching_factor", m.BranchingFactor, p.Structural.Branching, "average outgoing edges per branching node"},
		{"depth", float64(m.Depth), p.Structural.Depth, "longest chain from an entry"},
		{"width", float64(m.Width), p.Structural.Width, "widest level of the flow"},
	}
	cognitive := []term{
		{"decision_count", float64(m.DecisionCount), p.Cognitive.Decisions, "decision points to reason about"},
		{"fork_count", float64(m.ForkCount), p.Cognitive.Forks, "nodes splitting the flow"},
		{"join_count", float64(m.JoinCount), p.Cognitive.Joins, "nodes merging the flow"},
		{"cycle_count", float64(m.CycleCount), p.Cognitive.Cycles, "loops in the flow"},
		{"type_variety", float64(m.TypeVariety), p.Cognitive.TypeVariety, "distinct node types"},
		{"avg_path_length", m.AvgPathLength, p.Cognitive.AvgPathLength, "average nodes per entry-to-exit path"},
	}
	computational := []term{
		{"node_complexity", m.TotalNodeComplexity, p.Computational.NodeComplexity, "summed per-node complexity"},
		{"path_count", float64(m.PathCount), p.Computational.Paths, "entry-to-exit paths"},
		{"api_call_count", float64(m.APICallCount), p.Computational.APICalls, "API calls"},
		{"database_count", float64(m.DatabaseCount), p.Computational.Databases, "database operations"},
	}
	maintenance := []term{
		{"node_count", float64(m.NodeCount), p.Maintenance.Nodes, "size of the flow"},
		{"external_count", float64(m.ExternalCount), p.Maintenance.ExternalServices, "external service dependencies"},
		{"api_call_count", float64(m.APICallCount), p.Maintenance.APICalls, "API contracts to maintain"},
		{"database_count", float64(m.DatabaseCount), p.Maintenance.Databases, "database schemas to maintain"},
		{"undocumented_count", float64(m.UndocumentedCount), p.Maintenance.Undocumented, "nodes without a description"},
		{"isolated_count", float64(m.IsolatedCount), p.Maintenance.Isolated, "nodes without any connection"},
	}

	sub := SubScores{
		Structural:    sum(structural),
		Cognitive:     sum(cognitive),
		Computational: sum(computational),
		Maintenance:   sum(maintenance),
	}
	overall := sub.Structural*p.Weights.Structural +
		sub.Cognitive*p.Weights.Cognitive +
		sub.Computational*p.Weights.Computational +
		sub.Maintenance*p.Weights.Maintenance
	overall = math.Min(100, math.Max(0, round2(overall)))

	var factors []Factor
	collect := func(terms []term, weight float64) {
		for _, t := range terms {
			impact := round2(t.value * t.coef * weight)
			if impact <= 0 {
				continue
			}
			factors = append(factors, Factor{Name: t.name, Value: round2(t.value), Impact: impact, Description: t.description})
		}
	}
	collect(structural, p.Weights.Structural)
	collect(cognitive, p.Weights.Cognitive)
	collect(computational, p.Weights.Computational)
	collect(maintenance, p.Weights.Maintenance)
	sort.SliceStable(factors, func(i, j int) bool { return factors[i].Impact > factors[j].Impact })
	if len(factors) > maxFactors {
		factors = factors[:maxFactors]
	}

	return &Complexity{
		OverallScore: overall,
		Level:        Level(overall, p),
		Metrics: SubScores{
			Structural:    round2(sub.Structural),
			Cognitive:     round2(sub.Cognitive),
			Computational: round2(sub.Computational),
			Maintenance:   round2(sub.Maintenance),
		},
		Factors: factors,
		Raw:     m,
	}
}

func sum(terms []term) float64 {
	var s float64
	for _, t := range terms {
		s += t.value * t.coef
	}
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
