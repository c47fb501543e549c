// Package scoring turns topology facts and node attributes into bounded
// complexity scores. All constants live in a versioned Policy so scoring can
// be audited and tuned without touching traversal code.
package scoring

import (
	"errors"
	"fmt"
	"math"

	"github.com/efebarandurmaz/flowscope/internal/diagram"
)

// PolicyVersion identifies the default constant table.
const PolicyVersion = "2024.1"

// Weights combines the four sub-scores into the overall score.
type Weights struct {
	Structural    float64 `mapstructure:"structural" json:"structural"`
	Cognitive     float64 `mapstructure:"cognitive" json:"cognitive"`
	Computational float64 `mapstructure:"computational" json:"computational"`
	Maintenance   float64 `mapstructure:"maintenance" json:"maintenance"`
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.Structural + w.Cognitive + w.Computational + w.Maintenance
}

// LevelThreshold maps scores up to and including Max to Label.
type LevelThreshold struct {
	Max   float64 `mapstructure:"max" json:"max"`
	Label string  `mapstructure:"label" json:"label"`
}

// DataComplexity holds increments for optional node attributes.
type DataComplexity struct {
	Condition float64 `mapstructure:"condition" json:"condition"`
	Operation float64 `mapstructure:"operation" json:"operation"`
	Method    float64 `mapstructure:"method" json:"method"`
	PerField  float64 `mapstructure:"per_field" json:"per_field"`
}

// StructuralCoefficients weight the structural sub-score terms.
type StructuralCoefficients struct {
	Nodes      float64 `mapstructure:"nodes" json:"nodes"`
	Edges      float64 `mapstructure:"edges" json:"edges"`
	Cyclomatic float64 `mapstructure:"cyclomatic" json:"cyclomatic"`
	Branching  float64 `mapstructure:"branching" json:"branching"`
	Depth      float64 `mapstructure:"depth" json:"depth"`
	Width      float64 `mapstructure:"width" json:"width"`
}

// CognitiveCoefficients weight the cognitive sub-score terms.
type CognitiveCoefficients struct {
	Decisions     float64 `mapstructure:"decisions" json:"decisions"`
	Forks         float64 `mapstructure:"forks" json:"forks"`
	Joins         float64 `mapstructure:"joins" json:"joins"`
	Cycles        float64 `mapstructure:"cycles" json:"cycles"`
	TypeVariety   float64 `mapstructure:"type_variety" json:"type_variety"`
	AvgPathLength float64 `mapstructure:"avg_path_length" json:"avg_path_length"`
}

// ComputationalCoefficients weight the computational sub-score terms.
type ComputationalCoefficients struct {
	NodeComplexity float64 `mapstructure:"node_complexity" json:"node_complexity"`
	Paths          float64 `mapstructure:"paths" json:"paths"`
	APICalls       float64 `mapstructure:"api_calls" json:"api_calls"`
	Databases      float64 `mapstructure:"databases" json:"databases"`
}

// MaintenanceCoefficients weight the maintenance sub-score terms.
type MaintenanceCoefficients struct {
	Nodes            float64 `mapstructure:"nodes" json:"nodes"`
	ExternalServices float64 `mapstructure:"external_services" json:"external_services"`
	APICalls         float64 `mapstructure:"api_calls" json:"api_calls"`
	Databases        float64 `mapstructure:"databases" json:"databases"`
	Undocumented     float64 `mapstructure:"undocumented" json:"undocumented"`
	Isolated         float64 `mapstructure:"isolated" json:"isolated"`
}

// Policy is the complete scoring constant table.
type Policy struct {
	Version string `mapstructure:"version" json:"version"`

	Weights Weights `mapstructure:"weights" json:"weights"`

	// Levels must be sorted by Max; scores above the last Max get TopLevel.
	Levels   []LevelThreshold `mapstructure:"levels" json:"levels"`
	TopLevel string           `mapstructure:"top_level" json:"top_level"`

	BaseComplexity    map[diagram.NodeType]float64 `mapstructure:"base_complexity" json:"base_complexity"`
	UnknownComplexity float64                      `mapstructure:"unknown_complexity" json:"unknown_complexity"`
	Data              DataComplexity               `mapstructure:"data" json:"data"`

	Structural    StructuralCoefficients    `mapstructure:"structural" json:"structural"`
	Cognitive     CognitiveCoefficients     `mapstructure:"cognitive" json:"cognitive"`
	Computational ComputationalCoefficients `mapstructure:"computational" json:"computational"`
	Maintenance   MaintenanceCoefficients   `mapstructure:"maintenance" json:"maintenance"`
}

// DefaultPolicy returns the default scoring policy.
//
// external-service uses 3, the higher of the two values found in earlier
// analyzers (2.5 and 3).
func DefaultPolicy() *Policy {
	return &Policy{
		Version: PolicyVersion,
		Weights: Weights{Structural: 0.3, Cognitive: 0.3, Computational: 0.2, Maintenance: 0.2},
		Levels: []LevelThreshold{
			{Max: 10, Label: "Very Low"},
			{Max: 20, Label: "Low"},
			{Max: 35, Label: "Medium"},
			{Max: 50, Label: "High"},
		},
		TopLevel: "Very High",
		BaseComplexity: map[diagram.NodeType]float64{
			diagram.NodeDecision:        3,
			diagram.NodeAPICall:         2.5,
			diagram.NodeExternalService: 3,
			diagram.NodeDatabase:        2,
			diagram.NodeHTMLElement:     1,
			diagram.NodeUserAction:      1.5,
			diagram.NodeStart:           0.5,
			diagram.NodeEnd:             0.5,
		},
		UnknownComplexity: 1,
		Data:              DataComplexity{Condition: 0.5, Operation: 0.3, Method: 0.2, PerField: 0.1},
		Structural: StructuralCoefficients{
			Nodes: 0.1, Edges: 0.15, Cyclomatic: 2, Branching: 1.5, Depth: 0.5, Width: 0.3,
		},
		Cognitive: CognitiveCoefficients{
			Decisions: 1.5, Forks: 0.8, Joins: 0.8, Cycles: 2, TypeVariety: 0.5, AvgPathLength: 0.1,
		},
		Computational: ComputationalCoefficients{
			NodeComplexity: 1, Paths: 0.2, APICalls: 0.5, Databases: 0.5,
		},
		Maintenance: MaintenanceCoefficients{
			Nodes: 0.2, ExternalServices: 1, APICalls: 0.8, Databases: 0.6, Undocumented: 0.5, Isolated: 1.5,
		},
	}
}

// Validate checks the policy for internal consistency.
func (p *Policy) Validate() error {
	if p == nil {
		return errors.New("policy is nil")
	}
	var errs []error

	if sum := p.Weights.Sum(); math.Abs(sum-1) > 0.001 {
		errs = append(errs, fmt.Errorf("weights must sum to 1, got %.3f", sum))
	}
	if len(p.Levels) == 0 {
		errs = append(errs, errors.New("at least one level threshold is required"))
	}
	for i := 1; i < len(p.Levels); i++ {
		if p.Levels[i].Max <= p.Levels[i-1].Max {
			errs = append(errs, fmt.Errorf("level %q must have a higher max than %q", p.Levels[i].Label, p.Levels[i-1].Label))
		}
	}
	if p.TopLevel == "" {
		errs = append(errs, errors.New("top level label is required"))
	}
	for t, v := range p.BaseComplexity {
		if v < 0 {
			errs = append(errs, fmt.Errorf("base complexity for %s is negative", t))
		}
	}

	for name, v := range p.coefficients() {
		if v < 0 {
			errs = append(errs, fmt.Errorf("coefficient %s is negative", name))
		}
	}
	return errors.Join(errs...)
}

// Clone returns a deep copy of p.
func (p *Policy) Clone() *Policy {
	c := *p
	c.Levels = append([]LevelThreshold(nil), p.Levels...)
	c.BaseComplexity = make(map[diagram.NodeType]float64, len(p.BaseComplexity))
	for k, v := range p.BaseComplexity {
		c.BaseComplexity[k] = v
	}
	return &c
}

func (p *Policy) coefficients() map[string]float64 {
	return map[string]float64{
		"weights.structural":               p.Weights.Structural,
		"weights.cognitive":                p.Weights.Cognitive,
		"weights.computational":            p.Weights.Computational,
		"weights.maintenance":              p.Weights.Maintenance,
		"unknown_complexity":               p.UnknownComplexity,
		"data.condition":                   p.Data.Condition,
		"data.operation":                   p.Data.Operation,
		"data.method":                      p.Data.Method,
		"data.per_field":                   p.Data.PerField,
		"structural.nodes":                 p.Structural.Nodes,
		"structural.edges":                 p.Structural.Edges,
		"structural.cyclomatic":            p.Structural.Cyclomatic,
		"structural.branching":             p.Structural.Branching,
		"structural.depth":                 p.Structural.Depth,
		"structural.width":                 p.Structural.Width,
		"cognitive.decisions":              p.Cognitive.Decisions,
		"cognitive.forks":                  p.Cognitive.Forks,
		"cognitive.joins":                  p.Cognitive.Joins,
		"cognitive.cycles":                 p.Cognitive.Cycles,
		"cognitive.type_variety":           p.Cognitive.TypeVariety,
		"cognitive.avg_path_length":        p.Cognitive.AvgPathLength,
		"computational.node_complexity":    p.Computational.NodeComplexity,
		"computational.paths":              p.Computational.Paths,
		"computational.api_calls":          p.Computational.APICalls,
		"computational.databases":          p.Computational.Databases,
		"maintenance.nodes":                p.Maintenance.Nodes,
		"maintenance.external_services":    p.Maintenance.ExternalServices,
		"maintenance.api_calls":            p.Maintenance.APICalls,
		"maintenance.databases":            p.Maintenance.Databases,
		"maintenance.undocumented":         p.Maintenance.Undocumented,
		"maintenance.isolated":             p.Maintenance.Isolated,
	}
}

// NodeComplexity is the base complexity of the node type plus increments for
// the optional attributes it carries.
func NodeComplexity(n diagram.Node, p *Policy) float64 {
	if p == nil {
		p = DefaultPolicy()
	}
	c, ok := p.BaseComplexity[n.Type]
	if !ok {
		c = p.UnknownComplexity
	}
	if n.HasData("condition") {
		c += p.Data.Condition
	}
	if n.HasData("operation") {
		c += p.Data.Operation
	}
	if n.HasData("method") {
		c += p.Data.Method
	}
	c += float64(n.FieldCount()) * p.Data.PerField
	return c
}

// Level maps a score to its qualitative label.
func Level(score float64, p *Policy) string {
	if p == nil {
		p = DefaultPolicy()
	}
	for _, l := range p.Levels {
		if score <= l.Max {
			return l.Label
		}
	}
	return p.TopLevel
}
