package analysis

import (
	"github.com/efebarandurmaz/flowscope/internal/diagram"
	"github.com/efebarandurmaz/flowscope/internal/flow"
	"github.com/efebarandurmaz/flowscope/internal/recommend"
	"github.com/efebarandurmaz/flowscope/internal/scoring"
	"github.com/efebarandurmaz/flowscope/internal/traversal"
	"github.com/efebarandurmaz/flowscope/internal/validation"
)

// ComplexityReport is the complexity answer: the score plus the advice
// derived from the same diagram.
type ComplexityReport struct {
	OverallScore    float64                    `json:"overallScore"`
	Level           string                     `json:"level"`
	Metrics         scoring.SubScores          `json:"metrics"`
	Factors         []scoring.Factor           `json:"factors"`
	Recommendations []recommend.Recommendation `json:"recommendations"`
	Raw             scoring.Metrics            `json:"raw"`
	PolicyVersion   string                     `json:"policyVersion"`
}

// Report bundles every analysis of one diagram.
type Report struct {
	DiagramID       string                     `json:"diagramId,omitempty"`
	Name            string                     `json:"name,omitempty"`
	Fingerprint     string                     `json:"fingerprint"`
	Validation      *validation.Result         `json:"validation"`
	Complexity      *ComplexityReport          `json:"complexity"`
	Flow            *flow.Result               `json:"flow"`
	Recommendations []recommend.Recommendation `json:"recommendations"`
	Dependencies    *flow.DependencyReport     `json:"dependencies"`
}

// snapshot is one request's immutable view of a diagram.
type snapshot struct {
	d           *diagram.Diagram
	g           *traversal.Graph
	fingerprint string
}

func (s *Service) validate(snap *snapshot) *validation.Result {
	return s.pipeline.Run(&validation.Context{Diagram: snap.d, Graph: snap.g, Limits: s.limits})
}

func (s *Service) recommend(snap *snapshot) []recommend.Recommendation {
	return recommend.Generate(recommend.BuildFacts(snap.d, snap.g, s.limits), s.rules)
}

func (s *Service) complexity(snap *snapshot, recs []recommend.Recommendation) *ComplexityReport {
	c := scoring.Score(scoring.ComputeMetrics(snap.g, snap.d, s.policy, s.limits), s.policy)
	return &ComplexityReport{
		OverallScore:    c.OverallScore,
		Level:           c.Level,
		Metrics:         c.Metrics,
		Factors:         c.Factors,
		Recommendations: recs,
		Raw:             c.Raw,
		PolicyVersion:   s.policy.Version,
	}
}

func (s *Service) flow(snap *snapshot) *flow.Result {
	return flow.Analyze(snap.g, snap.d, s.policy, s.limits)
}

func (s *Service) dependencies(snap *snapshot) *flow.DependencyReport {
	return flow.Dependencies(snap.d, snap.g)
}

// build computes the full report.
func (s *Service) build(snap *snapshot) *Report {
	recs := s.recommend(snap)
	return &Report{
		DiagramID:       snap.d.ID,
		Name:            snap.d.Name,
		Fingerprint:     snap.fingerprint,
		Validation:      s.validate(snap),
		Complexity:      s.complexity(snap, recs),
		Flow:            s.flow(snap),
		Recommendations: recs,
		Dependencies:    s.dependencies(snap),
	}
}
