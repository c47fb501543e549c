package validation

import (
	"github.com/efebarandurmaz/flowscope/internal/diagram"
	"github.com/efebarandurmaz/flowscope/internal/traversal"
)

// Config selects checks and score deductions.
type Config struct {
	Weights  ScoreWeights `mapstructure:"weights" json:"weights"`
	Disabled []string     `mapstructure:"disabled" json:"disabled,omitempty"`
}

// DefaultConfig enables every check with the default deductions.
func DefaultConfig() *Config {
	return &Config{Weights: DefaultScoreWeights()}
}

// DefaultChecks returns the built-in checks in output order.
func DefaultChecks() []Check {
	return []Check{
		NodeIntegrityCheck{},
		EdgeIntegrityCheck{},
		EntryExitCheck{},
		ConnectivityCheck{},
		EdgeShapeCheck{},
		CycleCheck{},
		DecisionCheck{},
		AttributeCheck{},
		CompletenessCheck{},
	}
}

// Pipeline runs checks in sequence and accumulates their findings.
type Pipeline struct {
	checks  []Check
	weights ScoreWeights
}

// NewPipeline creates a pipeline with the default deductions.
func NewPipeline(checks ...Check) *Pipeline {
	return &Pipeline{checks: checks, weights: DefaultScoreWeights()}
}

// AddCheck appends a check to the pipeline.
func (p *Pipeline) AddCheck(c Check) {
	p.checks = append(p.checks, c)
}

// Checks returns the names of the configured checks in order.
func (p *Pipeline) Checks() []string {
	names := make([]string, len(p.checks))
	for i, c := range p.checks {
		names[i] = c.Name()
	}
	return names
}

// BuildPipeline constructs a pipeline from configuration.
func BuildPipeline(cfg *Config) *Pipeline {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	disabled := make(map[string]bool, len(cfg.Disabled))
	for _, name := range cfg.Disabled {
		disabled[name] = true
	}

	p := NewPipeline()
	p.weights = cfg.Weights
	for _, c := range DefaultChecks() {
		if !disabled[c.Name()] {
			p.AddCheck(c)
		}
	}
	return p
}

// Run evaluates all checks. A diagram without nodes yields exactly one
// empty_diagram error.
func (p *Pipeline) Run(ctx *Context) *Result {
	result := &Result{
		Errors:      []Finding{},
		Warnings:    []Finding{},
		Suggestions: []Finding{},
	}

	if !ctx.Diagram.HasNodes() {
		result.Errors = append(result.Errors, errorf(CodeEmptyDiagram, "Diagram has no nodes"))
	} else {
		if ctx.Graph == nil {
			ctx.Graph = traversal.New(ctx.Diagram)
		}
		for _, c := range p.checks {
			for _, f := range c.Run(ctx) {
				switch f.Severity {
				case SeverityError:
					result.Errors = append(result.Errors, f)
				case SeverityWarning:
					result.Warnings = append(result.Warnings, f)
				default:
					result.Suggestions = append(result.Suggestions, f)
				}
			}
		}
	}

	result.IsValid = len(result.Errors) == 0
	result.Score = ComputeScore(len(result.Errors), len(result.Warnings), len(result.Suggestions), p.weights)
	result.Summary = summarize(result)
	return result
}

// Validate runs the default pipeline over d. g may be nil.
func Validate(d *diagram.Diagram, g *traversal.Graph, lim traversal.Limits) *Result {
	return BuildPipeline(nil).Run(&Context{Diagram: d, Graph: g, Limits: lim})
}
