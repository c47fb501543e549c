// Package validation runs structural and semantic checks over a diagram and
// reports every finding in one pass.
package validation

import (
	"fmt"
	"strings"
)

// Severity classifies a finding.
type Severity string

const (
	SeverityError      Severity = "error"      // diagram is invalid
	SeverityWarning    Severity = "warning"    // topologically suspect
	SeveritySuggestion Severity = "suggestion" // completeness nudge
)

// Finding codes.
const (
	CodeEmptyDiagram     = "empty_diagram"
	CodeMissingNodeID    = "missing_node_id"
	CodeDuplicateNodeID  = "duplicate_node_id"
	CodeMissingNodeType  = "missing_node_type"
	CodeInvalidNodeType  = "invalid_node_type"
	CodeMissingEdgeID    = "missing_edge_id"
	CodeDuplicateEdgeID  = "duplicate_edge_id"
	CodeMissingEdgeSrc   = "missing_edge_source"
	CodeMissingEdgeTgt   = "missing_edge_target"
	CodeInvalidEdgeSrc   = "invalid_edge_source"
	CodeInvalidEdgeTgt   = "invalid_edge_target"
	CodeMissingStart     = "missing_start_node"
	CodeMissingEnd       = "missing_end_node"
	CodeMultipleStart    = "multiple_start_nodes"
	CodeIsolatedNode     = "isolated_node"
	CodeUnreachableNode  = "unreachable_node"
	CodeDeadEnd          = "dead_end"
	CodeSelfLoop         = "self_loop"
	CodeDuplicateEdge    = "duplicate_edge"
	CodePotentialCycle   = "potential_cycle"
	CodeDecisionBranches = "insufficient_decision_branches"
	CodeIncompleteDB     = "incomplete_database_spec"
	CodeIncompleteAPI    = "incomplete_api_spec"
	CodeMissingLabel     = "missing_label"
	CodeMissingDesc      = "missing_description"
	CodeMissingMethod    = "missing_http_method"
	CodeMissingCondition = "missing_decision_condition"
	CodeMissingService   = "missing_service_type"
	CodeMissingElement   = "missing_element_type"
	CodeUnlabeledBranch  = "unlabeled_decision_branch"
)

// Finding is a single validation observation.
type Finding struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	NodeID   string   `json:"nodeId,omitempty"`
	EdgeID   string   `json:"edgeId,omitempty"`
}

// Result is the complete validation outcome.
type Result struct {
	IsValid     bool      `json:"isValid"`
	Errors      []Finding `json:"errors"`
	Warnings    []Finding `json:"warnings"`
	Suggestions []Finding `json:"suggestions"`
	Score       int       `json:"score"`
	Summary     string    `json:"summary"`
}

// ScoreWeights are the per-finding deductions from a perfect score of 100.
type ScoreWeights struct {
	Error      int `mapstructure:"error" json:"error"`
	Warning    int `mapstructure:"warning" json:"warning"`
	Suggestion int `mapstructure:"suggestion" json:"suggestion"`
}

// DefaultScoreWeights returns the default deductions.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{Error: 20, Warning: 5, Suggestion: 1}
}

// ComputeScore returns 100 minus the weighted finding counts, clamped to [0, 100].
func ComputeScore(errs, warnings, suggestions int, w ScoreWeights) int {
	score := 100 - w.Error*errs - w.Warning*warnings - w.Suggestion*suggestions
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Has reports whether the result carries a finding with code.
func (r *Result) Has(code string) bool {
	for _, list := range [][]Finding{r.Errors, r.Warnings, r.Suggestions} {
		for _, f := range list {
			if f.Code == code {
				return true
			}
		}
	}
	return false
}

func summarize(r *Result) string {
	counts := []string{
		plural(len(r.Errors), "error"),
		plural(len(r.Warnings), "warning"),
		plural(len(r.Suggestions), "suggestion"),
	}
	if r.IsValid {
		return fmt.Sprintf("Diagram is valid (%s), score %d/100", strings.Join(counts, ", "), r.Score)
	}
	return fmt.Sprintf("Diagram is invalid (%s), score %d/100", strings.Join(counts, ", "), r.Score)
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func errorf(code, format string, args ...any) Finding {
	return Finding{Code: code, Severity: SeverityError, Message: fmt.Sprintf(format, args...)}
}

func warnf(code, format string, args ...any) Finding {
	return Finding{Code: code, Severity: SeverityWarning, Message: fmt.Sprintf(format, args...)}
}

func suggestf(code, format string, args ...any) Finding {
	return Finding{Code: code, Severity: SeveritySuggestion, Message: fmt.Sprintf(format, args...)}
}

func (f Finding) onNode(id string) Finding {
	f.NodeID = id
	return f
}

func (f Finding) onEdge(id string) Finding {
	f.EdgeID = id
	return f
}
