package validation

import (
	"encoding/json"
	"testing"

	"github.com/efebarandurmaz/flowscope/internal/diagram"
	"github.com/efebarandurmaz/flowscope/internal/traversal"
)

func run(d *diagram.Diagram) *Result {
	return Validate(d, nil, traversal.DefaultLimits())
}

func codes(list []Finding) map[string]int {
	out := make(map[string]int)
	for _, f := range list {
		out[f.Code]++
	}
	return out
}

func wellFormed() *diagram.Diagram {
	return &diagram.Diagram{
		ID:   "d1",
		Name: "Login",
		Nodes: []diagram.Node{
			{ID: "s", Type: diagram.NodeStart, Data: map[string]any{"label": "Start", "description": "entry"}},
			{ID: "api", Type: diagram.NodeAPICall, Data: map[string]any{
				"label": "Login", "description": "POST credentials", "endpoint": "/login", "method": "POST",
			}},
			{ID: "ok", Type: diagram.NodeDecision, Data: map[string]any{
				"label": "Success?", "description": "check status", "condition": "status == 200",
			}},
			{ID: "e", Type: diagram.NodeEnd, Data: map[string]any{"label": "Done", "description": "exit"}},
		},
		Edges: []diagram.Edge{
			{ID: "e1", Source: "s", Target: "api"},
			{ID: "e2", Source: "api", Target: "ok"},
			{ID: "e3", Source: "ok", Target: "e", Label: "yes"},
			{ID: "e4", Source: "ok", Target: "api", Label: "retry"},
		},
	}
}

func TestNilDiagramIsEmpty(t *testing.T) {
	r := run(nil)
	if len(r.Errors) != 1 || r.Errors[0].Code != CodeEmptyDiagram {
		t.Fatalf("expected exactly one empty_diagram error, got %+v", r.Errors)
	}
}

func TestEmptyDiagram(t *testing.T) {
	r := run(&diagram.Diagram{Nodes: []diagram.Node{}, Edges: []diagram.Edge{{ID: "x", Source: "a", Target: "b"}}})
	if r.IsValid {
		t.Error("expected empty diagram to be invalid")
	}
	if len(r.Errors) != 1 || r.Errors[0].Code != CodeEmptyDiagram {
		t.Fatalf("expected exactly one empty_diagram error, got %+v", r.Errors)
	}
	if len(r.Warnings) != 0 || len(r.Suggestions) != 0 {
		t.Errorf("expected no other findings, got %+v / %+v", r.Warnings, r.Suggestions)
	}
	if r.Score != 80 {
		t.Errorf("expected score 80, got %d", r.Score)
	}
}

func TestWellFormedDiagram(t *testing.T) {
	r := run(wellFormed())
	if !r.IsValid {
		t.Fatalf("expected valid diagram, got errors %+v", r.Errors)
	}
	got := codes(r.Warnings)
	if got[CodePotentialCycle] != 1 {
		t.Errorf("expected the retry loop to be flagged once, got %+v", r.Warnings)
	}
	if len(r.Warnings) != 1 {
		t.Errorf("expected only the cycle warning, got %+v", r.Warnings)
	}
	if len(r.Suggestions) != 0 {
		t.Errorf("expected no suggestions, got %+v", r.Suggestions)
	}
	if r.Score != 95 {
		t.Errorf("expected score 95, got %d", r.Score)
	}
}

func TestStartAndIncompleteDatabase(t *testing.T) {
	d := &diagram.Diagram{
		Nodes: []diagram.Node{
			{ID: "1", Type: diagram.NodeStart},
			{ID: "2", Type: diagram.NodeDatabase, Data: map[string]any{}},
		},
		Edges: []diagram.Edge{{ID: "e1", Source: "1", Target: "2"}},
	}
	r := run(d)
	if len(r.Errors) != 0 {
		t.Fatalf("expected zero errors, got %+v", r.Errors)
	}
	w := codes(r.Warnings)
	for _, code := range []string{CodeMissingEnd, CodeIncompleteDB} {
		if w[code] == 0 {
			t.Errorf("expected warning %s, got %+v", code, r.Warnings)
		}
	}
}

func TestIntegrityErrors(t *testing.T) {
	d := &diagram.Diagram{
		Nodes: []diagram.Node{
			{ID: "a", Type: diagram.NodeStart},
			{ID: "a", Type: diagram.NodeEnd},
			{ID: "", Type: diagram.NodeEnd},
			{ID: "b"},
			{ID: "c", Type: "loop"},
		},
		Edges: []diagram.Edge{
			{ID: "e1", Source: "a", Target: "ghost"},
			{ID: "e1", Source: "nowhere", Target: "b"},
			{ID: "", Source: "", Target: ""},
		},
	}
	r := run(d)
	want := map[string]int{
		CodeDuplicateNodeID: 1,
		CodeMissingNodeID:   1,
		CodeMissingNodeType: 1,
		CodeInvalidNodeType: 1,
		CodeDuplicateEdgeID: 1,
		CodeMissingEdgeID:   1,
		CodeInvalidEdgeTgt:  1,
		CodeInvalidEdgeSrc:  1,
		CodeMissingEdgeSrc:  1,
		CodeMissingEdgeTgt:  1,
	}
	got := codes(r.Errors)
	for code, n := range want {
		if got[code] != n {
			t.Errorf("expected %d %s, got %d (%+v)", n, code, got[code], r.Errors)
		}
	}
	if r.IsValid {
		t.Error("expected invalid result")
	}
	if r.Score != 0 {
		t.Errorf("expected score clamped at 0, got %d", r.Score)
	}
}

func TestValidEdgesProduceNoEndpointErrors(t *testing.T) {
	r := run(wellFormed())
	got := codes(r.Errors)
	if got[CodeInvalidEdgeSrc] != 0 || got[CodeInvalidEdgeTgt] != 0 {
		t.Errorf("unexpected endpoint errors %+v", r.Errors)
	}
}

func TestTopologyWarnings(t *testing.T) {
	d := &diagram.Diagram{
		Nodes: []diagram.Node{
			{ID: "s1", Type: diagram.NodeStart},
			{ID: "s2", Type: diagram.NodeStart},
			{ID: "q", Type: diagram.NodeDecision},
			{ID: "x", Type: diagram.NodeUserAction},
			{ID: "orphan", Type: diagram.NodeUserAction},
			{ID: "island", Type: diagram.NodeHTMLElement},
			{ID: "gone", Type: diagram.NodeUserAction},
			{ID: "e", Type: diagram.NodeEnd},
		},
		Edges: []diagram.Edge{
			{ID: "e1", Source: "s1", Target: "q"},
			{ID: "e2", Source: "q", Target: "x"},
			{ID: "e3", Source: "x", Target: "x"},
			{ID: "e4", Source: "s1", Target: "q"},
			{ID: "e5", Source: "s2", Target: "e"},
			{ID: "e6", Source: "orphan", Target: "gone"},
		},
	}
	r := run(d)
	w := codes(r.Warnings)
	want := map[string]int{
		CodeMultipleStart:    1,
		CodeIsolatedNode:     1, // island
		CodeUnreachableNode:  2, // orphan, gone
		CodeDeadEnd:          1, // gone
		CodeSelfLoop:         1,
		CodeDuplicateEdge:    1,
		CodeDecisionBranches: 1, // q has a single branch
	}
	for code, n := range want {
		if w[code] != n {
			t.Errorf("expected %d %s, got %d", n, code, w[code])
		}
	}
	if w[CodePotentialCycle] != 0 {
		t.Errorf("self-loops are reported as self_loop only, got %+v", r.Warnings)
	}
	s := codes(r.Suggestions)
	if s[CodeUnlabeledBranch] != 1 {
		t.Errorf("expected one unlabeled decision branch, got %d", s[CodeUnlabeledBranch])
	}
	if s[CodeMissingCondition] != 1 || s[CodeMissingElement] != 1 {
		t.Errorf("expected condition and element suggestions, got %+v", s)
	}
}

func TestDecisionBranches(t *testing.T) {
	d := &diagram.Diagram{
		Nodes: []diagram.Node{
			{ID: "s", Type: diagram.NodeStart},
			{ID: "q", Type: diagram.NodeDecision},
			{ID: "e", Type: diagram.NodeEnd},
		},
		Edges: []diagram.Edge{
			{ID: "e1", Source: "s", Target: "q"},
			{ID: "e2", Source: "q", Target: "e"},
		},
	}
	r := run(d)
	if codes(r.Warnings)[CodeDecisionBranches] != 1 {
		t.Errorf("expected insufficient branches warning, got %+v", r.Warnings)
	}
}

func TestComputeScore(t *testing.T) {
	w := DefaultScoreWeights()
	prev := 101
	for n := 0; n < 30; n++ {
		s := ComputeScore(n/3, n/2, n, w)
		if s > prev {
			t.Fatalf("score increased from %d to %d at step %d", prev, s, n)
		}
		if s < 0 || s > 100 {
			t.Fatalf("score %d out of range", s)
		}
		prev = s
	}
	if ComputeScore(0, 0, 0, w) != 100 {
		t.Error("expected perfect score with no findings")
	}
	if ComputeScore(1, 2, 3, w) != 67 {
		t.Errorf("expected 67, got %d", ComputeScore(1, 2, 3, w))
	}
}

func TestDeterministic(t *testing.T) {
	d := wellFormed()
	d.Nodes = append(d.Nodes, diagram.Node{ID: "z", Type: diagram.NodeDatabase})
	a, err := json.Marshal(run(d))
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(run(d))
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Errorf("validation output differs between runs:\n%s\n%s", a, b)
	}
}

func TestBuildPipelineDisablesChecks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Disabled = []string{"completeness", "attributes"}
	p := BuildPipeline(cfg)
	for _, name := range p.Checks() {
		if name == "completeness" || name == "attributes" {
			t.Errorf("check %s should be disabled", name)
		}
	}

	d := &diagram.Diagram{Nodes: []diagram.Node{{ID: "1", Type: diagram.NodeDatabase}}, Edges: []diagram.Edge{}}
	r := p.Run(&Context{Diagram: d, Limits: traversal.DefaultLimits()})
	if len(r.Suggestions) != 0 || codes(r.Warnings)[CodeIncompleteDB] != 0 {
		t.Errorf("disabled checks still reported findings: %+v %+v", r.Warnings, r.Suggestions)
	}
}

func TestSummary(t *testing.T) {
	r := run(wellFormed())
	want := "Diagram is valid (0 errors, 1 warning, 0 suggestions), score 95/100"
	if r.Summary != want {
		t.Errorf("summary = %q, want %q", r.Summary, want)
	}
}
