package validation

import (
	"strings"

	"github.com/efebarandurmaz/flowscope/internal/diagram"
	"github.com/efebarandurmaz/flowscope/internal/traversal"
)

// Context provides the data a check inspects.
type Context struct {
	Diagram *diagram.Diagram
	Graph   *traversal.Graph
	Limits  traversal.Limits
}

// Check is the interface every validation check implements. A check never
// stops the pipeline; it only reports findings.
type Check interface {
	Name() string
	Run(ctx *Context) []Finding
}

// NodeIntegrityCheck reports missing, duplicate and invalid node ids and types.
type NodeIntegrityCheck struct{}

func (NodeIntegrityCheck) Name() string { return "node_integrity" }

func (NodeIntegrityCheck) Run(ctx *Context) []Finding {
	var out []Finding
	seen := make(map[string]bool, len(ctx.Diagram.Nodes))
	for i, n := range ctx.Diagram.Nodes {
		id := strings.TrimSpace(n.ID)
		switch {
		case id == "":
			out = append(out, errorf(CodeMissingNodeID, "Node at index %d has no id", i))
		case seen[n.ID]:
			out = append(out, errorf(CodeDuplicateNodeID, "Duplicate node id %q", n.ID).onNode(n.ID))
		default:
			seen[n.ID] = true
		}

		switch {
		case n.Type == "":
			out = append(out, errorf(CodeMissingNodeType, "Node %q has no type", n.ID).onNode(n.ID))
		case !n.Type.IsValid():
			out = append(out, errorf(CodeInvalidNodeType, "Node %q has unknown type %q", n.ID, n.Type).onNode(n.ID))
		}
	}
	return out
}

// EdgeIntegrityCheck reports missing ids and endpoints that reference no node.
type EdgeIntegrityCheck struct{}

func (EdgeIntegrityCheck) Name() string { return "edge_integrity" }

func (EdgeIntegrityCheck) Run(ctx *Context) []Finding {
	var out []Finding
	seen := make(map[string]bool, len(ctx.Diagram.Edges))
	for i, e := range ctx.Diagram.Edges {
		switch {
		case strings.TrimSpace(e.ID) == "":
			out = append(out, errorf(CodeMissingEdgeID, "Edge at index %d has no id", i))
		case seen[e.ID]:
			out = append(out, errorf(CodeDuplicateEdgeID, "Duplicate edge id %q", e.ID).onEdge(e.ID))
		default:
			seen[e.ID] = true
		}

		switch {
		case strings.TrimSpace(e.Source) == "":
			out = append(out, errorf(CodeMissingEdgeSrc, "Edge %q has no source", e.ID).onEdge(e.ID))
		case !ctx.Graph.Has(e.Source):
			out = append(out, errorf(CodeInvalidEdgeSrc, "Edge %q references unknown source %q", e.ID, e.Source).onEdge(e.ID))
		}
		switch {
		case strings.TrimSpace(e.Target) == "":
			out = append(out, errorf(CodeMissingEdgeTgt, "Edge %q has no target", e.ID).onEdge(e.ID))
		case !ctx.Graph.Has(e.Target):
			out = append(out, errorf(CodeInvalidEdgeTgt, "Edge %q references unknown target %q", e.ID, e.Target).onEdge(e.ID))
		}
	}
	return out
}

// EntryExitCheck looks for start and end nodes.
type EntryExitCheck struct{}

func (EntryExitCheck) Name() string { return "entry_exit" }

func (EntryExitCheck) Run(ctx *Context) []Finding {
	counts := ctx.Diagram.CountByType()
	var out []Finding
	switch n := counts[diagram.NodeStart]; {
	case n == 0:
		out = append(out, warnf(CodeMissingStart, "Diagram has no start node"))
	case n > 1:
		out = append(out, warnf(CodeMultipleStart, "Diagram has %d start nodes", n))
	}
	if counts[diagram.NodeEnd] == 0 {
		out = append(out, warnf(CodeMissingEnd, "Diagram has no end node"))
	}
	return out
}

// ConnectivityCheck reports isolated, unreachable and dead-end nodes.
// Unreachability is only judged when the diagram names a start node.
type ConnectivityCheck struct{}

func (ConnectivityCheck) Name() string { return "connectivity" }

func (ConnectivityCheck) Run(ctx *Context) []Finding {
	g := ctx.Graph
	var out []Finding

	isolated := make(map[string]bool)
	if g.Len() > 1 {
		for _, id := range g.Isolated() {
			isolated[id] = true
			out = append(out, warnf(CodeIsolatedNode, "Node %q is not connected to any other node", id).onNode(id))
		}
	}

	var starts []string
	for _, id := range g.IDs() {
		if g.TypeOf(id) == diagram.NodeStart {
			starts = append(starts, id)
		}
	}
	if len(starts) > 0 {
		reached := make(map[string]bool)
		for _, id := range g.ReachableFrom(starts) {
			reached[id] = true
		}
		for _, id := range g.IDs() {
			if !reached[id] && !isolated[id] {
				out = append(out, warnf(CodeUnreachableNode, "Node %q cannot be reached from a start node", id).onNode(id))
			}
		}
	}

	for _, id := range g.IDs() {
		if isolated[id] || g.TypeOf(id) == diagram.NodeEnd || g.Len() == 1 {
			continue
		}
		if g.OutDegree(id) == 0 {
			out = append(out, warnf(CodeDeadEnd, "Node %q has no outgoing edges and is not an end node", id).onNode(id))
		}
	}
	return out
}

// EdgeShapeCheck reports self-loops and repeated source/target pairs.
type EdgeShapeCheck struct{}

func (EdgeShapeCheck) Name() string { return "edge_shape" }

func (EdgeShapeCheck) Run(ctx *Context) []Finding {
	var out []Finding
	pairs := make(map[[2]string]string)
	for _, e := range ctx.Diagram.Edges {
		if e.IsSelfLoop() {
			out = append(out, warnf(CodeSelfLoop, "Edge %q connects node %q to itself", e.ID, e.Source).onEdge(e.ID).onNode(e.Source))
		}
		if e.Source == "" || e.Target == "" {
			continue
		}
		key := [2]string{e.Source, e.Target}
		if first, dup := pairs[key]; dup {
			out = append(out, warnf(CodeDuplicateEdge, "Edge %q duplicates edge %q from %q to %q", e.ID, first, e.Source, e.Target).onEdge(e.ID))
			continue
		}
		pairs[key] = e.ID
	}
	return out
}

// CycleCheck reports loops longer than a single node.
type CycleCheck struct{}

func (CycleCheck) Name() string { return "cycles" }

func (CycleCheck) Run(ctx *Context) []Finding {
	var out []Finding
	for _, cycle := range ctx.Graph.DetectCycles(ctx.Limits).Cycles {
		if len(cycle) < 2 {
			continue
		}
		loop := strings.Join(append(append([]string(nil), cycle...), cycle[0]), " -> ")
		out = append(out, warnf(CodePotentialCycle, "Potential cycle: %s", loop).onNode(cycle[0]))
	}
	return out
}

// DecisionCheck requires at least two outgoing branches per decision node.
type DecisionCheck struct{}

func (DecisionCheck) Name() string { return "decisions" }

func (DecisionCheck) Run(ctx *Context) []Finding {
	var out []Finding
	for _, id := range ctx.Graph.IDs() {
		if ctx.Graph.TypeOf(id) != diagram.NodeDecision {
			continue
		}
		if n := ctx.Graph.OutDegree(id); n < 2 {
			out = append(out, warnf(CodeDecisionBranches, "Decision node %q has %d outgoing branches, expected at least 2", id, n).onNode(id))
		}
	}
	return out
}

// AttributeCheck reports database and API nodes missing the detail they need
// to be implemented.
type AttributeCheck struct{}

func (AttributeCheck) Name() string { return "attributes" }

func (AttributeCheck) Run(ctx *Context) []Finding {
	var out []Finding
	for _, n := range ctx.Diagram.Nodes {
		switch n.Type {
		case diagram.NodeDatabase:
			if !n.HasData("operation") {
				out = append(out, warnf(CodeIncompleteDB, "Database node %q has no operation", n.ID).onNode(n.ID))
			}
		case diagram.NodeAPICall:
			if !n.HasData("endpoint") && !n.HasData("url") {
				out = append(out, warnf(CodeIncompleteAPI, "API call node %q has no endpoint", n.ID).onNode(n.ID))
			}
		}
	}
	return out
}

// CompletenessCheck emits suggestions for missing descriptive attributes.
type CompletenessCheck struct{}

func (CompletenessCheck) Name() string { return "completeness" }

func (CompletenessCheck) Run(ctx *Context) []Finding {
	var out []Finding
	for _, n := range ctx.Diagram.Nodes {
		if n.Label() == "" {
			out = append(out, suggestf(CodeMissingLabel, "Node %q has no label", n.ID).onNode(n.ID))
		}
		if !n.HasData("description") {
			out = append(out, suggestf(CodeMissingDesc, "Node %q has no description", n.ID).onNode(n.ID))
		}
		switch n.Type {
		case diagram.NodeAPICall:
			if !n.HasData("method") {
				out = append(out, suggestf(CodeMissingMethod, "API call node %q has no HTTP method", n.ID).onNode(n.ID))
			}
		case diagram.NodeDecision:
			if !n.HasData("condition") {
				out = append(out, suggestf(CodeMissingCondition, "Decision node %q has no condition", n.ID).onNode(n.ID))
			}
		case diagram.NodeExternalService:
			if !n.HasData("serviceType") {
				out = append(out, suggestf(CodeMissingService, "External service node %q has no service type", n.ID).onNode(n.ID))
			}
		case diagram.NodeHTMLElement:
			if !n.HasData("elementType") {
				out = append(out, suggestf(CodeMissingElement, "HTML element node %q has no element type", n.ID).onNode(n.ID))
			}
		}
	}

	for _, e := range ctx.Diagram.Edges {
		if ctx.Graph.TypeOf(e.Source) == diagram.NodeDecision && strings.TrimSpace(e.Label) == "" {
			out = append(out, suggestf(CodeUnlabeledBranch, "Branch %q of decision %q has no label", e.ID, e.Source).onEdge(e.ID))
		}
	}
	return out
}
