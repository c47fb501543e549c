package flow

import (
	"testing"

	"github.com/efebarandurmaz/flowscope/internal/diagram"
	"github.com/efebarandurmaz/flowscope/internal/traversal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func forkJoin() *diagram.Diagram {
	return &diagram.Diagram{
		Nodes: []diagram.Node{
			{ID: "s", Type: diagram.NodeStart},
			{ID: "x", Type: diagram.NodeAPICall, Data: map[string]any{"method": "GET", "endpoint": "/users"}},
			{ID: "y", Type: diagram.NodeDatabase, Data: map[string]any{"operation": "select", "table": "orders"}},
			{ID: "m", Type: diagram.NodeUserAction},
			{ID: "e", Type: diagram.NodeEnd},
		},
		Edges: []diagram.Edge{
			{ID: "1", Source: "s", Target: "x"},
			{ID: "2", Source: "s", Target: "y"},
			{ID: "3", Source: "x", Target: "m"},
			{ID: "4", Source: "y", Target: "m"},
			{ID: "5", Source: "m", Target: "e"},
		},
	}
}

func TestAnalyzePaths(t *testing.T) {
	res := Analyze(nil, forkJoin(), nil, traversal.DefaultLimits())

	require.Len(t, res.Paths, 2)
	assert.Equal(t, []string{"s", "x", "m", "e"}, res.Paths[0].Nodes)
	assert.Equal(t, 4, res.Paths[0].Length)
	// 0.5 + (2.5 + 0.2) + 1.5 + 0.5
	assert.InDelta(t, 5.2, res.Paths[0].Complexity, 0.001)
	// 0.5 + (2 + 0.3) + 1.5 + 0.5
	assert.InDelta(t, 4.8, res.Paths[1].Complexity, 0.001)

	require.NotNil(t, res.CriticalPath)
	assert.Equal(t, res.Paths[0].Nodes, res.CriticalPath.Nodes)
	assert.False(t, res.Truncated)
}

func TestCriticalPathTieBreak(t *testing.T) {
	paths := []Path{
		{Nodes: []string{"a", "b"}, Length: 2, Complexity: 3},
		{Nodes: []string{"a", "c", "d"}, Length: 3, Complexity: 3},
		{Nodes: []string{"a", "e", "f"}, Length: 3, Complexity: 3},
	}
	cp := critical(paths)
	require.NotNil(t, cp)
	assert.Equal(t, []string{"a", "c", "d"}, cp.Nodes, "more nodes wins, then first found")
	assert.Nil(t, critical(nil))
}

func TestBottlenecks(t *testing.T) {
	res := Analyze(nil, forkJoin(), nil, traversal.DefaultLimits())
	require.Len(t, res.Bottlenecks, 1)
	assert.Equal(t, "m", res.Bottlenecks[0].NodeID)
	assert.Equal(t, "on 2 of 2 paths", res.Bottlenecks[0].Reason)
}

func TestJoinBottleneck(t *testing.T) {
	d := &diagram.Diagram{
		Nodes: []diagram.Node{
			{ID: "a", Type: diagram.NodeUserAction},
			{ID: "b", Type: diagram.NodeUserAction},
			{ID: "c", Type: diagram.NodeUserAction},
			{ID: "j", Type: diagram.NodeDatabase},
		},
		Edges: []diagram.Edge{
			{ID: "1", Source: "a", Target: "j"},
			{ID: "2", Source: "b", Target: "j"},
			{ID: "3", Source: "c", Target: "j"},
		},
	}
	res := Analyze(nil, d, nil, traversal.DefaultLimits())
	require.Len(t, res.Paths, 3)
	require.Len(t, res.Bottlenecks, 1)
	assert.Equal(t, "j", res.Bottlenecks[0].NodeID)
	assert.Equal(t, 3, res.Bottlenecks[0].InDegree)
}

func TestParallelProcesses(t *testing.T) {
	res := Analyze(nil, forkJoin(), nil, traversal.DefaultLimits())
	require.Len(t, res.ParallelProcesses, 1)
	p := res.ParallelProcesses[0]
	assert.Equal(t, "s", p.ForkNode)
	assert.Equal(t, []string{"x", "y"}, p.Branches)
	assert.Equal(t, "m", p.JoinNode)
}

func TestDecisionForksAreNotParallel(t *testing.T) {
	d := forkJoin()
	d.Nodes[0].Type = diagram.NodeDecision
	res := Analyze(nil, d, nil, traversal.DefaultLimits())
	assert.Empty(t, res.ParallelProcesses)
}

func TestDivergingBranchesHaveNoJoin(t *testing.T) {
	d := &diagram.Diagram{
		Nodes: []diagram.Node{
			{ID: "s", Type: diagram.NodeStart},
			{ID: "e1", Type: diagram.NodeEnd},
			{ID: "e2", Type: diagram.NodeEnd},
		},
		Edges: []diagram.Edge{
			{ID: "1", Source: "s", Target: "e1"},
			{ID: "2", Source: "s", Target: "e2"},
		},
	}
	res := Analyze(nil, d, nil, traversal.DefaultLimits())
	require.Len(t, res.ParallelProcesses, 1)
	assert.Empty(t, res.ParallelProcesses[0].JoinNode)
}

func TestAnalyzeEmpty(t *testing.T) {
	res := Analyze(nil, &diagram.Diagram{Nodes: []diagram.Node{}, Edges: []diagram.Edge{}}, nil, traversal.DefaultLimits())
	assert.Empty(t, res.Paths)
	assert.Nil(t, res.CriticalPath)
	assert.NotNil(t, res.Bottlenecks)
}

func TestDependencies(t *testing.T) {
	d := forkJoin()
	d.Nodes = append(d.Nodes, diagram.Node{ID: "pay", Type: diagram.NodeExternalService, Data: map[string]any{"serviceType": "payments", "label": "Stripe"}})
	rep := Dependencies(d, nil)

	require.Len(t, rep.APIs, 1)
	assert.Equal(t, map[string]string{"method": "GET", "endpoint": "/users"}, rep.APIs[0].Attributes)
	require.Len(t, rep.Databases, 1)
	assert.Equal(t, "orders", rep.Databases[0].Attributes["table"])
	require.Len(t, rep.ExternalServices, 1)
	assert.Equal(t, "Stripe", rep.ExternalServices[0].Label)

	assert.Equal(t, []string{"x", "y"}, rep.Upstream["m"])
	assert.Equal(t, []string{"x", "y"}, rep.Downstream["s"])
	_, ok := rep.Upstream["s"]
	assert.False(t, ok)
}
