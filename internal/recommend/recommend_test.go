package recommend

import (
	"fmt"
	"testing"

	"github.com/efebarandurmaz/flowscope/internal/diagram"
	"github.com/efebarandurmaz/flowscope/internal/traversal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linear(types ...diagram.NodeType) *diagram.Diagram {
	d := &diagram.Diagram{Nodes: []diagram.Node{}, Edges: []diagram.Edge{}}
	for i, t := range types {
		d.Nodes = append(d.Nodes, diagram.Node{ID: fmt.Sprintf("n%d", i), Type: t, Data: map[string]any{"description": "step"}})
		if i > 0 {
			d.Edges = append(d.Edges, diagram.Edge{ID: fmt.Sprintf("e%d", i), Source: fmt.Sprintf("n%d", i-1), Target: fmt.Sprintf("n%d", i)})
		}
	}
	return d
}

func generate(d *diagram.Diagram) []Recommendation {
	return Generate(BuildFacts(d, nil, traversal.DefaultLimits()), DefaultRules())
}

func find(recs []Recommendation, id string) *Recommendation {
	for i := range recs {
		if recs[i].ID == id {
			return &recs[i]
		}
	}
	return nil
}

func TestDatabaseOptimization(t *testing.T) {
	d := linear(diagram.NodeStart, diagram.NodeDatabase, diagram.NodeDatabase, diagram.NodeDatabase, diagram.NodeDatabase, diagram.NodeEnd)
	recs := generate(d)

	rec := find(recs, "database-optimization")
	require.NotNil(t, rec)
	assert.Equal(t, "performance", rec.Category)
	assert.Equal(t, High, rec.Priority)
	assert.Equal(t, "Optimize database operations", rec.Title)
	assert.NotEmpty(t, rec.Implementation.Steps)

	three := generate(linear(diagram.NodeStart, diagram.NodeDatabase, diagram.NodeDatabase, diagram.NodeDatabase, diagram.NodeEnd))
	assert.Nil(t, find(three, "database-optimization"))
}

func TestAuthentication(t *testing.T) {
	d := linear(diagram.NodeStart, diagram.NodeUserAction, diagram.NodeEnd)
	assert.NotNil(t, find(generate(d), "authentication"))

	d.Nodes = append(d.Nodes, diagram.Node{ID: "auth", Type: diagram.NodeExternalService, Data: map[string]any{"serviceType": "OAuth"}})
	assert.Nil(t, find(generate(d), "authentication"))
}

func TestAPIErrorHandling(t *testing.T) {
	unguarded := linear(diagram.NodeStart, diagram.NodeAPICall, diagram.NodeEnd)
	rec := find(generate(unguarded), "api-error-handling")
	require.NotNil(t, rec)
	assert.Contains(t, rec.Description, "n1")

	guarded := linear(diagram.NodeStart, diagram.NodeAPICall, diagram.NodeDecision, diagram.NodeEnd)
	assert.Nil(t, find(generate(guarded), "api-error-handling"))
}

func TestEntryExitAndDocumentation(t *testing.T) {
	d := &diagram.Diagram{
		Nodes: []diagram.Node{{ID: "a", Type: diagram.NodeUserAction}, {ID: "b", Type: diagram.NodeHTMLElement}},
		Edges: []diagram.Edge{{ID: "e", Source: "a", Target: "b"}},
	}
	recs := generate(d)
	assert.NotNil(t, find(recs, "entry-exit"))
	assert.NotNil(t, find(recs, "documentation"))
	assert.Contains(t, find(recs, "entry-exit").Description, "start or end")
}

func TestParallelization(t *testing.T) {
	d := &diagram.Diagram{
		Nodes: []diagram.Node{
			{ID: "s", Type: diagram.NodeStart},
			{ID: "a", Type: diagram.NodeAPICall},
			{ID: "b", Type: diagram.NodeAPICall},
			{ID: "e", Type: diagram.NodeEnd},
		},
		Edges: []diagram.Edge{
			{ID: "1", Source: "s", Target: "a"},
			{ID: "2", Source: "s", Target: "b"},
			{ID: "3", Source: "a", Target: "e"},
			{ID: "4", Source: "b", Target: "e"},
		},
	}
	facts := BuildFacts(d, nil, traversal.DefaultLimits())
	assert.Equal(t, []string{"s"}, facts.ParallelForks)
	assert.NotNil(t, find(generate(d), "parallelization"))
}

func TestRanksAndOrdering(t *testing.T) {
	var types []diagram.NodeType
	types = append(types, diagram.NodeStart)
	for i := 0; i < 4; i++ {
		types = append(types, diagram.NodeDatabase)
	}
	types = append(types, diagram.NodeUserAction, diagram.NodeAPICall, diagram.NodeExternalService, diagram.NodeExternalService)
	recs := generate(linear(types...))

	require.NotEmpty(t, recs)
	for i, r := range recs {
		assert.Equal(t, i+1, r.Rank)
		if i == 0 {
			continue
		}
		prev := recs[i-1]
		if levelRank[prev.Priority] == levelRank[r.Priority] {
			assert.GreaterOrEqual(t, levelRank[prev.Impact], levelRank[r.Impact], "impact must not increase within a priority")
		} else {
			assert.Greater(t, levelRank[prev.Priority], levelRank[r.Priority])
		}
	}

	// api-error-handling (high/high/low) outranks database and auth (high/high/medium).
	assert.Equal(t, "api-error-handling", recs[0].ID)
	assert.Equal(t, "database-optimization", recs[1].ID)
	assert.Equal(t, "authentication", recs[2].ID)
}

func TestSortIsStable(t *testing.T) {
	var rules []Rule
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("rule-%d", i)
		rules = append(rules, Rule{
			ID:    id,
			Match: func(*Facts) bool { return true },
			Build: func(*Facts) Recommendation {
				return Recommendation{Title: id, Priority: Medium, Impact: Medium, Effort: Low}
			},
		})
	}
	recs := Generate(&Facts{}, rules)
	require.Len(t, recs, 6)
	for i, r := range recs {
		assert.Equal(t, fmt.Sprintf("rule-%d", i), r.ID)
		assert.Equal(t, i+1, r.Rank)
	}
}

func TestEffortBreaksTies(t *testing.T) {
	recs := []Recommendation{
		{ID: "slow", Priority: High, Impact: High, Effort: High},
		{ID: "quick", Priority: High, Impact: High, Effort: Low},
	}
	Sort(recs)
	assert.Equal(t, "quick", recs[0].ID)
	assert.Equal(t, 1, recs[0].Rank)
	assert.Equal(t, 2, recs[1].Rank)
}

func TestGenerateNilFacts(t *testing.T) {
	recs := Generate(nil, DefaultRules())
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
}
