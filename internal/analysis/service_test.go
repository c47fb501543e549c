package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/flowscope/internal/diagram"
	"github.com/efebarandurmaz/flowscope/internal/events"
	"github.com/efebarandurmaz/flowscope/internal/recommend"
	"github.com/efebarandurmaz/flowscope/internal/scoring"
	"github.com/efebarandurmaz/flowscope/internal/traversal"
	"github.com/efebarandurmaz/flowscope/internal/validation"
)

type capture struct {
	mu     sync.Mutex
	events []events.Event
	topics []string
}

func (c *capture) Publish(ctx context.Context, topic string, event any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topic)
	c.events = append(c.events, event.(events.Event))
	return nil
}

func (c *capture) Close() error { return nil }

func (c *capture) snapshot() []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]events.Event(nil), c.events...)
}

func newService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	s, err := New(opts...)
	require.NoError(t, err)
	return s
}

func chain(types ...diagram.NodeType) *diagram.Diagram {
	d := &diagram.Diagram{ID: "d1", Name: "chain", Nodes: []diagram.Node{}, Edges: []diagram.Edge{}}
	for i, typ := range types {
		d.Nodes = append(d.Nodes, diagram.Node{ID: fmt.Sprintf("n%d", i), Type: typ, Data: map[string]any{"label": fmt.Sprintf("Step %d", i)}})
		if i > 0 {
			d.Edges = append(d.Edges, diagram.Edge{ID: fmt.Sprintf("e%d", i), Source: fmt.Sprintf("n%d", i-1), Target: fmt.Sprintf("n%d", i)})
		}
	}
	return d
}

func TestValidate_StartAndDatabase(t *testing.T) {
	d := &diagram.Diagram{
		ID:   "d",
		Name: "db",
		Nodes: []diagram.Node{
			{ID: "1", Type: diagram.NodeStart},
			{ID: "2", Type: diagram.NodeDatabase, Data: map[string]any{}},
		},
		Edges: []diagram.Edge{{ID: "e1", Source: "1", Target: "2"}},
	}
	res, err := newService(t).Validate(context.Background(), d)
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	assert.True(t, res.IsValid)
	assert.True(t, res.Has(validation.CodeMissingEnd))
	assert.True(t, res.Has(validation.CodeIncompleteDB))
}

func TestValidate_EmptyDiagram(t *testing.T) {
	d := &diagram.Diagram{ID: "x", Name: "x", Nodes: []diagram.Node{}, Edges: []diagram.Edge{}}
	res, err := newService(t).Validate(context.Background(), d)
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, validation.CodeEmptyDiagram, res.Errors[0].Code)
}

func TestValidate_Deterministic(t *testing.T) {
	s := newService(t)
	d := chain(diagram.NodeStart, diagram.NodeDecision, diagram.NodeAPICall, diagram.NodeEnd)
	a, err := s.Validate(context.Background(), d)
	require.NoError(t, err)
	b, err := s.Validate(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestComplexity_DatabaseRecommendation(t *testing.T) {
	d := chain(diagram.NodeStart, diagram.NodeDatabase, diagram.NodeDatabase, diagram.NodeDatabase, diagram.NodeDatabase, diagram.NodeEnd)
	rep, err := newService(t).Complexity(context.Background(), d)
	require.NoError(t, err)

	var found *recommend.Recommendation
	for i := range rep.Recommendations {
		if rep.Recommendations[i].ID == "database-optimization" {
			found = &rep.Recommendations[i]
		}
	}
	require.NotNil(t, found, "expected database optimization advice")
	assert.Equal(t, recommend.High, found.Priority)
	assert.Equal(t, "performance", found.Category)
	assert.Equal(t, scoring.PolicyVersion, rep.PolicyVersion)
	assert.GreaterOrEqual(t, rep.OverallScore, 0.0)
	assert.LessOrEqual(t, rep.OverallScore, 100.0)
	assert.NotEmpty(t, rep.Level)
}

func TestRecommendations_Ranked(t *testing.T) {
	d := chain(diagram.NodeUserAction, diagram.NodeAPICall, diagram.NodeDatabase)
	recs, err := newService(t).Recommendations(context.Background(), d)
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	for i, r := range recs {
		assert.Equal(t, i+1, r.Rank)
	}
}

func TestFlowAndDependencies(t *testing.T) {
	s := newService(t)
	d := chain(diagram.NodeStart, diagram.NodeAPICall, diagram.NodeDatabase, diagram.NodeEnd)

	fr, err := s.Flow(context.Background(), d)
	require.NoError(t, err)
	require.Len(t, fr.Paths, 1)
	assert.Equal(t, 4, fr.Paths[0].Length)
	require.NotNil(t, fr.CriticalPath)

	deps, err := s.Dependencies(context.Background(), d)
	require.NoError(t, err)
	assert.Len(t, deps.APIs, 1)
	assert.Len(t, deps.Databases, 1)
}

func TestAnalyze_Bundle(t *testing.T) {
	d := chain(diagram.NodeStart, diagram.NodeDecision, diagram.NodeEnd)
	rep, err := newService(t).Analyze(context.Background(), d)
	require.NoError(t, err)

	fp, err := diagram.Fingerprint(d)
	require.NoError(t, err)
	assert.Equal(t, fp, rep.Fingerprint)
	assert.Equal(t, "d1", rep.DiagramID)
	assert.NotNil(t, rep.Validation)
	assert.NotNil(t, rep.Complexity)
	assert.NotNil(t, rep.Flow)
	assert.NotNil(t, rep.Dependencies)
	assert.Equal(t, rep.Recommendations, rep.Complexity.Recommendations)
}

func TestBadInput(t *testing.T) {
	c := &capture{}
	s := newService(t, WithObserver(c))

	tests := []struct {
		name string
		d    *diagram.Diagram
	}{
		{"nil", nil},
		{"nil nodes", &diagram.Diagram{Edges: []diagram.Edge{}}},
		{"nil edges", &diagram.Diagram{Nodes: []diagram.Node{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Complexity(context.Background(), tt.d)
			require.Error(t, err)
			assert.True(t, errors.Is(err, diagram.ErrBadInput))
			assert.False(t, errors.Is(err, ErrAnalysisFailed))
		})
	}

	evs := c.snapshot()
	require.Len(t, evs, 6)
	assert.Equal(t, events.TypeStarted, evs[0].Type)
	assert.Equal(t, events.TypeFailed, evs[1].Type)
	assert.Contains(t, evs[1].Error, "bad input")
}

func TestEngineFailureIsRecovered(t *testing.T) {
	boom := recommend.Rule{
		ID:    "boom",
		Match: func(f *recommend.Facts) bool { panic("unexpected nil data") },
		Build: func(f *recommend.Facts) recommend.Recommendation { return recommend.Recommendation{} },
	}
	c := &capture{}
	s := newService(t, WithRules([]recommend.Rule{boom}), WithObserver(c))

	_, err := s.Recommendations(context.Background(), chain(diagram.NodeStart, diagram.NodeEnd))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAnalysisFailed))
	assert.Equal(t, "analysis failed: unexpected nil data", err.Error())

	var aerr *Error
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, OpRecommendations, aerr.Op)

	evs := c.snapshot()
	require.Len(t, evs, 2)
	assert.Equal(t, events.TypeFailed, evs[1].Type)
	assert.Equal(t, "analysis failed: unexpected nil data", evs[1].Error)
}

func TestRuntimePanicKeepsCause(t *testing.T) {
	boom := recommend.Rule{
		ID: "index",
		Match: func(f *recommend.Facts) bool {
			var xs []int
			return xs[f.NodeCount] > 0
		},
		Build: func(f *recommend.Facts) recommend.Recommendation { return recommend.Recommendation{} },
	}
	s := newService(t, WithRules([]recommend.Rule{boom}))
	_, err := s.Recommendations(context.Background(), chain(diagram.NodeStart))
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "analysis failed: runtime error"))
}

func TestCanceledContext(t *testing.T) {
	c := &capture{}
	s := newService(t, WithObserver(c))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Analyze(ctx, chain(diagram.NodeStart, diagram.NodeEnd))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, c.snapshot())
}

func TestLifecycleEvents(t *testing.T) {
	c := &capture{}
	s := newService(t, WithObserver(c))
	d := chain(diagram.NodeStart, diagram.NodeAPICall, diagram.NodeEnd)

	rep, err := s.Complexity(context.Background(), d)
	require.NoError(t, err)

	evs := c.snapshot()
	require.Len(t, evs, 2)
	assert.Equal(t, []string{events.TopicAnalysisStarted, events.TopicAnalysisCompleted}, c.topics)

	started, done := evs[0], evs[1]
	assert.NotEmpty(t, started.RequestID)
	assert.Equal(t, started.RequestID, done.RequestID)
	assert.Equal(t, OpComplexity, done.Operation)
	assert.Equal(t, "d1", done.DiagramID)
	assert.Equal(t, 3, done.Nodes)
	assert.Equal(t, 2, done.Edges)
	assert.NotEmpty(t, done.Fingerprint)
	assert.Equal(t, rep.OverallScore, done.Score)
	assert.Equal(t, rep.Level, done.Level)
}

func TestRequestIDsAreUnique(t *testing.T) {
	store := events.NewStore(0)
	s := newService(t, WithObserver(store))
	for i := 0; i < 5; i++ {
		_, err := s.Validate(context.Background(), chain(diagram.NodeStart, diagram.NodeEnd))
		require.NoError(t, err)
	}
	assert.Len(t, store.ListRuns(), 5)
	assert.Equal(t, 5, store.GetStats().CompletedRuns)
}

type failingPublisher struct{}

func (failingPublisher) Publish(ctx context.Context, topic string, event any) error {
	return errors.New("broker down")
}
func (failingPublisher) Close() error { return nil }

func TestObserverFailureDoesNotFailAnalysis(t *testing.T) {
	s := newService(t, WithObserver(failingPublisher{}))
	_, err := s.Validate(context.Background(), chain(diagram.NodeStart, diagram.NodeEnd))
	assert.NoError(t, err)
}

func TestCache(t *testing.T) {
	s := newService(t, WithCache(8))
	d := chain(diagram.NodeStart, diagram.NodeDatabase, diagram.NodeEnd)

	a, err := s.Analyze(context.Background(), d)
	require.NoError(t, err)
	b, err := s.Analyze(context.Background(), d)
	require.NoError(t, err)
	assert.Same(t, a, b, "identical diagrams should share the cached report")
	assert.Equal(t, 1, s.cache.len())

	v, err := s.Validate(context.Background(), d)
	require.NoError(t, err)
	assert.Same(t, a.Validation, v)

	other := chain(diagram.NodeStart, diagram.NodeEnd)
	_, err = s.Flow(context.Background(), other)
	require.NoError(t, err)
	assert.Equal(t, 2, s.cache.len())
}

func TestCache_Concurrent(t *testing.T) {
	s := newService(t, WithCache(4))
	d := chain(diagram.NodeStart, diagram.NodeDecision, diagram.NodeAPICall, diagram.NodeEnd)

	var wg sync.WaitGroup
	reports := make([]*Report, 16)
	for i := range reports {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rep, err := s.Analyze(context.Background(), d)
			assert.NoError(t, err)
			reports[i] = rep
		}(i)
	}
	wg.Wait()

	for _, rep := range reports[1:] {
		assert.Same(t, reports[0], rep)
	}
}

func TestCache_FailureNotCached(t *testing.T) {
	calls := 0
	boom := recommend.Rule{
		ID: "boom",
		Match: func(f *recommend.Facts) bool {
			calls++
			panic("nope")
		},
		Build: func(f *recommend.Facts) recommend.Recommendation { return recommend.Recommendation{} },
	}
	s := newService(t, WithCache(4), WithRules([]recommend.Rule{boom}))
	d := chain(diagram.NodeStart, diagram.NodeEnd)

	for i := 0; i < 2; i++ {
		_, err := s.Analyze(context.Background(), d)
		require.ErrorIs(t, err, ErrAnalysisFailed)
		assert.Equal(t, "analysis failed: nope", err.Error())
	}
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, s.cache.len())
}

func TestNew_InvalidPolicy(t *testing.T) {
	p := scoring.DefaultPolicy()
	p.Weights.Structural = 5
	_, err := New(WithPolicy(p))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weights must sum to 1")
}

func TestWithLimits_Truncates(t *testing.T) {
	// Two parallel diamonds give four entry-exit paths.
	d := &diagram.Diagram{
		ID: "x", Name: "x",
		Nodes: []diagram.Node{
			{ID: "s", Type: diagram.NodeStart},
			{ID: "a", Type: diagram.NodeAPICall}, {ID: "b", Type: diagram.NodeAPICall},
			{ID: "m", Type: diagram.NodeUserAction},
			{ID: "c", Type: diagram.NodeDatabase}, {ID: "e", Type: diagram.NodeDatabase},
			{ID: "z", Type: diagram.NodeEnd},
		},
		Edges: []diagram.Edge{
			{ID: "1", Source: "s", Target: "a"}, {ID: "2", Source: "s", Target: "b"},
			{ID: "3", Source: "a", Target: "m"}, {ID: "4", Source: "b", Target: "m"},
			{ID: "5", Source: "m", Target: "c"}, {ID: "6", Source: "m", Target: "e"},
			{ID: "7", Source: "c", Target: "z"}, {ID: "8", Source: "e", Target: "z"},
		},
	}
	s := newService(t, WithLimits(traversal.Limits{MaxPaths: 2, MaxSteps: 1000}))
	fr, err := s.Flow(context.Background(), d)
	require.NoError(t, err)
	assert.True(t, fr.Truncated)
	assert.Len(t, fr.Paths, 2)
}

// fanIntoClique feeds starts start nodes into a complete core of size nodes
// and adds ends end nodes that nothing reaches.
func fanIntoClique(starts, size, ends int) *diagram.Diagram {
	d := &diagram.Diagram{ID: "clique", Name: "clique", Nodes: []diagram.Node{}, Edges: []diagram.Edge{}}
	edge := func(a, b string) {
		d.Edges = append(d.Edges, diagram.Edge{ID: fmt.Sprintf("e%d", len(d.Edges)), Source: a, Target: b})
	}
	for i := 0; i < starts; i++ {
		id := fmt.Sprintf("s%d", i)
		d.Nodes = append(d.Nodes, diagram.Node{ID: id, Type: diagram.NodeStart})
		edge(id, "c0")
	}
	for i := 0; i < size; i++ {
		d.Nodes = append(d.Nodes, diagram.Node{ID: fmt.Sprintf("c%d", i), Type: diagram.NodeUserAction})
		for j := 0; j < size; j++ {
			if i != j {
				edge(fmt.Sprintf("c%d", i), fmt.Sprintf("c%d", j))
			}
		}
	}
	for i := 0; i < ends; i++ {
		d.Nodes = append(d.Nodes, diagram.Node{ID: fmt.Sprintf("x%d", i), Type: diagram.NodeEnd})
	}
	return d
}

func TestAnalyze_DenseDiagramStaysBounded(t *testing.T) {
	obs := &capture{}
	s := newService(t, WithObserver(obs))

	begin := time.Now()
	rep, err := s.Analyze(context.Background(), fanIntoClique(90, 10, 90))
	require.NoError(t, err)
	assert.Less(t, time.Since(begin), 3*time.Second)

	assert.True(t, rep.Complexity.Raw.Truncated)
	assert.Empty(t, rep.Flow.Paths)

	evs := obs.snapshot()
	require.Len(t, evs, 2)
	assert.Equal(t, events.TypeCompleted, evs[1].Type)
	assert.True(t, evs[1].Truncated)
}

func TestWithValidation_DisablesChecks(t *testing.T) {
	d := &diagram.Diagram{
		ID: "d", Name: "d",
		Nodes: []diagram.Node{{ID: "1", Type: diagram.NodeStart}, {ID: "2", Type: diagram.NodeDatabase}},
		Edges: []diagram.Edge{{ID: "e1", Source: "1", Target: "2"}},
	}
	cfg := validation.DefaultConfig()
	cfg.Disabled = []string{validation.EntryExitCheck{}.Name()}
	res, err := newService(t, WithValidation(cfg)).Validate(context.Background(), d)
	require.NoError(t, err)
	assert.False(t, res.Has(validation.CodeMissingEnd))
}
