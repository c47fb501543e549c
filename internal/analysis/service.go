// Package analysis is the public boundary of the heuristic engines. Every
// operation takes a decoded diagram and returns a structured result; bad
// input and recovered engine failures are the only errors.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/efebarandurmaz/flowscope/internal/diagram"
	"github.com/efebarandurmaz/flowscope/internal/events"
	"github.com/efebarandurmaz/flowscope/internal/flow"
	"github.com/efebarandurmaz/flowscope/internal/observability"
	"github.com/efebarandurmaz/flowscope/internal/recommend"
	"github.com/efebarandurmaz/flowscope/internal/scoring"
	"github.com/efebarandurmaz/flowscope/internal/traversal"
	"github.com/efebarandurmaz/flowscope/internal/validation"
)

// Operation names used in events, spans and metrics.
const (
	OpValidate        = "validate"
	OpComplexity      = "complexity"
	OpFlow            = "flow"
	OpRecommendations = "recommendations"
	OpDependencies    = "dependencies"
	OpAnalyze         = "analyze"
)

// Service runs analyses. It is safe for concurrent use; the only shared
// state is the optional report cache.
type Service struct {
	policy   *scoring.Policy
	limits   traversal.Limits
	pipeline *validation.Pipeline
	rules    []recommend.Rule
	observer events.Publisher
	tracer   trace.Tracer
	logger   *slog.Logger
	cache    *reportCache

	cacheSize int
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithPolicy sets the scoring policy. Nil keeps the default.
func WithPolicy(p *scoring.Policy) Option {
	return func(s *Service) {
		if p != nil {
			s.policy = p.Clone()
		}
	}
}

// WithLimits sets the traversal caps.
func WithLimits(lim traversal.Limits) Option {
	return func(s *Service) { s.limits = lim }
}

// WithValidation builds the validation pipeline from cfg.
func WithValidation(cfg *validation.Config) Option {
	return func(s *Service) { s.pipeline = validation.BuildPipeline(cfg) }
}

// WithRules replaces the recommendation rules.
func WithRules(rules []recommend.Rule) Option {
	return func(s *Service) { s.rules = rules }
}

// WithObserver sets the lifecycle event publisher.
func WithObserver(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.observer = p
		}
	}
}

// WithTracer sets the tracer used for operation spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithLogger sets the logger for observer failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCache enables an LRU report cache of the given size. Zero or less
// leaves caching off.
func WithCache(size int) Option {
	return func(s *Service) { s.cacheSize = size }
}

// New creates a service with the default policy, limits, checks and rules.
func New(opts ...Option) (*Service, error) {
	s := &Service{
		policy:   scoring.DefaultPolicy(),
		limits:   traversal.DefaultLimits(),
		pipeline: validation.BuildPipeline(nil),
		rules:    recommend.DefaultRules(),
		observer: &events.NoopPublisher{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scoring policy: %w", err)
	}
	if s.cacheSize > 0 {
		c, err := newReportCache(s.cacheSize)
		if err != nil {
			return nil, err
		}
		s.cache = c
	}
	return s, nil
}

// Policy returns a copy of the scoring policy in use.
func (s *Service) Policy() *scoring.Policy {
	return s.policy.Clone()
}

// Validate runs the structural and semantic checks.
func (s *Service) Validate(ctx context.Context, d *diagram.Diagram) (*validation.Result, error) {
	return execute(s, ctx, OpValidate, d, func(snap *snapshot) (*validation.Result, error) {
		if rep, ok, err := s.cached(OpValidate, snap); ok || err != nil {
			return reportPart(rep, err, func(r *Report) *validation.Result { return r.Validation })
		}
		return s.validate(snap), nil
	}, func(r *validation.Result, ev *events.Event) {
		ev.Score = float64(r.Score)
	})
}

// Complexity scores the diagram and attaches the recommendations.
func (s *Service) Complexity(ctx context.Context, d *diagram.Diagram) (*ComplexityReport, error) {
	return execute(s, ctx, OpComplexity, d, func(snap *snapshot) (*ComplexityReport, error) {
		if rep, ok, err := s.cached(OpComplexity, snap); ok || err != nil {
			return reportPart(rep, err, func(r *Report) *ComplexityReport { return r.Complexity })
		}
		return s.complexity(snap, s.recommend(snap)), nil
	}, func(r *ComplexityReport, ev *events.Event) {
		ev.Score = r.OverallScore
		ev.Level = r.Level
		ev.Truncated = r.Raw.Truncated
	})
}

// Flow enumerates entry-to-exit paths and derives bottlenecks and parallel
// branches.
func (s *Service) Flow(ctx context.Context, d *diagram.Diagram) (*flow.Result, error) {
	return execute(s, ctx, OpFlow, d, func(snap *snapshot) (*flow.Result, error) {
		if rep, ok, err := s.cached(OpFlow, snap); ok || err != nil {
			return reportPart(rep, err, func(r *Report) *flow.Result { return r.Flow })
		}
		return s.flow(snap), nil
	}, func(r *flow.Result, ev *events.Event) {
		ev.Truncated = r.Truncated
	})
}

// Recommendations returns ranked advice for the diagram.
func (s *Service) Recommendations(ctx context.Context, d *diagram.Diagram) ([]recommend.Recommendation, error) {
	return execute(s, ctx, OpRecommendations, d, func(snap *snapshot) ([]recommend.Recommendation, error) {
		if rep, ok, err := s.cached(OpRecommendations, snap); ok || err != nil {
			return reportPart(rep, err, func(r *Report) []recommend.Recommendation { return r.Recommendations })
		}
		return s.recommend(snap), nil
	}, nil)
}

// Dependencies lists external touch points and node neighbourhoods.
func (s *Service) Dependencies(ctx context.Context, d *diagram.Diagram) (*flow.DependencyReport, error) {
	return execute(s, ctx, OpDependencies, d, func(snap *snapshot) (*flow.DependencyReport, error) {
		if rep, ok, err := s.cached(OpDependencies, snap); ok || err != nil {
			return reportPart(rep, err, func(r *Report) *flow.DependencyReport { return r.Dependencies })
		}
		return s.dependencies(snap), nil
	}, nil)
}

// Analyze runs every analysis and bundles the results.
func (s *Service) Analyze(ctx context.Context, d *diagram.Diagram) (*Report, error) {
	return execute(s, ctx, OpAnalyze, d, func(snap *snapshot) (*Report, error) {
		if rep, ok, err := s.cached(OpAnalyze, snap); ok || err != nil {
			return rep, err
		}
		return s.build(snap), nil
	}, func(r *Report, ev *events.Event) {
		ev.Score = r.Complexity.OverallScore
		ev.Level = r.Complexity.Level
		ev.Truncated = r.Flow.Truncated || r.Complexity.Raw.Truncated
	})
}

// cached returns the full report through the cache. ok is false when the
// cache is disabled.
func (s *Service) cached(op string, snap *snapshot) (*Report, bool, error) {
	if s.cache == nil {
		return nil, false, nil
	}
	rep, _, err := s.cache.get(snap.fingerprint, func() (*Report, error) {
		var rep *Report
		err := guard(op, func() { rep = s.build(snap) })
		return rep, err
	})
	return rep, err == nil, err
}

func reportPart[T any](rep *Report, err error, pick func(*Report) T) (T, error) {
	if err != nil {
		var zero T
		return zero, err
	}
	return pick(rep), nil
}

// guard runs fn and converts a panic into an *Error.
func guard(op string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovered(op, r)
		}
	}()
	fn()
	return nil
}

// execute wraps one operation with input checks, panic recovery, tracing and
// lifecycle events. annotate copies headline numbers onto the completed event.
func execute[T any](s *Service, ctx context.Context, op string, d *diagram.Diagram, run func(*snapshot) (T, error), annotate func(T, *events.Event)) (T, error) {
	var zero T

	if err := ctx.Err(); err != nil {
		return zero, err
	}

	start := s.now()
	ev := events.Event{
		RequestID: newRequestID(),
		Operation: op,
		Timestamp: start,
	}
	if d != nil {
		ev.DiagramID = d.ID
		ev.Nodes = len(d.Nodes)
		ev.Edges = len(d.Edges)
	}

	ctx, span := observability.StartAnalysisSpan(ctx, s.tracer, op, ev.RequestID, ev.Nodes, ev.Edges)
	defer span.End()

	s.emit(ctx, events.TypeStarted, ev)

	fail := func(err error) (T, error) {
		observability.RecordError(span, err)
		failed := ev
		failed.Timestamp = s.now()
		failed.DurationMs = failed.Timestamp.Sub(start).Milliseconds()
		failed.Error = err.Error()
		s.emit(ctx, events.TypeFailed, failed)
		return zero, err
	}

	if err := diagram.CheckShape(d); err != nil {
		return fail(err)
	}

	fp, err := diagram.Fingerprint(d)
	if err != nil {
		return fail(err)
	}
	ev.Fingerprint = fp

	snap := &snapshot{d: d, fingerprint: fp}
	var (
		out    T
		runErr error
	)
	if err := guard(op, func() {
		snap.g = traversal.New(d)
		out, runErr = run(snap)
	}); err != nil {
		return fail(err)
	}
	if runErr != nil {
		return fail(runErr)
	}

	done := ev
	done.Timestamp = s.now()
	done.DurationMs = done.Timestamp.Sub(start).Milliseconds()
	if annotate != nil {
		annotate(out, &done)
	}
	observability.RecordAnalysisResult(span, done.Score, done.Level, done.Truncated)
	s.emit(ctx, events.TypeCompleted, done)
	return out, nil
}

func (s *Service) emit(ctx context.Context, eventType string, ev events.Event) {
	ev.Type = eventType
	topic := events.TopicFor(eventType)
	if err := s.observer.Publish(ctx, topic, ev); err != nil {
		s.logger.WarnContext(ctx, "publishing analysis event failed",
			"topic", topic, "request_id", ev.RequestID, "error", err)
	}
}

func newRequestID() string {
	id, err := gonanoid.New()
	if err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return id
}
