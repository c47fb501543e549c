package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// LogPublisher writes events to a slog logger.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher returns a publisher logging to logger, or slog.Default()
// when logger is nil.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, topic string, event any) error {
	ev, ok := event.(Event)
	if !ok {
		p.logger.InfoContext(ctx, "event", "topic", topic, "event", event)
		return nil
	}

	attrs := []any{
		"topic", topic,
		"request_id", ev.RequestID,
		"operation", ev.Operation,
		"nodes", ev.Nodes,
		"edges", ev.Edges,
	}
	switch ev.Type {
	case TypeCompleted:
		attrs = append(attrs, "duration_ms", ev.DurationMs, "score", ev.Score, "level", ev.Level)
		p.logger.InfoContext(ctx, "analysis completed", attrs...)
	case TypeFailed:
		attrs = append(attrs, "duration_ms", ev.DurationMs, "error", ev.Error)
		p.logger.WarnContext(ctx, "analysis failed", attrs...)
	default:
		p.logger.DebugContext(ctx, "analysis started", attrs...)
	}
	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}

// Multi fans events out to several publishers.
type Multi struct {
	mu   sync.RWMutex
	pubs []Publisher
}

// NewMulti returns a publisher forwarding to every non-nil pub.
func NewMulti(pubs ...Publisher) *Multi {
	m := &Multi{}
	for _, p := range pubs {
		m.Add(p)
	}
	return m
}

// Add registers another publisher.
func (m *Multi) Add(p Publisher) {
	if p == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pubs = append(m.pubs, p)
}

// Len returns the number of registered publishers.
func (m *Multi) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pubs)
}

// Publish forwards to every publisher; a failing publisher does not stop the others.
func (m *Multi) Publish(ctx context.Context, topic string, event any) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var errs []error
	for _, p := range m.pubs {
		if err := p.Publish(ctx, topic, event); err != nil {
			errs = append(errs, fmt.Errorf("publishing %s: %w", topic, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every publisher.
func (m *Multi) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, p := range m.pubs {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.pubs = nil
	return errors.Join(errs...)
}
