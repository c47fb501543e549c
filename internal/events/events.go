// Package events carries analysis lifecycle events from the analysis service
// to whoever is watching: logs, NATS subjects, SSE clients and the audit log.
package events

import (
	"context"
	"time"
)

// Event topic constants
const (
	TopicAnalysisStarted   = "flowscope.analysis.started"
	TopicAnalysisCompleted = "flowscope.analysis.completed"
	TopicAnalysisFailed    = "flowscope.analysis.failed"

	// TopicAll matches every analysis subject on NATS.
	TopicAll = "flowscope.analysis.>"
)

// Event types
const (
	TypeStarted   = "analysis.started"
	TypeCompleted = "analysis.completed"
	TypeFailed    = "analysis.failed"
)

// Event describes one step in the life of an analysis request.
type Event struct {
	Type        string    `json:"type"`
	RequestID   string    `json:"request_id"`
	Operation   string    `json:"operation"`
	DiagramID   string    `json:"diagram_id,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	DurationMs  int64     `json:"duration_ms,omitempty"`
	Nodes       int       `json:"nodes"`
	Edges       int       `json:"edges"`
	Score       float64   `json:"score"`
	Level       string    `json:"level,omitempty"`
	Truncated   bool      `json:"truncated,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// TopicFor maps an event type to its topic.
func TopicFor(eventType string) string {
	switch eventType {
	case TypeStarted:
		return TopicAnalysisStarted
	case TypeCompleted:
		return TopicAnalysisCompleted
	default:
		return TopicAnalysisFailed
	}
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// NoopPublisher is a Publisher that does nothing (used when no observer is configured).
type NoopPublisher struct{}

func (n *NoopPublisher) Publish(ctx context.Context, topic string, event any) error {
	return nil
}

func (n *NoopPublisher) Close() error {
	return nil
}
