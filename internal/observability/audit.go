package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/efebarandurmaz/flowscope/internal/events"
)

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventAnalysisStart    AuditEventType = "analysis.start"
	AuditEventAnalysisComplete AuditEventType = "analysis.complete"
	AuditEventAnalysisError    AuditEventType = "analysis.error"
	AuditEventGraphExport      AuditEventType = "graph.export"
	AuditEventGraphImport      AuditEventType = "graph.import"
)

// AuditEvent represents a single audit log entry.
type AuditEvent struct {
	Timestamp   time.Time      `json:"timestamp"`
	EventType   AuditEventType `json:"event_type"`
	SessionID   string         `json:"session_id"`
	RequestID   string         `json:"request_id,omitempty"`
	Operation   string         `json:"operation,omitempty"`
	DiagramID   string         `json:"diagram_id,omitempty"`
	Fingerprint string         `json:"fingerprint,omitempty"`
	Success     bool           `json:"success"`
	DurationMs  int64          `json:"duration_ms,omitempty"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	ErrorDetail string         `json:"error_detail,omitempty"`
}

// AuditLogger writes JSONL audit entries. It implements events.Publisher.
type AuditLogger struct {
	mu        sync.Mutex
	writer    io.Writer
	sessionID string
	enabled   bool
}

// AuditConfig configures the audit logger.
type AuditConfig struct {
	Enabled    bool
	OutputPath string // File path or "stdout"/"stderr"
	SessionID  string
}

// DefaultAuditConfig returns default audit configuration.
func DefaultAuditConfig() *AuditConfig {
	return &AuditConfig{
		Enabled:    true,
		OutputPath: "stdout",
	}
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(config *AuditConfig) (*AuditLogger, error) {
	if config == nil {
		config = DefaultAuditConfig()
	}

	var writer io.Writer
	switch config.OutputPath {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		f, err := os.OpenFile(config.OutputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		writer = f
	}

	return newAuditLogger(writer, config), nil
}

// NewAuditWriter creates an audit logger writing to w.
func NewAuditWriter(w io.Writer, config *AuditConfig) *AuditLogger {
	if config == nil {
		config = DefaultAuditConfig()
	}
	return newAuditLogger(w, config)
}

func newAuditLogger(w io.Writer, config *AuditConfig) *AuditLogger {
	sessionID := config.SessionID
	if sessionID == "" {
		sessionID = fmt.Sprintf("session-%d", time.Now().UnixNano())
	}
	return &AuditLogger{
		writer:    w,
		sessionID: sessionID,
		enabled:   config.Enabled,
	}
}

// Log writes an audit event.
func (l *AuditLogger) Log(event *AuditEvent) error {
	if !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.SessionID == "" {
		event.SessionID = l.sessionID
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	_, err = fmt.Fprintf(l.writer, "%s\n", data)
	return err
}

// Publish converts an analysis lifecycle event into an audit entry.
func (l *AuditLogger) Publish(ctx context.Context, topic string, event any) error {
	ev, ok := event.(events.Event)
	if !ok {
		return nil
	}

	entry := &AuditEvent{
		Timestamp:   ev.Timestamp.UTC(),
		RequestID:   ev.RequestID,
		Operation:   ev.Operation,
		DiagramID:   ev.DiagramID,
		Fingerprint: ev.Fingerprint,
		DurationMs:  ev.DurationMs,
		Success:     true,
		Details: map[string]any{
			"nodes": ev.Nodes,
			"edges": ev.Edges,
		},
	}
	switch ev.Type {
	case events.TypeStarted:
		entry.EventType = AuditEventAnalysisStart
		entry.Message = fmt.Sprintf("Analysis %s started", ev.Operation)
	case events.TypeCompleted:
		entry.EventType = AuditEventAnalysisComplete
		entry.Message = fmt.Sprintf("Analysis %s completed", ev.Operation)
		entry.Details["score"] = ev.Score
		entry.Details["level"] = ev.Level
		entry.Details["truncated"] = ev.Truncated
	case events.TypeFailed:
		entry.EventType = AuditEventAnalysisError
		entry.Success = false
		entry.Message = fmt.Sprintf("Analysis %s failed", ev.Operation)
		entry.ErrorDetail = ev.Error
	default:
		return nil
	}
	return l.Log(entry)
}

// LogGraphExport logs a diagram written to the graph store.
func (l *AuditLogger) LogGraphExport(ctx context.Context, diagramID string, nodes, edges int, duration time.Duration) {
	l.Log(&AuditEvent{
		EventType:  AuditEventGraphExport,
		DiagramID:  diagramID,
		Success:    true,
		DurationMs: duration.Milliseconds(),
		Message:    fmt.Sprintf("Exported diagram %s: %d nodes, %d edges", diagramID, nodes, edges),
		Details: map[string]any{
			"nodes": nodes,
			"edges": edges,
		},
	})
}

// LogGraphImport logs a diagram read back from the graph store.
func (l *AuditLogger) LogGraphImport(ctx context.Context, diagramID string, err error) {
	event := &AuditEvent{
		EventType: AuditEventGraphImport,
		DiagramID: diagramID,
		Success:   err == nil,
		Message:   fmt.Sprintf("Imported diagram %s", diagramID),
	}
	if err != nil {
		event.ErrorDetail = err.Error()
	}
	l.Log(event)
}

// Close closes the audit logger (if using a file).
func (l *AuditLogger) Close() error {
	if closer, ok := l.writer.(io.Closer); ok {
		if closer != os.Stdout && closer != os.Stderr {
			return closer.Close()
		}
	}
	return nil
}
