package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/efebarandurmaz/flowscope/internal/events"
)

func TestDefaultAuditConfig(t *testing.T) {
	cfg := DefaultAuditConfig()
	if !cfg.Enabled {
		t.Fatal("expected enabled by default")
	}
	if cfg.OutputPath != "stdout" {
		t.Fatalf("expected stdout, got %s", cfg.OutputPath)
	}
}

func TestAuditLogger_New_File(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.log")

	l, err := NewAuditLogger(&AuditConfig{
		Enabled:    true,
		OutputPath: logPath,
		SessionID:  "s-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.Log(&AuditEvent{EventType: AuditEventAnalysisStart, Message: "hi"}); err != nil {
		t.Fatalf("log: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev AuditEvent
	if err := json.Unmarshal(bytes.TrimSpace(data), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.SessionID != "s-1" {
		t.Fatalf("expected session s-1, got %s", ev.SessionID)
	}
	if ev.Timestamp.IsZero() {
		t.Fatal("expected timestamp to be filled")
	}
}

func TestAuditLogger_New_BadPath(t *testing.T) {
	_, err := NewAuditLogger(&AuditConfig{
		Enabled:    true,
		OutputPath: filepath.Join(t.TempDir(), "missing", "audit.log"),
	})
	if err == nil {
		t.Fatal("expected error for unwritable path")
	}
}

func TestAuditLogger_Disabled(t *testing.T) {
	var buf bytes.Buffer
	l := NewAuditWriter(&buf, &AuditConfig{Enabled: false})
	l.Log(&AuditEvent{EventType: AuditEventAnalysisStart})
	if buf.Len() != 0 {
		t.Fatalf("disabled logger wrote %q", buf.String())
	}
}

func TestAuditLogger_Publish(t *testing.T) {
	var buf bytes.Buffer
	l := NewAuditWriter(&buf, &AuditConfig{Enabled: true, SessionID: "s"})
	ctx := context.Background()
	now := time.Now()

	var pub events.Publisher = l
	pub.Publish(ctx, events.TopicAnalysisStarted, events.Event{
		Type: events.TypeStarted, RequestID: "r1", Operation: "complexity", Timestamp: now, Nodes: 3,
	})
	pub.Publish(ctx, events.TopicAnalysisCompleted, events.Event{
		Type: events.TypeCompleted, RequestID: "r1", Operation: "complexity", Timestamp: now,
		Score: 4.75, Level: "Very Low", DurationMs: 2,
	})
	pub.Publish(ctx, events.TopicAnalysisFailed, events.Event{
		Type: events.TypeFailed, RequestID: "r2", Operation: "flow", Timestamp: now, Error: "analysis failed: x",
	})
	pub.Publish(ctx, "other", 42)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), buf.String())
	}

	var got []AuditEvent
	for _, line := range lines {
		var ev AuditEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("unmarshal %q: %v", line, err)
		}
		got = append(got, ev)
	}
	if got[0].EventType != AuditEventAnalysisStart || !got[0].Success {
		t.Errorf("unexpected start entry %+v", got[0])
	}
	if got[1].EventType != AuditEventAnalysisComplete || got[1].Details["level"] != "Very Low" {
		t.Errorf("unexpected complete entry %+v", got[1])
	}
	if got[2].EventType != AuditEventAnalysisError || got[2].Success || got[2].ErrorDetail == "" {
		t.Errorf("unexpected error entry %+v", got[2])
	}
}

func TestAuditLogger_GraphEvents(t *testing.T) {
	var buf bytes.Buffer
	l := NewAuditWriter(&buf, nil)
	l.LogGraphExport(context.Background(), "d1", 4, 3, time.Millisecond)
	l.LogGraphImport(context.Background(), "d1", errors.New("not found"))

	out := buf.String()
	if !strings.Contains(out, `"event_type":"graph.export"`) {
		t.Errorf("missing export entry: %s", out)
	}
	if !strings.Contains(out, `"error_detail":"not found"`) {
		t.Errorf("missing import error: %s", out)
	}
}

func TestNewLoggerTo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LogConfig{Level: "warn", Format: "json"})
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatal("info should be filtered at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) {
		t.Fatalf("expected json output, got %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
