package events

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func completed(id string) Event {
	return Event{
		Type:       TypeCompleted,
		RequestID:  id,
		Operation:  "complexity",
		Timestamp:  time.Now(),
		DurationMs: 12,
		Nodes:      3,
		Edges:      2,
		Score:      4.75,
		Level:      "Very Low",
	}
}

func TestTopicFor(t *testing.T) {
	assert.Equal(t, TopicAnalysisStarted, TopicFor(TypeStarted))
	assert.Equal(t, TopicAnalysisCompleted, TopicFor(TypeCompleted))
	assert.Equal(t, TopicAnalysisFailed, TopicFor(TypeFailed))
}

func TestZeroScoreIsEncoded(t *testing.T) {
	raw, err := json.Marshal(Event{Type: TypeCompleted, RequestID: "a", Operation: "validate"})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"score":0`)

	raw, err = json.Marshal(Run{RequestID: "a", Status: StatusCompleted})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"score":0`)
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = &NoopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), TopicAnalysisStarted, Event{}))
	assert.NoError(t, p.Close())
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	p := NewLogPublisher(logger)

	require.NoError(t, p.Publish(context.Background(), TopicAnalysisCompleted, completed("req-1")))
	require.NoError(t, p.Publish(context.Background(), TopicAnalysisFailed, Event{
		Type: TypeFailed, RequestID: "req-2", Error: "analysis failed: boom",
	}))

	out := buf.String()
	assert.Contains(t, out, `"msg":"analysis completed"`)
	assert.Contains(t, out, `"request_id":"req-1"`)
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, "analysis failed: boom")
}

type recordingPublisher struct {
	topics []string
	err    error
	closed bool
}

func (r *recordingPublisher) Publish(ctx context.Context, topic string, event any) error {
	r.topics = append(r.topics, topic)
	return r.err
}

func (r *recordingPublisher) Close() error {
	r.closed = true
	return nil
}

func TestMulti(t *testing.T) {
	ok := &recordingPublisher{}
	bad := &recordingPublisher{err: errors.New("down")}
	m := NewMulti(bad, nil, ok)
	assert.Equal(t, 2, m.Len())

	err := m.Publish(context.Background(), TopicAnalysisStarted, Event{Type: TypeStarted})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
	assert.Equal(t, []string{TopicAnalysisStarted}, ok.topics, "failing publisher must not stop the others")

	require.NoError(t, m.Close())
	assert.True(t, ok.closed)
	assert.True(t, bad.closed)
	assert.Equal(t, 0, m.Len())
}

func TestStore_RecordsLifecycle(t *testing.T) {
	s := NewStore(0)
	ctx := context.Background()
	start := time.Now()

	require.NoError(t, s.Publish(ctx, TopicAnalysisStarted, Event{
		Type: TypeStarted, RequestID: "a", Operation: "flow", Timestamp: start, Nodes: 3,
	}))
	run, ok := s.GetRun("a")
	require.True(t, ok)
	assert.Equal(t, StatusRunning, run.Status)

	done := completed("a")
	done.Operation = "flow"
	require.NoError(t, s.Publish(ctx, TopicAnalysisCompleted, done))
	run, _ = s.GetRun("a")
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, int64(12), run.DurationMs)
	require.NotNil(t, run.CompletedAt)

	require.NoError(t, s.Publish(ctx, TopicAnalysisFailed, Event{
		Type: TypeFailed, RequestID: "b", Operation: "flow", Timestamp: start.Add(time.Second), Error: "boom",
	}))

	runs := s.ListRuns()
	require.Len(t, runs, 2)
	assert.Equal(t, "b", runs[0].RequestID, "newest first")
	assert.Equal(t, StatusFailed, runs[0].Status)

	stats := s.GetStats()
	assert.Equal(t, 2, stats.TotalRuns)
	assert.Equal(t, 1, stats.CompletedRuns)
	assert.Equal(t, 1, stats.FailedRuns)
	assert.Equal(t, 0.5, stats.SuccessRate)
	assert.Equal(t, 2, stats.ByOperation["flow"])
}

func TestStore_IgnoresForeignEvents(t *testing.T) {
	s := NewStore(10)
	require.NoError(t, s.Publish(context.Background(), "other", map[string]string{"x": "y"}))
	require.NoError(t, s.Publish(context.Background(), TopicAnalysisStarted, Event{Type: TypeStarted}))
	assert.Empty(t, s.ListRuns())
}

func TestStore_Evicts(t *testing.T) {
	s := NewStore(3)
	base := time.Now()
	for i, id := range []string{"r1", "r2", "r3", "r4", "r5"} {
		ev := completed(id)
		ev.Timestamp = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, s.Publish(context.Background(), TopicAnalysisCompleted, ev))
	}
	runs := s.ListRuns()
	require.Len(t, runs, 3)
	_, ok := s.GetRun("r1")
	assert.False(t, ok, "oldest run should be evicted")
	assert.Equal(t, "r5", runs[0].RequestID)
}

func TestHub_StreamsEvents(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client, err := NewClient(w)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		hub.Register(client)
		defer hub.Unregister(client)
		client.Serve(r.Context(), time.Hour)
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)
	assert.Equal(t, 1, hub.Clients())

	require.NoError(t, hub.Publish(context.Background(), TopicAnalysisCompleted, completed("req-9")))

	var got []string
	for len(got) < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if line = strings.TrimSpace(line); line != "" {
			got = append(got, line)
		}
	}
	assert.Equal(t, "event: "+TypeCompleted, got[0])
	assert.Contains(t, got[1], `"request_id":"req-9"`)
}

func TestHub_CloseDropsClients(t *testing.T) {
	hub := NewHub()
	c, err := NewClient(httptest.NewRecorder())
	require.NoError(t, err)
	hub.Register(c)
	require.NoError(t, hub.Close())
	assert.Equal(t, 0, hub.Clients())

	// Serve returns immediately once the hub has dropped the client.
	finished := make(chan struct{})
	go func() {
		c.Serve(context.Background(), time.Hour)
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after hub close")
	}
}

func TestNATS_PublishSubscribe(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	require.NoError(t, err)
	defer pub.Close()
	assert.True(t, pub.IsConnected())

	sub, err := NewNATSSubscriber(url)
	require.NoError(t, err)
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(TopicAll)
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, pub.Publish(context.Background(), TopicAnalysisCompleted, completed("req-n")))
	require.NoError(t, pub.Flush())

	select {
	case ev := <-ch:
		assert.Equal(t, "req-n", ev.RequestID)
		assert.Equal(t, TypeCompleted, ev.Type)
		assert.Equal(t, 4.75, ev.Score)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestNATSSubscriber_Cancel(t *testing.T) {
	url := startTestNATS(t)

	sub, err := NewNATSSubscriber(url)
	require.NoError(t, err)
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(TopicAll)
	require.NoError(t, err)
	cancel()
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestNATSPublisher_BadURL(t *testing.T) {
	_, err := NewNATSPublisher("nats://127.0.0.1:1")
	require.Error(t, err)
}
