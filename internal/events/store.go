package events

import (
	"context"
	"sort"
	"sync"
	"time"
)

const maxRuns = 200

// RunStatus is the state of a recorded analysis run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Run is the recorded history of one analysis request.
type Run struct {
	RequestID   string     `json:"request_id"`
	Operation   string     `json:"operation"`
	DiagramID   string     `json:"diagram_id,omitempty"`
	Fingerprint string     `json:"fingerprint,omitempty"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMs  int64      `json:"duration_ms"`
	Nodes       int        `json:"nodes"`
	Edges       int        `json:"edges"`
	Score       float64    `json:"score"`
	Level       string     `json:"level,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Stats aggregates the recorded runs.
type Stats struct {
	TotalRuns     int            `json:"total_runs"`
	ActiveRuns    int            `json:"active_runs"`
	CompletedRuns int            `json:"completed_runs"`
	FailedRuns    int            `json:"failed_runs"`
	AvgDurationMs float64        `json:"avg_duration_ms"`
	SuccessRate   float64        `json:"success_rate"`
	ByOperation   map[string]int `json:"by_operation"`
}

// Store keeps the most recent analysis runs in memory. It implements
// Publisher and builds its history from lifecycle events.
type Store struct {
	mu   sync.RWMutex
	runs map[string]*Run
	max  int
}

// NewStore creates a store holding up to limit runs (default 200).
func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = maxRuns
	}
	return &Store{runs: make(map[string]*Run), max: limit}
}

func (s *Store) Publish(ctx context.Context, topic string, event any) error {
	ev, ok := event.(Event)
	if !ok || ev.RequestID == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	run, exists := s.runs[ev.RequestID]
	if !exists {
		run = &Run{
			RequestID:   ev.RequestID,
			Operation:   ev.Operation,
			DiagramID:   ev.DiagramID,
			Fingerprint: ev.Fingerprint,
			Status:      StatusRunning,
			StartedAt:   ev.Timestamp,
			Nodes:       ev.Nodes,
			Edges:       ev.Edges,
		}
		s.runs[ev.RequestID] = run
	}

	switch ev.Type {
	case TypeCompleted, TypeFailed:
		ts := ev.Timestamp
		run.CompletedAt = &ts
		run.DurationMs = ev.DurationMs
		run.Score = ev.Score
		run.Level = ev.Level
		if ev.Fingerprint != "" {
			run.Fingerprint = ev.Fingerprint
		}
		run.Status = StatusCompleted
		if ev.Type == TypeFailed {
			run.Status = StatusFailed
			run.Error = ev.Error
		}
	}
	s.evictOldRuns()
	return nil
}

func (s *Store) Close() error { return nil }

// GetRun retrieves a run by request id.
func (s *Store) GetRun(id string) (*Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, false
	}
	cp := *run
	return &cp, true
}

// ListRuns returns runs sorted by StartedAt descending.
func (s *Store) ListRuns() []Run {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]Run, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, *run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].RequestID < runs[j].RequestID
		}
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs
}

// GetStats computes aggregate statistics.
func (s *Store) GetStats() *Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{TotalRuns: len(s.runs), ByOperation: map[string]int{}}
	var totalMs int64
	for _, run := range s.runs {
		stats.ByOperation[run.Operation]++
		switch run.Status {
		case StatusRunning:
			stats.ActiveRuns++
		case StatusCompleted:
			stats.CompletedRuns++
			totalMs += run.DurationMs
		case StatusFailed:
			stats.FailedRuns++
		}
	}
	if stats.CompletedRuns > 0 {
		stats.AvgDurationMs = float64(totalMs) / float64(stats.CompletedRuns)
	}
	if stats.TotalRuns > 0 {
		stats.SuccessRate = float64(stats.CompletedRuns) / float64(stats.TotalRuns)
	}
	return stats
}

// evictOldRuns removes the oldest finished runs while over capacity.
// Must be called with lock held.
func (s *Store) evictOldRuns() {
	if len(s.runs) <= s.max {
		return
	}

	type runTime struct {
		id   string
		time time.Time
	}
	var finished []runTime
	for id, run := range s.runs {
		if run.Status != StatusRunning {
			finished = append(finished, runTime{id: id, time: run.StartedAt})
		}
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].time.Before(finished[j].time)
	})

	toDelete := len(s.runs) - s.max
	for i := 0; i < toDelete && i < len(finished); i++ {
		delete(s.runs, finished[i].id)
	}
}
