package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/efebarandurmaz/flowscope/internal/analysis"
	"github.com/efebarandurmaz/flowscope/internal/diagram"
	"github.com/efebarandurmaz/flowscope/internal/events"
)

// Options configures the API server.
type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxBodyBytes int64
	CORSOrigin   string

	// SSEKeepAlive is the ping interval of the event stream.
	SSEKeepAlive time.Duration
}

// DefaultOptions returns the defaults used for zero fields.
func DefaultOptions() Options {
	return Options{
		Addr:         ":8080",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		MaxBodyBytes: 1 << 20,
		CORSOrigin:   "*",
		SSEKeepAlive: 15 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Addr == "" {
		o.Addr = d.Addr
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = d.ReadTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = d.MaxBodyBytes
	}
	if o.SSEKeepAlive <= 0 {
		o.SSEKeepAlive = d.SSEKeepAlive
	}
	return o
}

// Server is the HTTP front of the analysis service.
type Server struct {
	svc     *analysis.Service
	health  *HealthServer
	hub     *events.Hub   // nil disables /v1/events/stream
	runs    *events.Store // nil disables /v1/runs and /v1/stats
	metrics http.Handler  // nil disables /metrics
	logger  *slog.Logger
	opts    Options
	httpSrv *http.Server
}

// Deps are the collaborators of the API server. Only Service is required.
type Deps struct {
	Service *analysis.Service
	Health  *HealthServer
	Hub     *events.Hub
	Runs    *events.Store
	Metrics http.Handler
	Logger  *slog.Logger
}

// New creates the API server.
func New(deps Deps, opts Options) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	health := deps.Health
	if health == nil {
		health = NewHealthServer(nil)
	}
	s := &Server{
		svc:     deps.Service,
		health:  health,
		hub:     deps.Hub,
		runs:    deps.Runs,
		metrics: deps.Metrics,
		logger:  logger,
		opts:    opts.withDefaults(),
	}
	s.httpSrv = &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}
	return s
}

// Handler returns the full route table wrapped in middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/validate", s.handleValidate)
	mux.HandleFunc("POST /v1/complexity", s.handleComplexity)
	mux.HandleFunc("POST /v1/flow", s.handleFlow)
	mux.HandleFunc("POST /v1/recommendations", s.handleRecommendations)
	mux.HandleFunc("POST /v1/dependencies", s.handleDependencies)
	mux.HandleFunc("POST /v1/analyze", s.handleAnalyze)

	if s.hub != nil {
		mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	}
	if s.runs != nil {
		mux.HandleFunc("GET /v1/runs", s.handleListRuns)
		mux.HandleFunc("GET /v1/runs/{id}", s.handleGetRun)
		mux.HandleFunc("GET /v1/stats", s.handleStats)
	}
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	s.health.Mount(mux)

	var h http.Handler = mux
	h = s.corsMiddleware(h)
	h = s.recoverMiddleware(h)
	h = s.loggingMiddleware(h)
	return h
}

// ListenAndServe serves until Shutdown is called. It marks the health server
// ready once the listener is up.
func (s *Server) ListenAndServe() error {
	s.health.SetReady(true)
	s.logger.Info("flowscope listening", "addr", s.opts.Addr)

	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)
	if s.hub != nil {
		// SSE streams never finish on their own.
		s.hub.Close()
	}
	return s.httpSrv.Shutdown(ctx)
}

// Health returns the probe server.
func (s *Server) Health() *HealthServer {
	return s.health
}

// errorResponse is the body of every non-2xx answer.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// writeError maps service errors onto status codes: bad input is 400,
// oversized bodies 413, cancellations 499 and engine failures 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
			Error: fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit),
			Kind:  "bad_input",
		})
	case errors.Is(err, diagram.ErrBadInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "bad_input"})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, 499, errorResponse{Error: err.Error(), Kind: "canceled"})
	case errors.Is(err, analysis.ErrAnalysisFailed):
		s.logger.ErrorContext(r.Context(), "analysis failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error(), Kind: "analysis_failed"})
	default:
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request) (*diagram.Diagram, error) {
	return diagram.Decode(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
}

// serve decodes the diagram, runs op and writes its result as JSON.
func serve[T any](s *Server, w http.ResponseWriter, r *http.Request, op func(context.Context, *diagram.Diagram) (T, error)) {
	d, err := s.decode(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := op(r.Context(), d)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	serve(s, w, r, s.svc.Validate)
}

func (s *Server) handleComplexity(w http.ResponseWriter, r *http.Request) {
	serve(s, w, r, s.svc.Complexity)
}

func (s *Server) handleFlow(w http.ResponseWriter, r *http.Request) {
	serve(s, w, r, s.svc.Flow)
}

type recommendationsResponse struct {
	Recommendations any `json:"recommendations"`
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	serve(s, w, r, func(ctx context.Context, d *diagram.Diagram) (recommendationsResponse, error) {
		recs, err := s.svc.Recommendations(ctx, d)
		return recommendationsResponse{Recommendations: recs}, err
	})
}

func (s *Server) handleDependencies(w http.ResponseWriter, r *http.Request) {
	serve(s, w, r, s.svc.Dependencies)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	serve(s, w, r, s.svc.Analyze)
}

// handleEventStream streams analysis events over SSE.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	client, err := events.NewClient(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Streams outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	s.hub.Register(client)
	defer s.hub.Unregister(client)

	client.Serve(r.Context(), s.opts.SSEKeepAlive)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs := s.runs.ListRuns()
	if op := r.URL.Query().Get("operation"); op != "" {
		filtered := runs[:0]
		for _, run := range runs {
			if run.Operation == op {
				filtered = append(filtered, run)
			}
		}
		runs = filtered
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, ok := s.runs.GetRun(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "run not found: " + id})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.runs.GetStats())
}
