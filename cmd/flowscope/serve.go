package main

import (
	"context"
	"fmt"
	"log/slog"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/flowscope/internal/analysis"
	"github.com/efebarandurmaz/flowscope/internal/config"
	"github.com/efebarandurmaz/flowscope/internal/events"
	"github.com/efebarandurmaz/flowscope/internal/graphstore/neo4j"
	"github.com/efebarandurmaz/flowscope/internal/observability"
	"github.com/efebarandurmaz/flowscope/internal/server"
)

// maxHeapBytes is where the memory probe starts reporting degraded.
const maxHeapBytes = 1 << 30

func newServeCmd(opts *globalOptions) *cobra.Command {
	var (
		addr      string
		withGraph bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(cmd, opts)
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return runServe(cmd.Context(), cfg, withGraph)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&withGraph, "with-graph", false, "Connect to Neo4j and report it in /health")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, withGraph bool) error {
	logger := observability.NewLogger(cfg.LogOptions())
	slog.SetDefault(logger)

	policy, err := cfg.Policy()
	if err != nil {
		return err
	}

	shutdown := server.NewShutdownHandler(&server.ShutdownConfig{
		Timeout: cfg.Server.ShutdownTimeout,
		Signals: server.DefaultShutdownConfig().Signals,
		Logger:  logger,
	})
	health := server.NewHealthServer(&server.HealthConfig{Version: version})
	health.RegisterCheck("memory", server.MemoryHealthChecker(maxHeapBytes))

	tp, err := observability.InitTracing(ctx, cfg.TracingOptions(version))
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	shutdown.Register(server.TracingShutdownHook(tp.Shutdown))

	// Fan-out for lifecycle events. The audit log sits outside it so that it
	// closes last.
	runs := events.NewStore(cfg.Events.HistorySize)
	metrics := observability.Metrics()
	bus := events.NewMulti(metrics, runs, events.NewLogPublisher(logger))

	var hub *events.Hub
	if cfg.Events.SSE {
		hub = events.NewHub()
		bus.Add(hub)
	}

	if cfg.Events.NATSURL != "" {
		natsPub, err := events.NewNATSPublisher(cfg.Events.NATSURL)
		if err != nil {
			return err
		}
		bus.Add(natsPub)
		health.RegisterCheck("nats", server.NATSHealthChecker(natsPub.IsConnected))
		logger.Info("publishing events to NATS", "url", cfg.Events.NATSURL)
	}
	shutdown.Register(server.EventsShutdownHook(bus.Close))

	observer := events.NewMulti(bus)
	if cfg.Events.AuditPath != "" {
		audit, err := observability.NewAuditLogger(&observability.AuditConfig{
			Enabled:    true,
			OutputPath: cfg.Events.AuditPath,
			SessionID:  gonanoid.Must(),
		})
		if err != nil {
			return err
		}
		observer.Add(audit)
		shutdown.Register(server.AuditLoggerShutdownHook(audit.Close))
	}

	if withGraph {
		repo, err := neo4j.New(ctx, graphConfig(cfg))
		if err != nil {
			return err
		}
		health.RegisterCheck("graph", server.GraphStoreHealthChecker(repo.Verify))
		shutdown.Register(server.GraphStoreShutdownHook(repo.Close))
	}

	svc, err := analysis.New(
		analysis.WithPolicy(policy),
		analysis.WithLimits(cfg.Limits()),
		analysis.WithValidation(&cfg.Validation),
		analysis.WithObserver(observer),
		analysis.WithTracer(tp.Tracer()),
		analysis.WithLogger(logger),
		analysis.WithCache(cfg.Analysis.CacheSize),
	)
	if err != nil {
		return err
	}

	srv := server.New(server.Deps{
		Service: svc,
		Health:  health,
		Hub:     hub,
		Runs:    runs,
		Metrics: metrics.Handler(),
		Logger:  logger,
	}, server.Options{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		CORSOrigin:   cfg.Server.CORSOrigin,
		SSEKeepAlive: cfg.Events.SSEKeepAlive,
	})
	shutdown.Register(server.HTTPServerShutdownHook("api", srv.Shutdown))
	shutdown.Start()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		// Listener failed before any signal; still run the hooks.
		shutdown.Shutdown()
		shutdown.Wait()
		return err
	case <-shutdown.ShutdownCh():
	}

	shutdown.Wait()
	logger.Info("flowscope stopped")
	return <-errCh
}
