package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/flowscope/internal/diagram"
	"github.com/efebarandurmaz/flowscope/internal/events"
	"github.com/efebarandurmaz/flowscope/internal/graphstore"
	"github.com/efebarandurmaz/flowscope/internal/graphstore/neo4j"
)

func newExportCmd(opts *globalOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:       "export <dot|mermaid|neo4j> <file|->",
		Short:     "Render a diagram as DOT or Mermaid, or store it in Neo4j",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"dot", "mermaid", "neo4j"},
		RunE: func(cmd *cobra.Command, args []string) error {
			format := args[0]
			var render func(*diagram.Diagram) string
			switch format {
			case "dot":
				render = graphstore.ExportDOT
			case "mermaid":
				render = graphstore.ExportMermaid
			case "neo4j":
			default:
				return fmt.Errorf("unknown export format %q (want dot, mermaid or neo4j)", format)
			}

			d, err := readDiagram(cmd, args[1])
			if err != nil {
				return err
			}
			if err := diagram.CheckShape(d); err != nil {
				return err
			}

			if render == nil {
				return storeInNeo4j(cmd, opts, d)
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				w = f
			}
			_, err = io.WriteString(w, render(d))
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}

func storeInNeo4j(cmd *cobra.Command, opts *globalOptions, d *diagram.Diagram) error {
	s, err := newSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	start := time.Now()

	repo, err := neo4j.New(ctx, graphConfig(s.cfg))
	if err != nil {
		return err
	}
	defer repo.Close(ctx)

	if err := repo.StoreDiagram(ctx, d); err != nil {
		return err
	}
	if s.audit != nil {
		s.audit.LogGraphExport(ctx, d.ID, len(d.Nodes), len(d.Edges), time.Since(start))
	}

	if opts.jsonOutput {
		return writeJSON(cmd.OutOrStdout(), map[string]any{
			"diagramId": d.ID,
			"nodes":     len(d.Nodes),
			"edges":     len(d.Edges),
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Stored diagram %s (%d nodes, %d edges) in %s\n",
		d.ID, len(d.Nodes), len(d.Edges), s.cfg.Graph.URI)
	return nil
}

func newEventsCmd(opts *globalOptions) *cobra.Command {
	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Analysis event operations",
	}

	var (
		natsURL string
		topic   string
	)
	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Print analysis events from NATS as they arrive",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(cmd, opts)
			if natsURL == "" {
				natsURL = cfg.Events.NATSURL
			}
			if natsURL == "" {
				return errors.New("no NATS URL: set events.nats_url or pass --nats-url")
			}

			sub, err := events.NewNATSSubscriber(natsURL)
			if err != nil {
				return err
			}
			defer sub.Close()

			ch, cancel, err := sub.Subscribe(topic)
			if err != nil {
				return err
			}
			defer cancel()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.ErrOrStderr(), "Listening on %s (%s)\n", topic, natsURL)
			for {
				select {
				case <-ctx.Done():
					return nil
				case ev, ok := <-ch:
					if !ok {
						return nil
					}
					if err := printEvent(cmd.OutOrStdout(), ev, opts.jsonOutput); err != nil {
						return err
					}
				}
			}
		},
	}
	tailCmd.Flags().StringVar(&natsURL, "nats-url", "", "NATS URL (overrides events.nats_url)")
	tailCmd.Flags().StringVar(&topic, "topic", events.TopicAll, "Subject to subscribe to")

	eventsCmd.AddCommand(tailCmd)
	return eventsCmd
}

func printEvent(w io.Writer, ev events.Event, asJSON bool) error {
	if asJSON {
		return writeJSON(w, ev)
	}
	line := fmt.Sprintf("%s %-20s %s op=%s diagram=%s nodes=%d edges=%d",
		ev.Timestamp.Format(time.RFC3339), ev.Type, ev.RequestID, ev.Operation, ev.DiagramID, ev.Nodes, ev.Edges)
	switch ev.Type {
	case events.TypeCompleted:
		line += fmt.Sprintf(" score=%.1f level=%s duration=%dms", ev.Score, ev.Level, ev.DurationMs)
	case events.TypeFailed:
		line += fmt.Sprintf(" error=%q", ev.Error)
	}
	_, err := fmt.Fprintln(w, line)
	return err
}
