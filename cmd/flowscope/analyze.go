package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/flowscope/internal/analysis"
	"github.com/efebarandurmaz/flowscope/internal/config"
	"github.com/efebarandurmaz/flowscope/internal/diagram"
	"github.com/efebarandurmaz/flowscope/internal/events"
	"github.com/efebarandurmaz/flowscope/internal/flow"
	"github.com/efebarandurmaz/flowscope/internal/graphstore/neo4j"
	"github.com/efebarandurmaz/flowscope/internal/observability"
	"github.com/efebarandurmaz/flowscope/internal/recommend"
	"github.com/efebarandurmaz/flowscope/internal/validation"
)

// session bundles what a one-shot command needs: config, logger, the
// analysis service and an optional audit log.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	svc    *analysis.Service
	audit  *observability.AuditLogger
}

func newSession(cmd *cobra.Command, opts *globalOptions) (*session, error) {
	cfg := loadConfig(cmd, opts)
	logger := observability.NewLoggerTo(cmd.ErrOrStderr(), cfg.LogOptions())

	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}

	var audit *observability.AuditLogger
	var observer events.Publisher = &events.NoopPublisher{}
	if cfg.Events.AuditPath != "" {
		audit, err = observability.NewAuditLogger(&observability.AuditConfig{
			Enabled:    true,
			OutputPath: cfg.Events.AuditPath,
			SessionID:  gonanoid.Must(),
		})
		if err != nil {
			return nil, err
		}
		observer = audit
	}

	svc, err := analysis.New(
		analysis.WithPolicy(policy),
		analysis.WithLimits(cfg.Limits()),
		analysis.WithValidation(&cfg.Validation),
		analysis.WithObserver(observer),
		analysis.WithLogger(logger),
	)
	if err != nil {
		if audit != nil {
			audit.Close()
		}
		return nil, err
	}
	return &session{cfg: cfg, logger: logger, svc: svc, audit: audit}, nil
}

func (s *session) Close() {
	if s.audit != nil {
		s.audit.Close()
	}
}

// readDiagram decodes the diagram at path, or stdin for "-".
func readDiagram(cmd *cobra.Command, path string) (*diagram.Diagram, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open diagram: %w", err)
		}
		defer f.Close()
		r = f
	}
	return diagram.Decode(r)
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// runOp is the shared body of the one-shot analysis commands.
func runOp[T any](cmd *cobra.Command, opts *globalOptions, path string,
	op func(*analysis.Service) func(context.Context, *diagram.Diagram) (T, error),
	print func(io.Writer, T),
) (T, error) {
	var zero T
	s, err := newSession(cmd, opts)
	if err != nil {
		return zero, err
	}
	defer s.Close()

	d, err := readDiagram(cmd, path)
	if err != nil {
		return zero, err
	}
	out, err := op(s.svc)(cmd.Context(), d)
	if err != nil {
		return zero, err
	}

	if opts.jsonOutput {
		return out, writeJSON(cmd.OutOrStdout(), out)
	}
	print(cmd.OutOrStdout(), out)
	return out, nil
}

func newValidateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file|->",
		Short: "Check a diagram for structural problems",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := runOp(cmd, opts, args[0],
				func(s *analysis.Service) func(context.Context, *diagram.Diagram) (*validation.Result, error) {
					return s.Validate
				},
				printValidation)
			if err != nil {
				return err
			}
			if !res.IsValid {
				return errFailed
			}
			return nil
		},
	}
}

func newComplexityCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "complexity <file|->",
		Short: "Score diagram complexity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := runOp(cmd, opts, args[0],
				func(s *analysis.Service) func(context.Context, *diagram.Diagram) (*analysis.ComplexityReport, error) {
					return s.Complexity
				},
				printComplexity)
			return err
		},
	}
}

func newFlowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "flow <file|->",
		Short: "List paths, the critical path, bottlenecks and parallel branches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := runOp(cmd, opts, args[0],
				func(s *analysis.Service) func(context.Context, *diagram.Diagram) (*flow.Result, error) {
					return s.Flow
				},
				printFlow)
			return err
		},
	}
}

func newRecommendCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recommend <file|->",
		Short: "Generate ranked improvement advice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := runOp(cmd, opts, args[0],
				func(s *analysis.Service) func(context.Context, *diagram.Diagram) ([]recommend.Recommendation, error) {
					return s.Recommendations
				},
				printRecommendations)
			return err
		},
	}
}

func newAnalyzeCmd(opts *globalOptions) *cobra.Command {
	var fromNeo4j string

	cmd := &cobra.Command{
		Use:   "analyze [file|-]",
		Short: "Run every analysis and print the full report",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if fromNeo4j == "" && len(args) != 1 {
				return errors.New("analyze needs a diagram file or --from-neo4j")
			}

			s, err := newSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			var d *diagram.Diagram
			if fromNeo4j != "" {
				d, err = loadFromNeo4j(cmd.Context(), s, fromNeo4j)
			} else {
				d, err = readDiagram(cmd, args[0])
			}
			if err != nil {
				return err
			}

			rep, err := s.svc.Analyze(cmd.Context(), d)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), rep)
			}
			printReport(cmd.OutOrStdout(), rep)
			return nil
		},
	}
	cmd.Flags().StringVar(&fromNeo4j, "from-neo4j", "", "Load the diagram with this id from Neo4j")
	return cmd
}

func loadFromNeo4j(ctx context.Context, s *session, id string) (*diagram.Diagram, error) {
	repo, err := neo4j.New(ctx, graphConfig(s.cfg))
	if err != nil {
		return nil, err
	}
	defer repo.Close(ctx)

	d, err := repo.LoadDiagram(ctx, id)
	if s.audit != nil {
		s.audit.LogGraphImport(ctx, id, err)
	}
	return d, err
}

func graphConfig(cfg *config.Config) neo4j.Config {
	return neo4j.Config{
		URI:      cfg.Graph.URI,
		Username: cfg.Graph.Username,
		Password: cfg.Graph.Password,
		Database: cfg.Graph.Database,
	}
}

// Human-readable output

func printValidation(w io.Writer, res *validation.Result) {
	status := "valid"
	if !res.IsValid {
		status = "invalid"
	}
	fmt.Fprintf(w, "Diagram is %s (score %d)\n", status, res.Score)
	fmt.Fprintf(w, "%s\n", res.Summary)

	printFindings(w, "Errors", res.Errors)
	printFindings(w, "Warnings", res.Warnings)
	printFindings(w, "Suggestions", res.Suggestions)
}

func printFindings(w io.Writer, title string, findings []validation.Finding) {
	if len(findings) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	for _, f := range findings {
		where := ""
		switch {
		case f.NodeID != "":
			where = " (node " + f.NodeID + ")"
		case f.EdgeID != "":
			where = " (edge " + f.EdgeID + ")"
		}
		fmt.Fprintf(w, "  - [%s] %s%s\n", f.Code, f.Message, where)
	}
}

func printComplexity(w io.Writer, rep *analysis.ComplexityReport) {
	fmt.Fprintf(w, "Complexity: %.1f (%s)\n", rep.OverallScore, rep.Level)
	fmt.Fprintf(w, "  Structural:    %.1f\n", rep.Metrics.Structural)
	fmt.Fprintf(w, "  Cognitive:     %.1f\n", rep.Metrics.Cognitive)
	fmt.Fprintf(w, "  Computational: %.1f\n", rep.Metrics.Computational)
	fmt.Fprintf(w, "  Maintenance:   %.1f\n", rep.Metrics.Maintenance)
	if rep.Raw.Truncated {
		fmt.Fprintln(w, "  (path enumeration hit its limit; path metrics are lower bounds)")
	}

	if len(rep.Factors) > 0 {
		fmt.Fprintln(w, "\nTop factors:")
		for _, f := range rep.Factors {
			fmt.Fprintf(w, "  - %s: %.1f (%s)\n", f.Name, f.Impact, f.Description)
		}
	}
	printRecommendations(w, rep.Recommendations)
}

func printFlow(w io.Writer, res *flow.Result) {
	fmt.Fprintf(w, "Paths: %d", len(res.Paths))
	if res.Truncated {
		fmt.Fprint(w, " (truncated)")
	}
	fmt.Fprintln(w)
	if res.CriticalPath != nil {
		fmt.Fprintf(w, "Critical path: %s (complexity %.1f)\n", strings.Join(res.CriticalPath.Nodes, " -> "), res.CriticalPath.Complexity)
	}
	if len(res.Bottlenecks) > 0 {
		fmt.Fprintln(w, "\nBottlenecks:")
		for _, b := range res.Bottlenecks {
			fmt.Fprintf(w, "  - %s [%s]: %s\n", b.NodeID, b.Type, b.Reason)
		}
	}
	if len(res.ParallelProcesses) > 0 {
		fmt.Fprintln(w, "\nParallel branches:")
		for _, p := range res.ParallelProcesses {
			join := p.JoinNode
			if join == "" {
				join = "none"
			}
			fmt.Fprintf(w, "  - %s -> {%s}, joins at %s\n", p.ForkNode, strings.Join(p.Branches, ", "), join)
		}
	}
}

func printRecommendations(w io.Writer, recs []recommend.Recommendation) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "\nNo recommendations.")
		return
	}
	fmt.Fprintln(w, "\nRecommendations:")
	for _, r := range recs {
		fmt.Fprintf(w, "  %d. [%s/%s] %s\n", r.Rank, r.Priority, r.Category, r.Title)
		fmt.Fprintf(w, "     %s\n", r.Description)
	}
}

func printDependencies(w io.Writer, deps *flow.DependencyReport) {
	fmt.Fprintf(w, "\nDependencies: %d databases, %d APIs, %d external services\n",
		len(deps.Databases), len(deps.APIs), len(deps.ExternalServices))
	for _, group := range []struct {
		name string
		deps []flow.Dependency
	}{
		{"database", deps.Databases},
		{"api", deps.APIs},
		{"external", deps.ExternalServices},
	} {
		for _, d := range group.deps {
			label := d.Label
			if label == "" {
				label = d.NodeID
			}
			fmt.Fprintf(w, "  - %s: %s\n", group.name, label)
		}
	}
}

func printReport(w io.Writer, rep *analysis.Report) {
	title := rep.Name
	if title == "" {
		title = rep.DiagramID
	}
	fmt.Fprintf(w, "Report for %s (%s)\n\n", title, rep.Fingerprint)

	printValidation(w, rep.Validation)
	fmt.Fprintln(w)
	printComplexity(w, rep.Complexity)
	fmt.Fprintln(w)
	printFlow(w, rep.Flow)
	printDependencies(w, rep.Dependencies)
}
