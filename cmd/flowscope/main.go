package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/flowscope/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// errFailed marks a command that already reported its failure and only
// needs a non-zero exit.
var errFailed = errors.New("command failed")

type globalOptions struct {
	configPath string
	jsonOutput bool
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:           "flowscope",
		Short:         "Heuristic analysis of flow-chart diagrams",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath, "Config file path")
	rootCmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newValidateCmd(opts),
		newComplexityCmd(opts),
		newFlowCmd(opts),
		newRecommendCmd(opts),
		newAnalyzeCmd(opts),
		newExportCmd(opts),
		newEventsCmd(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "flowscope %s\n", version)
			},
		},
	)
	return rootCmd
}

// loadConfig reads the config file and prints its warnings. A broken file
// falls back to defaults, the same way a missing one does.
func loadConfig(cmd *cobra.Command, opts *globalOptions) *config.Config {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: config load failed (%v), using defaults\n", err)
		cfg = config.Default()
	}
	for _, w := range cfg.Validate() {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s\n", w)
	}
	return cfg
}
