// Package commands provides the steering CLI's cobra command tree.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steering/content-steering/internal/buildinfo"
	"github.com/steering/content-steering/internal/config"
)

// SetVersionInfo records build-time version info for the version command.
func SetVersionInfo(v, c string) {
	buildinfo.Version = v
	buildinfo.GitCommit = c
}

// flagOverrides holds CLI-flag overrides layered on top of environment
// configuration. Empty/zero values mean "use the environment default".
type flagOverrides struct {
	strategy  strategyValue
	logSuffix string
	verbose   bool
}

var overrides flagOverrides

// strategyValue is a pflag.Value that rejects unknown bandit strategies at
// flag-parse time rather than deferring the check to LoadEnvConfig.
type strategyValue struct {
	value string
}

func (s *strategyValue) String() string { return s.value }

func (s *strategyValue) Set(v string) error {
	if !config.IsValidStrategy(v) {
		return fmt.Errorf("must be one of epsilon_greedy, no_steering, random, ucb1, d_ucb, oracle_best_choice")
	}
	s.value = v
	return nil
}

func (s *strategyValue) Type() string { return "strategy" }

// NewRootCmd builds the root cobra command for the steering service.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "steering",
		Short: "Content steering service for adaptive video-streaming caches",
		Long: `steering runs the content steering control plane: it tracks cache
node health, maintains a synthetic latency oracle, and picks the best cache
per client request using a pluggable multi-armed-bandit strategy.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "steering version %s (%s)\n", buildinfo.Version, buildinfo.GitCommit)
		},
	}
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "fatal: "+format+"\n", args...)
	os.Exit(1)
}
