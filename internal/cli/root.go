// Package cli wires the release-gate commands: verify runs the gate and
// exits with the decision, rollback plans and executes confirmed rollbacks,
// checks and runs inspect the registry and the history store.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/NomadCrew/release-gate/config"
	"github.com/NomadCrew/release-gate/logger"
	"github.com/NomadCrew/release-gate/types"
)

// options are the persistent flags shared by every command.
type options struct {
	environment string
	configFile  string
	verbose     bool
}

// exitError carries a specific process exit code out of a command. An empty
// message means the command already reported itself (the gate summary) and
// only the code matters.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string {
	if e.msg != "" {
		return e.msg
	}
	return fmt.Sprintf("exit status %d", e.code)
}

// Execute runs the CLI and returns the process exit code: 0 for GO, 2 for
// CONDITIONAL_GO, 1 for NO_GO or any error.
func Execute(ctx context.Context) int {
	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			if exit.msg != "" {
				fmt.Fprintln(os.Stderr, "Error:", exit.msg)
			}
			return exit.code
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// NewRootCmd builds the command tree. Exposed for CLI tests.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "release-gate",
		Short: "Deploy verification and release gate for the NomadCrew platform",
		Long: `release-gate runs live checks against a deployed environment, aggregates
them into a GO / CONDITIONAL_GO / NO_GO decision, writes a Markdown report
artifact, and can execute an explicitly confirmed rollback through the
infrastructure control plane.

Exit codes: 0 = GO, 2 = CONDITIONAL_GO, 1 = NO_GO or error.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Verbose = opts.verbose
		},
	}

	root.PersistentFlags().StringVarP(&opts.environment, "environment", "e", "",
		"target environment (dev, staging, production)")
	root.PersistentFlags().StringVar(&opts.configFile, "config", "",
		"config file path (overrides the per-environment default)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false,
		"enable debug logging")

	root.AddCommand(
		newVerifyCmd(opts),
		newRollbackCmd(opts),
		newChecksCmd(opts),
		newRunsCmd(opts),
		newInitCmd(opts),
		newVersionCmd(),
	)
	return root
}

// loadConfig resolves configuration: an explicit --config path wins,
// otherwise the conventional per-environment file is used. The environment
// flag falls back to GATE_ENVIRONMENT, then to dev.
func loadConfig(opts *options) (*config.Config, error) {
	if opts.configFile != "" {
		cfg, err := config.LoadConfigFromFile(opts.configFile)
		if err != nil {
			return nil, err
		}
		if opts.environment != "" {
			cfg.Environment = config.EnvType(opts.environment)
		}
		return cfg, nil
	}

	env := opts.environment
	if env == "" {
		env = os.Getenv("GATE_ENVIRONMENT")
	}
	if env == "" {
		env = string(config.Development)
	}
	return config.LoadConfigForEnv(env)
}

// parseCategories validates a --categories flag value against the known
// check categories.
func parseCategories(names []string) ([]types.CheckCategory, error) {
	if len(names) == 0 {
		return nil, nil
	}
	valid := make(map[types.CheckCategory]bool)
	for _, c := range types.Categories() {
		valid[c] = true
	}
	out := make([]types.CheckCategory, 0, len(names))
	for _, raw := range names {
		c := types.CheckCategory(strings.ToLower(strings.TrimSpace(raw)))
		if !valid[c] {
			return nil, fmt.Errorf("unknown check category %q (known: %s)",
				raw, categoryNames())
		}
		out = append(out, c)
	}
	return out, nil
}

func categoryNames() string {
	var names []string
	for _, c := range types.Categories() {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}
