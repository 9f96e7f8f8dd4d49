// Package commands implements the loctrail CLI command handlers.
package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/loctrail/pkg/config"
	"github.com/Sumatoshi-tech/loctrail/pkg/gitlib"
	"github.com/Sumatoshi-tech/loctrail/pkg/gogit"
	"github.com/Sumatoshi-tech/loctrail/pkg/history"
	"github.com/Sumatoshi-tech/loctrail/pkg/observability"
	"github.com/Sumatoshi-tech/loctrail/pkg/sizeoracle"
)

type (
	observabilityInit func(ctx context.Context, cfg observability.Config) (observability.Providers, error)
	repositoryOpener  func(backend, path string) (history.Repository, error)
)

// runtime holds the process-level collaborators commands use, replaced in tests.
type runtime struct {
	initObservability observabilityInit
	openRepository    repositoryOpener
	// runner overrides how the oracle is executed; nil runs it as a child process.
	runner sizeoracle.Runner
	now    func() time.Time
}

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	verbose    bool
	quiet      bool
	noColor    bool
}

func defaultRuntime() runtime {
	return runtime{
		initObservability: observability.Init,
		openRepository:    openRepository,
		now:               time.Now,
	}
}

// NewRootCommand builds the loctrail command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommandWithRuntime(defaultRuntime())
}

func newRootCommandWithRuntime(rt runtime) *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "loctrail",
		Short: "Track how a repository's lines of code grew, one day at a time",
		Long: `loctrail replays a repository's history day by day, measures each tracked
subtree with a cloc-compatible line counter and keeps the results in an
append-only CSV ledger.

Commands:
  collect     Append the missing days to the ledger
  growth      Summarize or chart the ledger
  cadence     Show when commits happen
  milestones  List size, commit and age milestones
  stats       Show a project overview`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Config file (default: .loctrail.yaml in the repository, . or $HOME)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress output")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(newCollectCommand(rt, opts))
	rootCmd.AddCommand(newGrowthCommand(rt, opts))
	rootCmd.AddCommand(newCadenceCommand(rt, opts))
	rootCmd.AddCommand(newMilestonesCommand(rt, opts))
	rootCmd.AddCommand(newStatsCommand(rt, opts))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// ErrUnknownBackend is returned when a repository is opened with a backend
// name the binary does not know.
var ErrUnknownBackend = errors.New("unknown history backend")

func openRepository(backend, path string) (history.Repository, error) {
	switch backend {
	case config.BackendLibgit2:
		b, err := gitlib.OpenBackend(path)
		if err != nil {
			return nil, err
		}

		return b, nil
	case config.BackendGoGit:
		b, err := gogit.OpenBackend(path)
		if err != nil {
			return nil, err
		}

		return b, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
