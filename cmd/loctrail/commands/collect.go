package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	noopmetric "go.opentelemetry.io/otel/metric/noop"

	"github.com/Sumatoshi-tech/loctrail/pkg/collector"
	"github.com/Sumatoshi-tech/loctrail/pkg/config"
	"github.com/Sumatoshi-tech/loctrail/pkg/history"
	"github.com/Sumatoshi-tech/loctrail/pkg/observability"
	"github.com/Sumatoshi-tech/loctrail/pkg/sizeoracle"
	"github.com/Sumatoshi-tech/loctrail/pkg/snapshot"
)

// CollectCommand holds the flags of "loctrail collect".
type CollectCommand struct {
	rt   runtime
	opts *globalOptions

	full       bool
	path       string
	ledgerPath string
	timeout    time.Duration
	workers    int
}

func newCollectCommand(rt runtime, opts *globalOptions) *cobra.Command {
	cc := &CollectCommand{rt: rt, opts: opts}

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Append the missing commit days to the ledger",
		Long: `Collect walks every day that has commits, measures each tracked subtree
at the latest commit of that day and appends one row per day to the ledger.
Runs resume after the last collected day; --full discards the ledger and rebuilds it from the first commit.`,
		Args: cobra.NoArgs,
		RunE: cc.run,
	}

	cmd.Flags().BoolVar(&cc.full, "full", false, "Discard the ledger and rebuild it from the first commit")
	cmd.Flags().StringVarP(&cc.path, "path", "p", "", "Repository path (default: repository.path from config)")
	cmd.Flags().StringVar(&cc.ledgerPath, "ledger", "", "Ledger file (default: ledger.path from config)")
	cmd.Flags().DurationVar(&cc.timeout, "timeout", 0, "Abort the run after this long, keeping completed rows (0 = no limit)")
	cmd.Flags().IntVar(&cc.workers, "workers", 0, "Subtrees measured in parallel (0 = collect.subtree_workers)")

	return cmd
}

func (cc *CollectCommand) run(cmd *cobra.Command, _ []string) error {
	cfg, err := cc.settings()
	if err != nil {
		return fmt.Errorf("%w: %w", collector.ErrConfiguration, err)
	}

	ctx := commandContext(cmd)

	s, err := openSession(ctx, cmd, cc.rt, cfg, cc.opts, observability.ModeCollect, true)
	if err != nil {
		return fmt.Errorf("%w: %w", collector.ErrConfiguration, err)
	}
	defer s.Close()

	meter := s.providers.Meter
	if meter == nil {
		meter = noopmetric.NewMeterProvider().Meter("loctrail")
	}

	metrics, err := observability.NewCollectMetrics(meter)
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	oracle := sizeoracle.New(sizeoracle.Options{
		Command:            cfg.Oracle.Command,
		Args:               cfg.Oracle.Args,
		FallbackExtensions: cfg.Oracle.FallbackExtensions,
		Runner:             cc.rt.runner,
		Logger:             s.logger,
		OnFallback: func(ctx context.Context, _ error) {
			metrics.RecordFallback(ctx)
		},
	})

	ccfg := collectorConfig(cfg, s.loc, cc.full)

	deps := collector.NewDeps(ccfg, s.repo, oracle, afero.NewOsFs(), s.logger)
	deps.Tracer = s.providers.Tracer
	deps.Metrics = metrics

	if !cc.opts.quiet {
		deps.Observer = &progressObserver{w: cmd.ErrOrStderr(), verbose: cc.opts.verbose}
	}

	if cfg.Collect.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, cfg.Collect.Timeout)
		defer cancel()
	}

	started := cc.rt.now()

	res, runErr := collector.New(ccfg, deps).Run(ctx)

	if !cc.opts.quiet && !errors.Is(runErr, collector.ErrConfiguration) {
		printCollectSummary(cmd.OutOrStdout(), res, cc.rt.now().Sub(started), cc.opts.noColor)
	}

	return runErr
}

// settings loads the configuration and applies the command-line overrides.
func (cc *CollectCommand) settings() (*config.Config, error) {
	cfg, err := loadConfig(cc.opts, cc.path)
	if err != nil {
		return nil, err
	}

	if cc.ledgerPath != "" {
		cfg.Ledger.Path = cc.ledgerPath
	}

	if cc.timeout != 0 {
		cfg.Collect.Timeout = cc.timeout
	}

	if cc.workers != 0 {
		cfg.Collect.SubtreeWorkers = cc.workers
	}

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate flags: %w", err)
	}

	return cfg, nil
}

func collectorConfig(cfg *config.Config, loc *time.Location, full bool) collector.Config {
	subtrees := make([]snapshot.Subtree, len(cfg.Subtrees))
	for i, st := range cfg.Subtrees {
		subtrees[i] = snapshot.Subtree{Name: st.Name, Path: st.Path}
	}

	return collector.Config{
		RepoPath:         cfg.Repository.Path,
		Subtrees:         subtrees,
		LedgerPath:       cfg.LedgerPath(),
		ForceFull:        full,
		TempRoot:         cfg.Collect.TempDir,
		SubtreeWorkers:   cfg.Collect.SubtreeWorkers,
		Location:         loc,
		StaleSnapshotAge: cfg.Collect.StaleSnapshotAge,
	}
}

// progressObserver prints one line per finished day, and state transitions
// when verbose.
type progressObserver struct {
	w       io.Writer
	verbose bool
}

func (p *progressObserver) StateChanged(state collector.State, day history.Day) {
	if !p.verbose || day.IsZero() {
		return
	}

	fmt.Fprintf(p.w, "progress: %s %s\n", day, state)
}

func (p *progressObserver) DayFinished(r collector.DayReport) {
	prefix := fmt.Sprintf("progress: [%d/%d] %s", r.Index, r.Total, r.Day)

	ref := "-"
	if r.Ref != "" {
		ref = r.Ref.Short()
	}

	switch r.Outcome {
	case collector.OutcomeAppended:
		fmt.Fprintf(p.w, "%s %s appended total_code=%s\n", prefix, ref, humanize.Comma(int64(r.TotalCode)))
	case collector.OutcomeDegraded:
		fmt.Fprintf(p.w, "%s %s degraded total_code=%s: %s\n", prefix, ref, humanize.Comma(int64(r.TotalCode)), r.Reason)
	case collector.OutcomeSkipped:
		fmt.Fprintf(p.w, "%s %s skipped: %s\n", prefix, ref, r.Reason)
	default:
		fmt.Fprintf(p.w, "%s %s cancelled\n", prefix, ref)
	}
}

func printCollectSummary(w io.Writer, res collector.Result, elapsed time.Duration, noColor bool) {
	ok := color.New(color.FgGreen, color.Bold)
	warn := color.New(color.FgYellow)

	if noColor {
		ok.DisableColor()
		warn.DisableColor()
	}

	rows := "rows"
	if res.Appended == 1 {
		rows = "row"
	}

	ok.Fprintf(w, "Appended %s %s", humanize.Comma(int64(res.Appended)), rows)
	fmt.Fprintf(w, " to %s in %s\n", res.LedgerPath, elapsed.Round(time.Millisecond))

	if res.Degraded > 0 || res.Skipped > 0 {
		warn.Fprintf(w, "%d degraded, %d skipped\n", res.Degraded, res.Skipped)
	}

	if !res.LastDay.IsZero() {
		fmt.Fprintf(w, "Last collected day: %s\n", res.LastDay)
	}
}
