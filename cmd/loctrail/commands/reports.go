package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/loctrail/pkg/cadence"
	"github.com/Sumatoshi-tech/loctrail/pkg/growth"
	"github.com/Sumatoshi-tech/loctrail/pkg/ledger"
	"github.com/Sumatoshi-tech/loctrail/pkg/milestones"
	"github.com/Sumatoshi-tech/loctrail/pkg/observability"
	"github.com/Sumatoshi-tech/loctrail/pkg/projectstats"
	"github.com/Sumatoshi-tech/loctrail/pkg/report"
	"github.com/Sumatoshi-tech/loctrail/pkg/version"
)

// reportCommand carries the flags every read-only report shares.
type reportCommand struct {
	rt   runtime
	opts *globalOptions

	path       string
	ledgerPath string
	format     string
	allowed    []string
}

func newReportCommand(rt runtime, opts *globalOptions, cmd *cobra.Command, allowed ...string) *reportCommand {
	rc := &reportCommand{rt: rt, opts: opts, allowed: allowed}

	cmd.Args = cobra.NoArgs
	cmd.Flags().StringVarP(&rc.path, "path", "p", "", "Repository path (default: repository.path from config)")
	cmd.Flags().StringVar(&rc.ledgerPath, "ledger", "", "Ledger file (default: ledger.path from config)")
	cmd.Flags().StringVarP(&rc.format, "format", "f", report.FormatText, "Output format: "+strings.Join(allowed, ", "))

	return rc
}

// open validates the format, loads the configuration and starts a session.
func (rc *reportCommand) open(cmd *cobra.Command, withRepo bool) (*session, string, error) {
	format, err := report.ParseFormat(rc.format, rc.allowed...)
	if err != nil {
		return nil, "", err
	}

	cfg, err := loadConfig(rc.opts, rc.path)
	if err != nil {
		return nil, "", err
	}

	if rc.ledgerPath != "" {
		cfg.Ledger.Path = rc.ledgerPath
	}

	s, err := openSession(commandContext(cmd), cmd, rc.rt, cfg, rc.opts, observability.ModeReport, withRepo)
	if err != nil {
		return nil, "", err
	}

	return s, format, nil
}

func (rc *reportCommand) reportOptions() report.Options {
	return report.Options{NoColor: rc.opts.noColor}
}

// loadTable reads the ledger. A missing ledger yields an empty table when
// allowMissing is set.
func loadTable(s *session, allowMissing bool) (ledger.Table, error) {
	t, err := ledger.Load(afero.NewOsFs(), s.cfg.LedgerPath())
	if err == nil {
		return t, nil
	}

	if allowMissing && errors.Is(err, os.ErrNotExist) {
		s.logger.Debug("no ledger yet", "ledger", s.cfg.LedgerPath())

		return ledger.Table{}, nil
	}

	return ledger.Table{}, fmt.Errorf("load ledger: %w", err)
}

func newGrowthCommand(rt runtime, opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "growth",
		Short: "Summarize the ledger or render it as an HTML chart",
	}

	rc := newReportCommand(rt, opts, cmd, report.FormatText, report.FormatJSON, report.FormatYAML, report.FormatHTML)

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		s, format, err := rc.open(cmd, false)
		if err != nil {
			return err
		}
		defer s.Close()

		t, err := loadTable(s, false)
		if err != nil {
			return err
		}

		summary, err := growth.Summarize(t)
		if err != nil {
			return fmt.Errorf("%s: %w", s.cfg.LedgerPath(), err)
		}

		return report.Growth(cmd.OutOrStdout(), format, summary, t, rc.reportOptions())
	}

	return cmd
}

func newCadenceCommand(rt runtime, opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cadence",
		Short: "Show commit counts by hour and weekday",
	}

	rc := newReportCommand(rt, opts, cmd, report.FormatText, report.FormatJSON, report.FormatYAML)

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		s, format, err := rc.open(cmd, true)
		if err != nil {
			return err
		}
		defer s.Close()

		commits, err := s.repo.Commits(commandContext(cmd))
		if err != nil {
			return fmt.Errorf("list commits: %w", err)
		}

		return report.Cadence(cmd.OutOrStdout(), format, cadence.Analyze(commits, s.loc), rc.reportOptions())
	}

	return cmd
}

func newMilestonesCommand(rt runtime, opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "milestones",
		Short: "List code size, commit count and project age milestones",
	}

	rc := newReportCommand(rt, opts, cmd, report.FormatText, report.FormatJSON, report.FormatYAML)

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		s, format, err := rc.open(cmd, true)
		if err != nil {
			return err
		}
		defer s.Close()

		commits, err := s.repo.Commits(commandContext(cmd))
		if err != nil {
			return fmt.Errorf("list commits: %w", err)
		}

		t, err := loadTable(s, true)
		if err != nil {
			return err
		}

		ms := milestones.Find(milestones.Input{
			Rows:     t.Rows,
			Commits:  commits,
			Now:      rc.rt.now(),
			Location: s.loc,
		})

		return report.Milestones(cmd.OutOrStdout(), format, ms, rc.reportOptions())
	}

	return cmd
}

func newStatsCommand(rt runtime, opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show a project overview",
	}

	rc := newReportCommand(rt, opts, cmd, report.FormatText, report.FormatJSON, report.FormatYAML)

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		s, format, err := rc.open(cmd, true)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := commandContext(cmd)

		commits, err := s.repo.Commits(ctx)
		if err != nil {
			return fmt.Errorf("list commits: %w", err)
		}

		head, err := s.repo.Head(ctx)
		if err != nil {
			return fmt.Errorf("read head: %w", err)
		}

		t, err := loadTable(s, true)
		if err != nil {
			return err
		}

		stats := projectstats.Compute(projectstats.Input{
			Name:     projectName(s.cfg.Repository.Path),
			Commits:  commits,
			Head:     head,
			Table:    t,
			Now:      rc.rt.now(),
			Location: s.loc,
		})

		return report.Stats(cmd.OutOrStdout(), format, stats, rc.reportOptions())
	}

	return cmd
}

func projectName(repoPath string) string {
	abs, err := filepath.Abs(repoPath)
	if err != nil {
		return filepath.Base(repoPath)
	}

	return filepath.Base(abs)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
