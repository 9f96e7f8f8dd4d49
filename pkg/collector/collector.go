// Package collector drives incremental collection: for every commit day not
// yet in the ledger it resolves the day's commit, measures the tracked
// subtrees in an isolated snapshot and appends one row.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/loctrail/pkg/history"
	"github.com/Sumatoshi-tech/loctrail/pkg/ledger"
	"github.com/Sumatoshi-tech/loctrail/pkg/observability"
	"github.com/Sumatoshi-tech/loctrail/pkg/sizeoracle"
	"github.com/Sumatoshi-tech/loctrail/pkg/snapshot"
)

// ErrConfiguration marks fatal errors detected before any day is collected:
// unreachable history, unusable ledger or invalid settings. Nothing is
// appended when it is returned.
var ErrConfiguration = errors.New("collection configuration error")

const tracerName = "loctrail/collector"

// Config is the explicit configuration of one run.
type Config struct {
	RepoPath   string
	Subtrees   []snapshot.Subtree
	LedgerPath string
	// ForceFull discards the ledger and recollects every day.
	ForceFull bool
	// TempRoot is where snapshots are created; empty means the system default.
	TempRoot       string
	SubtreeWorkers int
	// Location is the zone commit days are computed in; nil means local.
	Location *time.Location
	// StaleSnapshotAge enables the leftover snapshot sweep when positive.
	StaleSnapshotAge time.Duration
}

// Names returns the subtree names in declared order.
func (c Config) Names() []string {
	names := make([]string, len(c.Subtrees))
	for i, s := range c.Subtrees {
		names[i] = s.Name
	}

	return names
}

// Measurer turns a directory into a size metric. It must not fail.
type Measurer interface {
	Measure(ctx context.Context, dir string) sizeoracle.SizeMetric
}

// Extractor provides isolated snapshots of commits.
type Extractor interface {
	Acquire(ctx context.Context, ref history.CommitRef) (*snapshot.Snapshot, error)
	Sweep(ctx context.Context, maxAge time.Duration) (int, error)
}

// Ledger is the row store the driver resumes from and appends to.
type Ledger interface {
	Initialize(forceFull bool) error
	LastCollectedDay() (history.Day, bool, error)
	Append(row ledger.Row) error
}

// Deps are the collaborators of a Driver. Logger, Tracer, Metrics and
// Observer are optional.
type Deps struct {
	Backend   history.Backend
	Extractor Extractor
	Oracle    Measurer
	Ledger    Ledger
	Logger    *slog.Logger
	Tracer    trace.Tracer
	Metrics   *observability.CollectMetrics
	Observer  Observer
}

// NewDeps builds the snapshot extractor and the ledger from cfg around the
// given backend and oracle.
func NewDeps(cfg Config, backend history.Backend, oracle Measurer, fs afero.Fs, logger *slog.Logger) Deps {
	return Deps{
		Backend:   backend,
		Extractor: snapshot.NewExtractor(backend, snapshot.Options{TempRoot: cfg.TempRoot, Logger: logger}),
		Oracle:    oracle,
		Ledger:    ledger.New(fs, cfg.LedgerPath, cfg.Names()),
		Logger:    logger,
	}
}

// Result summarizes a run.
type Result struct {
	// Appended counts rows written, degraded ones included.
	Appended int
	Degraded int
	Skipped  int
	// Days is the number of pending commit days the run considered.
	Days       int
	LastDay    history.Day
	LedgerPath string
}

// Driver runs collections. A Driver must not be used by concurrent runs.
type Driver struct {
	cfg  Config
	deps Deps
	loc  *time.Location

	mu    sync.Mutex
	state State
}

// New creates a Driver.
func New(cfg Config, deps Deps) *Driver {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	if deps.Tracer == nil {
		deps.Tracer = noop.NewTracerProvider().Tracer(tracerName)
	}

	if deps.Observer == nil {
		deps.Observer = NopObserver{}
	}

	if cfg.SubtreeWorkers <= 0 {
		cfg.SubtreeWorkers = 1
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	return &Driver{cfg: cfg, deps: deps, loc: loc}
}

// State returns the current phase.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.state
}

// Run collects every commit day after the last ledger row. Per-day failures
// skip or degrade the day and the run continues. When ctx is cancelled no
// further row is appended and the partial Result is returned with an error
// wrapping ctx.Err().
func (d *Driver) Run(ctx context.Context) (Result, error) {
	res := Result{LedgerPath: d.cfg.LedgerPath}

	ctx, span := d.deps.Tracer.Start(ctx, "loctrail.collect",
		trace.WithAttributes(
			attribute.String("collect.repository", d.cfg.RepoPath),
			attribute.Int("collect.subtrees", len(d.cfg.Subtrees)),
			attribute.Bool("collect.force_full", d.cfg.ForceFull),
		))
	defer span.End()

	pending, err := d.initialize(ctx)
	if err != nil {
		d.setState(StateAborted, history.Day{})
		span.RecordError(err)
		span.SetStatus(codes.Error, "initialization failed")

		return res, err
	}

	res.Days = len(pending)
	span.SetAttributes(attribute.Int("collect.pending_days", len(pending)))

	if len(pending) == 0 {
		d.deps.Logger.InfoContext(ctx, "ledger is up to date", "ledger", d.cfg.LedgerPath)
		d.setState(StateIdle, history.Day{})

		return res, nil
	}

	d.deps.Logger.InfoContext(ctx, "collecting commit days",
		"days", len(pending), "first", pending[0], "last", pending[len(pending)-1])

	for i, day := range pending {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return d.cancelled(ctx, span, res, ctxErr)
		}

		report, dayErr := d.collectDay(ctx, day, i+1, len(pending))

		switch report.Outcome {
		case OutcomeAppended:
			res.Appended++
			res.LastDay = day
		case OutcomeDegraded:
			res.Appended++
			res.Degraded++
			res.LastDay = day
		case OutcomeSkipped:
			res.Skipped++
		}

		d.notifyDay(report)

		if dayErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return d.cancelled(ctx, span, res, ctxErr)
			}

			d.setState(StateIdle, history.Day{})
			span.RecordError(dayErr)
			span.SetStatus(codes.Error, "append failed")

			return res, dayErr
		}
	}

	d.setState(StateIdle, history.Day{})

	span.SetAttributes(
		attribute.Int("collect.appended", res.Appended),
		attribute.Int("collect.degraded", res.Degraded),
		attribute.Int("collect.skipped", res.Skipped),
	)

	d.deps.Logger.InfoContext(ctx, "collection finished",
		"appended", res.Appended, "degraded", res.Degraded, "skipped", res.Skipped,
		"ledger", d.cfg.LedgerPath)

	return res, nil
}

// initialize prepares the ledger and returns the days still to collect.
func (d *Driver) initialize(ctx context.Context) ([]history.Day, error) {
	d.setState(StateInitializing, history.Day{})

	err := d.validate()
	if err != nil {
		return nil, err
	}

	d.sweep(ctx)

	err = d.deps.Ledger.Initialize(d.cfg.ForceFull)
	if err != nil {
		return nil, fmt.Errorf("%w: initialize ledger: %w", ErrConfiguration, err)
	}

	var (
		resumeFrom history.Day
		resume     bool
	)

	if !d.cfg.ForceFull {
		resumeFrom, resume, err = d.deps.Ledger.LastCollectedDay()
		if err != nil {
			return nil, fmt.Errorf("%w: read ledger: %w", ErrConfiguration, err)
		}
	}

	days, err := history.Days(ctx, d.deps.Backend, d.loc)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("collection cancelled: %w", ctxErr)
		}

		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	if resume {
		d.deps.Logger.InfoContext(ctx, "resuming collection", "after", resumeFrom)

		days = slices.DeleteFunc(days, func(day history.Day) bool {
			return !day.After(resumeFrom)
		})
	}

	return days, nil
}

func (d *Driver) validate() error {
	var errs []error

	if d.deps.Backend == nil {
		errs = append(errs, errors.New("history backend is required"))
	}

	if d.deps.Extractor == nil {
		errs = append(errs, errors.New("snapshot extractor is required"))
	}

	if d.deps.Oracle == nil {
		errs = append(errs, errors.New("size oracle is required"))
	}

	if d.deps.Ledger == nil {
		errs = append(errs, errors.New("ledger is required"))
	}

	if len(d.cfg.Subtrees) == 0 {
		errs = append(errs, errors.New("no subtrees to track"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(errs...))
	}

	return nil
}

// sweep removes snapshots left behind by killed runs. Failures are logged.
func (d *Driver) sweep(ctx context.Context) {
	if d.cfg.StaleSnapshotAge <= 0 {
		return
	}

	n, err := d.deps.Extractor.Sweep(ctx, d.cfg.StaleSnapshotAge)
	if err != nil {
		d.deps.Logger.WarnContext(ctx, "stale snapshot sweep failed", "error", err)
	}

	if n > 0 {
		d.deps.Logger.InfoContext(ctx, "removed stale snapshots", "count", n)
	}
}

func (d *Driver) cancelled(ctx context.Context, span trace.Span, res Result, cause error) (Result, error) {
	d.setState(StateIdle, history.Day{})

	err := fmt.Errorf("collection cancelled: %w", cause)

	span.RecordError(err)
	span.SetStatus(codes.Error, "cancelled")

	d.deps.Logger.WarnContext(ctx, "collection cancelled",
		"appended", res.Appended, "ledger", d.cfg.LedgerPath)

	return res, err
}

func (d *Driver) setState(state State, day history.Day) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == state {
		return
	}

	d.state = state
	d.deps.Observer.StateChanged(state, day)
}

func (d *Driver) notifyDay(report DayReport) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.deps.Observer.DayFinished(report)
}

// collectDay runs one day step. The returned error is non-nil only when the
// step must stop the run: cancellation or a failed append.
func (d *Driver) collectDay(ctx context.Context, day history.Day, index, total int) (DayReport, error) {
	start := time.Now()
	report := DayReport{Day: day, Index: index, Total: total}

	ctx, span := d.deps.Tracer.Start(ctx, "loctrail.collect.day",
		trace.WithAttributes(attribute.String("collect.day", day.String())))
	defer span.End()

	ctx = observability.WithLogAttrs(ctx, slog.String("day", day.String()))

	defer func() {
		if report.Outcome != "" {
			d.deps.Metrics.RecordDay(ctx, string(report.Outcome), time.Since(start))
			span.SetAttributes(attribute.String("collect.outcome", string(report.Outcome)))
		}
	}()

	d.setState(StateResolving, day)

	ref, found, err := history.Resolve(ctx, d.deps.Backend, day, d.loc)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return report, ctxErr
		}

		return d.skip(ctx, report, err), nil
	}

	if !found {
		return d.skip(ctx, report, fmt.Errorf("no commit at or before %s", day)), nil
	}

	report.Ref = ref
	ctx = observability.WithLogAttrs(ctx, slog.String("commit", ref.Short()))
	span.SetAttributes(attribute.String("collect.commit", string(ref)))

	metrics, degradeErr, err := d.measure(ctx, ref, day)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return report, ctxErr
		}

		return d.skip(ctx, report, err), nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return report, ctxErr
	}

	d.setState(StateAppending, day)

	row := ledger.NewRow(day, metrics)

	err = d.deps.Ledger.Append(row)
	if err != nil {
		d.deps.Logger.ErrorContext(ctx, "ledger append failed", "error", err)

		return report, fmt.Errorf("append %s: %w", day, err)
	}

	report.TotalCode = row.TotalCode
	report.Outcome = OutcomeAppended

	if degradeErr != nil {
		report.Outcome = OutcomeDegraded
		report.Reason = degradeErr
	}

	d.deps.Logger.InfoContext(ctx, "day collected",
		"total_code", row.TotalCode, "outcome", report.Outcome,
		"progress", fmt.Sprintf("%d/%d", index, total))

	return report, nil
}

func (d *Driver) skip(ctx context.Context, report DayReport, reason error) DayReport {
	d.deps.Logger.WarnContext(ctx, "skipping day", "reason", reason)

	report.Outcome = OutcomeSkipped
	report.Reason = reason

	return report
}

// measure materializes every subtree of ref and measures it. Archive
// failures zero the subtree and are returned as degradeErr; acquisition and
// unpack failures fail the day.
func (d *Driver) measure(
	ctx context.Context, ref history.CommitRef, day history.Day,
) (metrics []sizeoracle.SizeMetric, degradeErr error, err error) {
	d.setState(StateExtracting, day)

	snap, err := d.deps.Extractor.Acquire(ctx, ref)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire snapshot: %w", err)
	}

	defer func() {
		closeErr := snap.Close()
		if closeErr != nil {
			d.deps.Logger.WarnContext(ctx, "snapshot cleanup failed", "dir", snap.Dir(), "error", closeErr)
		}
	}()

	metrics = make([]sizeoracle.SizeMetric, len(d.cfg.Subtrees))

	var (
		degradeMu sync.Mutex
		measuring atomic.Bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.SubtreeWorkers)

	for i, sub := range d.cfg.Subtrees {
		g.Go(func() error {
			dir, present, matErr := snap.Materialize(gctx, sub)

			switch {
			case errors.Is(matErr, snapshot.ErrArchive):
				d.deps.Logger.WarnContext(gctx, "subtree archive failed, recording zero",
					"subtree", sub.Name, "error", matErr)

				degradeMu.Lock()
				degradeErr = errors.Join(degradeErr, fmt.Errorf("%s: %w", sub.Name, matErr))
				degradeMu.Unlock()

				return nil
			case matErr != nil:
				return fmt.Errorf("materialize %s: %w", sub.Name, matErr)
			case !present:
				d.deps.Logger.DebugContext(gctx, "subtree absent", "subtree", sub.Name)

				return nil
			}

			if measuring.CompareAndSwap(false, true) {
				d.setState(StateMeasuring, day)
			}

			metrics[i] = d.deps.Oracle.Measure(gctx, dir)

			return nil
		})
	}

	err = g.Wait()
	if err != nil {
		return nil, nil, err
	}

	return metrics, degradeErr, nil
}
