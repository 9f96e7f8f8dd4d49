package collector_test

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/loctrail/pkg/collector"
	"github.com/Sumatoshi-tech/loctrail/pkg/history"
	"github.com/Sumatoshi-tech/loctrail/pkg/ledger"
	"github.com/Sumatoshi-tech/loctrail/pkg/sizeoracle"
	"github.com/Sumatoshi-tech/loctrail/pkg/snapshot"
	"github.com/Sumatoshi-tech/loctrail/pkg/treetar"
)

// missingOracle forces the built-in line counter.
const missingOracle = "loctrail-no-such-oracle"

var testSubtrees = []snapshot.Subtree{
	{Name: "frontend", Path: "src"},
	{Name: "backend", Path: "src-tauri/src"},
}

// fakeBackend serves history from an in-memory commit list. Each commit maps
// subtree paths to files; Archive can be overridden per test.
type fakeBackend struct {
	index   *history.Index
	trees   map[history.CommitRef]map[string]map[string]string
	archive func(ctx context.Context, ref history.CommitRef, path string, w io.Writer) (bool, error)
	days    func(ctx context.Context, loc *time.Location) ([]history.Day, error)
	resolve func(ctx context.Context, until time.Time) (history.CommitRef, bool, error)
}

type fakeCommit struct {
	when  time.Time
	trees map[string]map[string]string
}

func newFakeBackend(commits ...fakeCommit) *fakeBackend {
	infos := make([]history.CommitInfo, 0, len(commits))
	trees := make(map[history.CommitRef]map[string]map[string]string, len(commits))

	for i, c := range commits {
		ref := history.CommitRef(fmt.Sprintf("%040x", i+1))
		infos = append(infos, history.CommitInfo{Ref: ref, AuthorTime: c.when, CommitTime: c.when})
		trees[ref] = c.trees
	}

	return &fakeBackend{index: history.NewIndex(infos), trees: trees}
}

func (f *fakeBackend) CommitDays(ctx context.Context, loc *time.Location) ([]history.Day, error) {
	if f.days != nil {
		return f.days(ctx, loc)
	}

	return f.index.Days(loc), nil
}

func (f *fakeBackend) ResolveAt(ctx context.Context, until time.Time) (history.CommitRef, bool, error) {
	if f.resolve != nil {
		return f.resolve(ctx, until)
	}

	c, ok := f.index.At(until)

	return c.Ref, ok, nil
}

func (f *fakeBackend) Archive(ctx context.Context, ref history.CommitRef, path string, w io.Writer) (bool, error) {
	if f.archive != nil {
		return f.archive(ctx, ref, path, w)
	}

	files, ok := f.trees[ref][path]
	if !ok {
		return false, nil
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}

	sort.Strings(names)

	tw := treetar.NewWriter(w, time.Unix(0, 0))

	for _, name := range names {
		if err := tw.File(name, false, []byte(files[name])); err != nil {
			return true, err
		}
	}

	return true, tw.Close()
}

// escapingArchive writes an entry that fails to unpack.
func escapingArchive(_ context.Context, _ history.CommitRef, _ string, w io.Writer) (bool, error) {
	tw := tar.NewWriter(w)

	if err := tw.WriteHeader(&tar.Header{Typeflag: tar.TypeReg, Name: "../escape.ts", Mode: 0o644, Size: 2}); err != nil {
		return true, err
	}

	if _, err := tw.Write([]byte("x\n")); err != nil {
		return true, err
	}

	return true, tw.Close()
}

// lines returns n non-blank source lines.
func lines(n int) string {
	return strings.Repeat("let x = 1;\n", n)
}

func day(n int) time.Time {
	return time.Date(2024, 3, n, 12, 0, 0, 0, time.UTC)
}

// recordingObserver keeps every callback.
type recordingObserver struct {
	mu      sync.Mutex
	states  []collector.State
	reports []collector.DayReport
	onDay   func(collector.DayReport)
}

func (o *recordingObserver) StateChanged(state collector.State, _ history.Day) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.states = append(o.states, state)
}

func (o *recordingObserver) DayFinished(report collector.DayReport) {
	o.mu.Lock()
	o.reports = append(o.reports, report)
	o.mu.Unlock()

	if o.onDay != nil {
		o.onDay(report)
	}
}

type harness struct {
	cfg     collector.Config
	backend history.Backend
	fs      afero.Fs
	oracle  collector.Measurer
	obs     collector.Observer
}

func newHarness(t *testing.T, backend history.Backend) *harness {
	t.Helper()

	dir := t.TempDir()

	return &harness{
		cfg: collector.Config{
			RepoPath:       dir,
			Subtrees:       testSubtrees,
			LedgerPath:     filepath.Join(dir, "loc_history.csv"),
			TempRoot:       t.TempDir(),
			SubtreeWorkers: 2,
			Location:       time.UTC,
		},
		backend: backend,
		fs:      afero.NewOsFs(),
		oracle: sizeoracle.New(sizeoracle.Options{
			Command: missingOracle,
			Logger:  slog.New(slog.DiscardHandler),
		}),
	}
}

func (h *harness) run(ctx context.Context, t *testing.T) (collector.Result, error) {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	deps := collector.NewDeps(h.cfg, h.backend, h.oracle, h.fs, logger)
	deps.Observer = h.obs

	return collector.New(h.cfg, deps).Run(ctx)
}

func (h *harness) rows(t *testing.T) []ledger.Row {
	t.Helper()

	table, err := ledger.Load(h.fs, h.cfg.LedgerPath)
	require.NoError(t, err)

	return table.Rows
}

func (h *harness) bytes(t *testing.T) []byte {
	t.Helper()

	data, err := afero.ReadFile(h.fs, h.cfg.LedgerPath)
	require.NoError(t, err)

	return data
}
