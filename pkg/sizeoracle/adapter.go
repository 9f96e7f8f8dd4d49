package sizeoracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/spf13/afero"
)

// DefaultCommand is the oracle invoked when none is configured.
const DefaultCommand = "cloc"

// DefaultArgs are appended after the measured directory.
var DefaultArgs = []string{"--csv", "--quiet"}

// ErrNoData is reported to the fallback hook when the oracle ran but printed
// no parsable data row.
var ErrNoData = errors.New("oracle output has no data row")

// Runner executes the oracle and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs the oracle as a child process.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", name, err)
	}

	return out, nil
}

// Options configures an Adapter.
type Options struct {
	Command            string
	Args               []string
	FallbackExtensions []string
	Runner             Runner
	// Fs is where measured directories are read; nil means the OS file system.
	Fs     afero.Fs
	Logger *slog.Logger
	// OnFallback is called each time the built-in line counter replaces the
	// oracle, with the reason.
	OnFallback func(ctx context.Context, reason error)
}

// Adapter turns a directory into a SizeMetric. It never fails: oracle
// problems degrade to the fallback counter and internal failures to zero.
type Adapter struct {
	command    string
	args       []string
	extensions []string
	runner     Runner
	fs         afero.Fs
	logger     *slog.Logger
	onFallback func(ctx context.Context, reason error)
}

// New creates an Adapter, filling unset options with defaults.
func New(opts Options) *Adapter {
	a := &Adapter{
		command:    opts.Command,
		args:       opts.Args,
		extensions: opts.FallbackExtensions,
		runner:     opts.Runner,
		fs:         opts.Fs,
		logger:     opts.Logger,
		onFallback: opts.OnFallback,
	}

	if a.command == "" {
		a.command = DefaultCommand
	}

	if a.args == nil {
		a.args = DefaultArgs
	}

	if len(a.extensions) == 0 {
		a.extensions = DefaultFallbackExtensions
	}

	if a.runner == nil {
		a.runner = ExecRunner{}
	}

	if a.fs == nil {
		a.fs = afero.NewOsFs()
	}

	if a.logger == nil {
		a.logger = slog.Default()
	}

	return a
}

// Measure classifies the lines under dir. A missing directory measures zero
// without running the oracle.
func (a *Adapter) Measure(ctx context.Context, dir string) (metric SizeMetric) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.WarnContext(ctx, "size measurement panicked", "dir", dir, "panic", r)

			metric = SizeMetric{}
		}
	}()

	info, err := a.fs.Stat(dir)
	if err != nil || !info.IsDir() {
		return SizeMetric{}
	}

	args := make([]string, 0, len(a.args)+1)
	args = append(args, dir)
	args = append(args, a.args...)

	out, err := a.runner.Run(ctx, a.command, args...)
	if err == nil {
		parsed, ok := ParseCSV(out)
		if ok {
			return parsed
		}

		err = ErrNoData
	}

	if ctx.Err() != nil {
		return SizeMetric{}
	}

	a.logger.DebugContext(ctx, "oracle unavailable, counting non-blank lines",
		"command", a.command, "dir", dir, "error", err)

	if a.onFallback != nil {
		a.onFallback(ctx, err)
	}

	counted, countErr := CountFallback(a.fs, dir, a.extensions, a.logger)
	if countErr != nil {
		a.logger.WarnContext(ctx, "fallback line count failed", "dir", dir, "error", countErr)

		return SizeMetric{}
	}

	return counted
}
