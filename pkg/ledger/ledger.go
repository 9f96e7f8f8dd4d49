// Package ledger keeps the append-only CSV time series of per-day size
// metrics. Every successful append leaves a valid file: a header and zero or
// more complete rows, strictly ascending by day.
package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/Sumatoshi-tech/loctrail/pkg/history"
)

var (
	// ErrHeaderMismatch is returned when an existing ledger was written for a
	// different set of subtrees.
	ErrHeaderMismatch = errors.New("ledger header does not match tracked subtrees")
	// ErrNonMonotonic is returned when a row's day is not after the last day.
	ErrNonMonotonic = errors.New("ledger rows must have strictly increasing days")
	// ErrRowShape is returned when a row does not fit the header.
	ErrRowShape = errors.New("ledger row does not match header")
	// ErrCorrupt is returned when a complete line cannot be parsed.
	ErrCorrupt = errors.New("ledger corrupt")
	// ErrNotInitialized is returned by Append before Initialize.
	ErrNotInitialized = errors.New("ledger not initialized")
)

const (
	filePerm = 0o644
	dirPerm  = 0o755
)

// Ledger is the CSV file at path holding rows for the named subtrees.
// It is not safe for concurrent use.
type Ledger struct {
	fs     afero.Fs
	path   string
	names  []string
	header string

	ready   bool
	last    history.Day
	hasLast bool
}

// New returns a ledger at path over fs for the subtree names, in order.
func New(fs afero.Fs, path string, names []string) *Ledger {
	return &Ledger{
		fs:     fs,
		path:   path,
		names:  append([]string(nil), names...),
		header: Header(names),
	}
}

// Path returns the ledger file location.
func (l *Ledger) Path() string {
	return l.path
}

// Names returns the subtree names in column order.
func (l *Ledger) Names() []string {
	return append([]string(nil), l.names...)
}

// LastCollectedDay returns the day of the last complete row. It reports false
// when the ledger does not exist or holds only the header.
func (l *Ledger) LastCollectedDay() (history.Day, bool, error) {
	data, err := afero.ReadFile(l.fs, l.path)
	if errors.Is(err, os.ErrNotExist) {
		return history.Day{}, false, nil
	}

	if err != nil {
		return history.Day{}, false, fmt.Errorf("read ledger: %w", err)
	}

	complete, _ := splitTail(data)

	lines := completeLines(complete)
	if len(lines) < 2 {
		return history.Day{}, false, nil
	}

	row, err := parseRow(lines[len(lines)-1], len(l.names))
	if err != nil {
		return history.Day{}, false, err
	}

	return row.Day, true, nil
}

// Initialize prepares the ledger for appending. A missing ledger, or any
// ledger when forceFull is set, is replaced by a header-only file through a
// synced temporary file and a rename. An existing ledger must carry the
// expected header; an incomplete trailing line left by a crash is truncated.
func (l *Ledger) Initialize(forceFull bool) error {
	l.ready = false
	l.hasLast = false

	data, err := afero.ReadFile(l.fs, l.path)

	switch {
	case forceFull, errors.Is(err, os.ErrNotExist):
		return l.reset()
	case err != nil:
		return fmt.Errorf("read ledger: %w", err)
	}

	complete, torn := splitTail(data)

	lines := completeLines(complete)
	if len(lines) == 0 {
		// Not even the header made it to disk.
		return l.reset()
	}

	if lines[0] != l.header {
		return fmt.Errorf("%w: have %q, want %q", ErrHeaderMismatch, lines[0], l.header)
	}

	if len(lines) > 1 {
		row, parseErr := parseRow(lines[len(lines)-1], len(l.names))
		if parseErr != nil {
			return parseErr
		}

		l.last, l.hasLast = row.Day, true
	}

	if torn > 0 {
		err = l.truncate(int64(len(complete)))
		if err != nil {
			return err
		}
	}

	l.ready = true

	return nil
}

// Append durably adds row after the last row. The encoded line is written
// with a single write on an append-only handle and synced before returning.
func (l *Ledger) Append(row Row) error {
	if !l.ready {
		return ErrNotInitialized
	}

	if len(row.Metrics) != len(l.names) {
		return fmt.Errorf("%w: %d metrics for %d subtrees", ErrRowShape, len(row.Metrics), len(l.names))
	}

	if row.TotalCode != TotalCode(row.Metrics) {
		return fmt.Errorf("%w: total_code %d is not the sum of subtree code", ErrRowShape, row.TotalCode)
	}

	if row.Day.IsZero() {
		return fmt.Errorf("%w: missing day", ErrRowShape)
	}

	if l.hasLast && !row.Day.After(l.last) {
		return fmt.Errorf("%w: %s after %s", ErrNonMonotonic, row.Day, l.last)
	}

	f, err := l.fs.OpenFile(l.path, os.O_WRONLY|os.O_APPEND, filePerm)
	if err != nil {
		return fmt.Errorf("open ledger for append: %w", err)
	}

	_, err = f.Write(row.encode())
	if err == nil {
		err = f.Sync()
	}

	err = errors.Join(err, f.Close())
	if err != nil {
		return fmt.Errorf("append %s: %w", row.Day, err)
	}

	l.last, l.hasLast = row.Day, true

	return nil
}

// Rows parses every complete row. An incomplete trailing line is ignored.
func (l *Ledger) Rows() ([]Row, error) {
	data, err := afero.ReadFile(l.fs, l.path)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	complete, _ := splitTail(data)

	lines := completeLines(complete)
	if len(lines) == 0 {
		return nil, nil
	}

	if lines[0] != l.header {
		return nil, fmt.Errorf("%w: have %q, want %q", ErrHeaderMismatch, lines[0], l.header)
	}

	return parseRows(lines[1:], len(l.names))
}

func (l *Ledger) reset() error {
	dir := filepath.Dir(l.path)

	err := l.fs.MkdirAll(dir, dirPerm)
	if err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}

	tmp, err := afero.TempFile(l.fs, dir, filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create ledger temp file: %w", err)
	}

	tmpName := tmp.Name()

	_, err = tmp.WriteString(l.header + "\n")
	if err == nil {
		err = tmp.Sync()
	}

	err = errors.Join(err, tmp.Close())
	if err == nil {
		err = l.fs.Rename(tmpName, l.path)
	}

	if err != nil {
		_ = l.fs.Remove(tmpName)

		return fmt.Errorf("write ledger header: %w", err)
	}

	l.syncDir(dir)
	l.ready = true

	return nil
}

func (l *Ledger) truncate(size int64) error {
	f, err := l.fs.OpenFile(l.path, os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("open ledger for repair: %w", err)
	}

	err = f.Truncate(size)
	if err == nil {
		err = f.Sync()
	}

	err = errors.Join(err, f.Close())
	if err != nil {
		return fmt.Errorf("truncate torn ledger tail: %w", err)
	}

	return nil
}

// syncDir makes the rename durable where the file system supports it.
func (l *Ledger) syncDir(dir string) {
	d, err := l.fs.Open(dir)
	if err != nil {
		return
	}

	_ = d.Sync()
	_ = d.Close()
}

// splitTail separates the newline-terminated prefix from any torn suffix and
// returns the prefix and the suffix length.
func splitTail(data []byte) ([]byte, int) {
	i := bytes.LastIndexByte(data, '\n')

	return data[:i+1], len(data) - (i + 1)
}

// completeLines splits the complete prefix into lines. CRLF endings are
// accepted; appends always use LF.
func completeLines(complete []byte) []string {
	if len(complete) == 0 {
		return nil
	}

	lines := strings.Split(strings.TrimSuffix(string(complete), "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}

	return lines
}

func parseRows(lines []string, n int) ([]Row, error) {
	rows := make([]Row, 0, len(lines))

	for i, line := range lines {
		row, err := parseRow(line, n)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}

		rows = append(rows, row)
	}

	return rows, nil
}
