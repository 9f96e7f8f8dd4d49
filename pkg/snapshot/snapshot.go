// Package snapshot materializes subtrees of a historical commit into private
// temporary directories, isolated from the repository working tree.
package snapshot

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pierrec/lz4/v4"

	"github.com/Sumatoshi-tech/loctrail/pkg/history"
	"github.com/Sumatoshi-tech/loctrail/pkg/treetar"
)

// DirPattern is the os.MkdirTemp pattern of every snapshot directory.
const DirPattern = "loctrail-snapshot-*"

const (
	packsDir  = "packs"
	treesDir  = "trees"
	packExt   = ".tar.lz4"
	dirPerm   = 0o755
	filePerm  = 0o644
	permMask  = 0o777
	ownerRead = 0o400
)

var (
	// ErrAcquire is returned when the snapshot directory cannot be created.
	ErrAcquire = errors.New("snapshot acquire failed")
	// ErrArchive is returned when the history backend fails to produce the
	// packed subtree. The subtree degrades to a zero measurement.
	ErrArchive = errors.New("snapshot archive failed")
	// ErrUnpack is returned when the packed subtree cannot be written or
	// expanded locally. The whole day is skipped.
	ErrUnpack = errors.New("snapshot unpack failed")
	// ErrClosed is returned by Materialize after Close.
	ErrClosed = errors.New("snapshot closed")
)

// Archiver produces the tar stream of one subtree of a commit.
type Archiver interface {
	Archive(ctx context.Context, ref history.CommitRef, path string, w io.Writer) (bool, error)
}

// Subtree is a tracked directory of the repository and the name it is
// recorded under.
type Subtree struct {
	Name string
	Path string
}

// Options configures an Extractor.
type Options struct {
	// TempRoot is the parent of snapshot directories; empty means os.TempDir.
	TempRoot string
	Logger   *slog.Logger
}

// Extractor creates snapshots from a history backend.
type Extractor struct {
	archiver Archiver
	tempRoot string
	logger   *slog.Logger
}

// NewExtractor creates an Extractor reading objects through archiver.
func NewExtractor(archiver Archiver, opts Options) *Extractor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Extractor{archiver: archiver, tempRoot: opts.TempRoot, logger: logger}
}

// TempRoot returns the directory snapshots are created in.
func (e *Extractor) TempRoot() string {
	if e.tempRoot == "" {
		return os.TempDir()
	}

	return e.tempRoot
}

// Acquire creates a fresh, uniquely named snapshot directory for ref. The
// caller must Close the snapshot on every path.
func (e *Extractor) Acquire(ctx context.Context, ref history.CommitRef) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(e.tempRoot, DirPattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAcquire, err)
	}

	for _, sub := range []string{packsDir, treesDir} {
		err = os.Mkdir(filepath.Join(dir, sub), dirPerm)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("%w: %w", ErrAcquire, err), os.RemoveAll(dir))
		}
	}

	return &Snapshot{
		ref:      ref,
		dir:      dir,
		archiver: e.archiver,
		logger:   e.logger,
	}, nil
}

// Snapshot is the private working area for one collection step.
type Snapshot struct {
	ref      history.CommitRef
	dir      string
	archiver Archiver
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Ref returns the commit the snapshot was acquired for.
func (s *Snapshot) Ref() history.CommitRef {
	return s.ref
}

// Dir returns the snapshot root directory.
func (s *Snapshot) Dir() string {
	return s.dir
}

// Materialize packs the subtree into an lz4 tar inside the snapshot and
// expands it into its own directory. present is false when the commit has no
// such subtree. Safe for concurrent use with distinct subtree names.
func (s *Snapshot) Materialize(ctx context.Context, subtree Subtree) (string, bool, error) {
	if err := s.checkOpen(); err != nil {
		return "", false, err
	}

	if !validName(subtree.Name) {
		return "", false, fmt.Errorf("%w: invalid subtree name %q", ErrUnpack, subtree.Name)
	}

	packPath := filepath.Join(s.dir, packsDir, subtree.Name+packExt)
	defer os.Remove(packPath)

	present, err := s.pack(ctx, subtree.Path, packPath)
	if err != nil || !present {
		return "", false, err
	}

	dest := filepath.Join(s.dir, treesDir, subtree.Name)

	err = unpack(packPath, dest)
	if err != nil {
		return "", false, err
	}

	s.logger.DebugContext(ctx, "subtree materialized",
		"commit", s.ref.Short(), "subtree", subtree.Name, "dir", dest)

	return dest, true, nil
}

// Close removes the snapshot directory and everything in it. It is safe to
// call more than once.
func (s *Snapshot) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	err := os.RemoveAll(s.dir)
	if err != nil {
		return fmt.Errorf("remove snapshot %s: %w", s.dir, err)
	}

	return nil
}

func (s *Snapshot) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	return nil
}

func (s *Snapshot) pack(ctx context.Context, path, packPath string) (bool, error) {
	f, err := os.OpenFile(packPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
	if err != nil {
		return false, fmt.Errorf("%w: create pack: %w", ErrUnpack, err)
	}

	sink := &recordingWriter{w: f}
	zw := lz4.NewWriter(sink)

	present, archiveErr := s.archiver.Archive(ctx, s.ref, path, zw)

	closeErr := errors.Join(zw.Close(), f.Close())

	switch {
	case sink.err != nil:
		return false, fmt.Errorf("%w: write pack: %w", ErrUnpack, sink.err)
	case archiveErr != nil:
		return false, fmt.Errorf("%w: %s@%s: %w", ErrArchive, path, s.ref.Short(), archiveErr)
	case closeErr != nil:
		return false, fmt.Errorf("%w: close pack: %w", ErrUnpack, closeErr)
	}

	return present, nil
}

func unpack(packPath, dest string) error {
	f, err := os.Open(packPath)
	if err != nil {
		return fmt.Errorf("%w: open pack: %w", ErrUnpack, err)
	}
	defer f.Close()

	err = os.Mkdir(dest, dirPerm)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnpack, err)
	}

	tr := tar.NewReader(lz4.NewReader(f))

	for {
		hdr, nextErr := tr.Next()
		if errors.Is(nextErr, io.EOF) {
			return nil
		}

		if nextErr != nil {
			return fmt.Errorf("%w: read pack: %w", ErrUnpack, nextErr)
		}

		err = extractEntry(tr, hdr, dest)
		if err != nil {
			return err
		}
	}
}

func extractEntry(r io.Reader, hdr *tar.Header, dest string) error {
	name, err := treetar.CleanName(hdr.Name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnpack, err)
	}

	target := filepath.Join(dest, filepath.FromSlash(name))

	switch hdr.Typeflag {
	case tar.TypeDir:
		err = os.MkdirAll(target, dirPerm)
	case tar.TypeReg:
		err = writeFile(r, target, hdr)
	default:
		// Links and special files are never materialized.
		return nil
	}

	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnpack, name, err)
	}

	return nil
}

func writeFile(r io.Reader, target string, hdr *tar.Header) error {
	err := os.MkdirAll(filepath.Dir(target), dirPerm)
	if err != nil {
		return err
	}

	perm := os.FileMode(hdr.Mode&permMask) | ownerRead

	f, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	if err != nil {
		return err
	}

	_, err = io.CopyN(f, r, hdr.Size)

	return errors.Join(err, f.Close())
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// recordingWriter remembers the first local write failure so it is not
// mistaken for a backend failure.
type recordingWriter struct {
	w   io.Writer
	err error
}

func (rw *recordingWriter) Write(p []byte) (int, error) {
	n, err := rw.w.Write(p)
	if err != nil && rw.err == nil {
		rw.err = err
	}

	return n, err
}
