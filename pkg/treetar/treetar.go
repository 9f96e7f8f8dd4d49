// Package treetar writes the deterministic tar streams history backends
// produce for one subtree of a commit.
package treetar

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Permission bits recorded for archived entries.
const (
	dirMode  = 0o755
	fileMode = 0o644
	execMode = 0o755
)

// ErrInvalidName is returned for entry names that are empty, absolute or
// escape the archive root.
var ErrInvalidName = errors.New("invalid archive entry name")

// Writer emits tar entries with a fixed modification time and ownership so
// that the same tree always produces the same bytes.
type Writer struct {
	tw      *tar.Writer
	modTime time.Time
}

// NewWriter creates a Writer stamping every entry with modTime.
func NewWriter(w io.Writer, modTime time.Time) *Writer {
	return &Writer{tw: tar.NewWriter(w), modTime: modTime.UTC().Truncate(time.Second)}
}

// Dir writes a directory entry.
func (w *Writer) Dir(name string) error {
	clean, err := CleanName(name)
	if err != nil {
		return err
	}

	return w.header(&tar.Header{
		Typeflag: tar.TypeDir,
		Name:     clean + "/",
		Mode:     dirMode,
	})
}

// File writes a regular file entry.
func (w *Writer) File(name string, executable bool, data []byte) error {
	clean, err := CleanName(name)
	if err != nil {
		return err
	}

	mode := int64(fileMode)
	if executable {
		mode = execMode
	}

	err = w.header(&tar.Header{
		Typeflag: tar.TypeReg,
		Name:     clean,
		Mode:     mode,
		Size:     int64(len(data)),
	})
	if err != nil {
		return err
	}

	_, err = w.tw.Write(data)
	if err != nil {
		return fmt.Errorf("write %s: %w", clean, err)
	}

	return nil
}

// Symlink writes a symbolic link entry.
func (w *Writer) Symlink(name, target string) error {
	clean, err := CleanName(name)
	if err != nil {
		return err
	}

	return w.header(&tar.Header{
		Typeflag: tar.TypeSymlink,
		Name:     clean,
		Linkname: target,
		Mode:     fileMode,
	})
}

// Close flushes the archive trailer. It does not close the underlying writer.
func (w *Writer) Close() error {
	err := w.tw.Close()
	if err != nil {
		return fmt.Errorf("close archive: %w", err)
	}

	return nil
}

func (w *Writer) header(hdr *tar.Header) error {
	hdr.ModTime = w.modTime
	hdr.Format = tar.FormatPAX

	err := w.tw.WriteHeader(hdr)
	if err != nil {
		return fmt.Errorf("write header %s: %w", hdr.Name, err)
	}

	return nil
}

// CleanName normalizes a slash-separated entry name and rejects names that
// are absolute or climb out of the archive root.
func CleanName(name string) (string, error) {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	clean := path.Clean(name)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	return clean, nil
}

// SubtreePath normalizes the subtree selector used by Archive. The empty
// string and "." select the whole tree.
func SubtreePath(p string) string {
	p = strings.Trim(path.Clean("/"+strings.ReplaceAll(p, "\\", "/")), "/")
	if p == "." {
		return ""
	}

	return p
}
