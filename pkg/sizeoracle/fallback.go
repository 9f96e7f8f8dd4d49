package sizeoracle

import (
	"bufio"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"unicode"

	"github.com/spf13/afero"
)

// DefaultFallbackExtensions are the file extensions counted when the oracle
// is unavailable.
var DefaultFallbackExtensions = []string{".ts", ".tsx", ".vue", ".js", ".jsx", ".rs", ".css", ".scss"}

const readBufferSize = 32 * 1024

// CountFallback counts non-blank lines of files with a recognized extension
// under dir. The counts go to Code; Comment and Blank stay zero. Files and
// directories that cannot be read are logged and skipped; only an unreadable
// dir fails the count.
func CountFallback(fsys afero.Fs, dir string, extensions []string, logger *slog.Logger) (SizeMetric, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var total int

	err := afero.Walk(fsys, dir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			if path == dir {
				return err
			}

			logger.Warn("fallback count skips unreadable path", "path", path, "error", err)

			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if !info.Mode().IsRegular() || !slices.Contains(extensions, filepath.Ext(path)) {
			return nil
		}

		n, countErr := countNonBlankFile(fsys, path)
		if countErr != nil {
			logger.Warn("fallback count skips unreadable file", "path", path, "error", countErr)

			return nil
		}

		total += n

		return nil
	})
	if err != nil {
		return SizeMetric{}, err
	}

	return SizeMetric{Code: total}, nil
}

func countNonBlankFile(fsys afero.Fs, path string) (int, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	return CountNonBlank(f)
}

// CountNonBlank counts lines holding at least one non-space rune, with
// Unicode spaces such as U+3000 counting as blank. Lines of any length are
// supported.
func CountNonBlank(r io.Reader) (int, error) {
	br := bufio.NewReaderSize(r, readBufferSize)

	var (
		lines    int
		nonBlank bool
	)

	for {
		c, _, err := br.ReadRune()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return 0, err
		}

		switch {
		case c == '\n':
			if nonBlank {
				lines++
			}

			nonBlank = false
		case unicode.IsSpace(c):
		default:
			nonBlank = true
		}
	}

	if nonBlank {
		lines++
	}

	return lines, nil
}
