package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

const sweepWorkers = 4

// Sweep removes snapshot directories in the temp root that are older than
// maxAge, left behind by runs that were killed before cleanup. It returns the
// number of directories removed. Removal failures are joined, not fatal.
func (e *Extractor) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	matches, err := filepath.Glob(filepath.Join(e.TempRoot(), DirPattern))
	if err != nil {
		return 0, fmt.Errorf("glob snapshots: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)

	var (
		removed atomic.Int64
		errs    = make([]error, len(matches))
		g       errgroup.Group
	)

	g.SetLimit(sweepWorkers)

	for i, dir := range matches {
		if ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			info, statErr := os.Stat(dir)
			if statErr != nil || !info.IsDir() || info.ModTime().After(cutoff) {
				return nil
			}

			rmErr := os.RemoveAll(dir)
			if rmErr != nil {
				errs[i] = fmt.Errorf("remove stale snapshot %s: %w", dir, rmErr)

				return nil
			}

			removed.Add(1)

			e.logger.DebugContext(ctx, "stale snapshot removed", "dir", dir)

			return nil
		})
	}

	_ = g.Wait()

	return int(removed.Load()), errors.Join(errs...)
}
