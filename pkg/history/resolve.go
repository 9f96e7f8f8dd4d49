package history

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"
)

// Days returns the distinct commit days of backend, ascending.
func Days(ctx context.Context, backend Backend, loc *time.Location) ([]Day, error) {
	days, err := backend.CommitDays(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("list commit days: %w", err)
	}

	slices.SortFunc(days, Day.Compare)

	return slices.Compact(days), nil
}

// Resolve returns the commit representing day: the most recent one authored
// at or before the end of day in loc.
func Resolve(ctx context.Context, backend Backend, day Day, loc *time.Location) (CommitRef, bool, error) {
	ref, ok, err := backend.ResolveAt(ctx, day.End(loc))
	if err != nil {
		return "", false, fmt.Errorf("resolve %s: %w", day, err)
	}

	return ref, ok, nil
}

// Later reports whether a orders after b in the resolution order: author
// time first, then committer time, then hash.
func Later(a, b CommitInfo) bool {
	if !a.AuthorTime.Equal(b.AuthorTime) {
		return a.AuthorTime.After(b.AuthorTime)
	}

	if !a.CommitTime.Equal(b.CommitTime) {
		return a.CommitTime.After(b.CommitTime)
	}

	return a.Ref > b.Ref
}

// PickLatest returns the latest commit in resolution order that was authored
// at or before until.
func PickLatest(commits []CommitInfo, until time.Time) (CommitInfo, bool) {
	var (
		best  CommitInfo
		found bool
	)

	for _, c := range commits {
		if c.AuthorTime.After(until) {
			continue
		}

		if !found || Later(c, best) {
			best = c
			found = true
		}
	}

	return best, found
}

// Index is an immutable, chronologically sorted view over a commit set that
// answers the enumerator and resolver queries without re-walking history.
type Index struct {
	commits []CommitInfo
}

// NewIndex sorts commits into resolution order (oldest first). Duplicate refs
// reachable from several references are collapsed.
func NewIndex(commits []CommitInfo) *Index {
	seen := make(map[CommitRef]struct{}, len(commits))
	unique := make([]CommitInfo, 0, len(commits))

	for _, c := range commits {
		if _, dup := seen[c.Ref]; dup {
			continue
		}

		seen[c.Ref] = struct{}{}
		unique = append(unique, c)
	}

	sort.Slice(unique, func(i, j int) bool {
		return Later(unique[j], unique[i])
	})

	return &Index{commits: unique}
}

// Len returns the number of distinct commits.
func (x *Index) Len() int {
	return len(x.commits)
}

// Commits returns the commits oldest first. The slice must not be modified.
func (x *Index) Commits() []CommitInfo {
	return x.commits
}

// Days returns the distinct author days in loc, ascending.
func (x *Index) Days(loc *time.Location) []Day {
	days := make([]Day, 0, len(x.commits))

	for _, c := range x.commits {
		d := DayOf(c.AuthorTime, loc)
		if len(days) > 0 && days[len(days)-1] == d {
			continue
		}

		days = append(days, d)
	}

	return days
}

// At returns the latest commit authored at or before until.
func (x *Index) At(until time.Time) (CommitInfo, bool) {
	// First commit authored strictly after until.
	n := sort.Search(len(x.commits), func(i int) bool {
		return x.commits[i].AuthorTime.After(until)
	})
	if n == 0 {
		return CommitInfo{}, false
	}

	return x.commits[n-1], true
}
