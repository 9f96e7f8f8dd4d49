package history

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrBackendUnavailable marks failures to open or walk the repository.
// The collector treats it as a fatal configuration error.
var ErrBackendUnavailable = errors.New("history backend unavailable")

// ErrNoHead is returned by Head when the repository has no commits yet.
var ErrNoHead = errors.New("repository has no HEAD commit")

// CommitRef is the content-addressed identifier of one commit (hex hash).
type CommitRef string

// Short returns the abbreviated form of the hash used in logs.
func (r CommitRef) Short() string {
	const shortLen = 10

	if len(r) <= shortLen {
		return string(r)
	}

	return string(r[:shortLen])
}

// CommitInfo is the read-only metadata of one commit.
type CommitInfo struct {
	Ref        CommitRef
	AuthorTime time.Time
	CommitTime time.Time
	Subject    string
}

// HeadInfo describes the current HEAD of the repository.
type HeadInfo struct {
	Ref    CommitRef
	Branch string
	Files  []string
}

// Backend is the version-control history the collector depends on.
// Implementations must be safe for concurrent use.
type Backend interface {
	// CommitDays lists the distinct author days across all references, as
	// observed in loc. Order is not required.
	CommitDays(ctx context.Context, loc *time.Location) ([]Day, error)
	// ResolveAt returns the latest commit authored at or before until across
	// all references, and false if there is none.
	ResolveAt(ctx context.Context, until time.Time) (CommitRef, bool, error)
	// Archive writes a tar stream holding only the subtree at path of the
	// given commit. It reports false without writing when path is absent.
	Archive(ctx context.Context, ref CommitRef, path string, w io.Writer) (bool, error)
}

// Lister exposes whole-history metadata for the derived reports.
type Lister interface {
	Commits(ctx context.Context) ([]CommitInfo, error)
	Head(ctx context.Context) (HeadInfo, error)
}

// Repository is a backend that also serves the reports and owns native
// resources that must be released.
type Repository interface {
	Backend
	Lister
	Close() error
}
