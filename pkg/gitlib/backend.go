package gitlib

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	git2go "github.com/libgit2/git2go/v34"

	"github.com/Sumatoshi-tech/loctrail/pkg/history"
	"github.com/Sumatoshi-tech/loctrail/pkg/treetar"
)

// Backend serves history queries from a libgit2 repository. libgit2 objects
// are not safe for concurrent use, so every object-database access holds mu.
type Backend struct {
	mu    sync.Mutex
	repo  *Repository
	index *history.Index
}

var _ history.Repository = (*Backend)(nil)

// OpenBackend opens the repository at path as a history backend.
func OpenBackend(path string) (*Backend, error) {
	repo, err := LoadRepository(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", history.ErrBackendUnavailable, err)
	}

	return &Backend{repo: repo}, nil
}

// CommitDays implements history.Backend.
func (b *Backend) CommitDays(ctx context.Context, loc *time.Location) ([]history.Day, error) {
	index, err := b.loadIndex(ctx)
	if err != nil {
		return nil, err
	}

	return index.Days(loc), nil
}

// ResolveAt implements history.Backend.
func (b *Backend) ResolveAt(ctx context.Context, until time.Time) (history.CommitRef, bool, error) {
	index, err := b.loadIndex(ctx)
	if err != nil {
		return "", false, err
	}

	c, ok := index.At(until)

	return c.Ref, ok, nil
}

// Commits implements history.Lister.
func (b *Backend) Commits(ctx context.Context) ([]history.CommitInfo, error) {
	index, err := b.loadIndex(ctx)
	if err != nil {
		return nil, err
	}

	return index.Commits(), nil
}

// Head implements history.Lister.
func (b *Backend) Head(ctx context.Context) (history.HeadInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	hash, branch, err := b.repo.Head()
	if err != nil {
		return history.HeadInfo{}, fmt.Errorf("%w: %w", history.ErrNoHead, err)
	}

	commit, err := b.repo.LookupCommit(hash)
	if err != nil {
		return history.HeadInfo{}, err
	}
	defer commit.Free()

	tree, err := commit.Tree()
	if err != nil {
		return history.HeadInfo{}, err
	}
	defer tree.Free()

	var files []string

	err = tree.Walk(func(name string, entry *TreeEntry) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if entry.IsBlob() {
			files = append(files, name)
		}

		return nil
	})
	if err != nil {
		return history.HeadInfo{}, err
	}

	sort.Strings(files)

	return history.HeadInfo{
		Ref:    history.CommitRef(hash.String()),
		Branch: branch,
		Files:  files,
	}, nil
}

// Archive implements history.Backend. Entry names are relative to path.
func (b *Backend) Archive(ctx context.Context, ref history.CommitRef, path string, w io.Writer) (bool, error) {
	hash, err := ParseHash(string(ref))
	if err != nil {
		return false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	commit, err := b.repo.LookupCommit(hash)
	if err != nil {
		return false, err
	}
	defer commit.Free()

	root, err := commit.Tree()
	if err != nil {
		return false, err
	}
	defer root.Free()

	tree := root

	if sub := treetar.SubtreePath(path); sub != "" {
		var present bool

		tree, present, err = root.Subtree(sub)
		if err != nil || !present {
			return false, err
		}
		defer tree.Free()
	}

	tw := treetar.NewWriter(w, commit.Committer().When)

	err = tree.Walk(func(name string, entry *TreeEntry) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		return b.archiveEntry(tw, name, entry)
	})
	if err != nil {
		return true, err
	}

	return true, tw.Close()
}

func (b *Backend) archiveEntry(tw *treetar.Writer, name string, entry *TreeEntry) error {
	switch {
	case entry.IsTree():
		return tw.Dir(name)
	case entry.IsBlob():
		blob, err := b.repo.LookupBlob(entry.Hash())
		if err != nil {
			return err
		}
		defer blob.Free()

		if entry.Mode() == git2go.FilemodeLink {
			return tw.Symlink(name, string(blob.Contents()))
		}

		return tw.File(name, entry.Mode() == git2go.FilemodeBlobExecutable, blob.Contents())
	default:
		// Submodule commits carry no content.
		return nil
	}
}

// Close releases the repository.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.repo.Free()

	return nil
}

func (b *Backend) loadIndex(ctx context.Context) (*history.Index, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.index != nil {
		return b.index, nil
	}

	commits, err := b.walkAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", history.ErrBackendUnavailable, err)
	}

	b.index = history.NewIndex(commits)

	return b.index, nil
}

func (b *Backend) walkAll(ctx context.Context) ([]history.CommitInfo, error) {
	walk, err := b.repo.Walk()
	if err != nil {
		return nil, err
	}
	defer walk.Free()

	err = walk.PushAll()
	if err != nil {
		return nil, err
	}

	var (
		commits []history.CommitInfo
		ctxErr  error
	)

	err = walk.Iterate(func(c *Commit) bool {
		ctxErr = ctx.Err()
		if ctxErr != nil {
			return false
		}

		commits = append(commits, history.CommitInfo{
			Ref:        history.CommitRef(c.Hash().String()),
			AuthorTime: c.Author().When,
			CommitTime: c.Committer().When,
			Subject:    c.Subject(),
		})

		return true
	})
	if ctxErr != nil {
		return nil, ctxErr
	}

	if err != nil {
		return nil, err
	}

	return commits, nil
}
