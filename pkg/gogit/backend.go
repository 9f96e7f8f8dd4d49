// Package gogit serves history queries from a pure Go git implementation.
// It needs no native library, which makes it the portable alternative to
// the libgit2 backend.
package gogit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/Sumatoshi-tech/loctrail/pkg/history"
	"github.com/Sumatoshi-tech/loctrail/pkg/textutil"
	"github.com/Sumatoshi-tech/loctrail/pkg/treetar"
)

// ErrInvalidRef is returned when a commit ref is not a full hex hash.
var ErrInvalidRef = errors.New("invalid commit ref")

// Backend implements history.Repository over go-git. The object storage
// caches are not safe for concurrent use, so all reads hold mu.
type Backend struct {
	mu    sync.Mutex
	repo  *git.Repository
	index *history.Index
}

var _ history.Repository = (*Backend)(nil)

// OpenBackend opens the repository containing path.
func OpenBackend(path string) (*Backend, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", history.ErrBackendUnavailable, path, err)
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

	ref, err := b.repo.Head()
	if err != nil {
		return history.HeadInfo{}, fmt.Errorf("%w: %w", history.ErrNoHead, err)
	}

	branch := "HEAD"
	if ref.Name().IsBranch() {
		branch = ref.Name().Short()
	}

	commit, err := b.repo.CommitObject(ref.Hash())
	if err != nil {
		return history.HeadInfo{}, fmt.Errorf("read HEAD commit: %w", err)
	}

	tree, err := commit.Tree()
	if err != nil {
		return history.HeadInfo{}, fmt.Errorf("read HEAD tree: %w", err)
	}

	var files []string

	err = tree.Files().ForEach(func(f *object.File) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		files = append(files, f.Name)

		return nil
	})
	if err != nil {
		return history.HeadInfo{}, err
	}

	sort.Strings(files)

	return history.HeadInfo{
		Ref:    history.CommitRef(ref.Hash().String()),
		Branch: branch,
		Files:  files,
	}, nil
}

// Archive implements history.Backend. Entry names are relative to path.
func (b *Backend) Archive(ctx context.Context, ref history.CommitRef, path string, w io.Writer) (bool, error) {
	if !plumbing.IsHash(string(ref)) {
		return false, fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	commit, err := b.repo.CommitObject(plumbing.NewHash(string(ref)))
	if err != nil {
		return false, fmt.Errorf("read commit %s: %w", ref.Short(), err)
	}

	tree, present, err := b.subtree(commit, treetar.SubtreePath(path))
	if err != nil || !present {
		return false, err
	}

	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()

	tw := treetar.NewWriter(w, commit.Committer.When)

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return true, ctxErr
		}

		name, entry, nextErr := walker.Next()
		if errors.Is(nextErr, io.EOF) {
			break
		}

		if nextErr != nil {
			return true, fmt.Errorf("walk tree: %w", nextErr)
		}

		err = b.archiveEntry(tw, name, entry)
		if err != nil {
			return true, err
		}
	}

	return true, tw.Close()
}

func (b *Backend) subtree(commit *object.Commit, path string) (*object.Tree, bool, error) {
	root, err := commit.Tree()
	if err != nil {
		return nil, false, fmt.Errorf("read tree: %w", err)
	}

	if path == "" {
		return root, true, nil
	}

	entry, err := root.FindEntry(path)
	if errors.Is(err, object.ErrEntryNotFound) || errors.Is(err, object.ErrDirectoryNotFound) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("find %s: %w", path, err)
	}

	if entry.Mode != filemode.Dir {
		return nil, false, nil
	}

	tree, err := b.repo.TreeObject(entry.Hash)
	if err != nil {
		return nil, false, fmt.Errorf("read tree %s: %w", path, err)
	}

	return tree, true, nil
}

func (b *Backend) archiveEntry(tw *treetar.Writer, name string, entry object.TreeEntry) error {
	switch entry.Mode {
	case filemode.Dir:
		return tw.Dir(name)
	case filemode.Regular, filemode.Deprecated, filemode.Executable, filemode.Symlink:
		data, err := b.blobContents(entry.Hash)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}

		if entry.Mode == filemode.Symlink {
			return tw.Symlink(name, string(data))
		}

		return tw.File(name, entry.Mode == filemode.Executable, data)
	default:
		// Submodule commits carry no content.
		return nil
	}
}

func (b *Backend) blobContents(hash plumbing.Hash) ([]byte, error) {
	blob, err := b.repo.BlobObject(hash)
	if err != nil {
		return nil, err
	}

	r, err := blob.Reader()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(r)
}

// Close is a no-op: go-git holds no native resources.
func (b *Backend) Close() error {
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

// walkAll visits every commit reachable from any reference or HEAD, the
// equivalent of git log --all.
func (b *Backend) walkAll(ctx context.Context) ([]history.CommitInfo, error) {
	tips, err := b.tips()
	if err != nil {
		return nil, err
	}

	seen := make(map[plumbing.Hash]bool)

	var commits []history.CommitInfo

	for _, tip := range tips {
		if seen[tip.Hash] {
			continue
		}

		iter := object.NewCommitPreorderIter(tip, seen, nil)

		err = iter.ForEach(func(c *object.Commit) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}

			seen[c.Hash] = true

			commits = append(commits, history.CommitInfo{
				Ref:        history.CommitRef(c.Hash.String()),
				AuthorTime: c.Author.When,
				CommitTime: c.Committer.When,
				Subject:    textutil.FirstLine(c.Message),
			})

			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk from %s: %w", tip.Hash, err)
		}
	}

	return commits, nil
}

// tips resolves every reference to the commit it ultimately names. Tags are
// peeled and references to other object types are ignored.
func (b *Backend) tips() ([]*object.Commit, error) {
	refs, err := b.repo.References()
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	defer refs.Close()

	var tips []*object.Commit

	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}

		if c := b.peel(ref.Hash()); c != nil {
			tips = append(tips, c)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate references: %w", err)
	}

	head, err := b.repo.Head()
	if err == nil {
		if c := b.peel(head.Hash()); c != nil {
			tips = append(tips, c)
		}
	}

	return tips, nil
}

func (b *Backend) peel(hash plumbing.Hash) *object.Commit {
	c, err := b.repo.CommitObject(hash)
	if err == nil {
		return c
	}

	tag, err := b.repo.TagObject(hash)
	if err != nil {
		return nil
	}

	c, err = tag.Commit()
	if err != nil {
		return nil
	}

	return c
}
