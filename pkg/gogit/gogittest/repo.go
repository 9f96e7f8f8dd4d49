// Package gogittest builds throwaway git repositories for tests.
package gogittest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

// DefaultBranch is the branch a new fixture repository starts on.
const DefaultBranch = "main"

// Repo is a non-bare fixture repository in a test temp directory.
type Repo struct {
	t    testing.TB
	Path string
	repo *git.Repository
	wt   *git.Worktree
}

// New initializes an empty repository on DefaultBranch.
func New(t testing.TB) *Repo {
	t.Helper()

	dir := t.TempDir()

	repo, err := git.PlainInitWithOptions(dir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName(DefaultBranch)},
	})
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)

	return &Repo{t: t, Path: dir, repo: repo, wt: wt}
}

// Write creates or replaces a file in the working tree.
func (r *Repo) Write(name, content string) {
	r.t.Helper()

	full := filepath.Join(r.Path, filepath.FromSlash(name))
	require.NoError(r.t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(r.t, os.WriteFile(full, []byte(content), 0o644))
}

// Lines writes a file made of n non-blank lines.
func (r *Repo) Lines(name string, n int) {
	r.t.Helper()

	buf := make([]byte, 0, n*8)
	for i := range n {
		buf = append(buf, "line "...)
		buf = append(buf, byte('0'+i%10), '\n')
	}

	r.Write(name, string(buf))
}

// Remove deletes a file or directory from the working tree.
func (r *Repo) Remove(name string) {
	r.t.Helper()

	require.NoError(r.t, os.RemoveAll(filepath.Join(r.Path, filepath.FromSlash(name))))
}

// Commit stages every change and commits it on the current branch with both
// author and committer time set to when. It returns the commit hash.
func (r *Repo) Commit(message string, when time.Time) string {
	r.t.Helper()

	return r.CommitWithTimes(message, when, when)
}

// CommitWithTimes is Commit with distinct author and committer times.
func (r *Repo) CommitWithTimes(message string, authored, committed time.Time) string {
	r.t.Helper()

	require.NoError(r.t, r.wt.AddWithOptions(&git.AddOptions{All: true}))

	hash, err := r.wt.Commit(message, &git.CommitOptions{
		Author:            &object.Signature{Name: "Test User", Email: "test@example.com", When: authored},
		Committer:         &object.Signature{Name: "Test User", Email: "test@example.com", When: committed},
		All:               true,
		AllowEmptyCommits: true,
	})
	require.NoError(r.t, err)

	return hash.String()
}

// Branch creates a branch at the given commit and checks it out.
func (r *Repo) Branch(name, at string) {
	r.t.Helper()

	require.NoError(r.t, r.wt.Checkout(&git.CheckoutOptions{
		Hash:   plumbing.NewHash(at),
		Branch: plumbing.NewBranchReferenceName(name),
		Create: true,
	}))
}

// Checkout switches to an existing branch.
func (r *Repo) Checkout(name string) {
	r.t.Helper()

	require.NoError(r.t, r.wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(name),
		Force:  true,
	}))
}

// Tag creates an annotated tag on the given commit.
func (r *Repo) Tag(name, at string, when time.Time) {
	r.t.Helper()

	_, err := r.repo.CreateTag(name, plumbing.NewHash(at), &git.CreateTagOptions{
		Tagger:  &object.Signature{Name: "Test User", Email: "test@example.com", When: when},
		Message: name,
	})
	require.NoError(r.t, err)
}
