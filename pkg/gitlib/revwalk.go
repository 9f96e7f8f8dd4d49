package gitlib

import (
	"fmt"

	git2go "github.com/libgit2/git2go/v34"
)

// RevWalk wraps a libgit2 revision walker.
type RevWalk struct {
	walk *git2go.RevWalk
	repo *Repository
}

// PushAll adds the commit behind every reference plus HEAD as walk roots,
// the equivalent of git log --all. Tags are peeled, references that do not
// lead to a commit are ignored, and an unborn HEAD is not an error.
func (w *RevWalk) PushAll() error {
	iter, err := w.repo.repo.NewReferenceIterator()
	if err != nil {
		return fmt.Errorf("iterate references: %w", err)
	}
	defer iter.Free()

	for {
		ref, nextErr := iter.Next()
		if nextErr != nil {
			if git2go.IsErrorCode(nextErr, git2go.ErrorCodeIterOver) {
				break
			}

			return fmt.Errorf("next reference: %w", nextErr)
		}

		err = w.pushPeeled(ref)
		ref.Free()

		if err != nil {
			return err
		}
	}

	// Detached HEAD is not reachable from any ref.
	_ = w.walk.PushHead()

	return nil
}

func (w *RevWalk) pushPeeled(ref *git2go.Reference) error {
	obj, err := ref.Peel(git2go.ObjectCommit)
	if err != nil {
		return nil //nolint:nilerr // non-commit targets are not history
	}
	defer obj.Free()

	err = w.walk.Push(obj.Id())
	if err != nil {
		return fmt.Errorf("push %s: %w", ref.Name(), err)
	}

	return nil
}

// Iterate calls the callback for each commit in the walk until it returns false.
// The commit is only valid during the callback.
func (w *RevWalk) Iterate(cb func(*Commit) bool) error {
	err := w.walk.Iterate(func(commit *git2go.Commit) bool {
		wrapped := &Commit{commit: commit, repo: w.repo}
		keepGoing := cb(wrapped)
		wrapped.Free()

		return keepGoing
	})
	if err != nil {
		return fmt.Errorf("revwalk iterate: %w", err)
	}

	return nil
}

// Free releases the walker resources.
func (w *RevWalk) Free() {
	if w.walk != nil {
		w.walk.Free()
		w.walk = nil
	}
}
