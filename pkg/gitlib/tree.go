package gitlib

import (
	"fmt"
	"path"

	git2go "github.com/libgit2/git2go/v34"
)

// Tree wraps a libgit2 tree.
type Tree struct {
	tree *git2go.Tree
	repo *Repository
}

// Subtree returns the tree stored at the given path.
// The boolean is false when the path is absent or not a directory.
func (t *Tree) Subtree(p string) (*Tree, bool, error) {
	entry, err := t.tree.EntryByPath(p)
	if err != nil {
		if git2go.IsErrorCode(err, git2go.ErrorCodeNotFound) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("entry by path %s: %w", p, err)
	}

	if entry.Type != git2go.ObjectTree {
		return nil, false, nil
	}

	sub, err := t.repo.LookupTree(HashFromOid(entry.Id))
	if err != nil {
		return nil, false, err
	}

	return sub, true, nil
}

// Walk visits every entry below the tree in pre-order. The callback receives
// the entry path relative to this tree. Returning a non-nil error stops the walk.
func (t *Tree) Walk(cb func(name string, entry *TreeEntry) error) error {
	var cbErr error

	err := t.tree.Walk(func(root string, entry *git2go.TreeEntry) error {
		cbErr = cb(path.Join(root, entry.Name), &TreeEntry{entry: entry})
		if cbErr != nil {
			return cbErr
		}

		return nil
	})
	if cbErr != nil {
		return cbErr
	}

	if err != nil {
		return fmt.Errorf("walk tree: %w", err)
	}

	return nil
}

// Free releases the tree resources.
func (t *Tree) Free() {
	if t.tree != nil {
		t.tree.Free()
		t.tree = nil
	}
}

// TreeEntry wraps a libgit2 tree entry.
type TreeEntry struct {
	entry *git2go.TreeEntry
}

// Hash returns the entry object hash.
func (e *TreeEntry) Hash() Hash {
	return HashFromOid(e.entry.Id)
}

// IsBlob returns true if the entry is a blob.
func (e *TreeEntry) IsBlob() bool {
	return e.entry.Type == git2go.ObjectBlob
}

// IsTree returns true if the entry is a subtree.
func (e *TreeEntry) IsTree() bool {
	return e.entry.Type == git2go.ObjectTree
}

// Mode returns the git filemode of the entry.
func (e *TreeEntry) Mode() git2go.Filemode {
	return e.entry.Filemode
}
