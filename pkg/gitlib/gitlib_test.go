package gitlib_test

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	git2go "github.com/libgit2/git2go/v34"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/loctrail/pkg/gitlib"
	"github.com/Sumatoshi-tech/loctrail/pkg/history"
)

// testRepo builds fixture histories through libgit2.
type testRepo struct {
	t      *testing.T
	path   string
	native *git2go.Repository
}

func newTestRepo(t *testing.T) *testRepo {
	t.Helper()

	dir := t.TempDir()

	repo, err := git2go.InitRepository(dir, false)
	require.NoError(t, err)
	t.Cleanup(repo.Free)

	return &testRepo{t: t, path: dir, native: repo}
}

func (tr *testRepo) writeFile(name, content string) {
	tr.t.Helper()

	full := filepath.Join(tr.path, filepath.FromSlash(name))
	require.NoError(tr.t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(tr.t, os.WriteFile(full, []byte(content), 0o644))
}

func (tr *testRepo) removeFile(name string) {
	tr.t.Helper()

	require.NoError(tr.t, os.RemoveAll(filepath.Join(tr.path, filepath.FromSlash(name))))
}

// commit records the whole working directory as a commit on ref.
func (tr *testRepo) commit(ref, message string, when time.Time, parents ...gitlib.Hash) gitlib.Hash {
	tr.t.Helper()

	index, err := tr.native.Index()
	require.NoError(tr.t, err)

	defer index.Free()

	require.NoError(tr.t, index.Clear())
	require.NoError(tr.t, index.AddAll([]string{"*"}, git2go.IndexAddDefault, nil))
	require.NoError(tr.t, index.Write())

	treeID, err := index.WriteTree()
	require.NoError(tr.t, err)

	tree, err := tr.native.LookupTree(treeID)
	require.NoError(tr.t, err)

	defer tree.Free()

	sig := &git2go.Signature{Name: "Test User", Email: "test@example.com", When: when}

	parentCommits := make([]*git2go.Commit, 0, len(parents))

	for _, p := range parents {
		c, lookupErr := tr.native.LookupCommit(p.ToOid())
		require.NoError(tr.t, lookupErr)

		parentCommits = append(parentCommits, c)
	}

	oid, err := tr.native.CreateCommit(ref, sig, sig, message, tree, parentCommits...)
	require.NoError(tr.t, err)

	for _, c := range parentCommits {
		c.Free()
	}

	return gitlib.HashFromOid(oid)
}

func (tr *testRepo) setHead(ref string) {
	tr.t.Helper()

	require.NoError(tr.t, tr.native.SetHead(ref))
}

func day(t *testing.T, hour int, d int) time.Time {
	t.Helper()

	return time.Date(2024, time.March, d, hour, 0, 0, 0, time.UTC)
}

func openBackend(t *testing.T, path string) *gitlib.Backend {
	t.Helper()

	backend, err := gitlib.OpenBackend(path)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, backend.Close()) })

	return backend
}

func tarNames(t *testing.T, data []byte) map[string]string {
	t.Helper()

	out := map[string]string{}
	tr := tar.NewReader(bytes.NewReader(data))

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return out
		}

		require.NoError(t, err)

		body, err := io.ReadAll(tr)
		require.NoError(t, err)

		out[hdr.Name] = string(body)
	}
}

// branchyRepo: main has commits on March 1 and 3, an abandoned side branch
// forks from March 1 and commits on March 2.
func branchyRepo(t *testing.T) (*testRepo, map[string]gitlib.Hash) {
	t.Helper()

	tr := newTestRepo(t)

	tr.writeFile("src/a.ts", "a\n")
	first := tr.commit("refs/heads/main", "first", day(t, 10, 1))
	tr.setHead("refs/heads/main")

	tr.writeFile("src/side.ts", "side\n")
	side := tr.commit("refs/heads/side", "side work", day(t, 11, 2), first)

	tr.removeFile("src/side.ts")
	tr.writeFile("src/lib/b.ts", "b\nb\n")
	tr.writeFile("src-tauri/src/main.rs", "fn main() {}\n")
	third := tr.commit("refs/heads/main", "third", day(t, 9, 3), first)

	return tr, map[string]gitlib.Hash{"first": first, "side": side, "third": third}
}

func TestLoadRepositoryRejectsRemote(t *testing.T) {
	t.Parallel()

	for _, uri := range []string{"https://github.com/x/y", "git@github.com:x/y.git"} {
		_, err := gitlib.LoadRepository(uri)
		require.ErrorIs(t, err, gitlib.ErrRemoteNotSupported)
	}
}

func TestOpenBackendMissingRepository(t *testing.T) {
	t.Parallel()

	_, err := gitlib.OpenBackend(filepath.Join(t.TempDir(), "absent"))
	require.ErrorIs(t, err, history.ErrBackendUnavailable)
}

func TestParseHash(t *testing.T) {
	t.Parallel()

	const hex = "0123456789abcdef0123456789abcdef01234567"

	h, err := gitlib.ParseHash(hex)
	require.NoError(t, err)
	assert.Equal(t, hex, h.String())
	assert.Equal(t, h, gitlib.HashFromOid(h.ToOid()))

	_, err = gitlib.ParseHash("abc")
	require.ErrorIs(t, err, gitlib.ErrInvalidHash)

	_, err = gitlib.ParseHash("zz23456789abcdef0123456789abcdef01234567")
	require.ErrorIs(t, err, gitlib.ErrInvalidHash)
}

func TestCommitDaysAcrossAllReferences(t *testing.T) {
	t.Parallel()

	tr, _ := branchyRepo(t)
	backend := openBackend(t, tr.path)

	days, err := history.Days(context.Background(), backend, time.UTC)
	require.NoError(t, err)

	assert.Equal(t, []history.Day{
		history.MustParseDay("2024-03-01"),
		history.MustParseDay("2024-03-02"),
		history.MustParseDay("2024-03-03"),
	}, days)
}

func TestResolvePicksAbandonedBranch(t *testing.T) {
	t.Parallel()

	tr, hashes := branchyRepo(t)
	backend := openBackend(t, tr.path)
	ctx := context.Background()

	ref, ok, err := history.Resolve(ctx, backend, history.MustParseDay("2024-03-02"), time.UTC)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, history.CommitRef(hashes["side"].String()), ref)

	ref, ok, err = history.Resolve(ctx, backend, history.MustParseDay("2024-03-03"), time.UTC)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, history.CommitRef(hashes["third"].String()), ref)

	_, ok, err = history.Resolve(ctx, backend, history.MustParseDay("2024-02-28"), time.UTC)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArchiveSubtree(t *testing.T) {
	t.Parallel()

	tr, hashes := branchyRepo(t)
	backend := openBackend(t, tr.path)
	ref := history.CommitRef(hashes["third"].String())

	var buf bytes.Buffer

	present, err := backend.Archive(context.Background(), ref, "src", &buf)
	require.NoError(t, err)
	require.True(t, present)

	assert.Equal(t, map[string]string{
		"a.ts":     "a\n",
		"lib/":     "",
		"lib/b.ts": "b\nb\n",
	}, tarNames(t, buf.Bytes()))

	buf.Reset()

	present, err = backend.Archive(context.Background(), ref, "src-tauri/src", &buf)
	require.NoError(t, err)
	require.True(t, present)
	assert.Equal(t, map[string]string{"main.rs": "fn main() {}\n"}, tarNames(t, buf.Bytes()))
}

func TestArchiveAbsentSubtree(t *testing.T) {
	t.Parallel()

	tr, hashes := branchyRepo(t)
	backend := openBackend(t, tr.path)

	var buf bytes.Buffer

	present, err := backend.Archive(context.Background(), history.CommitRef(hashes["first"].String()), "src-tauri/src", &buf)
	require.NoError(t, err)
	assert.False(t, present)
	assert.Zero(t, buf.Len())
}

func TestArchiveIsDeterministic(t *testing.T) {
	t.Parallel()

	tr, hashes := branchyRepo(t)
	backend := openBackend(t, tr.path)
	ref := history.CommitRef(hashes["third"].String())

	var first, second bytes.Buffer

	_, err := backend.Archive(context.Background(), ref, "src", &first)
	require.NoError(t, err)

	_, err = backend.Archive(context.Background(), ref, "src", &second)
	require.NoError(t, err)

	assert.Equal(t, first.Bytes(), second.Bytes())
}

func TestArchiveConcurrent(t *testing.T) {
	t.Parallel()

	tr, hashes := branchyRepo(t)
	backend := openBackend(t, tr.path)
	ref := history.CommitRef(hashes["third"].String())

	var g errgroup.Group

	for _, path := range []string{"src", "src-tauri/src", "src", "src-tauri/src"} {
		g.Go(func() error {
			_, err := backend.Archive(context.Background(), ref, path, io.Discard)

			return err
		})
	}

	require.NoError(t, g.Wait())
}

func TestCommitsAndHead(t *testing.T) {
	t.Parallel()

	tr, hashes := branchyRepo(t)
	backend := openBackend(t, tr.path)
	ctx := context.Background()

	commits, err := backend.Commits(ctx)
	require.NoError(t, err)
	require.Len(t, commits, 3)
	assert.Equal(t, "first", commits[0].Subject)
	assert.Equal(t, "side work", commits[1].Subject)
	assert.Equal(t, "third", commits[2].Subject)

	head, err := backend.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, history.CommitRef(hashes["third"].String()), head.Ref)
	assert.Equal(t, "main", head.Branch)
	assert.Equal(t, []string{"src-tauri/src/main.rs", "src/a.ts", "src/lib/b.ts"}, head.Files)
}

func TestAnnotatedTagsArePeeled(t *testing.T) {
	t.Parallel()

	tr, hashes := branchyRepo(t)

	target, err := tr.native.LookupCommit(hashes["first"].ToOid())
	require.NoError(t, err)

	defer target.Free()

	sig := &git2go.Signature{Name: "Test User", Email: "test@example.com", When: day(t, 12, 5)}
	_, err = tr.native.Tags.Create("v0.1.0", target, sig, "release")
	require.NoError(t, err)

	backend := openBackend(t, tr.path)

	commits, err := backend.Commits(context.Background())
	require.NoError(t, err)
	assert.Len(t, commits, 3)
}

func TestEmptyRepository(t *testing.T) {
	t.Parallel()

	tr := newTestRepo(t)
	backend := openBackend(t, tr.path)

	days, err := backend.CommitDays(context.Background(), time.UTC)
	require.NoError(t, err)
	assert.Empty(t, days)

	_, err = backend.Head(context.Background())
	require.ErrorIs(t, err, history.ErrNoHead)
}
