package collector_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/loctrail/pkg/gitlib"
	"github.com/Sumatoshi-tech/loctrail/pkg/gogit"
	"github.com/Sumatoshi-tech/loctrail/pkg/gogit/gogittest"
	"github.com/Sumatoshi-tech/loctrail/pkg/history"
	"github.com/Sumatoshi-tech/loctrail/pkg/sizeoracle"
)

// threeCommitRepo has 100 frontend lines on day one, then two commits on day
// two ending with 120 frontend and 30 backend lines.
func threeCommitRepo(t *testing.T) *gogittest.Repo {
	t.Helper()

	repo := gogittest.New(t)

	repo.Lines("src/a.ts", 100)
	repo.Write("README.md", "not measured\n")
	repo.Commit("day one", time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))

	repo.Lines("src/a.ts", 110)
	repo.Commit("day two morning", time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC))

	repo.Lines("src/a.ts", 120)
	repo.Lines("src-tauri/src/main.rs", 30)
	repo.Commit("day two evening", time.Date(2024, 3, 2, 15, 0, 0, 0, time.UTC))

	return repo
}

func openBackends(t *testing.T, path string) map[string]history.Backend {
	t.Helper()

	gg, err := gogit.OpenBackend(path)
	require.NoError(t, err)

	lg, err := gitlib.OpenBackend(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lg.Close() })

	return map[string]history.Backend{"gogit": gg, "libgit2": lg}
}

func TestEndToEndThreeCommits(t *testing.T) {
	t.Parallel()

	repo := threeCommitRepo(t)

	var ledgers []string

	for name, backend := range openBackends(t, repo.Path) {
		h := newHarness(t, backend)

		res, err := h.run(context.Background(), t)
		require.NoError(t, err, name)
		assert.Equal(t, 2, res.Appended, name)

		rows := h.rows(t)
		require.Len(t, rows, 2, name)

		assert.Equal(t, "2024-03-01", rows[0].Day.String())
		assert.Equal(t, sizeoracle.SizeMetric{Code: 100}, rows[0].Metrics[0])
		assert.True(t, rows[0].Metrics[1].IsZero(), "backend subtree does not exist yet")
		assert.Equal(t, 100, rows[0].TotalCode)

		assert.Equal(t, "2024-03-02", rows[1].Day.String())
		assert.Equal(t, 120, rows[1].Metrics[0].Code)
		assert.Equal(t, 30, rows[1].Metrics[1].Code)
		assert.Equal(t, 150, rows[1].TotalCode, name)

		ledgers = append(ledgers, string(h.bytes(t)))
	}

	require.Len(t, ledgers, 2)
	assert.Equal(t, ledgers[0], ledgers[1], "both backends produce the same ledger")
}

func TestEndToEndIdempotentAndResumable(t *testing.T) {
	t.Parallel()

	repo := threeCommitRepo(t)

	backend, err := gogit.OpenBackend(repo.Path)
	require.NoError(t, err)

	h := newHarness(t, backend)

	_, err = h.run(context.Background(), t)
	require.NoError(t, err)

	first := h.bytes(t)

	res, err := h.run(context.Background(), t)
	require.NoError(t, err)
	assert.Zero(t, res.Appended)
	assert.Zero(t, res.Days)
	assert.Equal(t, first, h.bytes(t), "a second run leaves the ledger byte-identical")

	repo.Lines("src-tauri/src/main.rs", 45)
	repo.Commit("day four", time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC))

	// Fresh backend: the commit index is built once per backend.
	backend, err = gogit.OpenBackend(repo.Path)
	require.NoError(t, err)

	h.backend = backend

	res, err = h.run(context.Background(), t)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Appended)

	rows := h.rows(t)
	require.Len(t, rows, 3)
	assert.Equal(t, "2024-03-04", rows[2].Day.String())
	assert.Equal(t, 165, rows[2].TotalCode)
	assert.Equal(t, string(first), string(h.bytes(t)[:len(first)]), "earlier rows are never rewritten")
}
