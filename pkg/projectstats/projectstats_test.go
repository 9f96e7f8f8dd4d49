package projectstats_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/loctrail/pkg/growth"
	"github.com/Sumatoshi-tech/loctrail/pkg/history"
	"github.com/Sumatoshi-tech/loctrail/pkg/ledger"
	"github.com/Sumatoshi-tech/loctrail/pkg/projectstats"
	"github.com/Sumatoshi-tech/loctrail/pkg/sizeoracle"
)

func TestLanguages(t *testing.T) {
	t.Parallel()

	langs := projectstats.Languages([]string{
		"cmd/main.go",
		"pkg/util.go",
		"tools/gen.py",
		"node_modules/lib/index.js",
		"data.unknownext",
	})

	assert.Equal(t, []projectstats.Language{
		{Name: "Go", Files: 2},
		{Name: projectstats.OtherLanguage, Files: 1},
		{Name: "Python", Files: 1},
		{Name: projectstats.VendoredLanguage, Files: 1},
	}, langs)
}

func TestCompute(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	long := "this subject is definitely longer than forty runes in total"

	in := projectstats.Input{
		Name: "planner",
		Commits: []history.CommitInfo{
			{Ref: "a", AuthorTime: start, Subject: "init"},
			{Ref: "b", AuthorTime: start.AddDate(0, 0, 5), Subject: long},
			{Ref: "c", AuthorTime: start.AddDate(0, 0, 6), Subject: "side branch work"},
		},
		Head: history.HeadInfo{Ref: "b", Branch: "main", Files: []string{"src/a.ts", "README.md"}},
		Table: ledger.Table{
			Names: []string{"frontend", "backend"},
			Rows: []ledger.Row{
				ledger.NewRow(history.MustParseDay("2024-01-06"), []sizeoracle.SizeMetric{{Code: 700}, {Code: 300}}),
			},
		},
		Now:      start.AddDate(0, 0, 10),
		Location: time.UTC,
	}

	s := projectstats.Compute(in)

	assert.Equal(t, "planner", s.Name)
	assert.Equal(t, "2024-01-01", s.StartDate.String())
	assert.Equal(t, 10, s.AgeDays)
	assert.Equal(t, 3, s.Commits)
	assert.Equal(t, "main", s.Branch)
	assert.Equal(t, 2, s.Files)
	assert.Equal(t, 1000, s.TotalCode)
	assert.Equal(t, 100, s.CodePerDay)
	assert.Equal(t, []growth.SubtreeSize{{Name: "frontend", Code: 700}, {Name: "backend", Code: 300}}, s.Subtrees)
	assert.Equal(t, "this subject is definitely longer than f...", s.LastCommit)
}

func TestComputeEmpty(t *testing.T) {
	t.Parallel()

	s := projectstats.Compute(projectstats.Input{Now: time.Now()})

	assert.Equal(t, "unknown", s.Branch)
	assert.Zero(t, s.AgeDays)
	assert.Zero(t, s.CodePerDay)
	assert.Empty(t, s.LastCommit)
	assert.Empty(t, s.Languages)
}
