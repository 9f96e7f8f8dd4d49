// Package milestones finds notable moments of a project: size thresholds
// crossed in the ledger, commit count thresholds and project age.
package milestones

import (
	"fmt"
	"slices"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Sumatoshi-tech/loctrail/pkg/history"
	"github.com/Sumatoshi-tech/loctrail/pkg/ledger"
	"github.com/Sumatoshi-tech/loctrail/pkg/textutil"
)

// Category groups milestones.
type Category string

// Milestone categories.
const (
	CategoryCode   Category = "code"
	CategoryCommit Category = "commit"
	CategoryTime   Category = "time"
)

const subjectRunes = 50

// LOCThresholds are the total_code values celebrated once crossed.
var LOCThresholds = []int{1000, 5000, 10000, 20000, 30000, 50000, 75000, 100000}

// CommitThresholds are the commit ordinals celebrated.
var CommitThresholds = []int{1, 10, 50, 100, 200, 300, 500, 1000}

// AgeMilestone is a project age worth noting.
type AgeMilestone struct {
	Days  int
	Title string
}

// AgeMilestones are checked against the first commit day.
var AgeMilestones = []AgeMilestone{
	{7, "One week"},
	{30, "One month"},
	{60, "Two months"},
	{90, "Three months"},
	{180, "Half a year"},
	{365, "One year"},
}

// Milestone is one notable moment.
type Milestone struct {
	Date     history.Day `json:"date"     yaml:"date"`
	Title    string      `json:"title"    yaml:"title"`
	Detail   string      `json:"detail"   yaml:"detail"`
	Category Category    `json:"category" yaml:"category"`
}

// Input is what milestones are derived from.
type Input struct {
	// Rows are ledger rows, ascending by day.
	Rows []ledger.Row
	// Commits are in chronological order, oldest first.
	Commits  []history.CommitInfo
	Now      time.Time
	Location *time.Location
}

// Find returns all milestones reached, ordered by date. Milestones of the
// same date keep the code, commit, time order.
func Find(in Input) []Milestone {
	loc := in.Location
	if loc == nil {
		loc = time.Local
	}

	var out []Milestone

	out = append(out, codeMilestones(in.Rows)...)
	out = append(out, commitMilestones(in.Commits, loc)...)
	out = append(out, timeMilestones(in.Commits, in.Now, loc)...)

	slices.SortStableFunc(out, func(a, b Milestone) int {
		return a.Date.Compare(b.Date)
	})

	return out
}

func codeMilestones(rows []ledger.Row) []Milestone {
	var out []Milestone

	for _, threshold := range LOCThresholds {
		i := slices.IndexFunc(rows, func(r ledger.Row) bool { return r.TotalCode >= threshold })
		if i < 0 {
			continue
		}

		out = append(out, Milestone{
			Date:     rows[i].Day,
			Title:    fmt.Sprintf("%dK lines of code", threshold/1000),
			Detail:   fmt.Sprintf("code size passed %s lines", humanize.Comma(int64(threshold))),
			Category: CategoryCode,
		})
	}

	return out
}

func commitMilestones(commits []history.CommitInfo, loc *time.Location) []Milestone {
	var out []Milestone

	for _, n := range CommitThresholds {
		if len(commits) < n {
			break
		}

		c := commits[n-1]
		out = append(out, Milestone{
			Date:     history.DayOf(c.AuthorTime, loc),
			Title:    fmt.Sprintf("Commit #%d", n),
			Detail:   textutil.Truncate(c.Subject, subjectRunes),
			Category: CategoryCommit,
		})
	}

	return out
}

func timeMilestones(commits []history.CommitInfo, now time.Time, loc *time.Location) []Milestone {
	if len(commits) == 0 {
		return nil
	}

	first := commits[0]
	start := history.DayOf(first.AuthorTime, loc)
	elapsed := start.DaysUntil(history.DayOf(now, loc))

	out := []Milestone{{
		Date:     start,
		Title:    "Project start",
		Detail:   textutil.Truncate(first.Subject, subjectRunes),
		Category: CategoryTime,
	}}

	for _, m := range AgeMilestones {
		if elapsed < m.Days {
			break
		}

		out = append(out, Milestone{
			Date:     start.AddDays(m.Days),
			Title:    m.Title,
			Detail:   fmt.Sprintf("%d days of development", m.Days),
			Category: CategoryTime,
		})
	}

	return out
}
