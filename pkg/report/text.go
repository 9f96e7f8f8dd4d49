package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/loctrail/pkg/cadence"
	"github.com/Sumatoshi-tech/loctrail/pkg/growth"
	"github.com/Sumatoshi-tech/loctrail/pkg/ledger"
	"github.com/Sumatoshi-tech/loctrail/pkg/milestones"
	"github.com/Sumatoshi-tech/loctrail/pkg/projectstats"
)

const (
	barWidth   = 30
	percentMul = 100
	noData     = "-"
	growthName = "Code growth"
)

// Cadence writes the commit time distribution.
func Cadence(w io.Writer, format string, r cadence.Report, opts Options) error {
	if format != FormatText {
		return Encode(w, format, r)
	}

	t := newTextWriter(w, opts)

	t.title("Commit cadence")
	t.field("commits", humanize.Comma(int64(r.Total)))
	t.field("late night", percent(r.LateNightRatio))
	t.field("weekend", percent(r.WeekendRatio))

	if r.BusiestHour >= 0 {
		t.field("busiest hour", fmt.Sprintf("%02d:00", r.BusiestHour))
		t.field("busiest day", r.BusiestWeekday)
	}

	t.blank()

	hours := make([]table.Row, 0, len(r.ByHour))
	for h, n := range r.ByHour {
		hours = append(hours, table.Row{fmt.Sprintf("%02d:00", h), n, bar(n, maxOf(r.ByHour[:]))})
	}

	t.table(table.Row{"hour", "commits", ""}, hours, nil)
	t.blank()

	days := make([]table.Row, 0, len(r.ByWeekday))
	for d, n := range r.ByWeekday {
		days = append(days, table.Row{cadence.Weekdays[d], n, bar(n, maxOf(r.ByWeekday[:]))})
	}

	t.table(table.Row{"day", "commits", ""}, days, nil)

	return t.err
}

// Milestones writes the milestone list.
func Milestones(w io.Writer, format string, ms []milestones.Milestone, opts Options) error {
	if format != FormatText {
		if ms == nil {
			ms = []milestones.Milestone{}
		}

		return Encode(w, format, ms)
	}

	t := newTextWriter(w, opts)

	t.title("Milestones")

	rows := make([]table.Row, 0, len(ms))
	for _, m := range ms {
		rows = append(rows, table.Row{m.Date.String(), m.Category, m.Title, m.Detail})
	}

	t.table(table.Row{"date", "kind", "milestone", "detail"}, rows,
		table.Row{fmt.Sprintf("%d reached", len(ms))})

	return t.err
}

// Growth writes the growth summary, or the chart of the table for html.
func Growth(w io.Writer, format string, s growth.Summary, tb ledger.Table, opts Options) error {
	switch format {
	case FormatHTML:
		return growth.RenderHTML(w, tb, growthName)
	case FormatText:
	default:
		return Encode(w, format, s)
	}

	t := newTextWriter(w, opts)

	t.title(growthName)
	t.field("period", fmt.Sprintf("%s .. %s (%d rows)", s.FirstDay, s.LastDay, s.Rows))
	t.field("start", humanize.Comma(int64(s.StartTotal)))
	t.field("end", humanize.Comma(int64(s.EndTotal)))
	t.field("net", signed(s.NetGrowth))
	t.field("avg per row", fmt.Sprintf("%+.1f", s.AveragePerRow))
	t.field("largest gain", change(s.LargestIncrease))
	t.field("largest drop", change(s.LargestDecrease))
	t.blank()

	rows := make([]table.Row, 0, len(s.Subtrees))
	for _, st := range s.Subtrees {
		rows = append(rows, table.Row{st.Name, humanize.Comma(int64(st.Code))})
	}

	t.table(table.Row{"subtree", "code"}, rows, table.Row{"total", humanize.Comma(int64(s.EndTotal))})

	return t.err
}

// Stats writes the project overview.
func Stats(w io.Writer, format string, s projectstats.Stats, opts Options) error {
	if format != FormatText {
		return Encode(w, format, s)
	}

	t := newTextWriter(w, opts)

	t.title(s.Name)

	if s.StartDate.IsZero() {
		t.field("started", noData)
	} else {
		t.field("started", fmt.Sprintf("%s (%d days ago)", s.StartDate, s.AgeDays))
	}

	t.field("commits", humanize.Comma(int64(s.Commits)))
	t.field("branch", s.Branch)
	t.field("files", humanize.Comma(int64(s.Files)))

	for _, st := range s.Subtrees {
		t.field(st.Name, humanize.Comma(int64(st.Code))+" lines")
	}

	t.field("total", humanize.Comma(int64(s.TotalCode))+" lines")
	t.field("per day", humanize.Comma(int64(s.CodePerDay))+" lines")
	t.field("last commit", s.LastCommit)
	t.blank()

	rows := make([]table.Row, 0, len(s.Languages))
	for _, l := range s.Languages {
		rows = append(rows, table.Row{l.Name, l.Files})
	}

	t.table(table.Row{"language", "files"}, rows, nil)

	return t.err
}

func percent(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*percentMul)
}

func signed(n int) string {
	if n > 0 {
		return "+" + humanize.Comma(int64(n))
	}

	return humanize.Comma(int64(n))
}

func change(c growth.Change) string {
	if c.Delta == 0 {
		return noData
	}

	return fmt.Sprintf("%s on %s", signed(c.Delta), c.Day)
}

func bar(n, peak int) string {
	if peak == 0 {
		return ""
	}

	return strings.Repeat("█", n*barWidth/peak)
}

func maxOf(values []int) int {
	m := 0
	for _, v := range values {
		m = max(m, v)
	}

	return m
}
