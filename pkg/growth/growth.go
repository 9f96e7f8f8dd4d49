// Package growth summarizes how code size evolved across ledger rows.
package growth

import (
	"errors"

	"github.com/Sumatoshi-tech/loctrail/pkg/history"
	"github.com/Sumatoshi-tech/loctrail/pkg/ledger"
)

// ErrNoRows is returned when the ledger holds no rows yet.
var ErrNoRows = errors.New("ledger has no rows")

// Change is a total_code difference between consecutive rows.
type Change struct {
	Day   history.Day `json:"day"   yaml:"day"`
	Delta int         `json:"delta" yaml:"delta"`
}

// SubtreeSize is the latest code count of one subtree.
type SubtreeSize struct {
	Name string `json:"name" yaml:"name"`
	Code int    `json:"code" yaml:"code"`
}

// Summary is the growth of the project over the collected days.
type Summary struct {
	FirstDay   history.Day `json:"first_day"   yaml:"first_day"`
	LastDay    history.Day `json:"last_day"    yaml:"last_day"`
	Rows       int         `json:"rows"        yaml:"rows"`
	StartTotal int         `json:"start_total" yaml:"start_total"`
	EndTotal   int         `json:"end_total"   yaml:"end_total"`
	NetGrowth  int         `json:"net_growth"  yaml:"net_growth"`
	// LargestIncrease and LargestDecrease are zero-valued when no row grew
	// or shrank.
	LargestIncrease Change `json:"largest_increase" yaml:"largest_increase"`
	LargestDecrease Change `json:"largest_decrease" yaml:"largest_decrease"`
	// AveragePerRow is the net growth divided by the steps between rows.
	AveragePerRow float64       `json:"average_per_row" yaml:"average_per_row"`
	Subtrees      []SubtreeSize `json:"subtrees"        yaml:"subtrees"`
}

// Summarize computes the growth summary of t.
func Summarize(t ledger.Table) (Summary, error) {
	last, ok := t.Latest()
	if !ok {
		return Summary{}, ErrNoRows
	}

	first := t.Rows[0]

	s := Summary{
		FirstDay:   first.Day,
		LastDay:    last.Day,
		Rows:       len(t.Rows),
		StartTotal: first.TotalCode,
		EndTotal:   last.TotalCode,
		NetGrowth:  last.TotalCode - first.TotalCode,
	}

	for i := 1; i < len(t.Rows); i++ {
		delta := t.Rows[i].TotalCode - t.Rows[i-1].TotalCode

		if delta > s.LargestIncrease.Delta {
			s.LargestIncrease = Change{Day: t.Rows[i].Day, Delta: delta}
		}

		if delta < s.LargestDecrease.Delta {
			s.LargestDecrease = Change{Day: t.Rows[i].Day, Delta: delta}
		}
	}

	if len(t.Rows) > 1 {
		s.AveragePerRow = float64(s.NetGrowth) / float64(len(t.Rows)-1)
	}

	s.Subtrees = make([]SubtreeSize, len(t.Names))
	for i, name := range t.Names {
		s.Subtrees[i] = SubtreeSize{Name: name, Code: last.Metrics[i].Code}
	}

	return s, nil
}
