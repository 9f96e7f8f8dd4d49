// Package cadence summarizes when commits are authored: by hour, by weekday
// and on the weekday by hour grid.
package cadence

import (
	"time"

	"github.com/Sumatoshi-tech/loctrail/pkg/history"
)

const (
	hoursPerDay = 24
	daysPerWeek = 7

	// lateNightEnd is the first hour no longer counted as late night.
	lateNightEnd = 6
)

// Weekdays are the row labels of the grid, Monday first.
var Weekdays = [daysPerWeek]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// Report is the commit time distribution.
type Report struct {
	Total     int                           `json:"total"      yaml:"total"`
	ByHour    [hoursPerDay]int              `json:"by_hour"    yaml:"by_hour"`
	ByWeekday [daysPerWeek]int              `json:"by_weekday" yaml:"by_weekday"`
	Grid      [daysPerWeek][hoursPerDay]int `json:"grid"       yaml:"grid"`
	// LateNightRatio is the share of commits authored 00:00 to 05:59.
	LateNightRatio float64 `json:"late_night_ratio" yaml:"late_night_ratio"`
	// WeekendRatio is the share of commits authored on Saturday or Sunday.
	WeekendRatio float64 `json:"weekend_ratio" yaml:"weekend_ratio"`
	// BusiestHour is -1 when there are no commits.
	BusiestHour    int    `json:"busiest_hour"    yaml:"busiest_hour"`
	BusiestWeekday string `json:"busiest_weekday" yaml:"busiest_weekday"`
}

// Analyze buckets the author times of commits as seen in loc.
func Analyze(commits []history.CommitInfo, loc *time.Location) Report {
	if loc == nil {
		loc = time.Local
	}

	r := Report{BusiestHour: -1}

	for _, c := range commits {
		t := c.AuthorTime.In(loc)
		hour := t.Hour()
		wd := weekdayIndex(t.Weekday())

		r.ByHour[hour]++
		r.ByWeekday[wd]++
		r.Grid[wd][hour]++
		r.Total++
	}

	if r.Total == 0 {
		return r
	}

	var lateNight int
	for h := range lateNightEnd {
		lateNight += r.ByHour[h]
	}

	r.LateNightRatio = float64(lateNight) / float64(r.Total)
	r.WeekendRatio = float64(r.ByWeekday[5]+r.ByWeekday[6]) / float64(r.Total)
	r.BusiestHour = argmax(r.ByHour[:])
	r.BusiestWeekday = Weekdays[argmax(r.ByWeekday[:])]

	return r
}

// Max returns the largest grid cell, the scale of a heatmap.
func (r Report) Max() int {
	var m int

	for _, row := range r.Grid {
		for _, v := range row {
			m = max(m, v)
		}
	}

	return m
}

// weekdayIndex maps time.Weekday to a Monday-first index.
func weekdayIndex(d time.Weekday) int {
	return (int(d) + daysPerWeek - 1) % daysPerWeek
}

// argmax returns the first index holding the largest value.
func argmax(values []int) int {
	best := 0

	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}

	return best
}
