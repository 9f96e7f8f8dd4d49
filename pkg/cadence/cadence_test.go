package cadence_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/loctrail/pkg/cadence"
	"github.com/Sumatoshi-tech/loctrail/pkg/history"
)

func at(s string) history.CommitInfo {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}

	return history.CommitInfo{AuthorTime: t}
}

func TestAnalyze(t *testing.T) {
	t.Parallel()

	commits := []history.CommitInfo{
		at("2024-03-04T02:30:00Z"), // Monday, late night
		at("2024-03-04T14:00:00Z"), // Monday
		at("2024-03-04T14:45:00Z"), // Monday
		at("2024-03-09T14:10:00Z"), // Saturday
	}

	r := cadence.Analyze(commits, time.UTC)

	assert.Equal(t, 4, r.Total)
	assert.Equal(t, 3, r.ByHour[14])
	assert.Equal(t, 1, r.ByHour[2])
	assert.Equal(t, 3, r.ByWeekday[0])
	assert.Equal(t, 1, r.ByWeekday[5])
	assert.Equal(t, 2, r.Grid[0][14])
	assert.InDelta(t, 0.25, r.LateNightRatio, 1e-9)
	assert.InDelta(t, 0.25, r.WeekendRatio, 1e-9)
	assert.Equal(t, 14, r.BusiestHour)
	assert.Equal(t, "Mon", r.BusiestWeekday)
	assert.Equal(t, 2, r.Max())
}

func TestAnalyzeUsesLocation(t *testing.T) {
	t.Parallel()

	tokyo := time.FixedZone("JST", 9*3600)

	// Sunday 20:00 UTC is Monday 05:00 in Tokyo.
	r := cadence.Analyze([]history.CommitInfo{at("2024-03-10T20:00:00Z")}, tokyo)

	assert.Equal(t, 1, r.ByHour[5])
	assert.Equal(t, "Mon", r.BusiestWeekday)
	assert.InDelta(t, 1.0, r.LateNightRatio, 1e-9)
	assert.Zero(t, r.WeekendRatio)
}

func TestAnalyzeEmpty(t *testing.T) {
	t.Parallel()

	r := cadence.Analyze(nil, time.UTC)

	assert.Zero(t, r.Total)
	assert.Equal(t, -1, r.BusiestHour)
	assert.Empty(t, r.BusiestWeekday)
	assert.Zero(t, r.Max())
}
