package availability

import (
	"testing"
	"time"

	"meetsync/models"

	"github.com/stretchr/testify/require"
)

func testPrefs() *models.SchedulingPreference {
	return &models.SchedulingPreference{
		Timezone:              "UTC",
		WorkdayStartHour:      9,
		WorkdayEndHour:        17,
		BufferMinutes:         15,
		DefaultMeetingMinutes: 30,
		MaxOptions:            4,
		MaxSlotsPerDay:        4,
	}
}

// 2026-03-02 is a Monday.
func monday(hour, min int) time.Time {
	return time.Date(2026, 3, 2, hour, min, 0, 0, time.UTC)
}

func TestFindSlotsFirstCandidateClearsBufferedBusy(t *testing.T) {
	busy := []Interval{{Start: monday(9, 0), End: monday(10, 0)}}
	now := monday(8, 0)

	slots := FindSlots(busy, testPrefs(), now, monday(0, 0).AddDate(0, 0, 5),
		30*time.Minute, nil, HourFilter{}, now)

	require.NotEmpty(t, slots)
	// The 09:00-10:00 block plus the 15m buffer occupies until 10:15; the
	// first candidate starts exactly there, not at 10:00.
	require.Equal(t, monday(10, 15), slots[0].Start)
	require.Equal(t, monday(10, 45), slots[0].End)
	require.LessOrEqual(t, len(slots), 4)
}

func TestFindSlotsNeverOverlapBufferedBusy(t *testing.T) {
	prefs := testPrefs()
	busy := []Interval{
		{Start: monday(9, 30), End: monday(10, 0)},
		{Start: monday(13, 0), End: monday(14, 30)},
		{Start: monday(16, 0), End: monday(16, 45)},
	}
	buffer := time.Duration(prefs.BufferMinutes) * time.Minute
	now := monday(0, 0)

	slots := FindSlots(busy, prefs, now, monday(0, 0).AddDate(0, 0, 3),
		30*time.Minute, nil, HourFilter{}, now)

	require.NotEmpty(t, slots)
	for _, slot := range slots {
		for _, iv := range busy {
			clear := !slot.Start.Before(iv.End.Add(buffer)) || !slot.End.After(iv.Start.Add(-buffer))
			require.True(t, clear, "slot %v-%v overlaps buffered busy %v-%v",
				slot.Start, slot.End, iv.Start, iv.End)
		}
	}
}

func TestFindSlotsRespectsCaps(t *testing.T) {
	prefs := testPrefs()
	prefs.MaxOptions = 5
	prefs.MaxSlotsPerDay = 2
	now := monday(0, 0)

	slots := FindSlots(nil, prefs, now, monday(0, 0).AddDate(0, 0, 7),
		30*time.Minute, nil, HourFilter{}, now)

	require.Len(t, slots, 5)

	perDay := make(map[string]int)
	for _, slot := range slots {
		perDay[slot.Start.Format("2006-01-02")]++
	}
	for day, count := range perDay {
		require.LessOrEqual(t, count, 2, "day %s exceeds per-day cap", day)
	}
}

func TestFindSlotsSkipsNonWorkingDays(t *testing.T) {
	prefs := testPrefs()
	now := monday(0, 0)

	// Two-week horizon with default Mon-Fri working days
	slots := FindSlots(nil, prefs, now, monday(0, 0).AddDate(0, 0, 14),
		30*time.Minute, nil, HourFilter{}, now)

	require.NotEmpty(t, slots)
	for _, slot := range slots {
		wd := slot.Start.Weekday()
		require.NotEqual(t, time.Saturday, wd)
		require.NotEqual(t, time.Sunday, wd)
	}
}

func TestFindSlotsHonorsDayAndHourFilters(t *testing.T) {
	prefs := testPrefs()
	now := monday(0, 0)

	slots := FindSlots(nil, prefs, now, monday(0, 0).AddDate(0, 0, 7),
		30*time.Minute, []time.Weekday{time.Wednesday}, HourFilter{StartHour: 14, EndHour: 16}, now)

	require.NotEmpty(t, slots)
	for _, slot := range slots {
		require.Equal(t, time.Wednesday, slot.Start.Weekday())
		require.GreaterOrEqual(t, slot.Start.Hour(), 14)
		require.LessOrEqual(t, slot.End.Hour(), 16)
	}
}

func TestFindSlotsDropsPastStarts(t *testing.T) {
	prefs := testPrefs()
	now := monday(12, 0)

	slots := FindSlots(nil, prefs, monday(0, 0), monday(0, 0).AddDate(0, 0, 2),
		30*time.Minute, nil, HourFilter{}, now)

	require.NotEmpty(t, slots)
	for _, slot := range slots {
		require.False(t, slot.Start.Before(now))
	}
}

func TestFindSlotsEmptyWhenFullyBooked(t *testing.T) {
	busy := []Interval{{Start: monday(8, 0), End: monday(18, 0)}}
	now := monday(0, 0)

	slots := FindSlots(busy, testPrefs(), now, monday(23, 0),
		30*time.Minute, nil, HourFilter{}, now)

	require.Empty(t, slots)
}

func TestGapCandidatesThinning(t *testing.T) {
	// A long free gap yields first, middle, and last rather than a cluster
	gap := Interval{Start: monday(9, 0), End: monday(17, 0)}
	candidates := gapCandidates(gap, 30*time.Minute, time.UTC)

	require.Len(t, candidates, 3)
	require.Equal(t, monday(9, 0), candidates[0].Start)
	require.Equal(t, monday(16, 30), candidates[2].Start)
	require.True(t, candidates[1].Start.After(candidates[0].Start))
	require.True(t, candidates[2].Start.After(candidates[1].Start))
}

func TestMergeIntervalsOverlapping(t *testing.T) {
	merged := mergeIntervals([]Interval{
		{Start: monday(11, 0), End: monday(12, 0)},
		{Start: monday(9, 0), End: monday(10, 0)},
		{Start: monday(9, 30), End: monday(11, 30)},
	})

	require.Len(t, merged, 1)
	require.Equal(t, monday(9, 0), merged[0].Start)
	require.Equal(t, monday(12, 0), merged[0].End)
}

func TestSnapUpQuarterHour(t *testing.T) {
	require.Equal(t, monday(10, 15), snapUp(monday(10, 15), time.UTC))
	require.Equal(t, monday(10, 15), snapUp(monday(10, 1), time.UTC))
	require.Equal(t, monday(10, 30), snapUp(monday(10, 16), time.UTC))
}
