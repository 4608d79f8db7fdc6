package availability

import (
	"sort"
	"time"

	"meetsync/models"
)

// TimeSlot is a candidate meeting window. Never persisted directly; only
// materialized into a request's proposed times or a confirmed booking.
type TimeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Interval is a busy period from the calendar provider.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// HourFilter restricts candidate slots to [StartHour, EndHour) in the
// principal's timezone. The zero value applies no restriction.
type HourFilter struct {
	StartHour int
	EndHour   int
}

func (f HourFilter) active() bool { return f.EndHour > f.StartHour }

// Candidates align to quarter-hour boundaries and are enumerated on a
// half-hour stride, so a buffered busy block ending at :15 yields a :15 start
// rather than pushing to the next half hour.
const (
	snapGrain = 15 * time.Minute
	slotGrain = 30 * time.Minute
)

// FindSlots computes candidate meeting windows between from and to that avoid
// all busy intervals (expanded by the preference buffer), lie inside the
// principal's working hours, and respect the per-day and global option caps.
// Slots starting before now are dropped. Returns an empty slice, never an
// error, when nothing fits.
func FindSlots(busy []Interval, prefs *models.SchedulingPreference, from, to time.Time, length time.Duration, days []time.Weekday, hours HourFilter, now time.Time) []TimeSlot {
	loc, err := time.LoadLocation(prefs.Timezone)
	if err != nil {
		loc = time.UTC
	}
	if length <= 0 {
		length = time.Duration(prefs.DefaultMeetingMinutes) * time.Minute
	}

	buffer := time.Duration(prefs.BufferMinutes) * time.Minute
	merged := mergeIntervals(expandIntervals(busy, buffer))

	workingDays := prefs.WorkingWeekdays()
	dayAllowed := func(d time.Weekday) bool {
		if !workingDays[int(d)] {
			return false
		}
		if len(days) == 0 {
			return true
		}
		for _, want := range days {
			if want == d {
				return true
			}
		}
		return false
	}

	maxOptions := prefs.MaxOptions
	if maxOptions <= 0 {
		maxOptions = 5
	}
	maxPerDay := prefs.MaxSlotsPerDay
	if maxPerDay <= 0 {
		maxPerDay = 3
	}

	var slots []TimeSlot
	for day := startOfDay(from.In(loc)); !day.After(to) && len(slots) < maxOptions; day = nextDay(day) {
		if !dayAllowed(day.Weekday()) {
			continue
		}

		startHour := prefs.WorkdayStartHour
		endHour := prefs.WorkdayEndHour
		if hours.active() {
			if hours.StartHour > startHour {
				startHour = hours.StartHour
			}
			if hours.EndHour < endHour {
				endHour = hours.EndHour
			}
		}
		if endHour <= startHour {
			continue
		}

		// Construct the window with timezone-aware dates so DST shifts are
		// absorbed by the location, not by UTC arithmetic.
		windowStart := time.Date(day.Year(), day.Month(), day.Day(), startHour, 0, 0, 0, loc)
		windowEnd := time.Date(day.Year(), day.Month(), day.Day(), endHour, 0, 0, 0, loc)
		if windowStart.Before(from) {
			windowStart = from
		}
		if windowEnd.After(to) {
			windowEnd = to
		}
		if !windowEnd.After(windowStart) {
			continue
		}

		daySlots := 0
		for _, gap := range freeGaps(windowStart, windowEnd, merged) {
			if daySlots >= maxPerDay || len(slots) >= maxOptions {
				break
			}
			for _, slot := range gapCandidates(gap, length, loc) {
				if slot.Start.Before(now) {
					continue
				}
				slots = append(slots, slot)
				daySlots++
				if daySlots >= maxPerDay || len(slots) >= maxOptions {
					break
				}
			}
		}
	}

	return slots
}

func expandIntervals(busy []Interval, buffer time.Duration) []Interval {
	expanded := make([]Interval, 0, len(busy))
	for _, iv := range busy {
		if !iv.End.After(iv.Start) {
			continue
		}
		expanded = append(expanded, Interval{
			Start: iv.Start.Add(-buffer),
			End:   iv.End.Add(buffer),
		})
	}
	return expanded
}

func mergeIntervals(intervals []Interval) []Interval {
	if len(intervals) == 0 {
		return nil
	}
	sort.Slice(intervals, func(i, j int) bool {
		return intervals[i].Start.Before(intervals[j].Start)
	})

	merged := []Interval{intervals[0]}
	for _, iv := range intervals[1:] {
		last := &merged[len(merged)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// freeGaps returns the sub-intervals of [windowStart, windowEnd) not covered
// by any merged busy interval.
func freeGaps(windowStart, windowEnd time.Time, merged []Interval) []Interval {
	var gaps []Interval
	cursor := windowStart
	for _, iv := range merged {
		if !iv.End.After(cursor) {
			continue
		}
		if !iv.Start.Before(windowEnd) {
			break
		}
		if iv.Start.After(cursor) {
			gaps = append(gaps, Interval{Start: cursor, End: iv.Start})
		}
		if iv.End.After(cursor) {
			cursor = iv.End
		}
	}
	if cursor.Before(windowEnd) {
		gaps = append(gaps, Interval{Start: cursor, End: windowEnd})
	}
	return gaps
}

// gapCandidates enumerates meeting-length slots inside a gap. Long gaps are
// thinned to the first, middle, and last candidate so suggestions spread
// across the gap instead of clustering at its start.
func gapCandidates(gap Interval, length time.Duration, loc *time.Location) []TimeSlot {
	var all []TimeSlot
	for start := snapUp(gap.Start, loc); !start.Add(length).After(gap.End); start = start.Add(slotGrain) {
		all = append(all, TimeSlot{Start: start, End: start.Add(length)})
	}
	if len(all) <= 2 {
		return all
	}
	return []TimeSlot{all[0], all[len(all)/2], all[len(all)-1]}
}

// snapUp rounds t up to the next quarter-hour boundary in loc.
func snapUp(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	snapped := local.Truncate(time.Minute)
	if snapped.Before(local) {
		snapped = snapped.Add(time.Minute)
	}
	grain := int(snapGrain / time.Minute)
	if minutes := snapped.Minute() % grain; minutes != 0 {
		snapped = snapped.Add(time.Duration(grain-minutes) * time.Minute)
	}
	return snapped
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func nextDay(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, day.Location())
}
