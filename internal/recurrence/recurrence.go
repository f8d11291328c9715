// Package recurrence computes when a task definition fires next. It is pure
// calendar arithmetic: no I/O, no clocks, all in UTC.
package recurrence

import (
	"sort"
	"time"

	"automation-service/internal/models"
)

const msPerDay = 24 * 60 * 60 * 1000

// searchHorizonDays bounds the day-by-day scan. Anything sparser than this
// (INT_DAY with a multi-year interval) reports no future occurrence.
const searchHorizonDays = 2 * 366

// Next returns the earliest fire instant strictly after the given instant,
// honoring the task's repeat mode and cycle budget. fired is the number of
// firings already recorded in the ledger for this task. ok is false when the
// task is expired or trigger-driven (SENSOR/SCENERY) and has no scheduled
// occurrence.
func Next(def models.TaskDefinition, after time.Time, fired int) (next time.Time, ok bool) {
	sched, begin, timed := def.TimedSchedule()
	if !timed {
		return time.Time{}, false
	}
	if sched.CycleNum > 0 && fired >= sched.CycleNum {
		return time.Time{}, false
	}

	// An explicit actDay overrides the repeat mode entirely: the task fires
	// once on that date and is then terminal.
	if sched.ActDay != "" {
		if fired > 0 {
			return time.Time{}, false
		}
		day, err := models.ParseDay(sched.ActDay)
		if err != nil {
			return time.Time{}, false
		}
		return day.Add(time.Duration(sched.ActTime) * time.Millisecond), true
	}

	setup, err := models.ParseDay(sched.SetupDay)
	if err != nil {
		return time.Time{}, false
	}

	day := startOfDay(after)
	if day.Before(setup) {
		day = setup
	}
	for i := 0; i < searchHorizonDays; i++ {
		if DayMatches(sched, day) {
			for _, occ := range Occurrences(sched, begin, day) {
				if occ.After(after) {
					return occ, true
				}
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}, false
}

// DayMatches reports whether a calendar day is a firing day for the schedule.
// setupDay anchors the first possible day; the parity test itself is on the
// day of month, not on distance from setup.
func DayMatches(sched models.Schedule, day time.Time) bool {
	setup, err := models.ParseDay(sched.SetupDay)
	if err != nil || day.Before(setup) {
		return false
	}
	switch sched.RepeatMode {
	case models.RepeatOddDay:
		return day.Day()%2 == 1
	case models.RepeatEvenDay:
		return day.Day()%2 == 0
	case models.RepeatWorkday:
		wd := day.Weekday()
		return wd >= time.Monday && wd <= time.Friday
	case models.RepeatInterval:
		if sched.IntervalDay <= 0 {
			return false
		}
		return daysBetween(setup, day)%sched.IntervalDay == 0
	}
	return false
}

// Occurrences lists the fire instants within one firing day, ascending.
// number1 > 1 divides the remainder of the day evenly starting at actTime;
// otherwise explicit begin entries are used when present.
func Occurrences(sched models.Schedule, begin []models.BeginEntry, day time.Time) []time.Time {
	day = startOfDay(day)
	switch {
	case sched.Number1 > 1:
		spacing := (msPerDay - sched.ActTime) / sched.Number1
		out := make([]time.Time, 0, sched.Number1)
		for k := 0; k < sched.Number1; k++ {
			off := sched.ActTime + k*spacing
			out = append(out, day.Add(time.Duration(off)*time.Millisecond))
		}
		return out
	case len(begin) > 0:
		offsets := make([]int, 0, len(begin))
		for _, b := range begin {
			offsets = append(offsets, b.BeginTime)
		}
		sort.Ints(offsets)
		out := make([]time.Time, 0, len(offsets))
		for _, off := range offsets {
			out = append(out, day.Add(time.Duration(off)*time.Millisecond))
		}
		return out
	default:
		return []time.Time{day.Add(time.Duration(sched.ActTime) * time.Millisecond)}
	}
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(a, b time.Time) int {
	return int(startOfDay(b).Sub(startOfDay(a)) / (24 * time.Hour))
}
