package recurrence

import (
	"slices"
	"time"

	"remindd/internal/task"
)

// Normalize repairs a recurrence rule so downstream arithmetic never sees
// a non-advancing or retrograde schedule:
//
//   - An unknown or empty type degrades to none.
//   - Interval <= 0 becomes 1.
//   - custom_days with an empty day set degrades to none.
//   - DaysOfWeek is sorted and deduplicated.
//   - PreferredMinute outside [0,1440) becomes unset.
//   - SlotMinutes outside [0,1440) are dropped; the rest sorted + deduped.
//   - An empty missed behaviour defaults to ignorable.
//
// This is a scheduling layer, not a validation boundary; malformed configs
// are repaired, never rejected.
func Normalize(r task.Recurrence) task.Recurrence {
	switch r.Type {
	case task.RecurDaily, task.RecurWeekly, task.RecurMonthly, task.RecurCustomDays:
	default:
		// A rule that cannot advance is no rule. Stored records may carry
		// an empty recurrence object; treat it the same as none.
		r.Type = task.RecurNone
	}
	if r.Interval <= 0 {
		r.Interval = 1
	}
	if r.Missed == "" {
		r.Missed = task.MissedIgnorable
	}
	if r.PreferredMinute < 0 || r.PreferredMinute >= 1440 {
		r.PreferredMinute = task.NoPreferredMinute
	}
	if r.TimesPerDay < 1 {
		r.TimesPerDay = 1
	}

	if len(r.DaysOfWeek) > 0 {
		days := slices.Clone(r.DaysOfWeek)
		slices.Sort(days)
		r.DaysOfWeek = slices.Compact(days)
	}
	if r.Type == task.RecurCustomDays && len(r.DaysOfWeek) == 0 {
		r.Type = task.RecurNone
	}

	if len(r.SlotMinutes) > 0 {
		mins := make([]int, 0, len(r.SlotMinutes))
		for _, m := range r.SlotMinutes {
			if m >= 0 && m < 1440 {
				mins = append(mins, m)
			}
		}
		slices.Sort(mins)
		r.SlotMinutes = slices.Compact(mins)
	}
	return r
}

// IsDue reports whether a task instance currently expects user action.
//
// A task with no recurrence is never due here (one-off due dates are the
// store's business). Without a cached next-occurrence marker the task is due
// exactly while it is not completed; with one, it is due once now reaches
// the marker.
func IsDue(t task.Task, now time.Time) bool {
	r := Normalize(t.Recurrence)
	if r.Type == task.RecurNone {
		return false
	}
	if t.NextAt == nil {
		return !t.Completed
	}
	return !now.Before(*t.NextAt)
}

// NextOccurrence computes when the task should next become due after being
// completed at completedAt. It returns false for non-recurring tasks.
//
// Date advancement always starts from the completion timestamp. The missed
// behaviour decides the time of day:
//
//   - ignorable snaps back to PreferredMinute when set, so a late completion
//     doesn't drift the schedule away from the intended slot;
//   - persistent keeps the completion's own time of day, so finishing late
//     permanently shifts future occurrences ("relative to when it was
//     actually done").
//
// For custom_days the next occurrence is always a strictly later listed
// weekday: completing on a listed day never satisfies that same day again.
func NextOccurrence(t task.Task, completedAt time.Time) (time.Time, bool) {
	r := Normalize(t.Recurrence)
	if r.Type == task.RecurNone {
		return time.Time{}, false
	}

	next := advance(r, completedAt)
	if r.Missed == task.MissedIgnorable && r.HasPreferredMinute() {
		next = atMinuteOfDay(next, r.PreferredMinute)
	}
	return next, true
}

// ResetForNextOccurrence returns the task flipped back to "currently active,
// awaiting completion": completion state and the next-occurrence marker are
// cleared. The scheduler calls this once IsDue turns true for a previously
// completed instance, right before rescheduling reminders.
func ResetForNextOccurrence(t task.Task) task.Task {
	t.Completed = false
	t.CompletedAt = nil
	t.NextAt = nil
	return t
}

// advance moves from one interval unit forward according to the rule type.
// The rule is assumed normalized.
func advance(r task.Recurrence, from time.Time) time.Time {
	switch r.Type {
	case task.RecurDaily:
		return from.AddDate(0, 0, r.Interval)
	case task.RecurWeekly:
		return from.AddDate(0, 0, 7*r.Interval)
	case task.RecurMonthly:
		return from.AddDate(0, r.Interval, 0)
	case task.RecurCustomDays:
		return from.AddDate(0, 0, nextListedDayOffset(r.DaysOfWeek, from.Weekday()))
	default:
		return from
	}
}

// nextListedDayOffset picks the single next candidate weekday.
//
// Weekday numbering is Go's time.Weekday convention (Sunday = 0). The first
// listed day with a strictly greater index than today wins; otherwise wrap
// to the first day in sorted order and add a week. days is sorted and
// non-empty (Normalize guarantees both).
func nextListedDayOffset(days []time.Weekday, today time.Weekday) int {
	for _, d := range days {
		if d > today {
			return int(d - today)
		}
	}
	return int(days[0]-today) + 7
}

// atMinuteOfDay keeps t's calendar date but replaces the time of day.
func atMinuteOfDay(t time.Time, minute int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), minute/60, minute%60, 0, 0, t.Location())
}
