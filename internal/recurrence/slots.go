package recurrence

import (
	"slices"
	"time"

	"remindd/internal/task"
)

// Waking window used for the even-spread fallback, minutes since midnight.
const (
	wakeStartMinute = 7 * 60  // 07:00
	wakeEndMinute   = 22 * 60 // 22:00
)

// Slot is one planned reminder time within a day. Index is stable for the
// lifetime of a given recurrence config (slot 0 = first sorted slot) so
// installed timers stay addressable for cancellation.
type Slot struct {
	Index int
	At    time.Time
}

// PlanMinutes computes the ordered minute-of-day values for one day of
// reminders. Explicit SlotMinutes are authoritative; otherwise TimesPerDay
// slots are spread evenly across the waking window starting at the
// preferred minute (or 07:00).
func PlanMinutes(r task.Recurrence) []int {
	r = Normalize(r)

	if len(r.SlotMinutes) > 0 {
		return slices.Clone(r.SlotMinutes)
	}

	anchor := wakeStartMinute
	if r.HasPreferredMinute() {
		anchor = r.PreferredMinute
	}
	n := r.TimesPerDay
	if n == 1 {
		return []int{anchor}
	}

	step := (wakeEndMinute - anchor) / (n - 1)
	if step <= 0 {
		// Anchor at or past the window end: a spread is meaningless, fall
		// back to a single slot.
		return []int{anchor}
	}
	mins := make([]int, 0, n)
	for i := 0; i < n; i++ {
		m := anchor + i*step
		if m > wakeEndMinute {
			m = wakeEndMinute
		}
		mins = append(mins, m)
	}
	return mins
}

// PlanSlots realizes the day's minute-of-day values as concrete timestamps
// in now's location, today forward: a slot whose time already passed today
// lands on the same minute tomorrow. The result is ordered by slot index
// and deterministic in (r, now).
func PlanSlots(r task.Recurrence, now time.Time) []Slot {
	mins := PlanMinutes(r)
	slots := make([]Slot, 0, len(mins))
	for i, m := range mins {
		at := time.Date(now.Year(), now.Month(), now.Day(), m/60, m%60, 0, 0, now.Location())
		if !at.After(now) {
			at = at.AddDate(0, 0, 1)
		}
		slots = append(slots, Slot{Index: i, At: at})
	}
	return slots
}

// SlotCount is the size of the slot identity space for a rule. Cancellation
// uses it to address the same indexes that scheduling produced, even when
// the task was edited in between (best-effort symmetric cleanup).
func SlotCount(r task.Recurrence) int {
	r = Normalize(r)
	if len(r.SlotMinutes) > 0 {
		return len(r.SlotMinutes)
	}
	return r.TimesPerDay
}
