package recurrence

import (
	"testing"
	"time"

	"remindd/internal/task"
)

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.Local)
}

func ptr(t time.Time) *time.Time { return &t }

func TestNextOccurrenceNoneType(t *testing.T) {
	t.Parallel()
	tk := task.Task{Recurrence: task.Recurrence{Type: task.RecurNone, PreferredMinute: task.NoPreferredMinute}}
	if _, ok := NextOccurrence(tk, at(2025, time.March, 3, 10, 0)); ok {
		t.Fatal("none-type task must have no next occurrence")
	}
	if IsDue(tk, at(2025, time.March, 3, 10, 0)) {
		t.Fatal("none-type task must never be due")
	}
	tk.Completed = true
	tk.NextAt = ptr(at(2025, time.March, 1, 0, 0))
	if IsDue(tk, at(2025, time.March, 3, 10, 0)) {
		t.Fatal("none-type task must never be due, regardless of state")
	}
}

func TestNextOccurrenceIgnorableSnapsToPreferredMinute(t *testing.T) {
	t.Parallel()
	// Preferred time 08:00, completed 23:00 on day D: next is D+1 at 08:00,
	// not D+1 at 23:00.
	tk := task.Task{Recurrence: task.Recurrence{
		Type:            task.RecurDaily,
		Interval:        1,
		Missed:          task.MissedIgnorable,
		PreferredMinute: 8 * 60,
	}}
	got, ok := NextOccurrence(tk, at(2025, time.March, 3, 23, 0))
	if !ok {
		t.Fatal("expected a next occurrence")
	}
	if want := at(2025, time.March, 4, 8, 0); !got.Equal(want) {
		t.Fatalf("next = %v, want %v", got, want)
	}
}

func TestNextOccurrencePersistentAnchorsToCompletion(t *testing.T) {
	t.Parallel()
	// Weekly task originally due Sunday, completed the following Wednesday:
	// next is Wednesday + 7 days, completion time of day kept.
	tk := task.Task{Recurrence: task.Recurrence{
		Type:            task.RecurWeekly,
		Interval:        1,
		Missed:          task.MissedPersistent,
		PreferredMinute: 9 * 60,
	}}
	completed := at(2025, time.March, 5, 21, 30) // a Wednesday
	got, ok := NextOccurrence(tk, completed)
	if !ok {
		t.Fatal("expected a next occurrence")
	}
	if want := at(2025, time.March, 12, 21, 30); !got.Equal(want) {
		t.Fatalf("next = %v, want %v", got, want)
	}
	if got.Weekday() != time.Wednesday {
		t.Fatalf("next lands on %v, want Wednesday", got.Weekday())
	}
}

func TestNextOccurrenceIntervals(t *testing.T) {
	t.Parallel()
	completed := at(2025, time.January, 31, 12, 0)
	tests := []struct {
		name string
		rec  task.Recurrence
		want time.Time
	}{
		{
			name: "daily every 3",
			rec:  task.Recurrence{Type: task.RecurDaily, Interval: 3, PreferredMinute: task.NoPreferredMinute},
			want: at(2025, time.February, 3, 12, 0),
		},
		{
			name: "weekly every 2",
			rec:  task.Recurrence{Type: task.RecurWeekly, Interval: 2, PreferredMinute: task.NoPreferredMinute},
			want: at(2025, time.February, 14, 12, 0),
		},
		{
			name: "monthly rolls over short month",
			rec:  task.Recurrence{Type: task.RecurMonthly, Interval: 1, PreferredMinute: task.NoPreferredMinute},
			// Jan 31 + 1 calendar month normalizes to Mar 3 (2025 is not a leap year).
			want: at(2025, time.March, 3, 12, 0),
		},
		{
			name: "zero interval clamps to one",
			rec:  task.Recurrence{Type: task.RecurDaily, Interval: 0, PreferredMinute: task.NoPreferredMinute},
			want: at(2025, time.February, 1, 12, 0),
		},
		{
			name: "negative interval clamps to one",
			rec:  task.Recurrence{Type: task.RecurDaily, Interval: -5, PreferredMinute: task.NoPreferredMinute},
			want: at(2025, time.February, 1, 12, 0),
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := NextOccurrence(task.Task{Recurrence: tt.rec}, completed)
			if !ok {
				t.Fatal("expected a next occurrence")
			}
			if !got.Equal(tt.want) {
				t.Fatalf("next = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextOccurrenceCustomDays(t *testing.T) {
	t.Parallel()
	mwf := []time.Weekday{time.Monday, time.Wednesday, time.Friday}
	tests := []struct {
		name      string
		completed time.Time
		want      time.Time
	}{
		{
			// Friday is the last listed day of the week: wrap to Monday.
			name:      "friday wraps to monday",
			completed: at(2025, time.March, 7, 10, 0), // Friday
			want:      at(2025, time.March, 10, 10, 0),
		},
		{
			name:      "tuesday advances to wednesday",
			completed: at(2025, time.March, 4, 10, 0), // Tuesday
			want:      at(2025, time.March, 5, 10, 0),
		},
		{
			// Completing on a listed day never satisfies that same day.
			name:      "listed day is skipped",
			completed: at(2025, time.March, 5, 10, 0), // Wednesday
			want:      at(2025, time.March, 7, 10, 0),
		},
		{
			name:      "sunday advances to monday",
			completed: at(2025, time.March, 9, 10, 0), // Sunday
			want:      at(2025, time.March, 10, 10, 0),
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tk := task.Task{Recurrence: task.Recurrence{
				Type:            task.RecurCustomDays,
				DaysOfWeek:      mwf,
				Missed:          task.MissedPersistent,
				PreferredMinute: task.NoPreferredMinute,
			}}
			got, ok := NextOccurrence(tk, tt.completed)
			if !ok {
				t.Fatal("expected a next occurrence")
			}
			if !got.Equal(tt.want) {
				t.Fatalf("next = %v (%v), want %v (%v)", got, got.Weekday(), tt.want, tt.want.Weekday())
			}
		})
	}
}

func TestCustomDaysEmptySetDegradesToNone(t *testing.T) {
	t.Parallel()
	tk := task.Task{Recurrence: task.Recurrence{Type: task.RecurCustomDays, PreferredMinute: task.NoPreferredMinute}}
	if _, ok := NextOccurrence(tk, at(2025, time.March, 7, 10, 0)); ok {
		t.Fatal("custom_days without days must not produce an occurrence")
	}
}

func TestIsDue(t *testing.T) {
	t.Parallel()
	now := at(2025, time.March, 10, 9, 0)
	rec := task.Recurrence{Type: task.RecurDaily, Interval: 1, PreferredMinute: task.NoPreferredMinute}

	tests := []struct {
		name string
		tk   task.Task
		want bool
	}{
		{name: "no marker, not completed", tk: task.Task{Recurrence: rec}, want: true},
		{name: "no marker, completed", tk: task.Task{Recurrence: rec, Completed: true}, want: false},
		{name: "marker in past", tk: task.Task{Recurrence: rec, Completed: true, NextAt: ptr(now.Add(-time.Hour))}, want: true},
		{name: "marker exactly now", tk: task.Task{Recurrence: rec, Completed: true, NextAt: ptr(now)}, want: true},
		{name: "marker in future", tk: task.Task{Recurrence: rec, Completed: true, NextAt: ptr(now.Add(time.Hour))}, want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsDue(tt.tk, now); got != tt.want {
				t.Fatalf("IsDue = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResetForNextOccurrence(t *testing.T) {
	t.Parallel()
	done := at(2025, time.March, 10, 9, 0)
	tk := task.Task{
		Completed:   true,
		CompletedAt: &done,
		NextAt:      ptr(done.AddDate(0, 0, 1)),
		Recurrence:  task.Recurrence{Type: task.RecurDaily, Interval: 1, PreferredMinute: task.NoPreferredMinute},
	}
	got := ResetForNextOccurrence(tk)
	if got.Completed || got.CompletedAt != nil || got.NextAt != nil {
		t.Fatalf("reset left state behind: %+v", got)
	}
	// The input is a value; the original must be untouched.
	if !tk.Completed {
		t.Fatal("input task mutated")
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	r := Normalize(task.Recurrence{
		Type:            task.RecurCustomDays,
		Interval:        -2,
		DaysOfWeek:      []time.Weekday{time.Friday, time.Monday, time.Friday},
		PreferredMinute: 2000,
		SlotMinutes:     []int{900, -1, 420, 1440, 420},
	})
	if r.Interval != 1 {
		t.Fatalf("Interval = %d, want 1", r.Interval)
	}
	if r.Missed != task.MissedIgnorable {
		t.Fatalf("Missed = %q, want ignorable default", r.Missed)
	}
	if r.PreferredMinute != task.NoPreferredMinute {
		t.Fatalf("PreferredMinute = %d, want unset", r.PreferredMinute)
	}
	if len(r.DaysOfWeek) != 2 || r.DaysOfWeek[0] != time.Monday || r.DaysOfWeek[1] != time.Friday {
		t.Fatalf("DaysOfWeek = %v, want sorted unique [Monday Friday]", r.DaysOfWeek)
	}
	if len(r.SlotMinutes) != 2 || r.SlotMinutes[0] != 420 || r.SlotMinutes[1] != 900 {
		t.Fatalf("SlotMinutes = %v, want [420 900]", r.SlotMinutes)
	}
}

func TestNormalizeUnknownTypeBecomesNone(t *testing.T) {
	t.Parallel()
	if r := Normalize(task.Recurrence{}); r.Type != task.RecurNone {
		t.Fatalf("empty type = %q, want none", r.Type)
	}
	if r := Normalize(task.Recurrence{Type: "biweekly"}); r.Type != task.RecurNone {
		t.Fatalf("unknown type = %q, want none", r.Type)
	}

	// A record decoded from an empty recurrence object must behave like a
	// one-off: it never advances and never reads as due here.
	tk := task.Task{ID: "t1", Recurrence: task.Recurrence{Type: "biweekly"}}
	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.Local)
	if _, ok := NextOccurrence(tk, now); ok {
		t.Fatal("unknown type produced a next occurrence")
	}
	if IsDue(tk, now) {
		t.Fatal("unknown type reads as due")
	}
}
