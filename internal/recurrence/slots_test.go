package recurrence

import (
	"testing"
	"time"

	"remindd/internal/task"
)

func TestPlanMinutesExplicitSlots(t *testing.T) {
	t.Parallel()
	r := task.Recurrence{
		Type:            task.RecurDaily,
		SlotMinutes:     []int{420, 780, 1080, 1320}, // 07:00 13:00 18:00 22:00
		TimesPerDay:     9,                           // must be ignored
		PreferredMinute: task.NoPreferredMinute,
	}
	got := PlanMinutes(r)
	want := []int{420, 780, 1080, 1320}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestPlanMinutesEvenSpread(t *testing.T) {
	t.Parallel()
	r := task.Recurrence{
		Type:            task.RecurDaily,
		TimesPerDay:     4,
		PreferredMinute: task.NoPreferredMinute,
	}
	got := PlanMinutes(r)
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	if got[0] != wakeStartMinute || got[len(got)-1] != wakeEndMinute {
		t.Fatalf("spread %v must include both window endpoints", got)
	}
	for i := 1; i < len(got); i++ {
		if got[i] <= got[i-1] {
			t.Fatalf("spread %v not strictly ascending", got)
		}
		if got[i] > wakeEndMinute {
			t.Fatalf("slot %d exceeds the waking window", got[i])
		}
	}
}

func TestPlanMinutesSingleSlot(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		rec  task.Recurrence
		want int
	}{
		{
			name: "preferred minute wins",
			rec:  task.Recurrence{Type: task.RecurDaily, TimesPerDay: 1, PreferredMinute: 510},
			want: 510,
		},
		{
			name: "default wake anchor",
			rec:  task.Recurrence{Type: task.RecurDaily, TimesPerDay: 1, PreferredMinute: task.NoPreferredMinute},
			want: wakeStartMinute,
		},
		{
			name: "times per day zero clamps to one",
			rec:  task.Recurrence{Type: task.RecurDaily, TimesPerDay: 0, PreferredMinute: task.NoPreferredMinute},
			want: wakeStartMinute,
		},
		{
			name: "anchor past window end collapses the spread",
			rec:  task.Recurrence{Type: task.RecurDaily, TimesPerDay: 3, PreferredMinute: 23 * 60},
			want: 23 * 60,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := PlanMinutes(tt.rec)
			if len(got) != 1 || got[0] != tt.want {
				t.Fatalf("got %v, want [%d]", got, tt.want)
			}
		})
	}
}

func TestPlanSlotsPushesPastTimesToTomorrow(t *testing.T) {
	t.Parallel()
	now := at(2025, time.March, 10, 14, 0) // between the 13:00 and 18:00 slots
	r := task.Recurrence{
		Type:            task.RecurDaily,
		SlotMinutes:     []int{420, 780, 1080, 1320},
		PreferredMinute: task.NoPreferredMinute,
	}
	slots := PlanSlots(r, now)
	if len(slots) != 4 {
		t.Fatalf("len = %d, want 4", len(slots))
	}

	wantDays := []int{11, 11, 10, 10} // 07:00 and 13:00 already passed
	for i, s := range slots {
		if s.Index != i {
			t.Fatalf("slot %d carries index %d", i, s.Index)
		}
		if s.At.Day() != wantDays[i] {
			t.Fatalf("slot %d at %v, want day %d", i, s.At, wantDays[i])
		}
		if s.At.Hour()*60+s.At.Minute() != r.SlotMinutes[i] {
			t.Fatalf("slot %d at %v, want minute-of-day %d", i, s.At, r.SlotMinutes[i])
		}
		if !s.At.After(now) {
			t.Fatalf("slot %d at %v not in the future", i, s.At)
		}
	}
}

func TestPlanSlotsDeterministic(t *testing.T) {
	t.Parallel()
	now := at(2025, time.March, 10, 14, 0)
	r := task.Recurrence{Type: task.RecurDaily, TimesPerDay: 3, PreferredMinute: 8 * 60}

	a := PlanSlots(r, now)
	b := PlanSlots(r, now)
	if len(a) != len(b) {
		t.Fatalf("plans differ in length: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("plan not deterministic at slot %d: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestSlotCount(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		rec  task.Recurrence
		want int
	}{
		{name: "explicit slots", rec: task.Recurrence{SlotMinutes: []int{60, 120}, TimesPerDay: 5, PreferredMinute: task.NoPreferredMinute}, want: 2},
		{name: "fallback count", rec: task.Recurrence{TimesPerDay: 3, PreferredMinute: task.NoPreferredMinute}, want: 3},
		{name: "clamped to one", rec: task.Recurrence{TimesPerDay: 0, PreferredMinute: task.NoPreferredMinute}, want: 1},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := SlotCount(tt.rec); got != tt.want {
				t.Fatalf("SlotCount = %d, want %d", got, tt.want)
			}
		})
	}
}
