package recurrence

import (
	"testing"
	"time"

	"remindd/internal/task"
)

func TestDescribe(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		rec  task.Recurrence
		want string
	}{
		{name: "none", rec: task.Recurrence{Type: task.RecurNone}, want: "No repeat"},
		{name: "daily", rec: task.Recurrence{Type: task.RecurDaily, Interval: 1}, want: "Daily"},
		{
			name: "weekly every 2 persistent",
			rec:  task.Recurrence{Type: task.RecurWeekly, Interval: 2, Missed: task.MissedPersistent},
			want: "Weekly (every 2), persistent",
		},
		{name: "monthly", rec: task.Recurrence{Type: task.RecurMonthly, Interval: 1}, want: "Monthly"},
		{
			name: "custom days",
			rec: task.Recurrence{
				Type:       task.RecurCustomDays,
				DaysOfWeek: []time.Weekday{time.Friday, time.Monday, time.Wednesday},
			},
			want: "On Mon, Wed, Fri",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Describe(tt.rec); got != tt.want {
				t.Fatalf("Describe = %q, want %q", got, tt.want)
			}
		})
	}
}
