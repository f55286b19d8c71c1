package recurrence

import (
	"fmt"
	"strings"

	"remindd/internal/task"
)

// Describe renders a short human-readable summary of a recurrence rule,
// e.g. "Weekly (every 2), persistent" or "On Mon, Wed, Fri".
func Describe(r task.Recurrence) string {
	r = Normalize(r)

	var b strings.Builder
	switch r.Type {
	case task.RecurNone:
		return "No repeat"
	case task.RecurDaily:
		b.WriteString("Daily")
	case task.RecurWeekly:
		b.WriteString("Weekly")
	case task.RecurMonthly:
		b.WriteString("Monthly")
	case task.RecurCustomDays:
		names := make([]string, 0, len(r.DaysOfWeek))
		for _, d := range r.DaysOfWeek {
			names = append(names, d.String()[:3])
		}
		b.WriteString("On " + strings.Join(names, ", "))
	}

	if r.Type != task.RecurCustomDays && r.Interval > 1 {
		fmt.Fprintf(&b, " (every %d)", r.Interval)
	}
	if r.Missed == task.MissedPersistent {
		b.WriteString(", persistent")
	}
	return b.String()
}
