package task

import (
	"time"

	"github.com/google/uuid"
)

// RecurrenceType is the repetition unit of a task.
type RecurrenceType string

const (
	RecurNone       RecurrenceType = "none"
	RecurDaily      RecurrenceType = "daily"
	RecurWeekly     RecurrenceType = "weekly"
	RecurMonthly    RecurrenceType = "monthly"
	RecurCustomDays RecurrenceType = "custom_days"
)

// MissedBehaviour is the policy for a reminder the user didn't act on.
//
//   - Ignorable: a missed instance is forgiven; the next prompt returns to
//     the originally intended slot.
//   - Persistent: the task stays due until completed, and future occurrences
//     anchor to the actual completion moment.
type MissedBehaviour string

const (
	MissedIgnorable  MissedBehaviour = "ignorable"
	MissedPersistent MissedBehaviour = "persistent"
)

// NoPreferredMinute marks an unset preferred time-of-day.
const NoPreferredMinute = -1

// Recurrence describes how a task repeats. It is a value type; treat it as
// immutable once attached to a task.
type Recurrence struct {
	Type     RecurrenceType `json:"type"`
	Interval int            `json:"interval,omitempty"` // every N units; ignored for custom_days

	// DaysOfWeek is used only when Type is custom_days and must be non-empty
	// then. Weekday numbering follows time.Weekday (Sunday = 0).
	DaysOfWeek []time.Weekday `json:"days_of_week,omitempty"`

	Missed MissedBehaviour `json:"missed_behaviour,omitempty"`

	// PreferredMinute anchors the time of day, minutes since midnight in
	// [0,1440). NoPreferredMinute (-1) means unset.
	PreferredMinute int `json:"preferred_minute,omitempty"`

	// TimesPerDay is the fallback daily slot count when SlotMinutes is empty.
	TimesPerDay int `json:"times_per_day,omitempty"`

	// SlotMinutes are explicit minute-of-day reminder slots. When non-empty
	// they take precedence over TimesPerDay.
	SlotMinutes []int `json:"slot_minutes,omitempty"`
}

// Task is the unit of work the daemon reminds about. The task store is the
// sole writer of persisted task state; everything here only reads tasks and
// proposes updated copies.
type Task struct {
	ID    string `json:"id"`
	Title string `json:"title"`

	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// DueAt is the fixed due time, nil when the task has none.
	DueAt *time.Time `json:"due_at,omitempty"`

	Recurrence Recurrence `json:"recurrence"`

	// NextAt caches when a completed recurring task should next become due.
	// Cleared again when the task cycles back to active.
	NextAt *time.Time `json:"next_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a task with a fresh id and no recurrence.
func New(title string) Task {
	now := time.Now()
	return Task{
		ID:    uuid.NewString(),
		Title: title,
		Recurrence: Recurrence{
			Type:            RecurNone,
			PreferredMinute: NoPreferredMinute,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch refreshes the modification timestamp.
func (t *Task) Touch() { t.UpdatedAt = time.Now() }

// IsRecurring reports whether the task has an active recurrence rule.
func (t Task) IsRecurring() bool { return t.Recurrence.Type != RecurNone }

// MarkCompleted returns a copy with completion state set at the given moment.
func (t Task) MarkCompleted(at time.Time) Task {
	t.Completed = true
	t.CompletedAt = &at
	t.UpdatedAt = time.Now()
	return t
}

// HasPreferredMinute reports whether a preferred time of day is set.
func (r Recurrence) HasPreferredMinute() bool {
	return r.PreferredMinute >= 0 && r.PreferredMinute < 1440
}
