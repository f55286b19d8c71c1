package notify

import (
	"context"
	"time"

	"remindd/internal/transport"
)

// Presenter is the notification dispatch boundary the reminder scheduler
// calls. Present surfaces a reminder for one slot of a task; Dismiss
// retracts it after the user resolved or skipped the instance. DismissAll
// retracts everything still showing for a task, whatever the slot.
type Presenter interface {
	Present(ctx context.Context, taskID, title string, slot int) error
	Dismiss(ctx context.Context, taskID string, slot int) error
	DismissAll(ctx context.Context, taskID string)
}

// Reminder is one presentable reminder instance.
type Reminder struct {
	TaskID string
	Title  string
	Slot   int
}

// Config controls the async dispatch pipeline.
type Config struct {
	Enabled   bool
	Workers   int
	QueueSize int

	// RatePerSec caps outbound sends (token bucket, burst = rate).
	RatePerSec int

	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration

	// DedupWindow suppresses re-presenting the same (task, slot) within the
	// window. Zero disables dedup.
	DedupWindow     time.Duration
	DedupMaxEntries int

	// Target is the conversation reminders are delivered to.
	Target transport.ChatTarget
}

type HistoryItem struct {
	At     time.Time
	TaskID string
	Slot   int
	Text   string
}
