package storage

import (
	"context"
	"errors"
	"time"

	"remindd/internal/task"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (snapshot + jsonl journal)
//   - "sqlite": SQLite database file (optional build tag)
//   - "memory": volatile in-memory store
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the task persistence API used by the reminder services.
//
// RecurringTasks returns every task carrying a recurrence rule, completed
// or not: boot recovery schedules the incomplete ones and the due sweep
// watches the completed ones for their next-occurrence marker.
type Store interface {
	RecurringTasks(ctx context.Context) ([]task.Task, error)
	GetTask(ctx context.Context, id string) (task.Task, bool, error)
	PutTask(ctx context.Context, t task.Task) error
	DeleteTask(ctx context.Context, id string) error
	Close() error
}
