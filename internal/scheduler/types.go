package scheduler

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"remindd/internal/eventbus"
	"remindd/internal/notify"
	"remindd/internal/storage"
	"remindd/internal/timers"
	logx "remindd/pkg/logx"
)

// Config controls the reminder scheduler service.
type Config struct {
	Enabled  bool
	Timezone string // IANA TZ, e.g. "Asia/Jakarta"; empty means Local

	// DueCheckEvery is the period of the due sweep that cycles completed
	// tasks back to active and re-arms day-rollover timers. Zero means 1m.
	DueCheckEvery time.Duration

	// ExactAlarms requests exact trigger times from the timer service.
	// Refusals degrade to inexact per slot, never fail the operation.
	ExactAlarms bool
}

// Service is the reminder scheduler. See the package doc for the
// concurrency model.
type Service struct {
	mu  sync.Mutex
	cfg Config
	loc *time.Location
	c   *cron.Cron

	log       logx.Logger
	bus       *eventbus.Bus
	store     storage.Store
	timers    timers.Service
	presenter notify.Presenter

	locks *keyedLocks

	// smu guards the per-task scheduling bookkeeping.
	smu sync.Mutex
	// gens is the monotonic scheduling generation per task id. It bumps on
	// every (re)schedule and cancellation so older timers turn stale.
	gens map[string]uint64
	// installed remembers the slot identity-space size from the last
	// schedule, so cancellation can address slots even after a task edit
	// shrank the configured count.
	installed map[string]int

	// nowFn is replaced in tests.
	nowFn func() time.Time
}

// TaskInfo is a diagnostic view of one task's scheduling state.
type TaskInfo struct {
	TaskID     string
	Generation uint64
	SlotCount  int
}

type Snapshot struct {
	Enabled  bool
	Timezone string
	Tasks    []TaskInfo
}
