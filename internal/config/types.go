package config

import (
	"fmt"
	"strings"
)

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`

	// Notifier controls the async reminder delivery pipeline.
	// If omitted, the notifier defaults to enabled with runtime defaults.
	Notifier *NotifierConfig `json:"notifier,omitempty"`

	// Storage controls the persistence layer. Nil means in-memory only
	// (tasks are lost on restart and boot recovery finds nothing).
	Storage *StorageConfig `json:"storage,omitempty"`

	// Timers controls the timer backend. Nil means exact alarms allowed
	// with 1m inexact granularity.
	Timers *TimersConfig `json:"timers,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// ChatID is where reminders are delivered. ThreadID targets a forum
	// topic within that chat (0 for none).
	ChatID   int64 `json:"chat_id"`
	ThreadID int   `json:"thread_id,omitempty"`
	// SendTimeout is a Go duration string (e.g. "10s", "1m").
	SendTimeout string `json:"send_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the reminder scheduler.
//
// All durations are Go duration strings (e.g. "30s", "1m").
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`

	// Timezone is an IANA TZ name (e.g. "Asia/Jakarta"). Empty means the
	// process local zone.
	Timezone string `json:"timezone,omitempty"`

	// DueCheckEvery is the period of the due sweep. Use "0s" for the
	// runtime default (1m).
	DueCheckEvery string `json:"due_check_every,omitempty"`

	// ExactAlarms requests exact trigger times. Refusals fall back to
	// inexact timers per slot.
	ExactAlarms bool `json:"exact_alarms"`
}

// NotifierConfig controls the async reminder delivery pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// If the whole section is omitted, the notifier defaults to enabled.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Workers         int    `json:"workers"`
	QueueSize       int    `json:"queue_size"`
	RatePerSec      int    `json:"rate_per_sec"`
	RetryMax        int    `json:"retry_max"`
	RetryBase       string `json:"retry_base"`
	RetryMaxDelay   string `json:"retry_max_delay"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./remindd_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type TimersConfig struct {
	// AllowExact mirrors the platform exact-alarm permission. When false,
	// exact installs are refused and the scheduler degrades to inexact.
	AllowExact bool `json:"allow_exact"`
	// InexactGranularity is a Go duration string. Use "0s" for the
	// runtime default (1m).
	InexactGranularity string `json:"inexact_granularity,omitempty"`
}

var knownDrivers = map[string]bool{"": true, "none": true, "file": true, "sqlite": true, "memory": true}

// Validate checks cross-field consistency and that every duration string
// parses. It does not apply defaults; callers materialize runtime settings
// themselves.
func (c *Config) Validate() error {
	durations := []struct{ path, raw string }{
		{"telegram.send_timeout", c.Telegram.SendTimeout},
		{"scheduler.due_check_every", c.Scheduler.DueCheckEvery},
	}
	if n := c.Notifier; n != nil {
		durations = append(durations,
			struct{ path, raw string }{"notifier.retry_base", n.RetryBase},
			struct{ path, raw string }{"notifier.retry_max_delay", n.RetryMaxDelay},
			struct{ path, raw string }{"notifier.dedup_window", n.DedupWindow},
		)
	}
	if s := c.Storage; s != nil {
		durations = append(durations, struct{ path, raw string }{"storage.busy_timeout", s.BusyTimeout})
	}
	if t := c.Timers; t != nil {
		durations = append(durations, struct{ path, raw string }{"timers.inexact_granularity", t.InexactGranularity})
	}
	for _, d := range durations {
		if _, err := Duration(d.path, d.raw); err != nil {
			return err
		}
	}

	if s := c.Storage; s != nil {
		drv := strings.ToLower(strings.TrimSpace(s.Driver))
		if !knownDrivers[drv] {
			return fmt.Errorf("storage.driver: unknown driver %q", s.Driver)
		}
		if (drv == "file" || drv == "sqlite") && strings.TrimSpace(s.Path) == "" {
			return fmt.Errorf("storage.path: required for driver %q", drv)
		}
	}

	notifierOn := c.Notifier == nil || c.Notifier.Enabled
	if c.Scheduler.Enabled && notifierOn && strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token: required while the notifier is enabled")
	}
	if c.Telegram.ChatID == 0 && notifierOn && c.Scheduler.Enabled {
		return fmt.Errorf("telegram.chat_id: required while the notifier is enabled")
	}
	return nil
}
