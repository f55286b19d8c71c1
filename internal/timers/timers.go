// Package timers is the boundary to the platform timer/alarm facility.
//
// The scheduler only decides what to install and when; this package owns the
// actual countdowns. The in-process implementation backs timers with
// time.AfterFunc and guards every callback with a per-key version so a
// stopped-then-replaced timer can never fire its old callback.
package timers

import (
	"context"
	"errors"
	"sync"
	"time"

	logx "remindd/pkg/logx"
)

// ErrExactUnavailable is returned by Install when an exact trigger was
// requested but the platform withholds exact alarms. Callers are expected
// to retry inexact: a late reminder beats no reminder.
var ErrExactUnavailable = errors.New("timers: exact scheduling unavailable")

// Key addresses one installed timer: a task's slot.
type Key struct {
	TaskID string
	Slot   int
}

// FireFunc receives timer callbacks together with the scheduling generation
// that was stamped at install time.
type FireFunc func(key Key, gen uint64)

// Service is what the reminder scheduler needs from a timer facility.
type Service interface {
	// Install arms (or re-arms) the timer for key. Exact requests may be
	// refused with ErrExactUnavailable.
	Install(ctx context.Context, key Key, gen uint64, at time.Time, exact bool) error
	// Cancel disarms the timer for key. Cancelling a key that has no timer
	// is a no-op, not an error.
	Cancel(ctx context.Context, key Key)
}

type Config struct {
	// AllowExact mirrors the platform's exact-alarm permission. When false,
	// exact Install requests are refused and inexact ones are coarsened.
	AllowExact bool

	// InexactGranularity rounds inexact trigger delays up. Zero means 1m.
	InexactGranularity time.Duration
}

// Local is the in-process timer service.
type Local struct {
	cfg  Config
	log  logx.Logger
	fire FireFunc

	mu     sync.Mutex
	timers map[Key]*time.Timer
	vers   map[Key]uint64
	gens   map[Key]uint64
	ats    map[Key]time.Time
}

func NewLocal(cfg Config, fire FireFunc, log logx.Logger) *Local {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.InexactGranularity <= 0 {
		cfg.InexactGranularity = time.Minute
	}
	return &Local{
		cfg:    cfg,
		log:    log,
		fire:   fire,
		timers: map[Key]*time.Timer{},
		vers:   map[Key]uint64{},
		gens:   map[Key]uint64{},
		ats:    map[Key]time.Time{},
	}
}

func (l *Local) Install(ctx context.Context, key Key, gen uint64, at time.Time, exact bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if exact && !l.cfg.AllowExact {
		return ErrExactUnavailable
	}

	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	if !exact {
		delay = ceilDelay(delay, l.cfg.InexactGranularity)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Upsert: stop any existing timer for this key.
	if t, ok := l.timers[key]; ok {
		_ = t.Stop()
		delete(l.timers, key)
	}
	// Bump the key version so a stale callback from the replaced timer is
	// ignored even if it already left AfterFunc's runway.
	ver := l.vers[key] + 1
	l.vers[key] = ver
	l.gens[key] = gen
	l.ats[key] = at

	localKey := key
	localVer := ver
	localGen := gen
	l.timers[key] = time.AfterFunc(delay, func() {
		l.mu.Lock()
		if l.vers[localKey] != localVer {
			l.mu.Unlock()
			return
		}
		// One-shot: the definition is consumed by firing.
		delete(l.timers, localKey)
		delete(l.gens, localKey)
		delete(l.ats, localKey)
		fire := l.fire
		l.mu.Unlock()

		if fire != nil {
			fire(localKey, localGen)
		}
	})
	return nil
}

// ceilDelay coarsens an inexact delay to the next granularity boundary.
// Rounding is always up: an inexact reminder may run late, never early.
func ceilDelay(d, g time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	if g <= 0 {
		return d
	}
	if rem := d % g; rem != 0 {
		d += g - rem
	}
	return d
}

func (l *Local) Cancel(ctx context.Context, key Key) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t, ok := l.timers[key]; ok {
		_ = t.Stop()
		delete(l.timers, key)
		delete(l.gens, key)
		delete(l.ats, key)
		l.vers[key]++
	}
}

// Stop disarms everything. Used on daemon shutdown; installed definitions
// are not persisted here (the scheduler rebuilds them on boot recovery).
func (l *Local) Stop(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, t := range l.timers {
		_ = t.Stop()
		l.vers[k]++
	}
	l.timers = map[Key]*time.Timer{}
	l.gens = map[Key]uint64{}
	l.ats = map[Key]time.Time{}
}

// Installed returns a snapshot of the currently armed keys with their
// trigger times. Primarily for diagnostics and tests.
func (l *Local) Installed() map[Key]time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[Key]time.Time, len(l.ats))
	for k, at := range l.ats {
		out[k] = at
	}
	return out
}
