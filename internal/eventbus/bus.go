// Package eventbus distributes reminder lifecycle signals inside the
// process. Services publish what happened; anyone interested subscribes.
// Delivery is best-effort: a subscriber that stops draining loses events,
// it never stalls a publisher.
package eventbus

import (
	"sync"
	"time"
)

// Type identifies a reminder lifecycle event.
type Type string

const (
	TaskScheduled    Type = "task.scheduled"
	TaskCompleted    Type = "task.completed"
	ReminderFired    Type = "reminder.fired"
	ReminderStale    Type = "reminder.stale"
	RecoveryFinished Type = "recovery.finished"

	NotifySent    Type = "notify.sent"
	NotifyFailed  Type = "notify.failed"
	NotifyDropped Type = "notify.dropped"
	NotifyDeduped Type = "notify.deduped"
)

// Event is one lifecycle signal. TaskID is empty for process-wide events
// such as recovery.finished; Slot is meaningful only for slot-scoped types
// (reminder and notify events). Count carries the installed slot count for
// task.scheduled and the rescheduled task count for recovery.finished.
type Event struct {
	Type   Type
	Time   time.Time
	TaskID string
	Slot   int
	Count  int
	Err    string
}

// Bus is an in-memory fanout. The zero value is not usable; construct with
// New. A nil *Bus is safe to publish to, which lets tests skip wiring one.
type Bus struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Event
}

func New() *Bus {
	return &Bus{subs: map[int]chan Event{}}
}

// Publish delivers e to every subscriber without blocking. A subscriber
// whose buffer is full misses this event.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.Lock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
	b.mu.Unlock()
}

// Subscribe registers a listener with the given buffer size and returns its
// channel along with an unsubscribe func. Unsubscribing closes the channel;
// calling it more than once is harmless. Channel close happens under the
// bus lock, so Publish can never send on a closed channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.next++
	id := b.next
	b.subs[id] = ch
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, unsub
}
