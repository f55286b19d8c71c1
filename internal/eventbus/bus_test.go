package eventbus

import (
	"testing"
	"time"
)

func TestPublishFansOutToSubscribers(t *testing.T) {
	t.Parallel()
	b := New()
	ch1, unsub1 := b.Subscribe(4)
	ch2, unsub2 := b.Subscribe(4)
	defer unsub1()
	defer unsub2()

	b.Publish(Event{Type: ReminderFired, TaskID: "t1", Slot: 2})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case e := <-ch:
			if e.Type != ReminderFired || e.TaskID != "t1" || e.Slot != 2 {
				t.Fatalf("subscriber %d got %+v", i, e)
			}
			if e.Time.IsZero() {
				t.Fatalf("subscriber %d got zero time", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d never received the event", i)
		}
	}
}

func TestSlowSubscriberDropsNotBlocks(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	// The second publish must not block even though the buffer is full.
	b.Publish(Event{Type: TaskScheduled, TaskID: "t1"})
	b.Publish(Event{Type: TaskCompleted, TaskID: "t1"})

	e := <-ch
	if e.Type != TaskScheduled {
		t.Fatalf("got %q, want the first event", e.Type)
	}
	select {
	case e := <-ch:
		t.Fatalf("overflow event %q was not dropped", e.Type)
	default:
	}
}

func TestUnsubscribeClosesOnce(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()

	if _, ok := <-ch; ok {
		t.Fatal("channel still open after unsubscribe")
	}
	// Publishing after unsubscribe must not panic.
	b.Publish(Event{Type: ReminderStale, TaskID: "t1"})
}

func TestNilBusIsQuiet(t *testing.T) {
	t.Parallel()
	var b *Bus
	b.Publish(Event{Type: ReminderFired})
}
