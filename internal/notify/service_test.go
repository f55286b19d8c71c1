package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"remindd/internal/transport"
	logx "remindd/pkg/logx"
)

type fakeAdapter struct {
	mu      sync.Mutex
	sent    []string
	deleted []transport.MessageRef
	nextID  int
	failN   int // fail this many sends before succeeding
	sentCh  chan struct{}
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{sentCh: make(chan struct{}, 32)}
}

func (f *fakeAdapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failN > 0 {
		f.failN--
		return transport.MessageRef{}, errors.New("send failed")
	}
	f.nextID++
	f.sent = append(f.sent, text)
	ref := transport.MessageRef{ChatID: to.ChatID, MessageID: f.nextID}
	select {
	case f.sentCh <- struct{}{}:
	default:
	}
	return ref, nil
}

func (f *fakeAdapter) DeleteMessage(ctx context.Context, ref transport.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ref)
	return nil
}

func (f *fakeAdapter) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func waitSent(t *testing.T, ad *fakeAdapter) {
	t.Helper()
	select {
	case <-ad.sentCh:
	case <-time.After(2 * time.Second):
		t.Fatal("send never happened")
	}
}

func testConfig() Config {
	return Config{
		Enabled:    true,
		Workers:    1,
		QueueSize:  8,
		RatePerSec: 1000,
		Target:     transport.ChatTarget{ChatID: 42},
	}
}

func TestPresentDeliversAndTracksRef(t *testing.T) {
	t.Parallel()
	ad := newFakeAdapter()
	s := New(testConfig(), ad, logx.Nop(), nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.Present(context.Background(), "t1", "water the plants", 0); err != nil {
		t.Fatalf("Present: %v", err)
	}
	waitSent(t, ad)

	if err := s.Dismiss(context.Background(), "t1", 0); err != nil {
		t.Fatalf("Dismiss: %v", err)
	}
	ad.mu.Lock()
	defer ad.mu.Unlock()
	if len(ad.deleted) != 1 || ad.deleted[0].MessageID != 1 {
		t.Fatalf("deleted = %+v, want the presented message", ad.deleted)
	}

	hist := s.History()
	if len(hist) != 1 || hist[0].TaskID != "t1" || hist[0].Slot != 0 {
		t.Fatalf("history = %+v, want the delivered reminder", hist)
	}
}

func TestDismissAllRetractsEverySlot(t *testing.T) {
	t.Parallel()
	ad := newFakeAdapter()
	s := New(testConfig(), ad, logx.Nop(), nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	for slot := 0; slot < 3; slot++ {
		if err := s.Present(context.Background(), "t1", "water the plants", slot); err != nil {
			t.Fatalf("Present slot %d: %v", slot, err)
		}
		waitSent(t, ad)
	}
	if err := s.Present(context.Background(), "t2", "stretch", 0); err != nil {
		t.Fatalf("Present t2: %v", err)
	}
	waitSent(t, ad)

	s.DismissAll(context.Background(), "t1")

	ad.mu.Lock()
	defer ad.mu.Unlock()
	if len(ad.deleted) != 3 {
		t.Fatalf("deleted %d messages, want the 3 for t1", len(ad.deleted))
	}
	// The other task's message must survive; its ref is still dismissable.
	s.rmu.Lock()
	_, ok := s.refs[refKey{TaskID: "t2", Slot: 0}]
	s.rmu.Unlock()
	if !ok {
		t.Fatal("unrelated task lost its presented ref")
	}
}

func TestDismissUnknownIsNoop(t *testing.T) {
	t.Parallel()
	ad := newFakeAdapter()
	s := New(testConfig(), ad, logx.Nop(), nil)
	if err := s.Dismiss(context.Background(), "ghost", 3); err != nil {
		t.Fatalf("Dismiss: %v", err)
	}
	if len(ad.deleted) != 0 {
		t.Fatal("dismiss of unknown ref must not call the adapter")
	}
}

func TestPresentDedupWindow(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.DedupWindow = time.Minute
	ad := newFakeAdapter()
	s := New(cfg, ad, logx.Nop(), nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.Present(context.Background(), "t1", "stretch", 2); err != nil {
		t.Fatalf("Present: %v", err)
	}
	// Same (task, slot) inside the window is suppressed, not an error.
	if err := s.Present(context.Background(), "t1", "stretch", 2); err != nil {
		t.Fatalf("deduped Present: %v", err)
	}
	// A different slot is its own identity.
	if err := s.Present(context.Background(), "t1", "stretch", 3); err != nil {
		t.Fatalf("Present slot 3: %v", err)
	}

	waitSent(t, ad)
	waitSent(t, ad)
	time.Sleep(50 * time.Millisecond)
	if n := ad.sentCount(); n != 2 {
		t.Fatalf("sent %d messages, want 2", n)
	}
}

func TestPresentRetries(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.RetryMax = 2
	cfg.RetryBase = time.Millisecond
	ad := newFakeAdapter()
	ad.failN = 1
	s := New(cfg, ad, logx.Nop(), nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.Present(context.Background(), "t1", "take meds", 0); err != nil {
		t.Fatalf("Present: %v", err)
	}
	waitSent(t, ad)
	if n := ad.sentCount(); n != 1 {
		t.Fatalf("sent %d, want 1 after retry", n)
	}
}

func TestPresentWhenDisabled(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Enabled = false
	s := New(cfg, newFakeAdapter(), logx.Nop(), nil)
	if err := s.Present(context.Background(), "t1", "x", 0); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
}
