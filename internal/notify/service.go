package notify

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"remindd/internal/eventbus"
	"remindd/internal/transport"
	logx "remindd/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notify: dispatcher disabled")
	ErrQueueFull = errors.New("notify: queue full")
	ErrStopped   = errors.New("notify: dispatcher stopped")
)

type refKey struct {
	TaskID string
	Slot   int
}

type job struct {
	r Reminder
	// dedupKey is computed at enqueue time for cheap per-worker processing.
	dedupKey string
}

// Service implements Presenter as an async pipeline:
// queue + worker pool + rate limit + retry + dedup.
//
// It tracks the message ref of every presented reminder so Dismiss can
// retract exactly the message that was shown. Safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	adapter transport.Adapter
	bus     *eventbus.Bus

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan job
	stopDone chan struct{}

	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup

	// Presented message refs: (task, slot) -> delivered message.
	rmu  sync.Mutex
	refs map[refKey]transport.MessageRef

	// In-memory dedup cache: key -> suppress until
	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, adapter transport.Adapter, log logx.Logger, bus *eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		adapter: adapter,
		log:     log,
		bus:     bus,
		refs:    map[refKey]transport.MessageRef{},
		dedup:   map[string]time.Time{},
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	// Defaults
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 2000
	}

	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.queue != nil {
		// already running
		s.mu.Unlock()
		return
	}
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}

	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	s.stopDone = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	workers := s.cfg.Workers
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		i := i
		s.workerWG.Add(1)
		go func() {
			defer s.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in dispatch worker", logx.Int("worker", i), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				}
			}()
			s.workerLoop()
		}()
	}
}

// Stop stops intake and drains the queue best-effort until ctx deadline.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q := s.queue
	done := s.stopDone
	cancel := s.runCancel
	if q == nil {
		s.mu.Unlock()
		return
	}
	// Block new presents.
	s.accepting = false
	s.mu.Unlock()

	// Wait for in-flight enqueues to finish, then close the queue so workers can drain.
	ch := make(chan struct{})
	go func() {
		s.sendWG.Wait()
		close(ch)
	}()
	select {
	case <-ctx.Done():
		if cancel != nil {
			cancel()
		}
		return
	case <-ch:
	}

	func() {
		defer func() { _ = recover() }()
		close(q)
	}()

	go func() {
		s.workerWG.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		if cancel != nil {
			cancel()
		}
	case <-done:
		if cancel != nil {
			cancel()
		}
	}

	s.mu.Lock()
	s.queue = nil
	s.stopDone = nil
	s.runCancel = nil
	s.runCtx = nil
	s.mu.Unlock()
}

// Present enqueues a reminder for delivery. It never blocks on the network;
// a full queue is reported, not waited out.
func (s *Service) Present(ctx context.Context, taskID, title string, slot int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	dedupWindow := s.cfg.DedupWindow
	dedupMax := s.cfg.DedupMaxEntries
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	r := Reminder{TaskID: taskID, Title: title, Slot: slot}
	key := dedupKey(r)
	if dedupWindow > 0 {
		if !s.dedupAllow(key, dedupWindow, dedupMax) {
			s.publish(eventbus.NotifyDeduped, r, "")
			return nil
		}
	}

	select {
	case q <- job{r: r, dedupKey: key}:
		return nil
	default:
		s.publish(eventbus.NotifyDropped, r, ErrQueueFull.Error())
		return ErrQueueFull
	}
}

// Dismiss retracts the presented message for (task, slot), if any. Unknown
// refs are a no-op: dismissal must always be safe to call.
func (s *Service) Dismiss(ctx context.Context, taskID string, slot int) error {
	s.rmu.Lock()
	ref, ok := s.refs[refKey{TaskID: taskID, Slot: slot}]
	if ok {
		delete(s.refs, refKey{TaskID: taskID, Slot: slot})
	}
	s.rmu.Unlock()
	if !ok {
		return nil
	}

	s.mu.Lock()
	ad := s.adapter
	s.mu.Unlock()
	if ad == nil {
		return nil
	}

	callCtx, cancelCall := context.WithTimeout(ctx, 10*time.Second)
	defer cancelCall()
	if err := ad.DeleteMessage(callCtx, ref); err != nil {
		// Best-effort: an already-deleted message is not worth surfacing.
		s.log.Debug("dismiss failed", logx.String("task", taskID), logx.Int("slot", slot), logx.Err(err))
	}
	return nil
}

// DismissAll retracts every presented message for a task across its slots.
func (s *Service) DismissAll(ctx context.Context, taskID string) {
	s.rmu.Lock()
	slots := make([]int, 0, 4)
	for k := range s.refs {
		if k.TaskID == taskID {
			slots = append(slots, k.Slot)
		}
	}
	s.rmu.Unlock()
	for _, slot := range slots {
		_ = s.Dismiss(ctx, taskID, slot)
	}
}

func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(r Reminder, text string) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), TaskID: r.TaskID, Slot: r.Slot, Text: text})
	if len(s.history) > 300 {
		s.history = s.history[len(s.history)-300:]
	}
	s.hmu.Unlock()
}

func (s *Service) workerLoop() {
	s.mu.Lock()
	q := s.queue
	runCtx := s.runCtx
	s.mu.Unlock()

	for j := range q {
		if runCtx != nil {
			select {
			case <-runCtx.Done():
				return
			default:
			}
		}
		s.sendWithRetry(runCtx, j)
	}
}

func (s *Service) sendWithRetry(runCtx context.Context, j job) {
	// config snapshot for this send
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	ad := s.adapter
	log := s.log
	s.mu.Unlock()

	if ad == nil {
		return
	}

	text := "⏰ " + j.r.Title
	maxAttempts := 1
	if cfg.RetryMax > 0 {
		maxAttempts = 1 + cfg.RetryMax
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		// Rate limit (honor cancellation).
		if lim != nil {
			wctx := runCtx
			if wctx == nil {
				wctx = context.Background()
			}
			if err := lim.Wait(wctx); err != nil {
				return
			}
		}

		// Bound per-send call. Keep tight to avoid hanging workers.
		callCtx := runCtx
		if callCtx == nil {
			callCtx = context.Background()
		}
		callCtx, cancel := context.WithTimeout(callCtx, 10*time.Second)
		ref, err := ad.SendText(callCtx, cfg.Target, text, &transport.SendOptions{DisablePreview: true})
		cancel()
		if err == nil {
			s.rmu.Lock()
			s.refs[refKey{TaskID: j.r.TaskID, Slot: j.r.Slot}] = ref
			s.rmu.Unlock()
			s.appendHistory(j.r, text)
			s.publish(eventbus.NotifySent, j.r, "")
			return
		}
		lastErr = err
		log.Debug("reminder send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))

		if attempt >= maxAttempts {
			break
		}

		delay := retryDelay(cfg, attempt)
		if delay <= 0 {
			continue
		}
		t := time.NewTimer(delay)
		rc := runCtx
		if rc == nil {
			rc = context.Background()
		}
		select {
		case <-t.C:
		case <-rc.Done():
			if !t.Stop() {
				<-t.C
			}
			return
		}
	}

	if lastErr != nil {
		s.publish(eventbus.NotifyFailed, j.r, lastErr.Error())
	}
}

func (s *Service) publish(typ eventbus.Type, r Reminder, errText string) {
	s.bus.Publish(eventbus.Event{Type: typ, TaskID: r.TaskID, Slot: r.Slot, Err: errText})
}

func dedupKey(r Reminder) string {
	return fmt.Sprintf("%s#%d", r.TaskID, r.Slot)
}

func (s *Service) dedupAllow(key string, window time.Duration, max int) bool {
	now := time.Now()

	s.dmu.Lock()
	defer s.dmu.Unlock()
	if s.dedup == nil {
		s.dedup = map[string]time.Time{}
	}
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	s.dedup[key] = now.Add(window)

	// Prune expired and cap.
	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	if max > 0 && len(s.dedup) > max {
		// Remove entries with earliest expiry until within cap.
		for len(s.dedup) > max {
			var (
				minKey string
				minT   time.Time
				set    bool
			)
			for k, t := range s.dedup {
				if !set || t.Before(minT) {
					minKey, minT, set = k, t, true
				}
			}
			if minKey == "" {
				break
			}
			delete(s.dedup, minKey)
		}
	}
	return true
}

func retryDelay(cfg Config, attempt int) time.Duration {
	// attempt starts at 1 (first attempt), delay is for the NEXT attempt.
	base := cfg.RetryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	maxD := cfg.RetryMaxDelay
	if maxD <= 0 {
		maxD = 10 * time.Second
	}
	// Exponential backoff: base * 2^(attempt-1)
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxD {
			d = maxD
			break
		}
	}
	// Jitter 0.7..1.3
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	jit := 0.7 + rng.Float64()*0.6
	d = time.Duration(float64(d) * jit)
	if d < 0 {
		return 0
	}
	if d > maxD {
		d = maxD
	}
	return d
}
