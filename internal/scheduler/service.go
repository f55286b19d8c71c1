package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"remindd/internal/eventbus"
	"remindd/internal/notify"
	"remindd/internal/storage"
	"remindd/internal/timers"
	logx "remindd/pkg/logx"
)

func New(cfg Config, store storage.Store, tsvc timers.Service, presenter notify.Presenter, log logx.Logger, bus *eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.DueCheckEvery <= 0 {
		cfg.DueCheckEvery = time.Minute
	}
	return &Service{
		cfg:       cfg,
		log:       log,
		bus:       bus,
		store:     store,
		timers:    tsvc,
		presenter: presenter,
		locks:     newKeyedLocks(),
		gens:      map[string]uint64{},
		installed: map[string]int{},
		nowFn:     time.Now,
	}
}

// Start arms the periodic due sweep. Boot recovery is the caller's move
// (the app runs OnBootRecovery first, then Start).
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	if !s.cfg.Enabled {
		s.log.Debug("scheduler disabled")
		return
	}

	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithLocation(loc))

	every := s.cfg.DueCheckEvery
	_, err := s.c.AddFunc("@every "+every.String(), func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), every)
		defer cancel()
		s.DueSweep(sweepCtx)
	})
	if err != nil {
		s.log.Error("due sweep register failed", logx.Err(err))
		return
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", loc.String()), logx.Duration("due_check_every", every))
}

// Stop halts the due sweep. Installed timers are left to the timer service
// owner; they are rebuilt from task records on the next boot recovery.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			// best-effort
		}
	}
	s.log.Info("scheduler stopped")
}

func (s *Service) now() time.Time {
	t := s.nowFn()
	s.mu.Lock()
	loc := s.loc
	s.mu.Unlock()
	if loc != nil {
		t = t.In(loc)
	}
	return t
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Service) generation(taskID string) uint64 {
	s.smu.Lock()
	defer s.smu.Unlock()
	return s.gens[taskID]
}

func (s *Service) bumpGeneration(taskID string) uint64 {
	s.smu.Lock()
	defer s.smu.Unlock()
	s.gens[taskID]++
	return s.gens[taskID]
}

func (s *Service) publish(e eventbus.Event) {
	s.bus.Publish(e)
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	cfg := s.cfg
	loc := s.loc
	s.mu.Unlock()

	tz := cfg.Timezone
	if loc != nil {
		tz = loc.String()
	}

	s.smu.Lock()
	tasks := make([]TaskInfo, 0, len(s.gens))
	for id, gen := range s.gens {
		tasks = append(tasks, TaskInfo{TaskID: id, Generation: gen, SlotCount: s.installed[id]})
	}
	s.smu.Unlock()

	return Snapshot{Enabled: cfg.Enabled, Timezone: tz, Tasks: tasks}
}
