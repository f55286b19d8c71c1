package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"remindd/internal/eventbus"
	"remindd/internal/recurrence"
	"remindd/internal/task"
	"remindd/internal/timers"
	logx "remindd/pkg/logx"
)

// ScheduleTask installs one timer per future reminder slot of the task.
//
// It is idempotent: calling it twice for the same unmodified task leaves
// exactly the same installed timer set (the scheduling generation bumps,
// which is what retires any in-flight fire events from the previous call).
// A completed recurring task gets its timers cancelled instead; it should
// not keep ringing.
func (s *Service) ScheduleTask(ctx context.Context, t task.Task) error {
	r := recurrence.Normalize(t.Recurrence)
	if r.Type == task.RecurNone {
		return nil
	}

	unlock := s.locks.Lock(t.ID)
	defer unlock()

	if t.Completed {
		s.cancelSlots(ctx, t.ID, s.cancelCount(t))
		s.bumpGeneration(t.ID)
		return nil
	}

	// Cancel-then-reinstall, never the reverse: no window where old and new
	// timers for the same slot coexist.
	s.cancelSlots(ctx, t.ID, s.cancelCount(t))
	gen := s.bumpGeneration(t.ID)

	now := s.now()
	slots := recurrence.PlanSlots(r, now)
	installedCount := 0
	for _, sl := range slots {
		key := timers.Key{TaskID: t.ID, Slot: sl.Index}
		err := s.timers.Install(ctx, key, gen, sl.At, s.cfg.ExactAlarms)
		if errors.Is(err, timers.ErrExactUnavailable) {
			// A late reminder beats no reminder.
			s.log.Debug("exact alarm refused, installing inexact", logx.String("task", t.ID), logx.Int("slot", sl.Index))
			err = s.timers.Install(ctx, key, gen, sl.At, false)
		}
		if err != nil {
			s.log.Warn("timer install failed", logx.String("task", t.ID), logx.Int("slot", sl.Index), logx.Err(err))
			continue
		}
		installedCount++
	}

	s.smu.Lock()
	s.installed[t.ID] = recurrence.SlotCount(r)
	s.smu.Unlock()

	s.publish(eventbus.Event{Type: eventbus.TaskScheduled, TaskID: t.ID, Count: installedCount})
	s.log.Debug("task scheduled", logx.String("task", t.ID), logx.Int("slots", installedCount), logx.Uint64("generation", gen))
	return nil
}

// CancelTask removes all timers for the task. Safe to call when none exist.
func (s *Service) CancelTask(ctx context.Context, t task.Task) {
	unlock := s.locks.Lock(t.ID)
	defer unlock()

	s.cancelSlots(ctx, t.ID, s.cancelCount(t))
	s.bumpGeneration(t.ID)

	s.smu.Lock()
	delete(s.installed, t.ID)
	s.smu.Unlock()
}

// cancelCount derives the slot identity space to cancel the same way slots
// were derived when scheduled. If the task was edited in between, the
// remembered count from the last schedule wins so orphans are still
// addressed; this is best-effort symmetric cleanup.
func (s *Service) cancelCount(t task.Task) int {
	n := recurrence.SlotCount(t.Recurrence)
	s.smu.Lock()
	if last, ok := s.installed[t.ID]; ok && last > n {
		n = last
	}
	s.smu.Unlock()
	return n
}

func (s *Service) cancelSlots(ctx context.Context, taskID string, count int) {
	for i := 0; i < count; i++ {
		s.timers.Cancel(ctx, timers.Key{TaskID: taskID, Slot: i})
	}
}

// OnTimerFired handles a timer callback. A generation mismatch means the
// task was rescheduled or cancelled after this timer was installed; the
// event is stale and dropped. Firing never mutates task state and never
// re-arms its own slot: the due sweep (or a completion) cycles the task.
func (s *Service) OnTimerFired(ctx context.Context, taskID string, slot int, gen uint64) error {
	if cur := s.generation(taskID); gen != cur {
		s.publish(eventbus.Event{Type: eventbus.ReminderStale, TaskID: taskID, Slot: slot})
		s.log.Debug("stale timer dropped", logx.String("task", taskID), logx.Int("slot", slot), logx.Uint64("generation", gen), logx.Uint64("current", cur))
		return nil
	}

	t, ok, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("load task %s: %w", taskID, err)
	}
	if !ok || t.Completed || !t.IsRecurring() {
		return nil
	}

	if err := s.presenter.Present(ctx, t.ID, t.Title, slot); err != nil {
		return fmt.Errorf("present reminder for %s: %w", taskID, err)
	}
	s.publish(eventbus.Event{Type: eventbus.ReminderFired, TaskID: taskID, Slot: slot})
	return nil
}

// OnTaskCompleted resolves the current instance: outstanding timers go away
// immediately, presented notifications are dismissed, and the task's
// next-occurrence marker is computed and persisted. Rescheduling for the
// next cycle is NOT done here; the due sweep picks the task up once the
// marker is reached.
//
// A store failure is returned to the caller for retry; the scheduler is not
// the system of record and does not retry on its own.
func (s *Service) OnTaskCompleted(ctx context.Context, t task.Task, completedAt time.Time) error {
	unlock := s.locks.Lock(t.ID)
	defer unlock()

	s.cancelSlots(ctx, t.ID, s.cancelCount(t))
	s.bumpGeneration(t.ID)
	s.presenter.DismissAll(ctx, t.ID)

	t.Completed = true
	t.CompletedAt = &completedAt
	t.NextAt = nil
	if next, ok := recurrence.NextOccurrence(t, completedAt); ok {
		t.NextAt = &next
	}
	t.Touch()

	if err := s.store.PutTask(ctx, t); err != nil {
		return fmt.Errorf("persist completion of %s: %w", t.ID, err)
	}

	s.publish(eventbus.Event{Type: eventbus.TaskCompleted, TaskID: t.ID})
	s.log.Info("task completed", logx.String("task", t.ID), logx.Time("completed_at", completedAt))
	return nil
}

// OnSkipped dismisses the presented reminder for one slot without touching
// task state; the task remains due for its next slot.
func (s *Service) OnSkipped(ctx context.Context, taskID string, slot int) {
	if err := s.presenter.Dismiss(ctx, taskID, slot); err != nil {
		s.log.Debug("dismiss on skip failed", logx.String("task", taskID), logx.Int("slot", slot), logx.Err(err))
	}
}

// OnBootRecovery reinstalls timers for every active recurring task. Timers
// don't survive a restart; task records do, so everything is rebuilt from
// the store. Idempotent and safe to run even if some timers still exist.
// One task's failure never blocks the rest.
func (s *Service) OnBootRecovery(ctx context.Context) error {
	tasks, err := s.store.RecurringTasks(ctx)
	if err != nil {
		return fmt.Errorf("list recurring tasks: %w", err)
	}

	scheduled, failed := 0, 0
	for _, t := range tasks {
		if t.Completed {
			continue
		}
		if err := s.ScheduleTask(ctx, t); err != nil {
			failed++
			s.log.Error("boot recovery schedule failed", logx.String("task", t.ID), logx.Err(err))
			continue
		}
		scheduled++
	}

	s.publish(eventbus.Event{Type: eventbus.RecoveryFinished, Count: scheduled})
	s.log.Info("boot recovery finished", logx.Int("scheduled", scheduled), logx.Int("failed", failed))
	return nil
}

// DueSweep is the periodic due check. Completed tasks whose next-occurrence
// marker has been reached flip back to active and get rescheduled; active
// tasks are re-armed, which also rolls consumed slots over to the next day.
func (s *Service) DueSweep(ctx context.Context) {
	now := s.now()
	tasks, err := s.store.RecurringTasks(ctx)
	if err != nil {
		s.log.Warn("due sweep list failed", logx.Err(err))
		return
	}

	for _, t := range tasks {
		if t.Completed {
			if !recurrence.IsDue(t, now) {
				continue
			}
			reset := recurrence.ResetForNextOccurrence(t)
			reset.Touch()
			if err := s.store.PutTask(ctx, reset); err != nil {
				s.log.Warn("due sweep persist failed", logx.String("task", t.ID), logx.Err(err))
				continue
			}
			t = reset
		}
		if err := s.ScheduleTask(ctx, t); err != nil {
			s.log.Warn("due sweep schedule failed", logx.String("task", t.ID), logx.Err(err))
		}
	}
}
