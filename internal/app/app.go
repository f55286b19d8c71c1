package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"remindd/internal/config"
	"remindd/internal/eventbus"
	"remindd/internal/notify"
	"remindd/internal/scheduler"
	"remindd/internal/storage"
	"remindd/internal/timers"
	"remindd/internal/transport"
	"remindd/internal/transport/telegram"
	logx "remindd/pkg/logx"
)

// App owns the wiring: config, logging, storage, timers, the delivery
// pipeline, and the reminder scheduler.
type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *Supervisor

	log  logx.Logger
	logs *logx.Service

	bus    *eventbus.Bus
	store  storage.Store
	timers *timers.Local
	notif  *notify.Service
	sched  *scheduler.Service

	schedEnabled bool
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	store, err := openStore(cfg, logSvc.Logger().With(logx.String("comp", "storage")))
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	notif, err := buildNotifier(cfg, logSvc.Logger(), bus)
	if err != nil {
		_ = store.Close()
		logSvc.Close()
		return nil, err
	}

	tcfg, err := timerSettings(cfg)
	if err != nil {
		_ = store.Close()
		logSvc.Close()
		return nil, err
	}

	a := &App{
		cfgPath:      cfgPath,
		cfgm:         cfgm,
		log:          log,
		logs:         logSvc,
		bus:          bus,
		store:        store,
		notif:        notif,
		schedEnabled: cfg.Scheduler.Enabled,
	}

	// The timer service fires into the scheduler; the scheduler installs
	// timers through the timer service. Break the construction cycle with a
	// closure over the App field, which is set before Start arms anything.
	a.timers = timers.NewLocal(tcfg, func(key timers.Key, gen uint64) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.sched.OnTimerFired(ctx, key.TaskID, key.Slot, gen); err != nil {
			a.log.Warn("timer fire handling failed", logx.String("task", key.TaskID), logx.Int("slot", key.Slot), logx.Err(err))
		}
	}, logSvc.Logger().With(logx.String("comp", "timers")))

	due, err := config.DurationOr("scheduler.due_check_every", cfg.Scheduler.DueCheckEvery, time.Minute)
	if err != nil {
		_ = store.Close()
		logSvc.Close()
		return nil, err
	}
	a.sched = scheduler.New(scheduler.Config{
		Enabled:       cfg.Scheduler.Enabled,
		Timezone:      cfg.Scheduler.Timezone,
		DueCheckEvery: due,
		ExactAlarms:   cfg.Scheduler.ExactAlarms,
	}, store, a.timers, notif, logSvc.Logger().With(logx.String("comp", "scheduler")), bus)

	return a, nil
}

func openStore(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	if cfg.Storage == nil {
		return storage.NewMemory(), nil
	}
	busy, err := config.Duration("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	st, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, log)
	if err != nil {
		return nil, err
	}
	if st == nil {
		st = storage.NewMemory()
	}
	return st, nil
}

func buildNotifier(cfg *config.Config, log logx.Logger, bus *eventbus.Bus) (*notify.Service, error) {
	ncfg := notify.Config{
		Enabled: true,
		Target:  chatTarget(cfg),
	}
	if n := cfg.Notifier; n != nil {
		retryBase, err := config.DurationOr("notifier.retry_base", n.RetryBase, 500*time.Millisecond)
		if err != nil {
			return nil, err
		}
		retryMaxDelay, err := config.DurationOr("notifier.retry_max_delay", n.RetryMaxDelay, 10*time.Second)
		if err != nil {
			return nil, err
		}
		dedup, err := config.Duration("notifier.dedup_window", n.DedupWindow)
		if err != nil {
			return nil, err
		}
		ncfg.Enabled = n.Enabled
		ncfg.Workers = n.Workers
		ncfg.QueueSize = n.QueueSize
		ncfg.RatePerSec = n.RatePerSec
		ncfg.RetryMax = n.RetryMax
		ncfg.RetryBase = retryBase
		ncfg.RetryMaxDelay = retryMaxDelay
		ncfg.DedupWindow = dedup
		ncfg.DedupMaxEntries = n.DedupMaxEntries
	}

	var adapter transport.Adapter
	if ncfg.Enabled {
		sendTimeout, err := config.Duration("telegram.send_timeout", cfg.Telegram.SendTimeout)
		if err != nil {
			return nil, err
		}
		tg, err := telegram.New(telegram.Config{
			Token:   cfg.Telegram.Token,
			Timeout: sendTimeout,
		}, log.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, fmt.Errorf("telegram adapter: %w", err)
		}
		adapter = tg
	}

	return notify.New(ncfg, adapter, log.With(logx.String("comp", "notifier")), bus), nil
}

func chatTarget(cfg *config.Config) transport.ChatTarget {
	return transport.ChatTarget{
		ChatID:   cfg.Telegram.ChatID,
		ThreadID: cfg.Telegram.ThreadID,
	}
}

func timerSettings(cfg *config.Config) (timers.Config, error) {
	out := timers.Config{AllowExact: true}
	if t := cfg.Timers; t != nil {
		gran, err := config.Duration("timers.inexact_granularity", t.InexactGranularity)
		if err != nil {
			return timers.Config{}, err
		}
		out.AllowExact = t.AllowExact
		out.InexactGranularity = gran
	}
	return out, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))

	// Transactional config reload: the structural checks run in
	// Manager.reload; this hook adds checks needing more than the types.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
			}
		}
		return nil
	})

	// Debug-log every lifecycle event. Components publish regardless; this
	// loop is the always-on consumer that makes the trail visible.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				fields := []logx.Field{logx.String("type", string(e.Type))}
				if e.TaskID != "" {
					fields = append(fields, logx.String("task", e.TaskID), logx.Int("slot", e.Slot))
				}
				if e.Err != "" {
					fields = append(fields, logx.String("error", e.Err))
				}
				a.log.Debug("event", fields...)
			}
		}
	})

	a.notif.Start(a.sup.Context())

	if a.schedEnabled {
		// Rebuild the timer set from persisted tasks before the periodic
		// sweep starts; timers do not survive a restart.
		rctx, cancel := context.WithTimeout(a.sup.Context(), 60*time.Second)
		err := a.sched.OnBootRecovery(rctx)
		cancel()
		if err != nil {
			a.log.Warn("boot recovery failed", logx.Err(err))
		}
		a.sched.Start(a.sup.Context())
	}

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	// Hot reload fan-out: only logging is applied live; scheduler and
	// notifier settings take effect on restart.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.logs.Apply(logx.Config{
					Level:   newCfg.Logging.Level,
					Console: newCfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: newCfg.Logging.File.Enabled,
						Path:    newCfg.Logging.File.Path,
					},
				})
				a.log.Info("config reloaded")
			}
		}
	})

	a.notifySystemd(daemon.SdNotifyReady)
	a.startWatchdog()

	a.log.Info("app started")
	return nil
}

// notifySystemd is best-effort; outside systemd it is a no-op.
func (a *App) notifySystemd(state string) {
	if sent, err := daemon.SdNotify(false, state); err != nil {
		a.log.Debug("sd_notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify sent", logx.String("state", state))
	}
}

func (a *App) startWatchdog() {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	})
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.notifySystemd(daemon.SdNotifyStopping)
	a.log.Info("stopping")

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Run each shutdown step with an upper bound so one component can't
	// stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("timers", time.Second, func(c context.Context) error { a.timers.Stop(c); return nil })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("storage", 2*time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	a.logs.Close()
	return nil
}
