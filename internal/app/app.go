// Package app wires the bot together: config, logging, storage, the
// reminder scheduler, the Telegram transport and the command router.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/bot"
	"remindbot/internal/config"
	"remindbot/internal/eventbus"
	"remindbot/internal/scheduler"
	"remindbot/internal/storage"
	"remindbot/internal/tasks"
	kit "remindbot/internal/transport"
	telegram "remindbot/internal/transport/telegram/adapter"
	logx "remindbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   storage.Store
	adapter kit.Adapter
	sched   *scheduler.Service
	coord   *tasks.Coordinator
	router  *bot.Router

	cron *cron.Cron

	updates chan kit.Update

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "config"))
	cfgm, err := config.NewManager(cfgPath, bootLog)
	if err != nil {
		return nil, err
	}
	cfg := cfgm.Current()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, logSvc.Logger().With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	stCfg, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(stCfg, logSvc.Logger().With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", stCfg.Driver))

	bus := eventbus.New()

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(schedCfg, bot.Deliver(ad), bus, logSvc.Logger().With(logx.String("comp", "scheduler")))

	coord := tasks.New(store, sched, logSvc.Logger().With(logx.String("comp", "tasks")))

	router := bot.NewRouter(logSvc.Logger().With(logx.String("comp", "commands")), ad)
	handlers := bot.NewHandlers(coord, ad, logSvc.Logger().With(logx.String("comp", "bot")))
	handlers.Register(router)

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		sched:   sched,
		coord:   coord,
		router:  router,
		cron:    cron.New(cron.WithParser(parser)),
		updates: make(chan kit.Update, 256),
	}, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	driver := cfg.Storage.Driver
	if driver == "" {
		driver = "sqlite"
	}
	return storage.Config{
		Driver:      driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	dt, err := config.ParseDurationOrDefault("scheduler.deliver_timeout", cfg.Scheduler.DeliverTimeout, 10*time.Second)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Workers:        cfg.Scheduler.Workers,
		QueueSize:      cfg.Scheduler.QueueSize,
		RatePerSec:     cfg.Scheduler.RatePerSec,
		DeliverTimeout: dt,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	a.runMu.Lock()
	if a.cancel != nil {
		a.runMu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.runMu.Unlock()

	// Hot reload applies the logging section only; transport and storage
	// changes need a restart.
	a.cfgm.OnChange(func(cfg *config.Config) {
		a.logs.Apply(mapLogConfig(cfg))
		a.log.Info("config reloaded", logx.String("level", cfg.Logging.Level))
	})
	if err := a.cfgm.Watch(runCtx); err != nil {
		a.log.Warn("config watch unavailable", logx.Err(err))
	}

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		return err
	}

	a.sched.Start(runCtx)

	// Re-arm stored tasks before taking traffic so an early /tasks sees a
	// consistent scheduler.
	if err := a.coord.Recover(runCtx); err != nil {
		a.log.Error("recovery sweep failed", logx.Err(err))
	}

	cfg := a.cfgm.Current()
	if cfg.Resync.IsEnabled() {
		spec := cfg.Resync.EffectiveSchedule()
		if _, err := a.cron.AddFunc(spec, func() {
			rctx, rcancel := context.WithTimeout(runCtx, 30*time.Second)
			defer rcancel()
			if n, err := a.coord.Resync(rctx); err != nil {
				a.log.Warn("resync failed", logx.Err(err))
			} else if n > 0 {
				a.log.Info("resync re-armed tasks", logx.Int("count", n))
			}
		}); err != nil {
			return err
		}
		a.cron.Start()
		a.log.Info("resync scheduled", logx.String("schedule", spec))
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.router.DispatchLoop(runCtx, a.updates)
	}()

	// Reminder lifecycle events, debug-level to keep INFO useful.
	events, unsub := a.bus.Subscribe(128)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer unsub()
		for {
			select {
			case <-runCtx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	}()

	a.log.Info("started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	a.runMu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.runMu.Unlock()
	if cancel == nil {
		return nil
	}

	cronCtx := a.cron.Stop()
	select {
	case <-cronCtx.Done():
	case <-ctx.Done():
	}

	_ = a.adapter.Stop(ctx)

	cancel()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	a.sched.Stop(ctx)

	if err := a.store.Close(); err != nil {
		a.log.Warn("store close failed", logx.Err(err))
	}
	a.cfgm.Close()
	a.log.Info("stopped")
	_ = a.logs.Close()
	return nil
}
