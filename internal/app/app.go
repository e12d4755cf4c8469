// Package app wires configuration, logging, storage, the vault core, the
// classification runner, the schedule poll service and the HTTP server into
// one runnable unit with config hot reload.
package app

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"chilivault/internal/classify"
	"chilivault/internal/clock"
	"chilivault/internal/config"
	"chilivault/internal/eventbus"
	"chilivault/internal/schedule"
	"chilivault/internal/server"
	"chilivault/internal/storage"
	"chilivault/internal/vault"
	logx "chilivault/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	logs *logx.Service
	log  logx.Logger
	bus  eventbus.Bus

	store   storage.Store
	sched   *schedule.Service
	srv     *server.Server
	sweeper *vault.Sweeper
	runner  *classify.Runner

	paths config.PathsConfig

	cancelWatch context.CancelFunc
	subCh       chan *config.Config
	busUnsub    func()
	wg          sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogging(cfg))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	cfgm.SetValidator(validateConfig)

	bus := eventbus.New()
	clk := clock.System()

	// Prediction row store (optional).
	var store storage.Store
	stCfg, err := mapStorage(cfg)
	if err != nil {
		return nil, err
	}
	store, err = storage.Open(stCfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	if store != nil {
		log.Info("storage enabled", logx.String("driver", stCfg.Driver))
	}

	// Vault core.
	index := vault.NewIndex(cfg.Paths.Storage)
	alloc := vault.NewAllocator(cfg.Paths.Temp, index, clk, log.With(logx.String("comp", "vault")), bus)
	resolver := vault.NewResolver(index)
	filter := vault.NewFilter(index, clk)
	sweeper := vault.NewSweeper(index, clk, log.With(logx.String("comp", "vault")), bus)

	// Schedule engine.
	rules := schedule.NewFileSource(cfg.Paths.Rules)
	eval := schedule.NewEvaluator(rules, clk, log.With(logx.String("comp", "schedule")), bus)
	schedCfg, err := mapScheduler(cfg)
	if err != nil {
		return nil, err
	}
	sched := schedule.New(schedCfg, eval, log.With(logx.String("comp", "schedule")))

	// Classification runner.
	var classifier classify.Classifier
	if len(cfg.Classifier.Command) > 0 {
		timeout, err := config.ParseDurationOrDefault("classifier.timeout", cfg.Classifier.Timeout, 2*time.Minute)
		if err != nil {
			return nil, err
		}
		classifier, err = classify.NewCommandClassifier(cfg.Classifier.Command, timeout,
			log.With(logx.String("comp", "classify")))
		if err != nil {
			return nil, err
		}
	}
	runner := classify.NewRunner(cfg.Paths.Temp, cfg.Paths.Results, classifier, store, alloc,
		sched, clk, 0, log.With(logx.String("comp", "classify")))

	// Task names the schedule rules may reference.
	maxAge := cfg.Retention.MaxAgeDays
	eval.Register("classify", func(ctx context.Context) error {
		_, err := runner.Run(ctx)
		if errors.Is(err, classify.ErrNoImages) {
			return nil
		}
		return err
	})
	eval.Register("clean_old_dir", func(ctx context.Context) error {
		_, err := sweeper.Sweep(maxAge)
		return err
	})

	srv := server.New(server.Config{
		Addr:             cfg.Server.Addr,
		Origins:          cfg.Server.Origins,
		UploadRatePerSec: cfg.Server.UploadRatePerSec,
	}, server.Deps{
		Alloc:      alloc,
		Resolver:   resolver,
		Filter:     filter,
		Sweeper:    sweeper,
		Rules:      rules,
		Sched:      sched,
		Store:      store,
		Runner:     runner,
		TempDir:    cfg.Paths.Temp,
		MaxAgeDays: maxAge,
	}, log.With(logx.String("comp", "http")))

	return &App{
		cfgm:    cfgm,
		logs:    logSvc,
		log:     log,
		bus:     bus,
		store:   store,
		sched:   sched,
		srv:     srv,
		sweeper: sweeper,
		runner:  runner,
		paths:   cfg.Paths,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	for _, dir := range []string{a.paths.Temp, a.paths.Storage, a.paths.Results} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	if a.sched.Enabled() {
		a.sched.Start(ctx)
	}
	a.srv.Start(ctx)

	// Config hot reload.
	watchCtx, cancel := context.WithCancel(ctx)
	a.cancelWatch = cancel
	a.subCh = a.cfgm.Subscribe(4)
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(watchCtx)
	}()
	go func() {
		defer a.wg.Done()
		for cfg := range a.subCh {
			a.applyConfig(cfg)
		}
	}()

	// Lifecycle events -> log.
	ch, unsub := a.bus.Subscribe(16)
	a.busUnsub = unsub
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for ev := range ch {
			a.log.Debug("event", logx.String("type", ev.Type), logx.Any("data", ev.Data))
		}
	}()

	a.log.Info("started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancelWatch != nil {
		a.cancelWatch()
	}
	if a.subCh != nil {
		a.cfgm.Unsubscribe(a.subCh)
		a.subCh = nil
	}
	if a.busUnsub != nil {
		a.busUnsub()
		a.busUnsub = nil
	}

	var firstErr error
	if err := a.srv.Stop(ctx); err != nil {
		firstErr = err
	}
	a.sched.Stop(ctx)
	if a.store != nil {
		if err := a.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.wg.Wait()
	a.log.Info("stopped")
	_ = a.logs.Close()
	return firstErr
}

// applyConfig propagates a hot-reloaded config to the live services.
// Filesystem paths and the HTTP listener are fixed for the process lifetime;
// a path or addr change requires a restart and is logged as such.
func (a *App) applyConfig(cfg *config.Config) {
	a.logs.Apply(mapLogging(cfg))

	if schedCfg, err := mapScheduler(cfg); err == nil {
		a.sched.Apply(schedCfg)
		// Start/Stop are idempotent; this reconciles the running state with
		// the new enabled flag.
		if schedCfg.Enabled {
			a.sched.Start(context.Background())
		} else {
			a.sched.Stop(context.Background())
		}
	} else {
		a.log.Warn("scheduler config rejected", logx.Err(err))
	}

	if cfg.Paths != a.paths {
		a.log.Warn("paths changed in config; restart required for them to take effect")
	}
	a.log.Info("config applied")
}

func validateConfig(ctx context.Context, cfg *config.Config) error {
	_ = ctx
	if _, err := mapScheduler(cfg); err != nil {
		return err
	}
	if _, err := mapStorage(cfg); err != nil {
		return err
	}
	return nil
}

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapScheduler(cfg *config.Config) (schedule.Config, error) {
	poll, err := config.ParseDurationOrDefault("scheduler.poll_interval", cfg.Scheduler.PollInterval, 20*time.Second)
	if err != nil {
		return schedule.Config{}, err
	}
	timeout, err := config.ParseDurationOrDefault("scheduler.task_timeout", cfg.Scheduler.TaskTimeout, 5*time.Minute)
	if err != nil {
		return schedule.Config{}, err
	}
	return schedule.Config{
		Enabled:      cfg.Scheduler.Enabled,
		PollInterval: poll,
		TaskTimeout:  timeout,
		Timezone:     cfg.Scheduler.Timezone,
	}, nil
}

func mapStorage(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, nil
}
