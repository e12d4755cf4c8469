package schedule

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "chilivault/pkg/logx"
)

// Config controls the poll service.
type Config struct {
	Enabled bool
	// PollInterval must stay below one minute so no matching minute is
	// skipped; it is clamped when it is not.
	PollInterval time.Duration
	// TaskTimeout bounds one poll including its dispatched callbacks.
	TaskTimeout time.Duration
	Timezone    string // IANA TZ, e.g. "Asia/Jakarta"
}

const (
	defaultPollInterval = 20 * time.Second
	defaultTaskTimeout  = 5 * time.Minute
)

// Service drives the evaluator on a fixed cadence. It also owns the
// one-shot deferred runner ("run once, N seconds from now") used by the
// surrounding service for delayed work like the post-classification archive.
type Service struct {
	mu sync.Mutex

	log  logx.Logger
	cfg  Config
	eval *Evaluator

	c      *cron.Cron
	stopCh chan struct{}

	tmu    sync.Mutex
	timers map[string]*time.Timer
}

func New(cfg Config, eval *Evaluator, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, eval: eval, log: log, timers: map[string]*time.Timer{}}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Apply swaps the config; a changed timezone or interval restarts the runner.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	restart := s.cfg.Timezone != cfg.Timezone || s.cfg.PollInterval != cfg.PollInterval
	s.cfg = cfg
	if s.stopCh == nil {
		return
	}
	if restart {
		s.restartLocked()
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	s.startCronLocked(ctx)
	s.log.Info("poll service started",
		logx.Duration("interval", s.pollIntervalLocked()),
		logx.String("tz", s.loadLocationLocked().String()))
}

func (s *Service) Stop(ctx context.Context) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	s.stopCh = nil
	if s.c != nil {
		<-s.c.Stop().Done()
		s.c = nil
	}

	s.tmu.Lock()
	for _, t := range s.timers {
		_ = t.Stop()
	}
	s.timers = map[string]*time.Timer{}
	s.tmu.Unlock()

	s.log.Info("poll service stopped")
}

// RunOnce performs a single poll immediately, outside the cadence. Used by
// the check-schedule endpoint and by schedule updates with run_now set.
func (s *Service) RunOnce(ctx context.Context) (Result, error) {
	return s.eval.Poll(ctx)
}

// Defer runs fn once after d. A second Defer with the same name replaces the
// pending one. Pending timers are dropped on Stop.
func (s *Service) Defer(name string, d time.Duration, fn func(ctx context.Context)) {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	if old, ok := s.timers[name]; ok {
		_ = old.Stop()
	}
	s.timers[name] = time.AfterFunc(d, func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in deferred task",
					logx.String("task", name), logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())))
			}
		}()
		s.tmu.Lock()
		delete(s.timers, name)
		s.tmu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), s.taskTimeout())
		defer cancel()
		fn(ctx)
	})
}

func (s *Service) startCronLocked(ctx context.Context) {
	loc := s.loadLocationLocked()
	s.c = cron.New(cron.WithLocation(loc))
	interval := s.pollIntervalLocked()
	spec := fmt.Sprintf("@every %s", interval)
	_, err := s.c.AddFunc(spec, func() { s.pollOnce(ctx) })
	if err != nil {
		// @every with a positive interval always parses; log just in case.
		s.log.Error("failed to register poll entry", logx.Err(err))
		return
	}
	s.c.Start()
}

func (s *Service) restartLocked() {
	if s.c != nil {
		<-s.c.Stop().Done()
	}
	s.startCronLocked(context.Background())
	s.log.Info("poll service restarted",
		logx.Duration("interval", s.pollIntervalLocked()),
		logx.String("tz", s.loadLocationLocked().String()))
}

func (s *Service) pollOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.taskTimeout())
	defer cancel()

	res, err := s.eval.Poll(ctx)
	if err != nil {
		s.log.Warn("poll failed", logx.Err(err))
		return
	}
	if len(res.Triggered) > 0 {
		s.log.Info("poll triggered tasks",
			logx.Any("tasks", res.Triggered), logx.String("minute", res.Minute))
	}
}

func (s *Service) pollIntervalLocked() time.Duration {
	d := s.cfg.PollInterval
	if d <= 0 {
		return defaultPollInterval
	}
	// A cadence at or above one minute can skip matching minutes entirely.
	if d >= time.Minute {
		return 30 * time.Second
	}
	return d
}

func (s *Service) taskTimeout() time.Duration {
	s.mu.Lock()
	d := s.cfg.TaskTimeout
	s.mu.Unlock()
	if d <= 0 {
		return defaultTaskTimeout
	}
	return d
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
