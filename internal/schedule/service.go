// Package schedule triggers invitation runs on a timetable: a cron
// expression, an HH:MM interval, or a plain duration. Overlapping fires are
// skipped; a run that is still going when the next tick arrives wins.
package schedule

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	logx "vrcinvited/pkg/logx"

	"github.com/robfig/cron/v3"
)

// Config controls the trigger service.
type Config struct {
	Enabled  bool
	Spec     string
	Timezone string
}

// Runner starts one invitation run. It should block until the run finishes.
type Runner func(ctx context.Context)

// Service is a thin trigger: parsing, timezone handling, and overlap-skip.
// Execution lives in the runner.
type Service struct {
	log    logx.Logger
	runner Runner
	parser cron.Parser

	mu   sync.Mutex
	cfg  Config
	c    *cron.Cron
	loc  *time.Location
	ctx  context.Context
	stop context.CancelFunc

	busy atomic.Bool
}

func New(cfg Config, runner Runner, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		runner: runner,
		log:    log.With(logx.String("comp", "schedule")),
		// SecondOptional allows both 5-field and 6-field cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply swaps the config. A running service restarts its trigger so spec and
// timezone changes take effect immediately.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	changed := s.cfg.Spec != cfg.Spec || s.cfg.Timezone != cfg.Timezone || s.cfg.Enabled != cfg.Enabled
	s.cfg = cfg
	running := s.c != nil
	ctx := s.ctx
	s.mu.Unlock()

	if changed && running {
		s.Stop(context.Background())
		s.Start(ctx)
	}
}

// Start begins triggering. Idempotent; disabled or empty specs are a no-op.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || !s.cfg.Enabled || strings.TrimSpace(s.cfg.Spec) == "" {
		return
	}

	spec, err := ParseSpec(s.cfg.Spec)
	if err != nil {
		s.log.Error("invalid schedule, not starting", logx.String("spec", s.cfg.Spec), logx.Err(err))
		return
	}

	loc := time.Local
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		} else {
			s.log.Warn("unknown timezone, using local", logx.String("tz", tz), logx.Err(err))
		}
	}
	s.loc = loc

	runCtx, cancel := context.WithCancel(ctx)
	s.ctx = ctx
	s.stop = cancel

	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	fire := func() { s.fire(runCtx) }

	switch spec.Kind {
	case SpecCron:
		if _, err := c.AddFunc(spec.Cron, fire); err != nil {
			cancel()
			s.log.Error("invalid cron expression, not starting", logx.String("spec", spec.Cron), logx.Err(err))
			return
		}
	case SpecInterval:
		c.Schedule(cron.Every(spec.Every), cron.FuncJob(fire))
	}

	s.c = c
	c.Start()
	s.log.Info("schedule started", logx.String("spec", s.cfg.Spec), logx.String("tz", loc.String()))
}

// Stop halts triggering and waits briefly for an in-flight fire.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	c := s.c
	stop := s.stop
	s.c = nil
	s.stop = nil
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			// best-effort
		}
	}
	s.log.Info("schedule stopped")
}

func (s *Service) fire(ctx context.Context) {
	if s.runner == nil {
		return
	}
	// Overlap-skip: if the previous run is still going, drop this tick.
	if !s.busy.CompareAndSwap(false, true) {
		s.log.Warn("previous run still in progress, skipping tick")
		return
	}
	defer s.busy.Store(false)

	start := time.Now()
	s.log.Info("scheduled run starting")
	s.runner(ctx)
	s.log.Info("scheduled run finished", logx.Duration("took", time.Since(start)))
}
