package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"manga-tracker/internal/config"
	"manga-tracker/internal/observability"
)

const (
	ModeOneshot  = "oneshot"
	ModeInterval = "interval"
	ModeCron     = "cron"
)

// Job одна проверка; ошибки логируются планировщиком
type Job func(ctx context.Context) error

// Scheduler запускает Job по scheduler.mode:
//
//	oneshot   один раз
//	interval  сразу и потом каждые interval_s
//	cron      по cron-выражению (5 полей)
type Scheduler struct {
	cfg    config.SchedulerConfig
	job    Job
	logger *observability.Logger
}

func NewScheduler(cfg config.SchedulerConfig, job Job, logger *observability.Logger) *Scheduler {
	return &Scheduler{cfg: cfg, job: job, logger: logger}
}

// Start блокируется до завершения ctx (в режиме oneshot до конца проверки)
func (s *Scheduler) Start(ctx context.Context) error {
	switch s.cfg.Mode {
	case ModeOneshot, "":
		return s.job(ctx)
	case ModeInterval:
		return s.runInterval(ctx)
	case ModeCron:
		return s.runCron(ctx)
	default:
		return fmt.Errorf("unknown scheduler mode: %s", s.cfg.Mode)
	}
}

func (s *Scheduler) runInterval(ctx context.Context) error {
	interval := time.Duration(s.cfg.IntervalS) * time.Second
	if interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %ds", s.cfg.IntervalS)
	}

	s.logger.Info("Scheduler started", "mode", ModeInterval, "interval", interval.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.execute(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return nil
		case <-ticker.C:
			s.execute(ctx)
		}
	}
}

func (s *Scheduler) runCron(ctx context.Context) error {
	cronLog := cronLogger{logger: s.logger}
	cronParser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	if _, err := c.AddFunc(s.cfg.CronExpr, func() { s.execute(ctx) }); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", s.cfg.CronExpr, err)
	}

	s.logger.Info("Scheduler started", "mode", ModeCron, "cron_expr", s.cfg.CronExpr)
	c.Start()

	<-ctx.Done()
	// ждём, пока текущая проверка закончится
	<-c.Stop().Done()
	s.logger.Info("Scheduler stopped")
	return nil
}

func (s *Scheduler) execute(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := s.job(ctx); err != nil {
		if errors.Is(err, ErrRunInProgress) {
			s.logger.Warn("Previous check still running, skipping")
			return
		}
		s.logger.Error("Scheduled check failed", "error", err.Error())
	}
}

// cronLogger адаптирует observability.Logger к cron.Logger
type cronLogger struct {
	logger *observability.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err.Error())...)
}
