package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"manga-tracker/internal/chapter"
	"manga-tracker/internal/checker"
	"manga-tracker/internal/notify"
	"manga-tracker/internal/observability"
	"manga-tracker/internal/storage"
)

// ErrRunInProgress: предыдущая проверка ещё не закончилась
var ErrRunInProgress = errors.New("check already in progress")

// Runner выполняет полный прогон проверки (checker.Checker)
type Runner interface {
	Run(ctx context.Context, onResult chapter.ResultFunc) (*checker.Report, error)
}

type RunStats struct {
	RunID    string
	Skipped  bool
	Report   *checker.Report
	Duration time.Duration
}

// Orchestrator отвечает за один прогон: не больше одного одновременно
// (в процессе и между процессами через runLock), не чаще раза в день без force,
// доставка отчёта и запись метрик.
type Orchestrator struct {
	repo        storage.Repository
	runner      Runner
	notifier    notify.Notifier
	metricsPath string
	logger      *observability.Logger
	metrics     *observability.Metrics

	running sync.Mutex
	runLock *flock.Flock
	now     func() time.Time
}

func NewOrchestrator(
	repo storage.Repository,
	runner Runner,
	notifier notify.Notifier,
	metricsPath string,
	runLockPath string,
	logger *observability.Logger,
	metrics *observability.Metrics,
) *Orchestrator {
	var runLock *flock.Flock
	if runLockPath != "" {
		runLock = flock.New(runLockPath)
	}
	return &Orchestrator{
		runLock:     runLock,
		repo:        repo,
		runner:      runner,
		notifier:    notifier,
		metricsPath: metricsPath,
		logger:      logger,
		metrics:     metrics,
		now:         time.Now,
	}
}

// RunOnce запускает проверку. Без force проверка пропускается,
// если сегодня она уже была.
func (o *Orchestrator) RunOnce(ctx context.Context, force bool, onResult chapter.ResultFunc) (*RunStats, error) {
	if !o.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer o.running.Unlock()

	if o.runLock != nil {
		unlock, err := o.lockRun()
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	stats := &RunStats{RunID: uuid.NewString()}
	logger := o.logger.With("run_id", stats.RunID)
	start := o.now()

	if !force {
		snap, err := o.repo.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load manga: %w", err)
		}
		if snap.LastCheckDate == start.Format("2006-01-02") {
			logger.Info("Already checked today, skipping", "last_check_date", snap.LastCheckDate)
			stats.Skipped = true
			return stats, nil
		}
	}

	logger.Info("Starting check", "force", force)

	report, err := o.runner.Run(ctx, onResult)
	if err != nil {
		logger.Error("Check failed", "error", err.Error())
		return nil, err
	}
	stats.Report = report
	stats.Duration = o.now().Sub(start)

	o.metrics.RunCompleted(o.now())
	if o.metricsPath != "" {
		if err := o.metrics.WriteTextfile(o.metricsPath); err != nil {
			logger.Warn("Failed to write metrics", "path", o.metricsPath, "error", err.Error())
		}
	}

	// отчёт уже сохранён, поэтому доставку делаем и при отменённом ctx
	sendCtx := context.WithoutCancel(ctx)
	if err := o.notifier.Send(sendCtx, report.Text); err != nil {
		return stats, fmt.Errorf("failed to send report: %w", err)
	}
	if failed := checker.FailureText(report.Failed); failed != "" {
		if err := o.notifier.Send(sendCtx, failed); err != nil {
			return stats, fmt.Errorf("failed to send failure list: %w", err)
		}
	}

	logger.Info("Run completed",
		"duration", stats.Duration.String(),
		"updated", report.Count(checker.StatusUpdated),
		"failed", len(report.Failed),
	)
	return stats, nil
}

// lockRun берёт файловую блокировку без ожидания: занята значит идёт
// прогон в другом процессе.
func (o *Orchestrator) lockRun() (func(), error) {
	if err := os.MkdirAll(filepath.Dir(o.runLock.Path()), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock dir: %w", err)
	}
	ok, err := o.runLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to take run lock: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}
	return func() {
		if err := o.runLock.Unlock(); err != nil {
			o.logger.Warn("Failed to release run lock", "path", o.runLock.Path(), "error", err.Error())
		}
	}, nil
}
