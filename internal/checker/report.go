package checker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"manga-tracker/internal/chapter"
	"manga-tracker/internal/observability"
	"manga-tracker/internal/storage"
)

type Status int

const (
	StatusUnchanged Status = iota
	StatusUpdated
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusUpdated:
		return "updated"
	case StatusFailed:
		return "failed"
	default:
		return "unchanged"
	}
}

type Result struct {
	Title    string
	URL      string
	Previous chapter.Indicator
	New      chapter.Indicator
	Status   Status
}

type Report struct {
	Date    time.Time
	Text    string
	Failed  []string
	Results []Result
}

// Count считает результаты с заданным статусом
func (r *Report) Count(status Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

// ChapterChecker проверяет набор манги (см. Coordinator).
type ChapterChecker interface {
	Check(ctx context.Context, items []chapter.Item, onResult chapter.ResultFunc) map[string]chapter.Indicator
}

// Checker выполняет полный прогон: проверка, сравнение с хранилищем,
// сохранение изменений и сборка отчёта.
type Checker struct {
	repo    storage.Repository
	checker ChapterChecker
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewChecker(repo storage.Repository, checker ChapterChecker, logger *observability.Logger, metrics *observability.Metrics) *Checker {
	return &Checker{
		repo:    repo,
		checker: checker,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Run проверяет всю мангу из хранилища. Ошибки хранилища прерывают прогон,
// ошибки по отдельным тайтлам попадают в отчёт как непроверенные.
func (c *Checker) Run(ctx context.Context, onResult chapter.ResultFunc) (*Report, error) {
	snap, err := c.repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load manga: %w", err)
	}

	results := c.checker.Check(ctx, snap.Items(), onResult)

	// после проверки результаты сохраняются даже при остановке процесса
	ctx = context.WithoutCancel(ctx)

	// за время проверки мангу могли удалить или добавить
	fresh, err := c.repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reload manga: %w", err)
	}

	titles := make([]string, 0, len(results))
	for title := range results {
		titles = append(titles, title)
	}
	sort.Strings(titles)

	report := &Report{Date: c.now()}
	for _, title := range titles {
		entry, ok := fresh.Manga[title]
		if !ok {
			c.logger.Debug("Title removed during check, skipping", "title", title)
			continue
		}

		res := Result{Title: title, URL: entry.URL, Previous: entry.LastChapter, New: results[title]}
		switch {
		case !res.New.Known():
			res.Status = StatusFailed
			report.Failed = append(report.Failed, title)
		case !res.New.Equal(res.Previous):
			if err := c.repo.UpdateChapter(ctx, title, res.New); err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					continue
				}
				return nil, fmt.Errorf("failed to update chapter for %q: %w", title, err)
			}
			res.Status = StatusUpdated
		default:
			res.Status = StatusUnchanged
		}

		report.Results = append(report.Results, res)
		c.metrics.ObserveCheck(res.Status.String())
	}

	if err := c.repo.SetLastCheckDate(ctx, report.Date.Format("2006-01-02")); err != nil {
		return nil, fmt.Errorf("failed to set last check date: %w", err)
	}

	report.Text = formatReport(report)
	c.logger.Info("Check finished",
		"updated", report.Count(StatusUpdated),
		"unchanged", report.Count(StatusUnchanged),
		"failed", report.Count(StatusFailed),
	)

	return report, nil
}

func formatReport(r *Report) string {
	lines := []string{fmt.Sprintf("Report for %s\n", r.Date.Format("02.01.2006"))}
	for _, res := range r.Results {
		switch res.Status {
		case StatusFailed:
			lines = append(lines, fmt.Sprintf(" ! %s - could not be checked\n  %s", res.Title, res.URL))
		case StatusUpdated:
			lines = append(lines, fmt.Sprintf(" ✓ %s - new chapter: %s  (was: %s)\n  %s",
				res.Title, res.New, res.Previous, res.URL))
		default:
			lines = append(lines, fmt.Sprintf(" %s - no new chapters (latest: %s)\n  %s",
				res.Title, res.Previous, res.URL))
		}
	}
	return strings.Join(lines, "\n")
}

// FailureText собирает отдельное сообщение со списком непроверенной манги.
// Пустая строка, если сбоев не было.
func FailureText(failed []string) string {
	if len(failed) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Could not check:")
	for _, title := range failed {
		b.WriteString("\n • ")
		b.WriteString(title)
	}
	return b.String()
}
