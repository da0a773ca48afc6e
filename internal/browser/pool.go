package browser

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"manga-tracker/internal/chapter"
	"manga-tracker/internal/observability"
	"manga-tracker/internal/scraper"
)

// Page вкладка браузера, которую можно закрыть.
type Page interface {
	scraper.Page
	Close() error
}

// Browser один процесс браузера с общим контекстом (профилем) для пачки манги.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Launcher запускает новый процесс браузера.
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

type Options struct {
	BatchSize   int
	MaxPages    int
	ItemTimeout time.Duration
	Retry       scraper.RetryPolicy
}

// Pool проверяет сайты, которым нужен рендеринг.
// Манга делится на пачки; на пачку запускается один браузер, пачки идут
// строго по очереди. Число открытых вкладок ограничено общим семафором
// на весь запуск, а не на пачку.
type Pool struct {
	launcher Launcher
	registry *scraper.Registry
	opts     Options
	pages    *semaphore.Weighted
	logger   *observability.Logger
	metrics  *observability.Metrics
}

func NewPool(l Launcher, registry *scraper.Registry, opts Options, logger *observability.Logger, metrics *observability.Metrics) *Pool {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 10
	}
	if opts.ItemTimeout <= 0 {
		opts.ItemTimeout = 120 * time.Second
	}
	if opts.Retry.Attempts <= 0 {
		opts.Retry = scraper.DefaultRetryPolicy()
	}

	return &Pool{
		launcher: l,
		registry: registry,
		opts:     opts,
		pages:    semaphore.NewWeighted(int64(opts.MaxPages)),
		logger:   logger,
		metrics:  metrics,
	}
}

// CheckAll возвращает результат для каждой манги из items.
// После отмены ctx новые пачки не запускаются, оставшаяся манга получает Unknown.
func (p *Pool) CheckAll(ctx context.Context, items []chapter.Item, onResult chapter.ResultFunc) map[string]chapter.Indicator {
	results := make(map[string]chapter.Indicator, len(items))
	batches := (len(items) + p.opts.BatchSize - 1) / p.opts.BatchSize

	for start, n := 0, 1; start < len(items); start, n = start+p.opts.BatchSize, n+1 {
		end := start + p.opts.BatchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]

		if ctx.Err() != nil {
			p.logger.Warn("Run cancelled, skipping remaining batches", "batch", n, "batches", batches)
			for _, it := range batch {
				results[it.Title] = chapter.Unknown
				if onResult != nil {
					onResult(it.Title, chapter.Unknown)
				}
			}
			continue
		}

		for title, ind := range p.runBatch(ctx, n, batches, batch, onResult) {
			results[title] = ind
		}
	}

	return results
}

func (p *Pool) runBatch(ctx context.Context, n, total int, items []chapter.Item, onResult chapter.ResultFunc) map[string]chapter.Indicator {
	logger := p.logger.With("batch", n, "batch_id", uuid.NewString())
	results := make(map[string]chapter.Indicator, len(items))

	logger.Info("Launching browser for batch", "batches", total, "items", len(items))
	p.metrics.BatchStarted()

	b, err := p.launcher.Launch(ctx)
	if err != nil {
		logger.Error("Failed to launch browser", "error", err.Error())
		for _, it := range items {
			results[it.Title] = chapter.Unknown
			if onResult != nil {
				onResult(it.Title, chapter.Unknown)
			}
		}
		return results
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		visits sync.WaitGroup
	)
	for _, it := range items {
		wg.Add(1)
		go func(it chapter.Item) {
			defer wg.Done()

			ind := p.checkOne(ctx, b, it, &visits, logger)

			mu.Lock()
			results[it.Title] = ind
			mu.Unlock()
			if onResult != nil {
				onResult(it.Title, ind)
			}
		}(it)
	}
	wg.Wait()

	// все элементы пачки уже получили результат; зависшие вкладки
	// (после таймаута) завершатся вместе с браузером
	if err := b.Close(); err != nil {
		logger.Warn("Failed to close browser", "error", err.Error())
	}
	visits.Wait()
	logger.Info("Batch finished", "items", len(items))

	return results
}

// checkOne ограничивает проверку одной манги абсолютным таймаутом,
// включая ожидание свободной вкладки.
func (p *Pool) checkOne(ctx context.Context, b Browser, it chapter.Item, visits *sync.WaitGroup, logger *observability.Logger) chapter.Indicator {
	ctx, cancel := context.WithTimeout(ctx, p.opts.ItemTimeout)
	defer cancel()

	done := make(chan chapter.Indicator, 1)
	visits.Add(1)
	go func() {
		defer visits.Done()
		done <- p.visit(ctx, b, it, logger)
	}()

	select {
	case ind := <-done:
		return ind
	case <-ctx.Done():
		logger.Warn("Item timed out", "title", it.Title, "timeout", p.opts.ItemTimeout.String())
		return chapter.Unknown
	}
}

func (p *Pool) visit(ctx context.Context, b Browser, it chapter.Item, logger *observability.Logger) chapter.Indicator {
	if err := p.pages.Acquire(ctx, 1); err != nil {
		return chapter.Unknown
	}
	defer p.pages.Release(1)

	page, err := b.NewPage(ctx)
	if err != nil {
		logger.Warn("Failed to open page", "title", it.Title, "error", err.Error())
		return chapter.Unknown
	}
	p.metrics.PageOpened()
	defer func() {
		if err := page.Close(); err != nil {
			logger.Debug("Failed to close page", "title", it.Title, "error", err.Error())
		}
		p.metrics.PageClosed()
	}()

	strategy := p.registry.Lookup(it.URL)
	itemLogger := logger.With("title", it.Title, "strategy", strategy.Name())
	itemLogger.Info("Checking title", "url", it.URL)

	start := time.Now()
	ind := scraper.Retry(ctx, p.opts.Retry, itemLogger, func(ctx context.Context) (chapter.Indicator, error) {
		return strategy.Extract(ctx, page, it.URL)
	})
	p.metrics.ObserveFetch("rendered", time.Since(start))

	if ind.Known() {
		itemLogger.Info("Chapter found", "chapter", ind.String())
	}
	return ind
}
