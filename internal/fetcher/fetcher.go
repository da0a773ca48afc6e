package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"manga-tracker/internal/chapter"
	"manga-tracker/internal/observability"
)

const maxBodyBytes = 10 << 20

// Job описывает мангу, которую проверяем через API сайта.
type Job struct {
	Title string
	URL   string
	Site  *Site
}

type Options struct {
	UserAgent     string
	MaxConcurrent int
	Timeout       time.Duration
	RPM           int
}

// Fetcher проверяет сайты с JSON API. Повторов нет: ошибка API в пределах
// одного запуска детерминирована (например, кривой slug в URL).
type Fetcher struct {
	client      *http.Client
	opts        Options
	sem         *semaphore.Weighted
	rateLimiter *RateLimiter
	logger      *observability.Logger
	metrics     *observability.Metrics
}

func NewFetcher(opts Options, logger *observability.Logger, metrics *observability.Metrics) *Fetcher {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}

	client := &http.Client{
		Timeout: opts.Timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Fetcher{
		client:      client,
		opts:        opts,
		sem:         semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		rateLimiter: NewRateLimiter(opts.RPM, opts.MaxConcurrent),
		logger:      logger,
		metrics:     metrics,
	}
}

// FetchAll проверяет все задания параллельно (не больше MaxConcurrent запросов).
// Каждая манга из jobs получает результат, при ошибке Unknown.
func (f *Fetcher) FetchAll(ctx context.Context, jobs []Job, onResult chapter.ResultFunc) map[string]chapter.Indicator {
	results := make(map[string]chapter.Indicator, len(jobs))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, job := range jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()

			ind := f.fetchLimited(ctx, job)

			mu.Lock()
			results[job.Title] = ind
			mu.Unlock()
			if onResult != nil {
				onResult(job.Title, ind)
			}
		}(job)
	}

	wg.Wait()
	return results
}

func (f *Fetcher) fetchLimited(ctx context.Context, job Job) chapter.Indicator {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		f.logger.Warn("API check cancelled", "title", job.Title, "error", err.Error())
		return chapter.Unknown
	}
	defer f.sem.Release(1)

	start := time.Now()
	ind, err := f.Fetch(ctx, job)
	f.metrics.ObserveFetch("direct", time.Since(start))
	if err != nil {
		f.logger.Warn("API check failed",
			"title", job.Title,
			"site", job.Site.Name,
			"error", err.Error(),
		)
		return chapter.Unknown
	}

	f.logger.Info("API check done", "title", job.Title, "site", job.Site.Name, "chapter", ind.String())
	return ind
}

// Fetch делает один запрос к API и разбирает ответ.
func (f *Fetcher) Fetch(ctx context.Context, job Job) (chapter.Indicator, error) {
	endpoint, err := job.Site.Endpoint(job.URL)
	if err != nil {
		return chapter.Unknown, err
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return chapter.Unknown, fmt.Errorf("invalid URL: %w", err)
	}

	if err := f.rateLimiter.Wait(ctx, parsed.Host); err != nil {
		return chapter.Unknown, fmt.Errorf("rate limit error: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	f.logger.Debug("API request", "title", job.Title, "url", endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return chapter.Unknown, err
	}
	if f.opts.UserAgent != "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return chapter.Unknown, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			f.logger.Debug("Failed to close response body", "error", err.Error())
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return chapter.Unknown, fmt.Errorf("server error: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return chapter.Unknown, err
	}

	return job.Site.ParseChapters(body)
}
