package checker

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"manga-tracker/internal/chapter"
	"manga-tracker/internal/fetcher"
	"manga-tracker/internal/observability"
)

// DirectChecker проверяет через JSON API сайта.
type DirectChecker interface {
	FetchAll(ctx context.Context, jobs []fetcher.Job, onResult chapter.ResultFunc) map[string]chapter.Indicator
}

// RenderedChecker проверяет через браузер.
type RenderedChecker interface {
	CheckAll(ctx context.Context, items []chapter.Item, onResult chapter.ResultFunc) map[string]chapter.Indicator
}

// Route: куда отправить мангу. Site != nil означает прямой запрос к API.
type Route struct {
	Site *fetcher.Site
}

func (r Route) Direct() bool { return r.Site != nil }

// Coordinator делит мангу между двумя путями, запускает их параллельно
// и собирает общий результат.
type Coordinator struct {
	sites    fetcher.Sites
	direct   DirectChecker
	rendered RenderedChecker
	logger   *observability.Logger
}

func NewCoordinator(sites fetcher.Sites, direct DirectChecker, rendered RenderedChecker, logger *observability.Logger) *Coordinator {
	return &Coordinator{sites: sites, direct: direct, rendered: rendered, logger: logger}
}

func (c *Coordinator) classify(url string) Route {
	if site, ok := c.sites.Lookup(url); ok {
		return Route{Site: site}
	}
	return Route{}
}

// Check возвращает индикатор для каждой манги из items. onResult вызывается
// по одному разу на мангу по мере готовности и должен быть потокобезопасным.
func (c *Coordinator) Check(ctx context.Context, items []chapter.Item, onResult chapter.ResultFunc) map[string]chapter.Indicator {
	var (
		jobs     []fetcher.Job
		rendered []chapter.Item
	)
	for _, it := range items {
		if route := c.classify(it.URL); route.Direct() {
			jobs = append(jobs, fetcher.Job{Title: it.Title, URL: it.URL, Site: route.Site})
		} else {
			rendered = append(rendered, it)
		}
	}

	c.logger.Info("Starting check", "direct", len(jobs), "rendered", len(rendered))

	var (
		mu      sync.Mutex
		results = make(map[string]chapter.Indicator, len(items))
		g       errgroup.Group
	)
	merge := func(part map[string]chapter.Indicator) {
		mu.Lock()
		defer mu.Unlock()
		for title, ind := range part {
			results[title] = ind
		}
	}

	if len(jobs) > 0 {
		g.Go(func() error {
			merge(c.direct.FetchAll(ctx, jobs, onResult))
			return nil
		})
	}
	if len(rendered) > 0 {
		g.Go(func() error {
			merge(c.rendered.CheckAll(ctx, rendered, onResult))
			return nil
		})
	}
	_ = g.Wait()

	// путь мог не вернуть мангу, если упал целиком
	for _, it := range items {
		if _, ok := results[it.Title]; !ok {
			results[it.Title] = chapter.Unknown
		}
	}

	return results
}
