package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"manga-tracker/internal/observability"
	"manga-tracker/internal/scraper"
)

type RodOptions struct {
	ChromePath     string
	Headless       bool
	UserAgent      string
	Locale         string
	ViewportWidth  int
	ViewportHeight int
	Blocklist      *Blocklist
}

// RodLauncher запускает Chromium через go-rod. Каждый Launch поднимает отдельный
// процесс с инкогнито-контекстом; Close убивает процесс и чистит профиль.
type RodLauncher struct {
	opts   RodOptions
	logger *observability.Logger
}

func NewRodLauncher(opts RodOptions, logger *observability.Logger) *RodLauncher {
	if opts.Blocklist == nil {
		opts.Blocklist = NewBlocklist(nil, nil)
	}
	return &RodLauncher{opts: opts, logger: logger}
}

func (l *RodLauncher) Launch(ctx context.Context) (Browser, error) {
	ln := launcher.New().
		Context(ctx).
		Headless(l.opts.Headless).
		Set("disable-dev-shm-usage").
		Set("disable-gpu")
	if l.opts.ChromePath != "" {
		ln = ln.Bin(l.opts.ChromePath)
	}
	if l.opts.Locale != "" {
		ln = ln.Set("lang", l.opts.Locale)
	}

	controlURL, err := ln.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		ln.Kill()
		ln.Cleanup()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	incognito, err := b.Incognito()
	if err != nil {
		_ = b.Close()
		ln.Kill()
		ln.Cleanup()
		return nil, fmt.Errorf("create browser context: %w", err)
	}

	l.logger.Debug("Browser launched", "control_url", controlURL)
	return &rodBrowser{
		launcher: ln,
		root:     b,
		ctx:      incognito,
		opts:     l.opts,
		logger:   l.logger,
	}, nil
}

type rodBrowser struct {
	launcher *launcher.Launcher
	root     *rod.Browser
	ctx      *rod.Browser
	opts     RodOptions
	logger   *observability.Logger

	closeOnce sync.Once
	closeErr  error
}

func (b *rodBrowser) NewPage(ctx context.Context) (Page, error) {
	raw, err := b.ctx.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	page := raw.Context(ctx)

	if b.opts.UserAgent != "" {
		err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      b.opts.UserAgent,
			AcceptLanguage: b.opts.Locale,
		})
		if err != nil {
			_ = raw.Close()
			return nil, fmt.Errorf("set user agent: %w", err)
		}
	}

	if b.opts.ViewportWidth > 0 && b.opts.ViewportHeight > 0 {
		err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             b.opts.ViewportWidth,
			Height:            b.opts.ViewportHeight,
			DeviceScaleFactor: 1,
		})
		if err != nil {
			_ = raw.Close()
			return nil, fmt.Errorf("set viewport: %w", err)
		}
	}

	if b.opts.Locale != "" {
		// не все сборки Chromium поддерживают переопределение локали
		if err := (proto.EmulationSetLocaleOverride{Locale: b.opts.Locale}).Call(page); err != nil {
			b.logger.Debug("Locale override not applied", "error", err.Error())
		}
	}

	router := raw.HijackRequests()
	err = router.Add("*", "", func(h *rod.Hijack) {
		if b.opts.Blocklist.Blocked(string(h.Request.Type()), h.Request.URL()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	if err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("install request filter: %w", err)
	}
	go router.Run()

	return &rodPage{raw: raw, router: router}, nil
}

func (b *rodBrowser) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = b.root.Close()
		if b.closeErr != nil {
			b.launcher.Kill()
		}
		b.launcher.Cleanup()
	})
	return b.closeErr
}

type rodPage struct {
	raw    *rod.Page
	router *rod.HijackRouter
}

func (p *rodPage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page := p.raw.Context(tctx)
	wait := page.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	wait()

	if err := tctx.Err(); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// WaitFor ждёт первый появившийся маркер через rod Race.
func (p *rodPage) WaitFor(ctx context.Context, timeout time.Duration, markers ...scraper.Marker) error {
	if len(markers) == 0 {
		return nil
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	race := p.raw.Context(tctx).Race()
	for _, m := range markers {
		if m.Text != "" {
			race = race.ElementR(m.Selector, m.Text)
		} else {
			race = race.Element(m.Selector)
		}
	}
	if _, err := race.Do(); err != nil {
		return fmt.Errorf("wait for %d markers: %w", len(markers), err)
	}
	return nil
}

func (p *rodPage) EvalJSON(ctx context.Context, js string) ([]byte, error) {
	res, err := p.raw.Context(ctx).Eval(js)
	if err != nil {
		return nil, fmt.Errorf("eval: %w", err)
	}
	return res.Value.MarshalJSON()
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	return p.raw.Context(ctx).HTML()
}

func (p *rodPage) Close() error {
	_ = p.router.Stop()
	return p.raw.Close()
}
