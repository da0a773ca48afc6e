package scraper

import (
	"context"
	"errors"
	"strings"
	"time"

	"manga-tracker/internal/chapter"
)

// ErrNoChapters возвращается стратегией, когда на странице не нашлось глав.
// Это сигнал для повторной попытки.
var ErrNoChapters = errors.New("no chapters found")

// Page загруженная в браузере страница. Реализуется поверх rod в пакете browser.
type Page interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// WaitFor ждёт появления любого из маркеров; ошибка таймаута вызывающим игнорируется.
	WaitFor(ctx context.Context, timeout time.Duration, markers ...Marker) error
	// EvalJSON выполняет JS-функцию и возвращает результат в виде JSON.
	EvalJSON(ctx context.Context, js string) ([]byte, error)
	HTML(ctx context.Context) (string, error)
}

// Marker элемент, по которому видно, что контент отрисован.
// Text, если задан, это регулярное выражение по тексту элемента.
type Marker struct {
	Selector string
	Text     string
}

// Strategy извлекает последнюю главу с загруженной страницы конкретного сайта.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, page Page, url string) (chapter.Indicator, error)
}

// Options общие для всех стратегий таймауты.
type Options struct {
	NavigationTimeout time.Duration
	WaitTimeout       time.Duration
}

func (o Options) withDefaults() Options {
	if o.NavigationTimeout <= 0 {
		o.NavigationTimeout = 40 * time.Second
	}
	if o.WaitTimeout <= 0 {
		o.WaitTimeout = 10 * time.Second
	}
	return o
}

type entry struct {
	domain   string
	strategy Strategy
}

// Registry сопоставляет домен (подстроку URL) со стратегией.
// Домены проверяются в порядке регистрации; без совпадения используется fallback.
type Registry struct {
	entries  []entry
	fallback Strategy
}

func NewRegistry(fallback Strategy) *Registry {
	return &Registry{fallback: fallback}
}

// DefaultRegistry собирает стратегии известных сайтов.
func DefaultRegistry(opts Options) *Registry {
	opts = opts.withDefaults()
	r := NewRegistry(NewFallback(opts))
	r.Register("com-x.life", NewComX(opts))
	r.Register("mangabuff.ru", NewMangaBuff(opts))
	return r
}

func (r *Registry) Register(domain string, s Strategy) {
	r.entries = append(r.entries, entry{domain: domain, strategy: s})
}

func (r *Registry) Lookup(url string) Strategy {
	for _, e := range r.entries {
		if strings.Contains(url, e.domain) {
			return e.strategy
		}
	}
	return r.fallback
}

// load переходит на страницу и ждёт маркер контента. Если маркер не появился, это не ошибка.
func load(ctx context.Context, page Page, url string, opts Options, markers ...Marker) error {
	if err := page.Navigate(ctx, url, opts.NavigationTimeout); err != nil {
		return err
	}
	if len(markers) > 0 {
		_ = page.WaitFor(ctx, opts.WaitTimeout, markers...)
	}
	return nil
}
