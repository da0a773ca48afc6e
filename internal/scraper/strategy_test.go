package scraper

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manga-tracker/internal/chapter"
	"manga-tracker/internal/observability"
)

type fakePage struct {
	html        string
	state       string
	evalErr     error
	navErr      error
	navigations int
	waited      []Marker
}

func (p *fakePage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	p.navigations++
	return p.navErr
}

func (p *fakePage) WaitFor(ctx context.Context, timeout time.Duration, markers ...Marker) error {
	p.waited = append(p.waited, markers...)
	return context.DeadlineExceeded
}

func (p *fakePage) EvalJSON(ctx context.Context, js string) ([]byte, error) {
	if p.evalErr != nil {
		return nil, p.evalErr
	}
	if p.state == "" {
		return []byte("null"), nil
	}
	return []byte(p.state), nil
}

func (p *fakePage) HTML(ctx context.Context) (string, error) {
	return p.html, nil
}

func testOptions() Options {
	return Options{NavigationTimeout: time.Second, WaitTimeout: time.Millisecond}
}

func TestComXFromEmbeddedState(t *testing.T) {
	page := &fakePage{state: `{"chapters":[{"posi":198},{"posi":199},{"posi":0}]}`}

	ind, err := NewComX(testOptions()).Extract(context.Background(), page, "https://com-x.life/1-title.html")
	require.NoError(t, err)
	assert.Equal(t, "199", ind.String())
	assert.Equal(t, 1, page.navigations)
	assert.Equal(t, []Marker{
		{Selector: ".page__chapters-list"},
		{Selector: "script", Text: "__DATA__"},
	}, page.waited)
}

func TestComXFallsBackToHTML(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "embedded script",
			html: `<script>window.__DATA__ = {"chapters":[{"posi":12},{"posi":14}]};</script>`,
			want: "14",
		},
		{
			name: "broken json",
			html: `<script>window.__DATA__ = {"chapters":[{"posi":7},{"posi":8},]};</script>`,
			want: "8",
		},
		{
			name: "bare posi",
			html: `<div data-x='{"posi": 31}'></div><div data-x='{"posi":30}'></div>`,
			want: "31",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := &fakePage{html: tt.html, evalErr: errors.New("eval disabled")}
			ind, err := NewComX(testOptions()).Extract(context.Background(), page, "https://com-x.life/x")
			require.NoError(t, err)
			assert.Equal(t, tt.want, ind.String())
		})
	}
}

func TestComXNoChapters(t *testing.T) {
	page := &fakePage{html: "<html></html>"}
	_, err := NewComX(testOptions()).Extract(context.Background(), page, "https://com-x.life/x")
	assert.ErrorIs(t, err, ErrNoChapters)
}

func TestMangaBuff(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "chapter hrefs",
			html: `<a href="/manga/x/chapter/10">10</a><a href="/manga/x/chapter/11.5">11.5</a><a href="/about">about</a>`,
			want: "11.5",
		},
		{
			name: "link text",
			html: `<a href="/read/1">Глава 3</a><a href="/read/2">Глава 4</a>`,
			want: "4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := &fakePage{html: tt.html}
			ind, err := NewMangaBuff(testOptions()).Extract(context.Background(), page, "https://mangabuff.ru/manga/x")
			require.NoError(t, err)
			assert.Equal(t, tt.want, ind.String())
		})
	}
}

func TestFallbackSkipsNoisyLinks(t *testing.T) {
	noisy := "Chapter 500 " + strings.Repeat("announcement text ", 10)
	page := &fakePage{html: `<a>Chapter 5 (was Chapter 4)</a><a>Розділ 6</a><a>` + noisy + `</a>`}

	ind, err := NewFallback(testOptions()).Extract(context.Background(), page, "https://unknown.site/title")
	require.NoError(t, err)
	assert.Equal(t, "6", ind.String())
}

func TestFallbackNavigationError(t *testing.T) {
	page := &fakePage{navErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	_, err := NewFallback(testOptions()).Extract(context.Background(), page, "https://unknown.site/title")
	assert.Error(t, err)
}

func TestRegistryLookup(t *testing.T) {
	reg := DefaultRegistry(testOptions())

	assert.Equal(t, "com-x.life", reg.Lookup("https://com-x.life/1-title.html").Name())
	assert.Equal(t, "mangabuff.ru", reg.Lookup("https://mangabuff.ru/manga/x").Name())
	assert.Equal(t, "fallback", reg.Lookup("https://example.org/manga").Name())
}

func TestRegistryOrder(t *testing.T) {
	first := NewMangaBuff(testOptions())
	reg := NewRegistry(NewFallback(testOptions()))
	reg.Register("example.org", first)
	reg.Register("example", NewComX(testOptions()))

	assert.Same(t, first, reg.Lookup("https://example.org/x"))
}

func TestRetryReturnsUnknownAfterAttempts(t *testing.T) {
	var calls int32
	ind := Retry(context.Background(), RetryPolicy{Attempts: 3, Delay: time.Millisecond}, observability.NewNop(),
		func(ctx context.Context) (chapter.Indicator, error) {
			atomic.AddInt32(&calls, 1)
			return chapter.Unknown, ErrNoChapters
		})

	assert.False(t, ind.Known())
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRetrySucceedsOnSecondAttempt(t *testing.T) {
	calls := 0
	ind := Retry(context.Background(), RetryPolicy{Attempts: 3, Delay: time.Millisecond}, observability.NewNop(),
		func(ctx context.Context) (chapter.Indicator, error) {
			calls++
			if calls == 1 {
				return chapter.Unknown, errors.New("render race")
			}
			return chapter.New(42), nil
		})

	assert.Equal(t, "42", ind.String())
	assert.Equal(t, 2, calls)
}

func TestRetryRenavigatesEachAttempt(t *testing.T) {
	page := &fakePage{html: "<p>empty</p>"}
	strategy := NewFallback(testOptions())

	ind := Retry(context.Background(), RetryPolicy{Attempts: 3, Delay: time.Millisecond}, observability.NewNop(),
		func(ctx context.Context) (chapter.Indicator, error) {
			return strategy.Extract(ctx, page, "https://example.org/x")
		})

	assert.False(t, ind.Known())
	assert.Equal(t, 3, page.navigations)
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	start := time.Now()

	ind := Retry(ctx, RetryPolicy{Attempts: 5, Delay: time.Hour}, observability.NewNop(),
		func(ctx context.Context) (chapter.Indicator, error) {
			calls++
			cancel()
			return chapter.Unknown, ErrNoChapters
		})

	assert.False(t, ind.Known())
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Minute)
}
