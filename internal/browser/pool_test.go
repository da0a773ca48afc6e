package browser

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"manga-tracker/internal/chapter"
	"manga-tracker/internal/observability"
	"manga-tracker/internal/scraper"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeStrategy отдаёт номер главы из карты по URL; URL из hang висят до отмены ctx.
type fakeStrategy struct {
	chapters map[string]float64
	hang     map[string]bool
	delay    time.Duration
}

func (s *fakeStrategy) Name() string { return "fake" }

func (s *fakeStrategy) Extract(ctx context.Context, page scraper.Page, u string) (chapter.Indicator, error) {
	if err := page.Navigate(ctx, u, time.Second); err != nil {
		return chapter.Unknown, err
	}
	if s.hang[u] {
		<-ctx.Done()
		return chapter.Unknown, ctx.Err()
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return chapter.Unknown, ctx.Err()
		}
	}
	v, ok := s.chapters[u]
	if !ok {
		return chapter.Unknown, scraper.ErrNoChapters
	}
	return chapter.New(v), nil
}

type fakeLauncher struct {
	mu         sync.Mutex
	launched   []*fakeBrowser
	alive      int
	maxAlive   int
	openPages  int
	maxOpen    int
	failLaunch bool
}

func (l *fakeLauncher) Launch(ctx context.Context) (Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failLaunch {
		return nil, errors.New("chrome not found")
	}
	b := &fakeBrowser{launcher: l}
	l.launched = append(l.launched, b)
	l.alive++
	if l.alive > l.maxAlive {
		l.maxAlive = l.alive
	}
	return b, nil
}

type fakeBrowser struct {
	launcher *fakeLauncher
	closed   atomic.Int32
}

func (b *fakeBrowser) NewPage(ctx context.Context) (Page, error) {
	if b.closed.Load() > 0 {
		return nil, errors.New("browser closed")
	}
	l := b.launcher
	l.mu.Lock()
	l.openPages++
	if l.openPages > l.maxOpen {
		l.maxOpen = l.openPages
	}
	l.mu.Unlock()
	return &fakePage{browser: b}, nil
}

func (b *fakeBrowser) Close() error {
	if b.closed.Add(1) == 1 {
		b.launcher.mu.Lock()
		b.launcher.alive--
		b.launcher.mu.Unlock()
	}
	return nil
}

type fakePage struct {
	browser *fakeBrowser
}

func (p *fakePage) Navigate(ctx context.Context, u string, timeout time.Duration) error {
	return ctx.Err()
}

func (p *fakePage) WaitFor(ctx context.Context, timeout time.Duration, markers ...scraper.Marker) error {
	return nil
}

func (p *fakePage) EvalJSON(ctx context.Context, js string) ([]byte, error) {
	return []byte("null"), nil
}

func (p *fakePage) HTML(ctx context.Context) (string, error) { return "", nil }

func (p *fakePage) Close() error {
	l := p.browser.launcher
	l.mu.Lock()
	l.openPages--
	l.mu.Unlock()
	return nil
}

func newTestPool(l Launcher, s scraper.Strategy, opts Options) *Pool {
	if opts.Retry.Attempts == 0 {
		opts.Retry = scraper.RetryPolicy{Attempts: 1}
	}
	return NewPool(l, scraper.NewRegistry(s), opts, observability.NewNop(), nil)
}

func items(n int) ([]chapter.Item, map[string]float64) {
	list := make([]chapter.Item, 0, n)
	chapters := make(map[string]float64, n)
	for i := 0; i < n; i++ {
		u := "https://example.org/manga/" + string(rune('a'+i))
		list = append(list, chapter.Item{Title: "title-" + string(rune('a'+i)), URL: u})
		chapters[u] = float64(i + 1)
	}
	return list, chapters
}

func TestCheckAllBatches(t *testing.T) {
	list, chapters := items(7)
	l := &fakeLauncher{}
	p := newTestPool(l, &fakeStrategy{chapters: chapters}, Options{BatchSize: 3, MaxPages: 2, ItemTimeout: time.Second})

	var mu sync.Mutex
	var reported []string
	res := p.CheckAll(context.Background(), list, func(title string, ind chapter.Indicator) {
		mu.Lock()
		reported = append(reported, title)
		mu.Unlock()
	})

	require.Len(t, res, 7)
	for i, it := range list {
		assert.Equal(t, chapter.New(float64(i+1)), res[it.Title], it.Title)
	}
	assert.Len(t, reported, 7)

	// 7 манги по 3 в пачке: три отдельных браузера, каждый закрыт ровно один раз
	require.Len(t, l.launched, 3)
	for _, b := range l.launched {
		assert.Equal(t, int32(1), b.closed.Load())
	}
	assert.Equal(t, 1, l.maxAlive)
	assert.LessOrEqual(t, l.maxOpen, 2)
	assert.Equal(t, 0, l.openPages)
}

func TestCheckAllPageLimit(t *testing.T) {
	list, chapters := items(10)
	l := &fakeLauncher{}
	p := newTestPool(l, &fakeStrategy{chapters: chapters, delay: 20 * time.Millisecond},
		Options{BatchSize: 10, MaxPages: 3, ItemTimeout: 5 * time.Second})

	res := p.CheckAll(context.Background(), list, nil)

	require.Len(t, res, 10)
	assert.LessOrEqual(t, l.maxOpen, 3)
	assert.Equal(t, 3, l.maxOpen)
}

func TestCheckAllItemTimeout(t *testing.T) {
	list, chapters := items(3)
	l := &fakeLauncher{}
	s := &fakeStrategy{chapters: chapters, hang: map[string]bool{list[1].URL: true}}
	p := newTestPool(l, s, Options{BatchSize: 3, MaxPages: 3, ItemTimeout: 100 * time.Millisecond})

	res := p.CheckAll(context.Background(), list, nil)

	assert.Equal(t, chapter.New(1), res[list[0].Title])
	assert.Equal(t, chapter.Unknown, res[list[1].Title])
	assert.Equal(t, chapter.New(3), res[list[2].Title])
	require.Len(t, l.launched, 1)
	assert.Equal(t, int32(1), l.launched[0].closed.Load())
}

func TestCheckAllTimeoutIncludesPageWait(t *testing.T) {
	list, chapters := items(2)
	l := &fakeLauncher{}
	s := &fakeStrategy{chapters: chapters, hang: map[string]bool{list[0].URL: true, list[1].URL: true}}
	p := newTestPool(l, s, Options{BatchSize: 2, MaxPages: 1, ItemTimeout: 80 * time.Millisecond})

	start := time.Now()
	res := p.CheckAll(context.Background(), list, nil)

	assert.Equal(t, chapter.Unknown, res[list[0].Title])
	assert.Equal(t, chapter.Unknown, res[list[1].Title])
	assert.Less(t, time.Since(start), time.Second)
}

func TestCheckAllLaunchFailure(t *testing.T) {
	list, chapters := items(4)
	l := &fakeLauncher{failLaunch: true}
	p := newTestPool(l, &fakeStrategy{chapters: chapters}, Options{BatchSize: 2, MaxPages: 2, ItemTimeout: time.Second})

	var calls atomic.Int32
	res := p.CheckAll(context.Background(), list, func(string, chapter.Indicator) { calls.Add(1) })

	require.Len(t, res, 4)
	for _, ind := range res {
		assert.False(t, ind.Known())
	}
	assert.Equal(t, int32(4), calls.Load())
}

func TestCheckAllRetriesUnknown(t *testing.T) {
	list, _ := items(2)
	l := &fakeLauncher{}
	p := newTestPool(l, &fakeStrategy{chapters: map[string]float64{list[0].URL: 5}},
		Options{BatchSize: 2, MaxPages: 2, ItemTimeout: time.Second, Retry: scraper.RetryPolicy{Attempts: 2, Delay: time.Millisecond}})

	res := p.CheckAll(context.Background(), list, nil)

	assert.Equal(t, chapter.New(5), res[list[0].Title])
	assert.Equal(t, chapter.Unknown, res[list[1].Title])
}

func TestCheckAllCancelledSkipsBatches(t *testing.T) {
	list, chapters := items(4)
	l := &fakeLauncher{}
	p := newTestPool(l, &fakeStrategy{chapters: chapters}, Options{BatchSize: 2, MaxPages: 2, ItemTimeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := p.CheckAll(ctx, list, nil)

	require.Len(t, res, 4)
	for _, ind := range res {
		assert.False(t, ind.Known())
	}
	assert.Empty(t, l.launched)
}

func TestBlocklist(t *testing.T) {
	bl := NewBlocklist([]string{"image", "Font"}, []string{"mc.yandex.ru", "doubleclick.net", " "})

	tests := []struct {
		name     string
		kind     string
		rawURL   string
		expected bool
	}{
		{"image by type", "Image", "https://com-x.life/a.png", true},
		{"font case insensitive", "font", "https://com-x.life/a.woff", true},
		{"document allowed", "Document", "https://com-x.life/manga", false},
		{"exact domain", "Script", "https://mc.yandex.ru/metrika.js", true},
		{"subdomain", "Script", "https://ad.doubleclick.net/x.js", true},
		{"suffix without dot", "Script", "https://notdoubleclick.net/x.js", false},
		{"xhr allowed", "XHR", "https://api.com-x.life/chapters", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.rawURL)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, bl.Blocked(tt.kind, u))
		})
	}

	assert.False(t, bl.Blocked("Script", nil))
	assert.False(t, strings.Contains(strings.Join(bl.domains, ","), " "))
}
