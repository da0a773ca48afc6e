package scraper

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"manga-tracker/internal/chapter"
	"manga-tracker/internal/normalize"
)

// maxLinkTextLen отсекает длинные ссылки (описания, анонсы), в которых
// номер главы чаще всего упомянут мимоходом.
const maxLinkTextLen = 100

// Fallback для неизвестных сайтов: максимум по текстам всех ссылок.
type Fallback struct {
	opts Options
}

func NewFallback(opts Options) *Fallback {
	return &Fallback{opts: opts.withDefaults()}
}

func (s *Fallback) Name() string { return "fallback" }

func (s *Fallback) Extract(ctx context.Context, page Page, url string) (chapter.Indicator, error) {
	if err := load(ctx, page, url, s.opts, Marker{Selector: "a"}); err != nil {
		return chapter.Unknown, fmt.Errorf("navigate: %w", err)
	}

	html, err := page.HTML(ctx)
	if err != nil {
		return chapter.Unknown, fmt.Errorf("read html: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return chapter.Unknown, fmt.Errorf("failed to parse HTML: %w", err)
	}

	if ind := chapter.Max(linkChapters(doc)); ind.Known() {
		return ind, nil
	}
	return chapter.Unknown, fmt.Errorf("%w (%s)", ErrNoChapters, url)
}

func linkChapters(doc *goquery.Document) []float64 {
	var chapters []float64
	for _, text := range normalize.LinkTexts(doc) {
		if utf8.RuneCountInString(text) > maxLinkTextLen {
			continue
		}
		if v, ok := chapter.FindLast(text); ok {
			chapters = append(chapters, v)
		}
	}
	return chapters
}
