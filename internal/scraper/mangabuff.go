package scraper

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"manga-tracker/internal/chapter"
	"manga-tracker/internal/normalize"
)

var chapterHrefRe = regexp.MustCompile(`/chapter/(\d+(?:\.\d+)?)`)

// MangaBuff берёт номер главы из ссылок вида /chapter/N, иначе из текста ссылок.
type MangaBuff struct {
	opts Options
}

func NewMangaBuff(opts Options) *MangaBuff {
	return &MangaBuff{opts: opts.withDefaults()}
}

func (s *MangaBuff) Name() string { return "mangabuff.ru" }

func (s *MangaBuff) Extract(ctx context.Context, page Page, url string) (chapter.Indicator, error) {
	if err := load(ctx, page, url, s.opts, Marker{Selector: "a[href*='/chapter/']"}); err != nil {
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

	var chapters []float64
	doc.Find("a[href*='/chapter/']").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if m := chapterHrefRe.FindStringSubmatch(href); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				chapters = append(chapters, v)
			}
		}
	})

	if len(chapters) == 0 {
		for _, text := range normalize.LinkTexts(doc) {
			if v, ok := chapter.FindLast(text); ok {
				chapters = append(chapters, v)
			}
		}
	}

	if ind := chapter.Max(chapters); ind.Known() {
		return ind, nil
	}
	return chapter.Unknown, ErrNoChapters
}
