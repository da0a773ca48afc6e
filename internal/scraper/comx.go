package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"manga-tracker/internal/chapter"
)

const comxStateJS = `() => typeof window.__DATA__ !== 'undefined' ? window.__DATA__ : null`

var (
	comxStateRe = regexp.MustCompile(`(?s)window\.__DATA__\s*=\s*(\{.*?\})\s*(?:;|</script>)`)
	comxPosiRe  = regexp.MustCompile(`"posi"\s*:\s*(\d+)`)
)

// список глав или скрипт с состоянием, что отрисуется раньше
var comxMarkers = []Marker{
	{Selector: ".page__chapters-list"},
	{Selector: "script", Text: "__DATA__"},
}

type comxState struct {
	Chapters []struct {
		Posi float64 `json:"posi"`
	} `json:"chapters"`
}

func (s comxState) positions() []float64 {
	var out []float64
	for _, ch := range s.Chapters {
		if ch.Posi > 0 {
			out = append(out, ch.Posi)
		}
	}
	return out
}

// ComX читает список глав из встроенного состояния window.__DATA__.
type ComX struct {
	opts Options
}

func NewComX(opts Options) *ComX {
	return &ComX{opts: opts.withDefaults()}
}

func (s *ComX) Name() string { return "com-x.life" }

func (s *ComX) Extract(ctx context.Context, page Page, url string) (chapter.Indicator, error) {
	if err := load(ctx, page, url, s.opts, comxMarkers...); err != nil {
		return chapter.Unknown, fmt.Errorf("navigate: %w", err)
	}

	chapters := s.fromState(ctx, page)
	if len(chapters) == 0 {
		html, err := page.HTML(ctx)
		if err != nil {
			return chapter.Unknown, fmt.Errorf("read html: %w", err)
		}
		chapters = comxChaptersFromHTML(html)
	}

	if ind := chapter.Max(chapters); ind.Known() {
		return ind, nil
	}
	return chapter.Unknown, ErrNoChapters
}

func (s *ComX) fromState(ctx context.Context, page Page) []float64 {
	raw, err := page.EvalJSON(ctx, comxStateJS)
	if err != nil || len(raw) == 0 {
		return nil
	}
	var state comxState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil
	}
	return state.positions()
}

// comxChaptersFromHTML: запасной разбор, когда JS недоступен.
func comxChaptersFromHTML(html string) []float64 {
	m := comxStateRe.FindStringSubmatch(html)
	if m == nil {
		return posiNumbers(html)
	}
	var state comxState
	if err := json.Unmarshal([]byte(m[1]), &state); err != nil {
		return posiNumbers(m[1])
	}
	return state.positions()
}

func posiNumbers(text string) []float64 {
	var out []float64
	for _, m := range comxPosiRe.FindAllStringSubmatch(text, -1) {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			out = append(out, v)
		}
	}
	return out
}
