package fetcher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"manga-tracker/internal/chapter"
)

// Site описывает сайт с JSON API: как построить адрес запроса
// и где в ответе лежит номер главы.
type Site struct {
	Name   string
	Domain string
	// ключ массива записей в корне ответа
	RecordsKey string
	// варианты имени поля с номером главы, по приоритету
	// Вложенные поля через точку: "attributes.chapter".
	NumberFields []string

	endpoint func(pageURL string) (string, error)
}

// Endpoint строит адрес API для страницы манги.
func (s *Site) Endpoint(pageURL string) (string, error) {
	return s.endpoint(pageURL)
}

var (
	mangalibSlugRe = regexp.MustCompile(`/manga/([^/?#]+)`)
	mangadexIDRe   = regexp.MustCompile(`/title/([^/?#]+)`)
)

func Mangalib(apiBase string) *Site {
	apiBase = strings.TrimRight(apiBase, "/")
	return &Site{
		Name:         "mangalib",
		Domain:       "mangalib.me",
		RecordsKey:   "data",
		NumberFields: []string{"number", "chapter_number", "chapter"},
		endpoint: func(pageURL string) (string, error) {
			m := mangalibSlugRe.FindStringSubmatch(pageURL)
			if m == nil {
				return "", fmt.Errorf("no manga slug in %q", pageURL)
			}
			return fmt.Sprintf("%s/api/manga/%s/chapters", apiBase, url.PathEscape(m[1])), nil
		},
	}
}

func MangaDex(apiBase string) *Site {
	apiBase = strings.TrimRight(apiBase, "/")
	return &Site{
		Name:         "mangadex",
		Domain:       "mangadex.org",
		RecordsKey:   "data",
		NumberFields: []string{"attributes.chapter", "chapter"},
		endpoint: func(pageURL string) (string, error) {
			m := mangadexIDRe.FindStringSubmatch(pageURL)
			if m == nil {
				return "", fmt.Errorf("no title id in %q", pageURL)
			}
			id, err := uuid.Parse(m[1])
			if err != nil {
				return "", fmt.Errorf("invalid title id %q: %w", m[1], err)
			}
			q := url.Values{}
			q.Set("manga", id.String())
			q.Set("order[chapter]", "desc")
			q.Set("limit", "100")
			return apiBase + "/chapter?" + q.Encode(), nil
		},
	}
}

// Sites список сайтов, которые проверяются через API, без браузера.
type Sites []*Site

func DefaultSites(mangalibBase, mangadexBase string) Sites {
	return Sites{Mangalib(mangalibBase), MangaDex(mangadexBase)}
}

// Lookup возвращает сайт, чей домен встречается в URL.
func (s Sites) Lookup(pageURL string) (*Site, bool) {
	for _, site := range s {
		if strings.Contains(pageURL, site.Domain) {
			return site, true
		}
	}
	return nil, false
}

// ParseChapters берёт максимальный номер главы среди записей ответа.
func (s *Site) ParseChapters(body []byte) (chapter.Indicator, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(body, &root); err != nil {
		return chapter.Unknown, fmt.Errorf("failed to parse response: %w", err)
	}
	rawRecords, ok := root[s.RecordsKey]
	if !ok {
		return chapter.Unknown, fmt.Errorf("response has no %q field", s.RecordsKey)
	}
	var records []json.RawMessage
	if err := json.Unmarshal(rawRecords, &records); err != nil {
		return chapter.Unknown, fmt.Errorf("failed to parse records: %w", err)
	}

	var numbers []float64
	for _, rec := range records {
		if v, ok := s.recordNumber(rec); ok {
			numbers = append(numbers, v)
		}
	}

	ind := chapter.Max(numbers)
	if !ind.Known() {
		return chapter.Unknown, fmt.Errorf("no chapter numbers in %d records", len(records))
	}
	return ind, nil
}

func (s *Site) recordNumber(rec json.RawMessage) (float64, bool) {
	for _, field := range s.NumberFields {
		raw, ok := lookupPath(rec, strings.Split(field, "."))
		if !ok {
			continue
		}
		if v, ok := parseNumber(raw); ok {
			return v, true
		}
	}
	return 0, false
}

func lookupPath(raw json.RawMessage, path []string) (json.RawMessage, bool) {
	for _, key := range path {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, false
		}
		next, ok := obj[key]
		if !ok {
			return nil, false
		}
		raw = next
	}
	return raw, true
}

// parseNumber принимает и число, и строку ("12.5").
func parseNumber(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, f >= 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, f >= 0
}
