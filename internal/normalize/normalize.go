package normalize

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var spacesRe = regexp.MustCompile(`\s+`)

// NormalizeURL убирает пробелы по краям и якорь.
func NormalizeURL(urlStr string) string {
	urlStr = strings.TrimSpace(urlStr)
	if idx := strings.Index(urlStr, "#"); idx > -1 {
		urlStr = urlStr[:idx]
	}
	return urlStr
}

// ValidateURL проверяет, что адрес абсолютный http(s) с хостом.
func ValidateURL(urlStr string) error {
	if !strings.HasPrefix(urlStr, "http") {
		return fmt.Errorf("url must start with http: %q", urlStr)
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url has no host: %q", urlStr)
	}
	return nil
}

// CleanText заменяет NBSP на пробел и схлопывает пробелы.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\u00A0", " ")
	text = spacesRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// LinkTexts возвращает очищенные тексты всех ссылок страницы.
func LinkTexts(doc *goquery.Document) []string {
	var texts []string
	doc.Find("a").Each(func(_ int, sel *goquery.Selection) {
		if text := CleanText(sel.Text()); text != "" {
			texts = append(texts, text)
		}
	})
	return texts
}
