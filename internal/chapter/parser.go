package chapter

import (
	"regexp"
	"strconv"
)

var chapterRe = regexp.MustCompile(`(?i)(?:Глава|Розділ|Chapter)\s*(\d+(?:\.\d+)?)`)

// FindLast ищет все упоминания главы в тексте и возвращает максимальное.
// "Chapter 5 (was Chapter 4)" -> 5.
func FindLast(text string) (float64, bool) {
	matches := chapterRe.FindAllStringSubmatch(text, -1)
	found := false
	var last float64
	for _, m := range matches {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if !found || v > last {
			last = v
			found = true
		}
	}
	return last, found
}
