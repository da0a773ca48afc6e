package chapter

import (
	"strconv"
	"strings"
)

// Item снимок отслеживаемой манги: ключ (название) и адрес страницы.
type Item struct {
	Title string
	URL   string
}

// Indicator хранит номер последней главы либо Unknown.
type Indicator struct {
	value float64
	known bool
}

// Unknown означает, что извлечь главу не удалось.
var Unknown = Indicator{}

const unknownText = "unknown"

// legacy-значение, которым старые данные помечали неизвестную главу
const legacyUnknownText = "невідомо"

func New(value float64) Indicator {
	if value < 0 {
		return Unknown
	}
	return Indicator{value: value, known: true}
}

func (i Indicator) Known() bool    { return i.known }
func (i Indicator) Value() float64 { return i.value }

// String возвращает каноническую запись: 12.0 -> "12", 12.5 -> "12.5".
func (i Indicator) String() string {
	if !i.known {
		return unknownText
	}
	return strconv.FormatFloat(i.value, 'f', -1, 64)
}

// Equal сравнивает численно, а не по строке ("12" == "12.0").
func (i Indicator) Equal(other Indicator) bool {
	if i.known != other.known {
		return false
	}
	return !i.known || i.value == other.value
}

// ParseIndicator читает сохранённое значение обратно.
func ParseIndicator(s string) Indicator {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", unknownText, legacyUnknownText:
		return Unknown
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Unknown
	}
	return New(v)
}

// Max возвращает наибольшее из значений или Unknown для пустого списка.
func Max(values []float64) Indicator {
	result := Unknown
	for _, v := range values {
		if v < 0 {
			continue
		}
		if !result.known || v > result.value {
			result = New(v)
		}
	}
	return result
}

// ResultFunc вызывается один раз на каждый завершённый элемент.
type ResultFunc func(title string, ind Indicator)
