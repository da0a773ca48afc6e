package notify

import (
	"context"
	"strings"

	"manga-tracker/internal/observability"
)

// лимит длины одного сообщения в Telegram
const DefaultMaxLen = 4096

// Notifier доставляет текст отчёта получателю.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Split режет текст на части не длиннее limit символов.
// Режет только по переносам строк, чтобы не разорвать запись о манге;
// строка длиннее лимита режется жёстко.
func Split(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultMaxLen
	}
	if runeLen(text) <= limit {
		return []string{text}
	}

	var (
		parts   []string
		current strings.Builder
		curLen  int
	)
	flush := func() {
		if curLen > 0 {
			parts = append(parts, current.String())
			current.Reset()
			curLen = 0
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		if line == "" {
			continue
		}
		n := runeLen(line)
		if n > limit {
			flush()
			runes := []rune(line)
			for i := 0; i < len(runes); i += limit {
				end := i + limit
				if end > len(runes) {
					end = len(runes)
				}
				parts = append(parts, string(runes[i:end]))
			}
			continue
		}
		if curLen+n > limit {
			flush()
		}
		current.WriteString(line)
		curLen += n
	}
	flush()

	return parts
}

func runeLen(s string) int {
	return len([]rune(s))
}

// LogNotifier пишет отчёт в лог. Используется, когда Telegram не настроен.
type LogNotifier struct {
	logger *observability.Logger
}

func NewLogNotifier(logger *observability.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, text string) error {
	n.logger.Info("Report", "text", text)
	return nil
}
