package scraper

import (
	"context"
	"time"

	"manga-tracker/internal/chapter"
	"manga-tracker/internal/observability"
)

// RetryPolicy: число попыток и фиксированная пауза между ними.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: 2 * time.Second}
}

type ExtractFunc func(ctx context.Context) (chapter.Indicator, error)

// Retry вызывает fn до policy.Attempts раз. Ошибки попыток только логируются;
// после последней неудачи возвращается Unknown.
func Retry(ctx context.Context, policy RetryPolicy, logger *observability.Logger, fn ExtractFunc) chapter.Indicator {
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		ind, err := fn(ctx)
		if err == nil && ind.Known() {
			return ind
		}
		if err == nil {
			err = ErrNoChapters
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		if attempt < attempts {
			logger.Warn("Extraction attempt failed, retrying",
				"attempt", attempt,
				"attempts", attempts,
				"delay", policy.Delay.String(),
				"error", err.Error(),
			)
			select {
			case <-time.After(policy.Delay):
			case <-ctx.Done():
				logger.Warn("Retry aborted", "attempt", attempt, "error", ctx.Err().Error())
				return chapter.Unknown
			}
		}
	}

	logger.Warn("All extraction attempts failed", "attempts", attempts, "error", lastErr.Error())
	return chapter.Unknown
}
