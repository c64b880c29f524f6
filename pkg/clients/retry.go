package clients

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultAttempts is the number of model calls Retrying makes before giving up.
const DefaultAttempts = 3

// Retrying retries failed invocations with a linear backoff.
type Retrying struct {
	Next     Model
	Attempts int
	Backoff  time.Duration
	Logger   *slog.Logger
}

func WithRetry(next Model) *Retrying {
	return &Retrying{Next: next, Attempts: DefaultAttempts, Backoff: time.Second, Logger: slog.Default()}
}

func (r *Retrying) Invoke(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	attempts := max(r.Attempts, 1)
	var lastErr error

	for i := 0; i < attempts; i++ {
		if i > 0 {
			if r.Logger != nil {
				r.Logger.Warn("Retrying LLM generation", "attempt", i+1, "last_error", lastErr)
			}
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(r.Backoff * time.Duration(i)):
			}
		}

		out, err := r.Next.Invoke(ctx, systemPrompt, userPrompt)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}

	return "", fmt.Errorf("operation failed after %d attempts: %w", attempts, lastErr)
}
