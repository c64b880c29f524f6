package search

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mikeboe/research-helper/pkg/config"
	"github.com/mikeboe/research-helper/pkg/metrics"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Limited paces calls to a Provider, retries throttled calls with a linear
// backoff and caps the number of calls in flight. Its methods never fail:
// exhausted retries and ordinary errors both yield no data.
type Limited struct {
	Provider   Provider
	MaxRetries int
	RetryBase  time.Duration
	Logger     *slog.Logger

	limiter *rate.Limiter
	sem     *semaphore.Weighted
}

// NewLimited wraps p with the pacing and retry settings of cfg. One Limited
// is shared by every call of a run.
func NewLimited(p Provider, cfg config.Configuration) *Limited {
	every := rate.Inf
	if cfg.InterCallDelay > 0 {
		every = rate.Every(cfg.InterCallDelay)
	}
	return &Limited{
		Provider:   p,
		MaxRetries: cfg.MaxRetries,
		RetryBase:  cfg.RetryBaseDelay,
		Logger:     slog.Default(),
		limiter:    rate.NewLimiter(every, 1),
		sem:        semaphore.NewWeighted(int64(max(cfg.Concurrency, 1))),
	}
}

func (l *Limited) Search(ctx context.Context, query string) []SearchResult {
	results, _ := call(ctx, l, "search", query, func(ctx context.Context) ([]SearchResult, error) {
		return l.Provider.Search(ctx, query)
	})
	return results
}

func (l *Limited) FetchContent(ctx context.Context, url string) *WebDocument {
	doc, _ := call(ctx, l, "fetch", url, func(ctx context.Context) (*WebDocument, error) {
		return l.Provider.FetchContent(ctx, url)
	})
	return doc
}

// call runs fn under the concurrency cap, waiting on the limiter before
// every attempt. Throttled calls are retried at most MaxRetries times.
func call[T any](ctx context.Context, l *Limited, op, target string, fn func(context.Context) (T, error)) (T, bool) {
	var zero T
	name := l.Provider.Name()

	if err := l.sem.Acquire(ctx, 1); err != nil {
		return zero, false
	}
	defer l.sem.Release(1)

	for attempt := 0; attempt <= l.MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.ThrottleRetries.WithLabelValues(name).Inc()
			wait := l.RetryBase * time.Duration(attempt)
			l.Logger.Warn("Provider throttled, backing off", "provider", name, "op", op, "target", target, "attempt", attempt, "wait", wait)
			select {
			case <-ctx.Done():
				return zero, false
			case <-time.After(wait):
			}
		}
		if err := l.limiter.Wait(ctx); err != nil {
			return zero, false
		}

		out, err := fn(ctx)
		if err == nil {
			metrics.ProviderCalls.WithLabelValues(name, op, "ok").Inc()
			return out, true
		}
		if !errors.Is(err, ErrRateLimited) {
			metrics.ProviderCalls.WithLabelValues(name, op, "error").Inc()
			l.Logger.Warn("Provider call failed", "provider", name, "op", op, "target", target, "error", err)
			return zero, false
		}
		metrics.ProviderCalls.WithLabelValues(name, op, "throttled").Inc()
	}

	l.Logger.Warn("Provider still throttled after retries", "provider", name, "op", op, "target", target, "retries", l.MaxRetries)
	return zero, false
}
