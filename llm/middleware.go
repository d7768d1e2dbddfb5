package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hazyhaar/sitegen/observability"
)

// Middleware wraps a Provider.
type Middleware func(Provider) Provider

// Wrap applies mws to p. The first middleware is the outermost.
func Wrap(p Provider, mws ...Middleware) Provider {
	for i := len(mws) - 1; i >= 0; i-- {
		p = mws[i](p)
	}
	return p
}

// WithTimeout bounds each call to d. Zero disables it.
func WithTimeout(d time.Duration) Middleware {
	return func(next Provider) Provider {
		if d <= 0 {
			return next
		}
		return ProviderFunc{ProviderName: next.Name(), Fn: func(ctx context.Context, req Request, onDelta func(string)) (*Completion, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next.Complete(ctx, req, onDelta)
		}}
	}
}

// WithRetry repeats calls failing with a retryable upstream error, waiting
// base, 2*base, 4*base... between attempts. A call that already streamed a
// delta is never repeated: the caller has consumed part of the answer.
func WithRetry(maxRetries int, base time.Duration, logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Provider) Provider {
		return ProviderFunc{ProviderName: next.Name(), Fn: func(ctx context.Context, req Request, onDelta func(string)) (*Completion, error) {
			var lastErr error
			for attempt := 0; attempt <= maxRetries; attempt++ {
				streamed := false
				c, err := next.Complete(ctx, req, func(s string) {
					streamed = true
					if onDelta != nil {
						onDelta(s)
					}
				})
				if err == nil {
					return c, nil
				}
				lastErr = err
				var open *ErrCircuitOpen
				if streamed || ctx.Err() != nil || errors.As(err, &open) || !IsRetryable(err) {
					return c, err
				}
				if attempt == maxRetries {
					break
				}
				wait := base << attempt
				logger.WarnContext(ctx, "llm: retrying call",
					"provider", next.Name(), "attempt", attempt+1, "backoff_ms", wait.Milliseconds(), "error", err)
				t := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					t.Stop()
					return nil, lastErr
				case <-t.C:
				}
			}
			return nil, lastErr
		}}
	}
}

// WithLogging logs every call with its duration and output size.
func WithLogging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Provider) Provider {
		return ProviderFunc{ProviderName: next.Name(), Fn: func(ctx context.Context, req Request, onDelta func(string)) (*Completion, error) {
			start := time.Now()
			c, err := next.Complete(ctx, req, onDelta)
			attrs := []any{"provider", next.Name(), "duration_ms", time.Since(start).Milliseconds()}
			if err != nil {
				logger.ErrorContext(ctx, "llm: call failed", append(attrs, "error", err)...)
				return c, err
			}
			logger.InfoContext(ctx, "llm: call ok", append(attrs, "model", c.Model,
				"output_bytes", len(c.Text), "stop_reason", c.StopReason)...)
			return c, nil
		}}
	}
}

// WithMetrics records the duration of every call, labelled with the
// provider and whether it succeeded.
func WithMetrics(m *observability.Metrics) Middleware {
	return func(next Provider) Provider {
		if m == nil {
			return next
		}
		return ProviderFunc{ProviderName: next.Name(), Fn: func(ctx context.Context, req Request, onDelta func(string)) (*Completion, error) {
			start := time.Now()
			c, err := next.Complete(ctx, req, onDelta)
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			m.Duration(observability.MetricLLMDuration, time.Since(start),
				map[string]string{"provider": next.Name(), "outcome": outcome})
			return c, err
		}}
	}
}
