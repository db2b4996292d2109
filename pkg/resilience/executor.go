package resilience

import (
	"context"
	"time"

	"github.com/engramdb/engram/pkg/model"
	"github.com/engramdb/engram/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Executor runs store operations under a circuit breaker and a bounded
// retry-with-backoff policy. The breaker wraps the whole retry loop: one
// exhausted operation counts as a single failure, a fast rejection counts
// as none.
type Executor struct {
	breaker *Breaker
	retry   RetryConfig
	jitter  func(max time.Duration) time.Duration
}

type Option func(*Executor)

func WithBreaker(b *Breaker) Option {
	return func(e *Executor) {
		e.breaker = b
	}
}

func WithRetry(cfg RetryConfig) Option {
	return func(e *Executor) {
		e.retry = cfg
	}
}

// WithJitter overrides the jitter source, used by tests
func WithJitter(fn func(max time.Duration) time.Duration) Option {
	return func(e *Executor) {
		e.jitter = fn
	}
}

// New creates an executor with the default breaker and retry policy
func New(opts ...Option) *Executor {
	e := &Executor{
		breaker: NewBreaker(DefaultBreakerConfig()),
		retry:   DefaultRetryConfig(),
		jitter:  jitter,
	}
	for _, opt := range opts {
		opt(e)
	}

	def := DefaultRetryConfig()
	if e.retry.MaxRetries <= 0 {
		e.retry.MaxRetries = def.MaxRetries
	}
	if e.retry.BaseDelay <= 0 {
		e.retry.BaseDelay = def.BaseDelay
	}
	if e.retry.MaxDelay <= 0 {
		e.retry.MaxDelay = def.MaxDelay
	}

	return e
}

// Breaker exposes the executor's breaker for observability
func (e *Executor) Breaker() *Breaker {
	return e.breaker
}

// Do runs op under the breaker and retry policy. Validation failures pass
// through untouched on the first attempt: retrying them can never succeed
// and they say nothing about datastore health. Context cancellation stops
// the loop without counting a breaker failure.
func (e *Executor) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	if err := e.breaker.Allow(); err != nil {
		return goerr.Wrap(err, "operation rejected",
			goerr.V("operation", name), goerr.T(model.ErrTagCircuitOpen))
	}

	logger := logging.From(ctx)

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= e.retry.MaxRetries; attempt++ {
		err := op(ctx)
		attempts = attempt
		if err == nil {
			e.breaker.ReportSuccess()
			return nil
		}
		if model.IsValidation(err) {
			return err
		}
		lastErr = err

		if attempt == e.retry.MaxRetries {
			break
		}
		if ctx.Err() != nil {
			return goerr.Wrap(lastErr, "operation canceled",
				goerr.V("operation", name), goerr.V("attempt", attempt),
				goerr.T(model.ErrTagStore))
		}

		delay := backoffDelay(e.retry, attempt) + e.jitter(e.retry.JitterMax)
		logger.Warn("retrying operation",
			"operation", name,
			"attempt", attempt,
			"max_retries", e.retry.MaxRetries,
			"delay", delay,
			"error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return goerr.Wrap(lastErr, "operation canceled during retry wait",
				goerr.V("operation", name), goerr.V("attempt", attempt),
				goerr.T(model.ErrTagStore))
		case <-timer.C:
		}
	}

	e.breaker.ReportFailure()
	logger.Error("operation failed after retries",
		"operation", name,
		"attempts", attempts,
		"error", lastErr)
	return goerr.Wrap(lastErr, "operation failed",
		goerr.V("operation", name), goerr.V("attempts", attempts),
		goerr.T(model.ErrTagStore))
}
