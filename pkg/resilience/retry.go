package resilience

import (
	"math/rand/v2"
	"time"
)

type RetryConfig struct {
	// MaxRetries is the total number of attempts, including the first one.
	MaxRetries int
	// BaseDelay is the wait after the first failed attempt. Each further
	// failure doubles it up to MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// JitterMax bounds the uniform random delay added on top of the
	// exponential backoff.
	JitterMax time.Duration
}

// DefaultRetryConfig returns the standard retry parameters
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
		JitterMax:  time.Second,
	}
}

// backoffDelay returns the deterministic wait after the given 1-based
// failed attempt: BaseDelay doubled per failure, capped at MaxDelay.
func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	d := cfg.BaseDelay << (attempt - 1)
	if d <= 0 || d > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return d
}

func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}
