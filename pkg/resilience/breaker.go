package resilience

import (
	"sync"
	"time"

	"github.com/engramdb/engram/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// ErrCircuitOpen is returned without touching the datastore while the
// breaker is rejecting traffic.
var ErrCircuitOpen = goerr.New("circuit breaker is open", goerr.T(model.ErrTagCircuitOpen))

// State is the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failed operations that
	// trips the breaker from closed to open.
	FailureThreshold int
	// ResetTimeout is how long the breaker stays open before it admits a
	// half-open trial.
	ResetTimeout time.Duration
	// HalfOpenMaxAttempts bounds how many trials may start while half-open
	// before the first outcome is known.
	HalfOpenMaxAttempts int
}

// DefaultBreakerConfig returns the standard breaker parameters
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:    5,
		ResetTimeout:        60 * time.Second,
		HalfOpenMaxAttempts: 3,
	}
}

// Breaker is a circuit breaker guarding one datastore. Every store instance
// owns its breaker, state is never shared across instances.
type Breaker struct {
	mu               sync.Mutex
	cfg              BreakerConfig
	state            State
	failures         int
	halfOpenAttempts int
	lastFailure      time.Time
	now              func() time.Time
}

type BreakerOption func(*Breaker)

// WithNow overrides the breaker clock, used by tests
func WithNow(now func() time.Time) BreakerOption {
	return func(b *Breaker) {
		b.now = now
	}
}

// NewBreaker creates a breaker with the given configuration. Zero config
// fields fall back to the defaults.
func NewBreaker(cfg BreakerConfig, opts ...BreakerOption) *Breaker {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.HalfOpenMaxAttempts <= 0 {
		cfg.HalfOpenMaxAttempts = def.HalfOpenMaxAttempts
	}

	b := &Breaker{
		cfg: cfg,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow reports whether a request may proceed. While open it admits a
// half-open trial once the reset timeout has elapsed.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil

	case StateOpen:
		elapsed := b.now().Sub(b.lastFailure)
		if elapsed < b.cfg.ResetTimeout {
			return goerr.Wrap(ErrCircuitOpen, "rejecting request",
				goerr.V("retry_after", b.cfg.ResetTimeout-elapsed),
				goerr.T(model.ErrTagCircuitOpen))
		}
		b.state = StateHalfOpen
		b.halfOpenAttempts = 1
		return nil

	default: // StateHalfOpen
		if b.halfOpenAttempts >= b.cfg.HalfOpenMaxAttempts {
			return goerr.Wrap(ErrCircuitOpen, "too many half-open trials",
				goerr.V("attempts", b.halfOpenAttempts),
				goerr.T(model.ErrTagCircuitOpen))
		}
		b.halfOpenAttempts++
		return nil
	}
}

// ReportSuccess closes the breaker and clears the failure count. A single
// successful half-open trial is enough to recover.
func (b *Breaker) ReportSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = 0
	b.halfOpenAttempts = 0
}

// ReportFailure records one failed operation. Closed trips to open at the
// failure threshold. A half-open failure reopens immediately and restarts
// the reset timer.
func (b *Breaker) ReportFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.now()
	switch b.state {
	case StateHalfOpen:
		b.state = StateOpen
		b.halfOpenAttempts = 0
	default:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.state = StateOpen
		}
	}
}

// State returns the current breaker state
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
