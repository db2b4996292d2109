package resilience_test

import (
	"errors"
	"testing"
	"time"

	"github.com/engramdb/engram/pkg/model"
	"github.com/engramdb/engram/pkg/resilience"
	"github.com/m-mizutani/gt"
)

func newTestBreaker(t *testing.T) (*resilience.Breaker, *time.Time) {
	t.Helper()
	now := time.Now()
	b := resilience.NewBreaker(resilience.BreakerConfig{
		FailureThreshold:    5,
		ResetTimeout:        60 * time.Second,
		HalfOpenMaxAttempts: 3,
	}, resilience.WithNow(func() time.Time { return now }))
	return b, &now
}

func TestBreakerTripsAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(t)

	for i := 0; i < 4; i++ {
		b.ReportFailure()
		gt.Equal(t, b.State(), resilience.StateClosed)
		gt.NoError(t, b.Allow())
	}

	b.ReportFailure()
	gt.Equal(t, b.State(), resilience.StateOpen)

	err := b.Allow()
	gt.Error(t, err)
	gt.True(t, model.IsCircuitOpen(err))
	gt.True(t, errors.Is(err, resilience.ErrCircuitOpen))
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(t)

	for i := 0; i < 4; i++ {
		b.ReportFailure()
	}
	b.ReportSuccess()

	// The counter restarted, four more failures stay below the threshold
	for i := 0; i < 4; i++ {
		b.ReportFailure()
	}
	gt.Equal(t, b.State(), resilience.StateClosed)

	b.ReportFailure()
	gt.Equal(t, b.State(), resilience.StateOpen)
}

func TestBreakerHalfOpenAfterTimeout(t *testing.T) {
	b, now := newTestBreaker(t)

	for i := 0; i < 5; i++ {
		b.ReportFailure()
	}
	gt.Equal(t, b.State(), resilience.StateOpen)
	gt.Error(t, b.Allow())

	*now = now.Add(59 * time.Second)
	gt.Error(t, b.Allow())

	*now = now.Add(2 * time.Second)
	gt.NoError(t, b.Allow())
	gt.Equal(t, b.State(), resilience.StateHalfOpen)

	b.ReportSuccess()
	gt.Equal(t, b.State(), resilience.StateClosed)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b, now := newTestBreaker(t)

	for i := 0; i < 5; i++ {
		b.ReportFailure()
	}
	*now = now.Add(61 * time.Second)
	gt.NoError(t, b.Allow())
	gt.Equal(t, b.State(), resilience.StateHalfOpen)

	b.ReportFailure()
	gt.Equal(t, b.State(), resilience.StateOpen)

	// The reset timer restarted at the half-open failure
	*now = now.Add(30 * time.Second)
	gt.Error(t, b.Allow())
	*now = now.Add(31 * time.Second)
	gt.NoError(t, b.Allow())
}

func TestBreakerHalfOpenAttemptLimit(t *testing.T) {
	b, now := newTestBreaker(t)

	for i := 0; i < 5; i++ {
		b.ReportFailure()
	}
	*now = now.Add(61 * time.Second)

	// The transition itself consumes the first trial slot
	gt.NoError(t, b.Allow())
	gt.NoError(t, b.Allow())
	gt.NoError(t, b.Allow())

	err := b.Allow()
	gt.Error(t, err)
	gt.True(t, model.IsCircuitOpen(err))

	// One success recovers and clears the trial counter
	b.ReportSuccess()
	gt.NoError(t, b.Allow())
}

func TestBreakerDefaults(t *testing.T) {
	b := resilience.NewBreaker(resilience.BreakerConfig{})
	gt.Equal(t, b.State(), resilience.StateClosed)

	for i := 0; i < 5; i++ {
		b.ReportFailure()
	}
	gt.Equal(t, b.State(), resilience.StateOpen)
}

func TestStateString(t *testing.T) {
	gt.Equal(t, resilience.StateClosed.String(), "closed")
	gt.Equal(t, resilience.StateOpen.String(), "open")
	gt.Equal(t, resilience.StateHalfOpen.String(), "half_open")
}
