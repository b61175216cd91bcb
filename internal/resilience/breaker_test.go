package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mide-ajayi/transflow/internal/domain"
)

func newTestBreaker(cfg BreakerConfig) (*Breaker, *time.Time) {
	b := NewBreaker("ledger", cfg)
	now := time.Now()
	b.now = func() time.Time { return now }
	return b, &now
}

// record drives one allowed call through the breaker with the given outcome.
func record(t *testing.T, b *Breaker, failure bool) {
	t.Helper()
	require.NoError(t, b.Allow())
	b.Record(failure)
}

func TestBreakerStaysClosedBelowMinSamples(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{
		WindowSize:       10,
		MinSamples:       5,
		FailureThreshold: 0.5,
		OpenFor:          time.Second,
		HalfOpenProbes:   1,
	})

	// Four straight failures, still under the sample floor.
	for i := 0; i < 4; i++ {
		record(t, b, true)
	}

	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Allow())
	b.Record(false)
}

func TestBreakerOpensAtFailureThreshold(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{
		WindowSize:       10,
		MinSamples:       4,
		FailureThreshold: 0.5,
		OpenFor:          time.Second,
		HalfOpenProbes:   1,
	})

	record(t, b, false)
	record(t, b, true)
	record(t, b, false)
	record(t, b, true) // 2/4, threshold reached

	assert.Equal(t, StateOpen, b.State())

	err := b.Allow()
	require.ErrorIs(t, err, domain.ErrDependencyUnavailable)
}

func TestBreakerHalfOpensAfterCooldown(t *testing.T) {
	b, now := newTestBreaker(BreakerConfig{
		WindowSize:       4,
		MinSamples:       2,
		FailureThreshold: 0.5,
		OpenFor:          time.Second,
		HalfOpenProbes:   2,
	})

	record(t, b, true)
	record(t, b, true)
	require.Equal(t, StateOpen, b.State())

	// Still inside the cooldown.
	require.ErrorIs(t, b.Allow(), domain.ErrDependencyUnavailable)

	*now = now.Add(2 * time.Second)

	// First probe admitted, state has moved to half-open.
	require.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())

	// Second probe fits the quota, a third does not.
	require.NoError(t, b.Allow())
	require.ErrorIs(t, b.Allow(), domain.ErrDependencyUnavailable)

	b.Record(false)
	b.Record(false)
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Allow())
	b.Record(false)
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	b, now := newTestBreaker(BreakerConfig{
		WindowSize:       4,
		MinSamples:       2,
		FailureThreshold: 0.5,
		OpenFor:          time.Second,
		HalfOpenProbes:   3,
	})

	record(t, b, true)
	record(t, b, true)
	require.Equal(t, StateOpen, b.State())

	*now = now.Add(2 * time.Second)
	require.NoError(t, b.Allow())

	b.Record(true)
	assert.Equal(t, StateOpen, b.State())
	require.ErrorIs(t, b.Allow(), domain.ErrDependencyUnavailable)
}

func TestBreakerClosesWithCleanWindow(t *testing.T) {
	b, now := newTestBreaker(BreakerConfig{
		WindowSize:       4,
		MinSamples:       2,
		FailureThreshold: 0.5,
		OpenFor:          time.Second,
		HalfOpenProbes:   1,
	})

	record(t, b, true)
	record(t, b, true)
	require.Equal(t, StateOpen, b.State())

	*now = now.Add(2 * time.Second)
	record(t, b, false)
	require.Equal(t, StateClosed, b.State())

	// The old failures were discarded on close; one new failure alone must
	// not retrip.
	record(t, b, false)
	record(t, b, true)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerDropsLateResultsWhileOpen(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{
		WindowSize:       4,
		MinSamples:       2,
		FailureThreshold: 0.5,
		OpenFor:          time.Minute,
		HalfOpenProbes:   1,
	})

	require.NoError(t, b.Allow())
	require.NoError(t, b.Allow())
	b.Record(true)
	b.Record(true)
	require.Equal(t, StateOpen, b.State())

	// A call admitted before the trip reports back after it.
	b.Record(false)
	assert.Equal(t, StateOpen, b.State())
}
