package resilience

import (
	"fmt"
	"sync"
	"time"

	"github.com/mide-ajayi/transflow/internal/domain"
)

type BreakerState int32

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

type BreakerConfig struct {
	// WindowSize is the number of recent call outcomes considered.
	WindowSize int
	// MinSamples is the minimum number of recorded outcomes before the
	// failure rate is evaluated at all.
	MinSamples int
	// FailureThreshold opens the breaker when failures/total in the window
	// meets or exceeds it.
	FailureThreshold float64
	// OpenFor is how long calls are rejected before probing recovery.
	OpenFor time.Duration
	// HalfOpenProbes is how many consecutive trial calls must succeed in
	// half-open state before the breaker closes again.
	HalfOpenProbes int
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		WindowSize:       20,
		MinSamples:       5,
		FailureThreshold: 0.5,
		OpenFor:          10 * time.Second,
		HalfOpenProbes:   3,
	}
}

// Breaker is a sliding-window circuit breaker guarding one downstream
// dependency. It is shared by every transfer touching that dependency and is
// safe for concurrent use.
type Breaker struct {
	name string
	cfg  BreakerConfig
	now  func() time.Time

	mu            sync.Mutex
	state         BreakerState
	window        []bool // true = failure
	next          int
	filled        int
	openedAt       time.Time
	probesInFlight int
	probeSuccesses int

	onStateChange func(name string, from, to BreakerState)
}

func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultBreakerConfig().WindowSize
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	return &Breaker{
		name:   name,
		cfg:    cfg,
		now:    time.Now,
		window: make([]bool, cfg.WindowSize),
	}
}

// OnStateChange registers a hook invoked (outside the lock) on transitions.
// Used for metrics and logging.
func (b *Breaker) OnStateChange(fn func(name string, from, to BreakerState)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStateChange = fn
}

func (b *Breaker) Name() string { return b.name }

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. When the breaker is open it
// returns a dependency-unavailable error immediately; in half-open state it
// admits a bounded number of trial calls.
func (b *Breaker) Allow() error {
	b.mu.Lock()

	switch b.state {
	case StateClosed:
		b.mu.Unlock()
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.OpenFor {
			b.mu.Unlock()
			return fmt.Errorf("circuit %s open: %w", b.name, domain.ErrDependencyUnavailable)
		}
		b.transition(StateHalfOpen)
		fallthrough
	case StateHalfOpen:
		if b.probesInFlight >= b.cfg.HalfOpenProbes {
			b.mu.Unlock()
			return fmt.Errorf("circuit %s probing: %w", b.name, domain.ErrDependencyUnavailable)
		}
		b.probesInFlight++
		b.mu.Unlock()
		return nil
	}

	b.mu.Unlock()
	return nil
}

// Record feeds one call outcome back into the breaker. Every Allow that
// returned nil must be paired with exactly one Record.
func (b *Breaker) Record(failure bool) {
	b.mu.Lock()

	switch b.state {
	case StateHalfOpen:
		b.probesInFlight--
		if failure {
			b.open()
			b.mu.Unlock()
			return
		}
		b.probeSuccesses++
		if b.probeSuccesses >= b.cfg.HalfOpenProbes {
			b.reset()
			b.transition(StateClosed)
		}
		b.mu.Unlock()
		return
	case StateOpen:
		// Late result from a call admitted before the trip; the window is
		// stale once open, so drop it.
		b.mu.Unlock()
		return
	}

	b.window[b.next] = failure
	b.next = (b.next + 1) % len(b.window)
	if b.filled < len(b.window) {
		b.filled++
	}

	if b.filled >= b.cfg.MinSamples && b.failureRate() >= b.cfg.FailureThreshold {
		b.open()
	}
	b.mu.Unlock()
}

// callers must hold b.mu
func (b *Breaker) failureRate() float64 {
	failures := 0
	for i := 0; i < b.filled; i++ {
		if b.window[i] {
			failures++
		}
	}
	return float64(failures) / float64(b.filled)
}

// callers must hold b.mu
func (b *Breaker) open() {
	b.openedAt = b.now()
	b.probesInFlight = 0
	b.probeSuccesses = 0
	b.transition(StateOpen)
}

// callers must hold b.mu
func (b *Breaker) reset() {
	for i := range b.window {
		b.window[i] = false
	}
	b.next = 0
	b.filled = 0
	b.probesInFlight = 0
	b.probeSuccesses = 0
}

// callers must hold b.mu
func (b *Breaker) transition(to BreakerState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.onStateChange != nil {
		hook := b.onStateChange
		go hook(b.name, from, to)
	}
}
