package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mide-ajayi/transflow/internal/domain"
)

type CallerConfig struct {
	// Timeout bounds each individual attempt.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt. Only
	// transient failures are retried.
	MaxRetries int
	// RetryInterval is the initial backoff interval; attempts back off
	// exponentially from here.
	RetryInterval time.Duration
}

func DefaultCallerConfig() CallerConfig {
	return CallerConfig{
		Timeout:       3 * time.Second,
		MaxRetries:    3,
		RetryInterval: 100 * time.Millisecond,
	}
}

// Caller decorates outbound calls to one downstream dependency with a
// per-attempt timeout, exponential-backoff retries for transient failures,
// and a shared circuit breaker. Client errors pass through untouched: they
// are neither retried nor counted against the breaker.
type Caller struct {
	cfg     CallerConfig
	breaker *Breaker
}

func NewCaller(cfg CallerConfig, breaker *Breaker) *Caller {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCallerConfig().Timeout
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultCallerConfig().RetryInterval
	}
	return &Caller{cfg: cfg, breaker: breaker}
}

func (c *Caller) Breaker() *Breaker { return c.breaker }

// Call runs op, retrying transient failures until the retry budget is spent.
// When the breaker is open it fails immediately with a
// domain.ErrDependencyUnavailable so the orchestrator can distinguish
// "dependency down" from a rejected request.
func (c *Caller) Call(ctx context.Context, op func(ctx context.Context) error) error {
	attempt := func() error {
		if err := c.breaker.Allow(); err != nil {
			// Rejected locally; nothing was sent, so nothing to record.
			return backoff.Permanent(err)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		err := op(attemptCtx)
		cancel()

		if err == nil {
			c.breaker.Record(false)
			return nil
		}

		if domain.ClientError(err) {
			// The dependency answered; it just said no.
			c.breaker.Record(false)
			return backoff.Permanent(err)
		}

		c.breaker.Record(true)
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.cfg.MaxRetries)), ctx)

	return backoff.Retry(attempt, policy)
}
