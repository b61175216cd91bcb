package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidAccount    = errors.New("account identifier required")
	ErrSelfTransfer      = errors.New("cannot transfer to same account")
	ErrInvalidAmount     = errors.New("amount must be greater than zero")
	ErrInvalidCurrency   = errors.New("invalid currency")
	ErrInvalidTransition = errors.New("invalid status transition")

	// Client errors: caller-visible, never retried, never compensated.
	ErrAccountNotFound   = errors.New("account not found")
	ErrAccountInactive   = errors.New("account inactive")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrCurrencyMismatch  = errors.New("currency mismatch")

	// Transient errors: retried by the resilient client; if retries exhaust
	// they trigger compensation of any confirmed side effects.
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	ErrVersionConflict    = errors.New("optimistic lock conflict")
	ErrDuplicateTransfer  = errors.New("duplicate transfer")
	ErrManualIntervention = errors.New("manual intervention required")
)

// ClientError reports whether err is a non-transient, caller-facing failure.
// These fail the step immediately without burning the retry budget and do not
// count toward the circuit breaker.
func ClientError(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrAccountInactive) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrCurrencyMismatch) ||
		errors.Is(err, ErrInvalidAmount)
}
