// Package saga drives a transfer through its ordered steps and unwinds
// confirmed side effects in reverse order when a step fails.
package saga

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/mide-ajayi/transflow/internal/domain"
)

// Outcome is the ephemeral result of one step execution. It is folded into
// the transfer record by the orchestrator, never persisted on its own.
type Outcome struct {
	ConfirmationID string
}

// Step is one unit of work in a transfer. Execute and Compensate must both
// be safe to call more than once for the same transfer: after a crash the
// orchestrator replays the step, and ledger-side idempotency tokens make the
// replay a no-op.
type Step interface {
	Name() string
	Execute(ctx context.Context, t *domain.Transfer) (Outcome, error)
	Compensate(ctx context.Context, t *domain.Transfer) (Outcome, error)
}

// ledgerClient is the slice of the ledger API the steps consume.
type ledgerClient interface {
	GetAccount(ctx context.Context, accountID string) (*domain.Account, error)
	AdjustBalance(ctx context.Context, accountID string, amount decimal.Decimal, idempotencyToken, description string) (string, error)
}

// Steps returns the ordered step list for a transfer. The order is fixed:
// credit never runs before the debit has a confirmation id.
func Steps(ledger ledgerClient) []Step {
	return []Step{
		NewValidateStep(ledger),
		NewDebitStep(ledger),
		NewCreditStep(ledger),
	}
}
