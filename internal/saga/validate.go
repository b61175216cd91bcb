package saga

import (
	"context"
	"fmt"

	"github.com/mide-ajayi/transflow/internal/domain"
)

// ValidateStep checks both accounts before any money moves. It is read-only,
// so its compensation is a no-op, and it is the only step allowed to fail
// with a caller-visible client error.
type ValidateStep struct {
	ledger ledgerClient
}

func NewValidateStep(ledger ledgerClient) *ValidateStep {
	return &ValidateStep{ledger: ledger}
}

func (s *ValidateStep) Name() string { return "validate" }

func (s *ValidateStep) Execute(ctx context.Context, t *domain.Transfer) (Outcome, error) {
	source, err := s.ledger.GetAccount(ctx, t.SourceAccount)
	if err != nil {
		return Outcome{}, fmt.Errorf("validate source: %w", err)
	}
	destination, err := s.ledger.GetAccount(ctx, t.DestinationAccount)
	if err != nil {
		return Outcome{}, fmt.Errorf("validate destination: %w", err)
	}

	if !source.Active() {
		return Outcome{}, fmt.Errorf("source account %s: %w", t.SourceAccount, domain.ErrAccountInactive)
	}
	if !destination.Active() {
		return Outcome{}, fmt.Errorf("destination account %s: %w", t.DestinationAccount, domain.ErrAccountInactive)
	}
	if source.Currency != t.Currency || destination.Currency != t.Currency {
		return Outcome{}, fmt.Errorf("transfer in %s between %s and %s accounts: %w",
			t.Currency, source.Currency, destination.Currency, domain.ErrCurrencyMismatch)
	}
	if source.Balance.LessThan(t.Amount) {
		return Outcome{}, fmt.Errorf("source balance %s below %s: %w",
			source.Balance, t.Amount, domain.ErrInsufficientFunds)
	}

	return Outcome{}, nil
}

func (s *ValidateStep) Compensate(ctx context.Context, t *domain.Transfer) (Outcome, error) {
	// Nothing to undo for a read.
	return Outcome{}, nil
}
