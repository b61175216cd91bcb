package saga

import (
	"context"
	"fmt"

	"github.com/mide-ajayi/transflow/internal/domain"
)

// DebitStep takes the amount out of the source account. The transfer
// reference doubles as the ledger-side idempotency token, so a replayed
// debit after a crash cannot double-apply.
type DebitStep struct {
	ledger ledgerClient
}

func NewDebitStep(ledger ledgerClient) *DebitStep {
	return &DebitStep{ledger: ledger}
}

func (s *DebitStep) Name() string { return "debit" }

func (s *DebitStep) Execute(ctx context.Context, t *domain.Transfer) (Outcome, error) {
	confirmation, err := s.ledger.AdjustBalance(ctx,
		t.SourceAccount,
		t.Amount.Neg(),
		fmt.Sprintf("%s:debit", t.Reference),
		fmt.Sprintf("transfer %s to %s", t.Reference, t.DestinationAccount),
	)
	if err != nil {
		return Outcome{}, fmt.Errorf("debit %s: %w", t.SourceAccount, err)
	}
	return Outcome{ConfirmationID: confirmation}, nil
}

// Compensate credits the exact debited amount back to the source, citing the
// original debit confirmation id so operators can tie the two ledger rows
// together.
func (s *DebitStep) Compensate(ctx context.Context, t *domain.Transfer) (Outcome, error) {
	if t.DebitConfirmationID == nil {
		return Outcome{}, nil
	}

	confirmation, err := s.ledger.AdjustBalance(ctx,
		t.SourceAccount,
		t.Amount,
		fmt.Sprintf("%s:debit-reversal", t.Reference),
		fmt.Sprintf("reversal of debit %s for transfer %s", *t.DebitConfirmationID, t.Reference),
	)
	if err != nil {
		return Outcome{}, fmt.Errorf("reverse debit %s: %w", t.SourceAccount, err)
	}
	return Outcome{ConfirmationID: confirmation}, nil
}
