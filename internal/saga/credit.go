package saga

import (
	"context"
	"fmt"

	"github.com/mide-ajayi/transflow/internal/domain"
)

// CreditStep puts the amount into the destination account. Runs only after
// the debit has a recorded confirmation id.
type CreditStep struct {
	ledger ledgerClient
}

func NewCreditStep(ledger ledgerClient) *CreditStep {
	return &CreditStep{ledger: ledger}
}

func (s *CreditStep) Name() string { return "credit" }

func (s *CreditStep) Execute(ctx context.Context, t *domain.Transfer) (Outcome, error) {
	confirmation, err := s.ledger.AdjustBalance(ctx,
		t.DestinationAccount,
		t.Amount,
		fmt.Sprintf("%s:credit", t.Reference),
		fmt.Sprintf("transfer %s from %s", t.Reference, t.SourceAccount),
	)
	if err != nil {
		return Outcome{}, fmt.Errorf("credit %s: %w", t.DestinationAccount, err)
	}
	return Outcome{ConfirmationID: confirmation}, nil
}

func (s *CreditStep) Compensate(ctx context.Context, t *domain.Transfer) (Outcome, error) {
	if t.CreditConfirmationID == nil {
		return Outcome{}, nil
	}

	confirmation, err := s.ledger.AdjustBalance(ctx,
		t.DestinationAccount,
		t.Amount.Neg(),
		fmt.Sprintf("%s:credit-reversal", t.Reference),
		fmt.Sprintf("reversal of credit %s for transfer %s", *t.CreditConfirmationID, t.Reference),
	)
	if err != nil {
		return Outcome{}, fmt.Errorf("reverse credit %s: %w", t.DestinationAccount, err)
	}
	return Outcome{ConfirmationID: confirmation}, nil
}
