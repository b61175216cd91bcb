package saga

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mide-ajayi/transflow/internal/domain"
)

func stepTransfer(t *testing.T, amount string) *domain.Transfer {
	t.Helper()
	tr, err := domain.NewTransfer("acc-1", "acc-2", decimal.RequireFromString(amount), domain.CurrencyTRY, "")
	require.NoError(t, err)
	return tr
}

func TestValidateStep(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(l *fakeLedger)
		amount  string
		wantErr error
	}{
		{
			name:   "both accounts valid",
			setup:  func(l *fakeLedger) {},
			amount: "100.00",
		},
		{
			name: "source missing",
			setup: func(l *fakeLedger) {
				delete(l.accounts, "acc-1")
			},
			amount:  "100.00",
			wantErr: domain.ErrAccountNotFound,
		},
		{
			name: "source inactive",
			setup: func(l *fakeLedger) {
				l.accounts["acc-1"].Status = domain.AccountStatusInactive
			},
			amount:  "100.00",
			wantErr: domain.ErrAccountInactive,
		},
		{
			name: "destination closed",
			setup: func(l *fakeLedger) {
				l.accounts["acc-2"].Status = domain.AccountStatusClosed
			},
			amount:  "100.00",
			wantErr: domain.ErrAccountInactive,
		},
		{
			name: "destination currency differs",
			setup: func(l *fakeLedger) {
				l.accounts["acc-2"].Currency = domain.CurrencyEUR
			},
			amount:  "100.00",
			wantErr: domain.ErrCurrencyMismatch,
		},
		{
			name:    "balance below amount",
			setup:   func(l *fakeLedger) {},
			amount:  "1000.01",
			wantErr: domain.ErrInsufficientFunds,
		},
		{
			name:   "balance exactly equals amount",
			setup:  func(l *fakeLedger) {},
			amount: "1000.00",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ledger := newFakeLedger()
			ledger.addAccount("acc-1", "1000.00", domain.CurrencyTRY)
			ledger.addAccount("acc-2", "50.00", domain.CurrencyTRY)
			tc.setup(ledger)

			step := NewValidateStep(ledger)
			_, err := step.Execute(context.Background(), stepTransfer(t, tc.amount))

			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Empty(t, ledger.mutations, "validation must not mutate the ledger")
		})
	}
}

func TestDebitStepUsesStableToken(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addAccount("acc-1", "1000.00", domain.CurrencyTRY)
	tr := stepTransfer(t, "100.00")

	step := NewDebitStep(ledger)

	first, err := step.Execute(context.Background(), tr)
	require.NoError(t, err)
	second, err := step.Execute(context.Background(), tr)
	require.NoError(t, err)

	// Same token, same confirmation, one balance change.
	assert.Equal(t, first.ConfirmationID, second.ConfirmationID)
	assert.True(t, ledger.balance("acc-1").Equal(decimal.RequireFromString("900.00")))
}

func TestDebitCompensateWithoutConfirmationIsNoOp(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addAccount("acc-1", "1000.00", domain.CurrencyTRY)
	tr := stepTransfer(t, "100.00")

	step := NewDebitStep(ledger)
	_, err := step.Compensate(context.Background(), tr)
	require.NoError(t, err)
	assert.Empty(t, ledger.mutations)
}

func TestDebitCompensateReversesExactAmount(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addAccount("acc-1", "1000.00", domain.CurrencyTRY)
	tr := stepTransfer(t, "100.00")

	step := NewDebitStep(ledger)
	outcome, err := step.Execute(context.Background(), tr)
	require.NoError(t, err)
	tr.DebitConfirmationID = &outcome.ConfirmationID

	_, err = step.Compensate(context.Background(), tr)
	require.NoError(t, err)
	assert.True(t, ledger.balance("acc-1").Equal(decimal.RequireFromString("1000.00")))

	// A replayed reversal reuses its token too.
	_, err = step.Compensate(context.Background(), tr)
	require.NoError(t, err)
	assert.True(t, ledger.balance("acc-1").Equal(decimal.RequireFromString("1000.00")))
}

func TestCreditCompensateWithoutConfirmationIsNoOp(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addAccount("acc-2", "50.00", domain.CurrencyTRY)
	tr := stepTransfer(t, "100.00")

	step := NewCreditStep(ledger)
	_, err := step.Compensate(context.Background(), tr)
	require.NoError(t, err)
	assert.Empty(t, ledger.mutations)
}

func TestStepsOrder(t *testing.T) {
	steps := Steps(newFakeLedger())

	require.Len(t, steps, 3)
	assert.Equal(t, "validate", steps[0].Name())
	assert.Equal(t, "debit", steps[1].Name())
	assert.Equal(t, "credit", steps[2].Name())
}
