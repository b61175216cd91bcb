package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransferStatus string

const (
	StatusPending        TransferStatus = "PENDING"
	StatusValidating     TransferStatus = "VALIDATING"
	StatusValidated      TransferStatus = "VALIDATED"
	StatusDebitPending   TransferStatus = "DEBIT_PENDING"
	StatusDebitCompleted TransferStatus = "DEBIT_COMPLETED"
	StatusCreditPending  TransferStatus = "CREDIT_PENDING"
	StatusCompleted      TransferStatus = "COMPLETED"
	StatusCompensating   TransferStatus = "COMPENSATING"
	StatusCompensated    TransferStatus = "COMPENSATED"
	StatusFailed         TransferStatus = "FAILED"
)

func (s TransferStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCompensated, StatusFailed:
		return true
	}
	return false
}

func (s TransferStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusValidating, StatusValidated, StatusDebitPending,
		StatusDebitCompleted, StatusCreditPending, StatusCompleted,
		StatusCompensating, StatusCompensated, StatusFailed:
		return true
	}
	return false
}

// forwardTransitions is the happy path plus the compensation branch. Every
// non-terminal status except PENDING may also move to COMPENSATING, and any
// non-terminal status may move to FAILED on step failure.
var forwardTransitions = map[TransferStatus][]TransferStatus{
	StatusPending:        {StatusValidating},
	StatusValidating:     {StatusValidated},
	StatusValidated:      {StatusDebitPending},
	StatusDebitPending:   {StatusDebitCompleted},
	StatusDebitCompleted: {StatusCreditPending},
	StatusCreditPending:  {StatusCompleted},
	StatusCompensating:   {StatusCompensated},
}

func (s TransferStatus) CanTransitionTo(next TransferStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	if next == StatusCompensating {
		return s != StatusPending
	}
	for _, allowed := range forwardTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transfer is the durable record of one money movement between two ledger
// accounts. The orchestrator is the sole writer; Version guards against two
// workers advancing the same transfer concurrently.
type Transfer struct {
	Reference            uuid.UUID
	SourceAccount        string
	DestinationAccount   string
	Amount               decimal.Decimal
	Currency             Currency
	Status               TransferStatus
	DebitConfirmationID  *string
	CreditConfirmationID *string
	FailureReason        *string
	IdempotencyKey       *string
	Version              int64
	CreatedAt            time.Time
	CompletedAt          *time.Time
}

func NewTransfer(source, destination string, amount decimal.Decimal, currency Currency, idempotencyKey string) (*Transfer, error) {
	if source == "" || destination == "" {
		return nil, ErrInvalidAccount
	}
	if source == destination {
		return nil, ErrSelfTransfer
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !currency.IsValid() {
		return nil, ErrInvalidCurrency
	}

	t := &Transfer{
		Reference:          uuid.New(),
		SourceAccount:      source,
		DestinationAccount: destination,
		Amount:             amount,
		Currency:           currency,
		Status:             StatusPending,
		Version:            1,
		CreatedAt:          time.Now().UTC(),
	}
	if idempotencyKey != "" {
		t.IdempotencyKey = &idempotencyKey
	}
	return t, nil
}

func (t *Transfer) SetStatus(next TransferStatus) error {
	if !t.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	t.Status = next
	return nil
}

// SideEffects reports whether any ledger mutation has a recorded
// confirmation. A transfer without side effects may fast-fail with nothing
// to compensate.
func (t *Transfer) SideEffects() bool {
	return t.DebitConfirmationID != nil || t.CreditConfirmationID != nil
}

func (t *Transfer) Fail(reason string) {
	t.Status = StatusFailed
	t.FailureReason = &reason
	now := time.Now().UTC()
	t.CompletedAt = &now
}
