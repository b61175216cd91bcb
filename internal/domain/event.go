package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransferEvent is the terminal-state notification published once per
// terminal transition. Delivery is at-least-once; consumers deduplicate on
// Reference+Status.
type TransferEvent struct {
	Reference            uuid.UUID      `json:"reference"`
	Status               TransferStatus `json:"status"`
	FailureReason        *string        `json:"failure_reason,omitempty"`
	DebitConfirmationID  *string        `json:"debit_confirmation_id,omitempty"`
	CreditConfirmationID *string        `json:"credit_confirmation_id,omitempty"`
	Timestamp            time.Time      `json:"timestamp"`
}

func NewTransferEvent(t *Transfer) TransferEvent {
	return TransferEvent{
		Reference:            t.Reference,
		Status:               t.Status,
		FailureReason:        t.FailureReason,
		DebitConfirmationID:  t.DebitConfirmationID,
		CreditConfirmationID: t.CreditConfirmationID,
		Timestamp:            time.Now().UTC(),
	}
}
