package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/mide-ajayi/transflow/internal/domain"
	"github.com/mide-ajayi/transflow/internal/logging"
	"github.com/mide-ajayi/transflow/internal/saga"
)

type transferService interface {
	Submit(ctx context.Context, req saga.SubmitRequest) (*domain.Transfer, bool, error)
	GetByReference(ctx context.Context, reference uuid.UUID) (*domain.Transfer, error)
}

type TransferHandler struct {
	transfers transferService
}

func NewTransferHandler(transfers transferService) *TransferHandler {
	return &TransferHandler{transfers: transfers}
}

type createTransferRequest struct {
	SourceAccount      string `json:"source_account"`
	DestinationAccount string `json:"destination_account"`
	Amount             string `json:"amount"`
	Currency           string `json:"currency"`
	IdempotencyKey     string `json:"idempotency_key"`
}

func (r createTransferRequest) Validate() ([]FieldError, decimal.Decimal) {
	var errs []FieldError
	var amount decimal.Decimal

	if r.SourceAccount == "" {
		errs = append(errs, FieldError{Field: "source_account", Message: "required"})
	}
	if r.DestinationAccount == "" {
		errs = append(errs, FieldError{Field: "destination_account", Message: "required"})
	}

	if r.Amount == "" {
		errs = append(errs, FieldError{Field: "amount", Message: "required"})
	} else {
		parsed, err := decimal.NewFromString(r.Amount)
		switch {
		case err != nil:
			errs = append(errs, FieldError{Field: "amount", Message: "must be a decimal string"})
		case !parsed.IsPositive():
			errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
		default:
			amount = parsed
		}
	}

	if r.Currency == "" {
		errs = append(errs, FieldError{Field: "currency", Message: "required"})
	} else if !domain.Currency(r.Currency).IsValid() {
		errs = append(errs, FieldError{Field: "currency", Message: "unsupported currency"})
	}

	return errs, amount
}

type transferDTO struct {
	Reference            uuid.UUID  `json:"reference"`
	SourceAccount        string     `json:"source_account"`
	DestinationAccount   string     `json:"destination_account"`
	Amount               string     `json:"amount"`
	Currency             string     `json:"currency"`
	Status               string     `json:"status"`
	DebitConfirmationID  *string    `json:"debit_confirmation_id,omitempty"`
	CreditConfirmationID *string    `json:"credit_confirmation_id,omitempty"`
	FailureReason        *string    `json:"failure_reason,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
}

func toTransferDTO(t *domain.Transfer) transferDTO {
	return transferDTO{
		Reference:            t.Reference,
		SourceAccount:        t.SourceAccount,
		DestinationAccount:   t.DestinationAccount,
		Amount:               t.Amount.String(),
		Currency:             string(t.Currency),
		Status:               string(t.Status),
		DebitConfirmationID:  t.DebitConfirmationID,
		CreditConfirmationID: t.CreditConfirmationID,
		FailureReason:        t.FailureReason,
		CreatedAt:            t.CreatedAt,
		CompletedAt:          t.CompletedAt,
	}
}

// Create accepts a transfer for orchestration. A brand new transfer answers
// 202; replaying an idempotency key answers 200 with the original record.
func (h *TransferHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req createTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	// The header wins over the body field when both are present.
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}

	fields, amount := req.Validate()
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	t, isNew, err := h.transfers.Submit(r.Context(), saga.SubmitRequest{
		SourceAccount:      req.SourceAccount,
		DestinationAccount: req.DestinationAccount,
		Amount:             amount,
		Currency:           domain.Currency(req.Currency),
		IdempotencyKey:     req.IdempotencyKey,
	})
	if err != nil {
		log.Warn("transfer submission failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	status := http.StatusAccepted
	if !isNew {
		status = http.StatusOK
		w.Header().Set("X-Idempotent-Replayed", "true")
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/transfers/%s", t.Reference))
	RespondSuccess(w, status, toTransferDTO(t))
}

func (h *TransferHandler) Get(w http.ResponseWriter, r *http.Request) {
	reference, err := uuid.Parse(mux.Vars(r)["reference"])
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	t, err := h.transfers.GetByReference(r.Context(), reference)
	if err != nil {
		logging.FromContext(r.Context()).Warn("transfer lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toTransferDTO(t))
}
