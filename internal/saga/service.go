package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mide-ajayi/transflow/internal/domain"
	"github.com/mide-ajayi/transflow/internal/logging"
)

// IdempotencyStore deduplicates inbound requests. Accept atomically claims
// key for newReference; when the key is already claimed and unexpired it
// returns the original reference with isNew=false.
type IdempotencyStore interface {
	Accept(ctx context.Context, key string, newReference uuid.UUID) (uuid.UUID, bool, error)
}

type SubmitRequest struct {
	SourceAccount      string
	DestinationAccount string
	Amount             decimal.Decimal
	Currency           domain.Currency
	IdempotencyKey     string
}

type submitter interface {
	Submit(ctx context.Context, reference uuid.UUID) error
}

// Service is the entry point that accepts transfer requests. It owns the
// idempotency store; the orchestrator owns everything after acceptance.
type Service struct {
	store TransferStore
	idem  IdempotencyStore
	pool  submitter
}

func NewService(store TransferStore, idem IdempotencyStore, pool submitter) *Service {
	return &Service{store: store, idem: idem, pool: pool}
}

// Submit accepts a transfer request. A repeated idempotency key returns the
// original transfer's current record and isNew=false; exactly one
// orchestration ever runs per accepted key.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*domain.Transfer, bool, error) {
	log := logging.FromContext(ctx)

	t, err := domain.NewTransfer(req.SourceAccount, req.DestinationAccount, req.Amount, req.Currency, req.IdempotencyKey)
	if err != nil {
		return nil, false, fmt.Errorf("Submit: %w", err)
	}

	if req.IdempotencyKey != "" {
		reference, isNew, err := s.idem.Accept(ctx, req.IdempotencyKey, t.Reference)
		if err != nil {
			return nil, false, fmt.Errorf("Submit: accept idempotency key: %w", err)
		}
		if !isNew {
			existing, err := s.loadOriginal(ctx, reference)
			if err != nil {
				return nil, false, fmt.Errorf("Submit: load original transfer: %w", err)
			}
			log.Info("idempotent replay", "reference", existing.Reference, "status", existing.Status)
			return existing, false, nil
		}
	}

	if err := s.store.Create(ctx, t); err != nil {
		return nil, false, fmt.Errorf("Submit: %w", err)
	}

	if err := s.pool.Submit(ctx, t.Reference); err != nil {
		// The record exists and the recovery sweep will pick it up; the
		// caller still gets the reference.
		log.Warn("transfer enqueue failed, deferred to recovery sweep", "reference", t.Reference, "error", err)
	}

	log.Info("transfer accepted",
		"reference", t.Reference,
		"source", t.SourceAccount,
		"destination", t.DestinationAccount,
		"amount", t.Amount.String(),
		"currency", t.Currency,
	)
	return t, true, nil
}

// loadOriginal fetches the transfer behind a replayed idempotency key. A
// concurrent winner may have claimed the key before committing its record, so
// a not-found answer is retried briefly before giving up.
func (s *Service) loadOriginal(ctx context.Context, reference uuid.UUID) (*domain.Transfer, error) {
	existing, err := s.store.GetByReference(ctx, reference)
	for attempt := 0; errors.Is(err, domain.ErrNotFound) && attempt < 20; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
		existing, err = s.store.GetByReference(ctx, reference)
	}
	return existing, err
}

// GetByReference returns the current transfer projection for status queries.
func (s *Service) GetByReference(ctx context.Context, reference uuid.UUID) (*domain.Transfer, error) {
	t, err := s.store.GetByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("GetByReference: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByReference: %w", err)
	}
	return t, nil
}
