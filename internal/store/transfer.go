package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mide-ajayi/transflow/internal/domain"
)

const transferColumns = `reference, source_account, destination_account, amount, currency,
	status, debit_confirmation_id, credit_confirmation_id, failure_reason,
	idempotency_key, version, created_at, completed_at`

// TransferRepository is the durable transfer record store. Updates are
// conditional on the stored version: a lost race returns
// domain.ErrVersionConflict rather than silently double-processing.
type TransferRepository struct {
	db *sql.DB
}

func NewTransferRepository(db *sql.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

func (r *TransferRepository) Create(ctx context.Context, t *domain.Transfer) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transfers (
			reference, source_account, destination_account, amount, currency,
			status, debit_confirmation_id, credit_confirmation_id, failure_reason,
			idempotency_key, version, created_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		t.Reference, t.SourceAccount, t.DestinationAccount, t.Amount.String(), t.Currency,
		t.Status, t.DebitConfirmationID, t.CreditConfirmationID, t.FailureReason,
		t.IdempotencyKey, t.Version, t.CreatedAt, t.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// Update writes every mutable field, guarded by the version the caller last
// read. On success the in-memory version advances with the row.
func (r *TransferRepository) Update(ctx context.Context, t *domain.Transfer) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transfers SET
			status = $1, debit_confirmation_id = $2, credit_confirmation_id = $3,
			failure_reason = $4, completed_at = $5, version = version + 1
		WHERE reference = $6 AND version = $7`,
		t.Status, t.DebitConfirmationID, t.CreditConfirmationID,
		t.FailureReason, t.CompletedAt, t.Reference, t.Version,
	)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Update: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("Update: transfer %s version %d: %w", t.Reference, t.Version, domain.ErrVersionConflict)
	}

	t.Version++
	return nil
}

func (r *TransferRepository) GetByReference(ctx context.Context, reference uuid.UUID) (*domain.Transfer, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE reference = $1`, reference,
	)
	t, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByReference: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByReference: %w", err)
	}
	return t, nil
}

func (r *TransferRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Transfer, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE idempotency_key = $1`, key,
	)
	t, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByIdempotencyKey: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByIdempotencyKey: %w", err)
	}
	return t, nil
}

// ListUnfinished returns non-terminal transfers, oldest first, for the
// recovery sweep.
func (r *TransferRepository) ListUnfinished(ctx context.Context, limit int) ([]*domain.Transfer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transferColumns+` FROM transfers
		WHERE status NOT IN ($1, $2, $3)
		ORDER BY created_at ASC
		LIMIT $4`,
		domain.StatusCompleted, domain.StatusCompensated, domain.StatusFailed, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListUnfinished: %w", err)
	}
	defer rows.Close()

	var transfers []*domain.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("ListUnfinished: %w", err)
		}
		transfers = append(transfers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListUnfinished: %w", err)
	}
	return transfers, nil
}

func scanTransfer(s scanner) (*domain.Transfer, error) {
	var t domain.Transfer
	var amount string

	err := s.Scan(
		&t.Reference, &t.SourceAccount, &t.DestinationAccount, &amount, &t.Currency,
		&t.Status, &t.DebitConfirmationID, &t.CreditConfirmationID, &t.FailureReason,
		&t.IdempotencyKey, &t.Version, &t.CreatedAt, &t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	return &t, nil
}
