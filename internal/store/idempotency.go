package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IdempotencyRepository maps caller-supplied deduplication keys to transfer
// references. Claims are immutable until they expire; after expiry the same
// key may start a fresh, independent transfer.
type IdempotencyRepository struct {
	db  *sql.DB
	ttl time.Duration
}

func NewIdempotencyRepository(db *sql.DB, ttl time.Duration) *IdempotencyRepository {
	return &IdempotencyRepository{db: db, ttl: ttl}
}

// Accept atomically claims key for newReference. Under concurrent callers
// with the same key exactly one insert wins; losers get the winner's
// reference back. The single upsert statement also reclaims expired keys.
func (r *IdempotencyRepository) Accept(ctx context.Context, key string, newReference uuid.UUID) (uuid.UUID, bool, error) {
	now := time.Now().UTC()

	var claimed uuid.UUID
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO idempotency_keys (key, reference, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE
			SET reference = EXCLUDED.reference,
			    created_at = EXCLUDED.created_at,
			    expires_at = EXCLUDED.expires_at
			WHERE idempotency_keys.expires_at <= now()
		RETURNING reference`,
		key, newReference, now, now.Add(r.ttl),
	).Scan(&claimed)

	if err == nil {
		return claimed, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, false, fmt.Errorf("Accept: %w", err)
	}

	// Conflict against an unexpired claim: return the original reference.
	var existing uuid.UUID
	err = r.db.QueryRowContext(ctx,
		`SELECT reference FROM idempotency_keys WHERE key = $1 AND expires_at > now()`,
		key,
	).Scan(&existing)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("Accept: read existing claim: %w", err)
	}
	return existing, false, nil
}

// CleanExpired removes lapsed claims; run periodically from the API process.
func (r *IdempotencyRepository) CleanExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM idempotency_keys WHERE expires_at < now()`,
	)
	if err != nil {
		return 0, fmt.Errorf("CleanExpired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("CleanExpired: rows affected: %w", err)
	}
	return n, nil
}
