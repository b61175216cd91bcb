package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mide-ajayi/transflow/internal/domain"
	"github.com/mide-ajayi/transflow/internal/testutil"
)

func TestTransferRepositoryRoundTrip(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewTransferRepository(db)
	ctx := context.Background()

	tr, err := domain.NewTransfer("acc-1", "acc-2", decimal.RequireFromString("150.25"), domain.CurrencyTRY, "key-rt")
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, tr))

	got, err := repo.GetByReference(ctx, tr.Reference)
	require.NoError(t, err)
	assert.Equal(t, tr.Reference, got.Reference)
	assert.Equal(t, "acc-1", got.SourceAccount)
	assert.Equal(t, "acc-2", got.DestinationAccount)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("150.25")))
	assert.Equal(t, domain.CurrencyTRY, got.Currency)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, int64(1), got.Version)
	require.NotNil(t, got.IdempotencyKey)
	assert.Equal(t, "key-rt", *got.IdempotencyKey)

	byKey, err := repo.GetByIdempotencyKey(ctx, "key-rt")
	require.NoError(t, err)
	assert.Equal(t, tr.Reference, byKey.Reference)

	_, err = repo.GetByReference(ctx, uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTransferRepositoryOptimisticLocking(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewTransferRepository(db)
	ctx := context.Background()

	tr, err := domain.NewTransfer("acc-1", "acc-2", decimal.RequireFromString("10"), domain.CurrencyUSD, "")
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, tr))

	stale := *tr

	require.NoError(t, tr.SetStatus(domain.StatusValidating))
	require.NoError(t, repo.Update(ctx, tr))
	assert.Equal(t, int64(2), tr.Version)

	// The loser read version 1 and must not overwrite version 2.
	require.NoError(t, stale.SetStatus(domain.StatusValidating))
	require.ErrorIs(t, repo.Update(ctx, &stale), domain.ErrVersionConflict)

	got, err := repo.GetByReference(ctx, tr.Reference)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, domain.StatusValidating, got.Status)
}

func TestTransferRepositoryUpdatePersistsConfirmations(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewTransferRepository(db)
	ctx := context.Background()

	tr, err := domain.NewTransfer("acc-1", "acc-2", decimal.RequireFromString("10"), domain.CurrencyUSD, "")
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, tr))

	debitConf := "conf-debit-1"
	reason := "credit: ledger unavailable"
	now := time.Now().UTC()

	require.NoError(t, tr.SetStatus(domain.StatusValidating))
	tr.DebitConfirmationID = &debitConf
	tr.FailureReason = &reason
	tr.CompletedAt = &now
	require.NoError(t, repo.Update(ctx, tr))

	got, err := repo.GetByReference(ctx, tr.Reference)
	require.NoError(t, err)
	require.NotNil(t, got.DebitConfirmationID)
	assert.Equal(t, debitConf, *got.DebitConfirmationID)
	require.NotNil(t, got.FailureReason)
	assert.Equal(t, reason, *got.FailureReason)
	require.NotNil(t, got.CompletedAt)
	assert.WithinDuration(t, now, *got.CompletedAt, time.Second)
}

func TestTransferRepositoryListUnfinished(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewTransferRepository(db)
	ctx := context.Background()

	oldest, err := domain.NewTransfer("acc-1", "acc-2", decimal.RequireFromString("1"), domain.CurrencyUSD, "")
	require.NoError(t, err)
	oldest.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, repo.Create(ctx, oldest))

	newer, err := domain.NewTransfer("acc-1", "acc-2", decimal.RequireFromString("2"), domain.CurrencyUSD, "")
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, newer))

	finished, err := domain.NewTransfer("acc-1", "acc-2", decimal.RequireFromString("3"), domain.CurrencyUSD, "")
	require.NoError(t, err)
	finished.Fail("validate: insufficient funds")
	require.NoError(t, repo.Create(ctx, finished))

	got, err := repo.ListUnfinished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, oldest.Reference, got[0].Reference)
	assert.Equal(t, newer.Reference, got[1].Reference)

	limited, err := repo.ListUnfinished(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, oldest.Reference, limited[0].Reference)
}

func TestIdempotencyRepositoryAccept(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewIdempotencyRepository(db, time.Hour)
	ctx := context.Background()

	winner := uuid.New()
	ref, isNew, err := repo.Accept(ctx, "key-1", winner)
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, winner, ref)

	loser := uuid.New()
	ref, isNew, err = repo.Accept(ctx, "key-1", loser)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, winner, ref)

	// A different key claims independently.
	other := uuid.New()
	ref, isNew, err = repo.Accept(ctx, "key-2", other)
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, other, ref)
}

func TestIdempotencyRepositoryReclaimsExpiredKey(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewIdempotencyRepository(db, 50*time.Millisecond)
	ctx := context.Background()

	first := uuid.New()
	_, isNew, err := repo.Accept(ctx, "key-exp", first)
	require.NoError(t, err)
	require.True(t, isNew)

	time.Sleep(100 * time.Millisecond)

	second := uuid.New()
	ref, isNew, err := repo.Accept(ctx, "key-exp", second)
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, second, ref)
}

func TestIdempotencyRepositoryCleanExpired(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewIdempotencyRepository(db, 10*time.Millisecond)
	ctx := context.Background()

	_, _, err := repo.Accept(ctx, "key-a", uuid.New())
	require.NoError(t, err)
	_, _, err = repo.Accept(ctx, "key-b", uuid.New())
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	removed, err := repo.CleanExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
}
