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
)

func memTransfer(t *testing.T) *domain.Transfer {
	t.Helper()
	tr, err := domain.NewTransfer("acc-1", "acc-2", decimal.RequireFromString("100.00"), domain.CurrencyTRY, "")
	require.NoError(t, err)
	return tr
}

func TestMemoryStoreCreateAndGet(t *testing.T) {
	st := NewMemoryTransferStore()
	ctx := context.Background()
	tr := memTransfer(t)

	require.NoError(t, st.Create(ctx, tr))
	require.ErrorIs(t, st.Create(ctx, tr), domain.ErrDuplicateTransfer)

	got, err := st.GetByReference(ctx, tr.Reference)
	require.NoError(t, err)
	assert.Equal(t, tr.Reference, got.Reference)
	assert.Equal(t, int64(1), got.Version)

	_, err = st.GetByReference(ctx, uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryStoreUpdateBumpsVersion(t *testing.T) {
	st := NewMemoryTransferStore()
	ctx := context.Background()
	tr := memTransfer(t)
	require.NoError(t, st.Create(ctx, tr))

	require.NoError(t, tr.SetStatus(domain.StatusValidating))
	require.NoError(t, st.Update(ctx, tr))
	assert.Equal(t, int64(2), tr.Version)

	got, err := st.GetByReference(ctx, tr.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusValidating, got.Status)
	assert.Equal(t, int64(2), got.Version)
}

func TestMemoryStoreUpdateRejectsStaleVersion(t *testing.T) {
	st := NewMemoryTransferStore()
	ctx := context.Background()
	tr := memTransfer(t)
	require.NoError(t, st.Create(ctx, tr))

	stale := *tr
	require.NoError(t, tr.SetStatus(domain.StatusValidating))
	require.NoError(t, st.Update(ctx, tr))

	require.NoError(t, stale.SetStatus(domain.StatusValidating))
	require.ErrorIs(t, st.Update(ctx, &stale), domain.ErrVersionConflict)
}

func TestMemoryStoreListUnfinished(t *testing.T) {
	st := NewMemoryTransferStore()
	ctx := context.Background()

	open := memTransfer(t)
	require.NoError(t, st.Create(ctx, open))

	closed := memTransfer(t)
	closed.Fail("validate: insufficient funds")
	require.NoError(t, st.Create(ctx, closed))

	got, err := st.ListUnfinished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, open.Reference, got[0].Reference)
}

func TestMemoryStoreGetByIdempotencyKey(t *testing.T) {
	st := NewMemoryTransferStore()
	ctx := context.Background()

	tr, err := domain.NewTransfer("acc-1", "acc-2", decimal.RequireFromString("10"), domain.CurrencyUSD, "key-1")
	require.NoError(t, err)
	require.NoError(t, st.Create(ctx, tr))

	got, err := st.GetByIdempotencyKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, tr.Reference, got.Reference)

	_, err = st.GetByIdempotencyKey(ctx, "key-2")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryIdempotencyStoreAccept(t *testing.T) {
	st := NewMemoryIdempotencyStore(time.Hour)
	ctx := context.Background()

	winner := uuid.New()
	ref, isNew, err := st.Accept(ctx, "key-1", winner)
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, winner, ref)

	loser := uuid.New()
	ref, isNew, err = st.Accept(ctx, "key-1", loser)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, winner, ref)
}

func TestMemoryIdempotencyStoreExpiry(t *testing.T) {
	st := NewMemoryIdempotencyStore(10 * time.Millisecond)
	ctx := context.Background()

	first := uuid.New()
	_, isNew, err := st.Accept(ctx, "key-1", first)
	require.NoError(t, err)
	require.True(t, isNew)

	time.Sleep(20 * time.Millisecond)

	second := uuid.New()
	ref, isNew, err := st.Accept(ctx, "key-1", second)
	require.NoError(t, err)
	assert.True(t, isNew, "expired key must be reclaimable")
	assert.Equal(t, second, ref)
}
