package saga

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mide-ajayi/transflow/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPoolProcessesSubmittedTransfer(t *testing.T) {
	f := newSagaFixture(t)
	tr := f.newTransfer(t, "100.00")

	pool := NewPool(f.orch, f.store, discardLogger(), 2, 8, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Start(ctx)
		close(done)
	}()

	require.NoError(t, pool.Submit(ctx, tr.Reference))

	require.Eventually(t, func() bool {
		got, err := f.store.GetByReference(context.Background(), tr.Reference)
		return err == nil && got.Status == domain.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	assert.True(t, f.ledger.balance("acc-1").Equal(decimal.RequireFromString("900.00")))
	assert.True(t, f.ledger.balance("acc-2").Equal(decimal.RequireFromString("150.00")))
}

func TestPoolRecoverySweepResumesStranded(t *testing.T) {
	f := newSagaFixture(t)

	// Transfers left behind by a dead process: never submitted to this pool.
	stranded := f.newTransfer(t, "100.00")
	finished := f.newTransfer(t, "25.00")
	require.NoError(t, f.orch.Run(context.Background(), finished))

	pool := NewPool(f.orch, f.store, discardLogger(), 2, 8, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		got, err := f.store.GetByReference(context.Background(), stranded.Reference)
		return err == nil && got.Status == domain.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestPoolSubmitGivesUpOnCancelledContext(t *testing.T) {
	f := newSagaFixture(t)

	// An unbuffered queue with no workers: the send can never proceed, so
	// only the context can unblock the caller.
	pool := &Pool{jobs: make(chan uuid.UUID)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pool.Submit(ctx, f.newTransfer(t, "1.00").Reference)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
