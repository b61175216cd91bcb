package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mide-ajayi/transflow/internal/domain"
)

// Pool runs orchestrations on a bounded set of workers, capping concurrent
// outbound load on the ledger. Each transfer is processed by exactly one
// worker; steps within a transfer stay strictly sequential.
type Pool struct {
	orch   *Orchestrator
	store  TransferStore
	logger *slog.Logger

	jobs chan uuid.UUID
	wg   sync.WaitGroup

	sweepLimit    int
	sweepInterval time.Duration
}

func NewPool(orch *Orchestrator, store TransferStore, logger *slog.Logger, workers, queueSize, sweepLimit int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers
	}
	p := &Pool{
		orch:          orch,
		store:         store,
		logger:        logger,
		jobs:          make(chan uuid.UUID, queueSize),
		sweepLimit:    sweepLimit,
		sweepInterval: time.Minute,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Submit enqueues a transfer for orchestration. It blocks only while the
// queue is full, and gives up when ctx is cancelled first.
func (p *Pool) Submit(ctx context.Context, reference uuid.UUID) error {
	select {
	case p.jobs <- reference:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("Submit: %w", ctx.Err())
	}
}

// Start runs the recovery sweep loop until ctx is cancelled, then drains the
// queue and waits for in-flight orchestrations. The first sweep fires
// immediately so transfers stranded by a crash resume on boot.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("worker pool started", "queue", cap(p.jobs))

	p.sweep(ctx)

	ticker := time.NewTicker(p.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(p.jobs)
			p.wg.Wait()
			p.logger.Info("worker pool stopped")
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for reference := range p.jobs {
		p.process(reference)
	}
}

func (p *Pool) process(reference uuid.UUID) {
	ctx := context.Background()
	log := p.logger.With("reference", reference)

	t, err := p.store.GetByReference(ctx, reference)
	if err != nil {
		log.Error("failed to load transfer", "error", err)
		return
	}

	if err := p.orch.Run(ctx, t); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			// Another worker owns the record. Reload to see where it got to;
			// if it stalls non-terminal the sweep resubmits it.
			if cur, lerr := p.store.GetByReference(ctx, reference); lerr == nil {
				log.Info("transfer claimed by another worker, abandoning", "status", cur.Status)
			}
			return
		}
		log.Error("orchestration ended with error", "status", t.Status, "error", err)
	}
}

// sweep resubmits non-terminal transfers. This is the crash-recovery path:
// anything left mid-flight by a previous process resumes from its persisted
// status.
func (p *Pool) sweep(ctx context.Context) {
	transfers, err := p.store.ListUnfinished(ctx, p.sweepLimit)
	if err != nil {
		p.logger.Error("recovery sweep failed", "error", err)
		return
	}
	if len(transfers) == 0 {
		return
	}

	p.logger.Info("recovery sweep found unfinished transfers", "count", len(transfers))
	for _, t := range transfers {
		select {
		case p.jobs <- t.Reference:
		default:
			// Queue full; the next sweep retries.
			return
		}
	}
}
