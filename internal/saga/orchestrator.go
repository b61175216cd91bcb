package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mide-ajayi/transflow/internal/domain"
	"github.com/mide-ajayi/transflow/internal/logging"
	"github.com/mide-ajayi/transflow/internal/metrics"
)

// TransferStore is the slice of the persistence layer the orchestrator
// consumes. Update must be conditional on the record's version and increment
// it, returning domain.ErrVersionConflict when the stored version moved.
type TransferStore interface {
	Create(ctx context.Context, t *domain.Transfer) error
	Update(ctx context.Context, t *domain.Transfer) error
	GetByReference(ctx context.Context, reference uuid.UUID) (*domain.Transfer, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Transfer, error)
	ListUnfinished(ctx context.Context, limit int) ([]*domain.Transfer, error)
}

// Notifier receives one terminal-state event per transfer. Delivery is
// at-least-once; consumers deduplicate on reference+status.
type Notifier interface {
	Publish(ctx context.Context, event domain.TransferEvent) error
}

type OrchestratorConfig struct {
	// TransferDeadline bounds the forward pass of one orchestration.
	TransferDeadline time.Duration
	// CompensationTimeout bounds the compensation pass. Compensation runs on
	// a detached context: an expired transfer deadline never aborts it.
	CompensationTimeout time.Duration
}

func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		TransferDeadline:    30 * time.Second,
		CompensationTimeout: 15 * time.Second,
	}
}

// Orchestrator walks a transfer through the ordered step list, persisting
// state before and after every step, and unwinds confirmed side effects in
// reverse order when a step fails. It receives its steps and store at
// construction; there is no runtime registry.
type Orchestrator struct {
	steps    []Step
	store    TransferStore
	notifier Notifier
	cfg      OrchestratorConfig
}

func NewOrchestrator(steps []Step, store TransferStore, notifier Notifier, cfg OrchestratorConfig) *Orchestrator {
	if cfg.TransferDeadline <= 0 {
		cfg.TransferDeadline = DefaultOrchestratorConfig().TransferDeadline
	}
	if cfg.CompensationTimeout <= 0 {
		cfg.CompensationTimeout = DefaultOrchestratorConfig().CompensationTimeout
	}
	return &Orchestrator{steps: steps, store: store, notifier: notifier, cfg: cfg}
}

// Status checkpoints around each step, indexed by step position.
var (
	preStepStatus  = []domain.TransferStatus{domain.StatusValidating, domain.StatusDebitPending, domain.StatusCreditPending}
	postStepStatus = []domain.TransferStatus{domain.StatusValidated, domain.StatusDebitCompleted, domain.StatusCompleted}
)

// nextStepIndex maps a persisted status to the step that should run next.
// Pre-step statuses replay their own step; the ledger-side idempotency token
// makes the replay safe.
func nextStepIndex(s domain.TransferStatus) int {
	switch s {
	case domain.StatusPending, domain.StatusValidating:
		return 0
	case domain.StatusValidated, domain.StatusDebitPending:
		return 1
	case domain.StatusDebitCompleted, domain.StatusCreditPending:
		return 2
	}
	return -1
}

// Run drives the transfer to a terminal state. It is safe to call on a
// reloaded record after a crash: execution resumes from the persisted status.
// A version conflict means another worker owns the transfer; Run returns
// domain.ErrVersionConflict and leaves the record alone.
func (o *Orchestrator) Run(ctx context.Context, t *domain.Transfer) error {
	log := logging.FromContext(ctx).With("reference", t.Reference)

	if t.Status.IsTerminal() {
		return nil
	}
	if t.Status == domain.StatusCompensating {
		// Crashed mid-compensation; finish unwinding.
		return o.compensate(ctx, t, log)
	}

	runCtx, cancel := context.WithTimeout(ctx, o.cfg.TransferDeadline)
	defer cancel()

	for i := nextStepIndex(t.Status); i < len(o.steps); i++ {
		step := o.steps[i]

		if err := o.advance(runCtx, t, preStepStatus[i]); err != nil {
			return fmt.Errorf("Run: %w", err)
		}

		start := time.Now()
		outcome, err := o.executeStep(runCtx, step, t)
		if err != nil {
			metrics.StepDuration.WithLabelValues(step.Name(), "failure").Observe(time.Since(start).Seconds())

			if ctx.Err() != nil && !t.SideEffects() {
				// Caller cancelled before any money moved. Leave the record
				// non-terminal; the recovery sweep picks it up. A blown
				// transfer deadline is not this case: that falls through to
				// a terminal FAILED below.
				log.Warn("orchestration abandoned before side effects", "step", step.Name(), "error", err)
				return fmt.Errorf("Run: %s abandoned: %w", step.Name(), err)
			}

			reason := failureReason(step.Name(), err)
			log.Warn("step failed", "step", step.Name(), "reason", reason, "error", err)

			if !t.SideEffects() {
				// Fast-fail: nothing confirmed, nothing to unwind.
				t.Fail(reason)
				if perr := o.store.Update(ctx, t); perr != nil {
					return fmt.Errorf("Run: persist failure: %w", perr)
				}
				o.finish(ctx, t, log)
				return nil
			}

			t.FailureReason = &reason
			if serr := o.advance(ctx, t, domain.StatusCompensating); serr != nil {
				return fmt.Errorf("Run: %w", serr)
			}
			return o.compensate(ctx, t, log)
		}
		metrics.StepDuration.WithLabelValues(step.Name(), "success").Observe(time.Since(start).Seconds())

		switch i {
		case 1:
			t.DebitConfirmationID = &outcome.ConfirmationID
		case 2:
			t.CreditConfirmationID = &outcome.ConfirmationID
		}
		if postStepStatus[i] == domain.StatusCompleted {
			now := time.Now().UTC()
			t.CompletedAt = &now
		}
		if err := o.advance(runCtx, t, postStepStatus[i]); err != nil {
			return fmt.Errorf("Run: %w", err)
		}
	}

	log.Info("transfer completed",
		"source", t.SourceAccount,
		"destination", t.DestinationAccount,
		"amount", t.Amount.String(),
		"currency", t.Currency,
	)
	o.finish(ctx, t, log)
	return nil
}

// executeStep shields the orchestration loop from panicking steps; an
// unexpected fault is treated like any other step failure.
func (o *Orchestrator) executeStep(ctx context.Context, step Step, t *domain.Transfer) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step %s panicked: %v", step.Name(), r)
		}
	}()
	return step.Execute(ctx, t)
}

// compensate unwinds the steps in reverse order on a context detached from
// the caller: an expired transfer deadline must not strand a confirmed debit.
// Steps with no confirmed side effect report a no-op success.
func (o *Orchestrator) compensate(ctx context.Context, t *domain.Transfer, log *slog.Logger) error {
	compCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.CompensationTimeout)
	defer cancel()

	for i := len(o.steps) - 1; i >= 0; i-- {
		step := o.steps[i]
		if _, err := step.Compensate(compCtx, t); err != nil {
			metrics.CompensationsTotal.WithLabelValues(step.Name(), "failure").Inc()
			log.Error("compensation failed, manual intervention required",
				"step", step.Name(),
				"debit_confirmation_id", strOrEmpty(t.DebitConfirmationID),
				"credit_confirmation_id", strOrEmpty(t.CreditConfirmationID),
				"error", err,
			)

			reason := fmt.Sprintf("%s: compensation failed: %s", baseReason(t), domain.ErrManualIntervention)
			t.Fail(reason)
			if perr := o.store.Update(compCtx, t); perr != nil {
				return fmt.Errorf("compensate: persist failure: %w", perr)
			}
			o.finish(compCtx, t, log)
			return fmt.Errorf("compensate: %s: %w", step.Name(), domain.ErrManualIntervention)
		}
		metrics.CompensationsTotal.WithLabelValues(step.Name(), "success").Inc()
	}

	t.Status = domain.StatusCompensated
	now := time.Now().UTC()
	t.CompletedAt = &now
	if err := o.store.Update(compCtx, t); err != nil {
		return fmt.Errorf("compensate: persist: %w", err)
	}
	o.finish(compCtx, t, log)
	return nil
}

// advance moves the transfer to the next checkpoint and persists it. Even a
// same-status persist bumps the version, claiming the record for this worker.
func (o *Orchestrator) advance(ctx context.Context, t *domain.Transfer, status domain.TransferStatus) error {
	if t.Status != status {
		if err := t.SetStatus(status); err != nil {
			return fmt.Errorf("advance to %s from %s: %w", status, t.Status, err)
		}
	}
	if err := o.store.Update(ctx, t); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return fmt.Errorf("advance: transfer %s claimed by another worker: %w", t.Reference, domain.ErrVersionConflict)
		}
		return fmt.Errorf("advance: %w", err)
	}
	return nil
}

// finish emits the terminal metric and event. Publish failures are logged,
// never propagated: the transfer record is already authoritative.
func (o *Orchestrator) finish(ctx context.Context, t *domain.Transfer, log *slog.Logger) {
	metrics.TransfersTotal.WithLabelValues(string(t.Status)).Inc()

	if o.notifier == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.notifier.Publish(pubCtx, domain.NewTransferEvent(t)); err != nil {
		log.Error("terminal event publish failed", "status", t.Status, "error", err)
	}
}

// failureReason produces the sanitized, caller-facing reason stored on the
// record. Raw downstream error bodies never surface here.
func failureReason(stepName string, err error) string {
	var detail string
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		detail = "account not found"
	case errors.Is(err, domain.ErrAccountInactive):
		detail = "account inactive"
	case errors.Is(err, domain.ErrInsufficientFunds):
		detail = "insufficient funds"
	case errors.Is(err, domain.ErrCurrencyMismatch):
		detail = "currency mismatch"
	case errors.Is(err, domain.ErrInvalidAmount):
		detail = "invalid amount"
	case errors.Is(err, domain.ErrDependencyUnavailable):
		detail = "ledger unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		detail = "timed out"
	default:
		detail = "step failed"
	}
	return fmt.Sprintf("%s: %s", stepName, detail)
}

func baseReason(t *domain.Transfer) string {
	if t.FailureReason != nil {
		return *t.FailureReason
	}
	return "transfer failed"
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
