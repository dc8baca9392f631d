package step

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Builder-Lawyers/site-provisioner/internal/application/errs"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/interfaces"
	"github.com/Builder-Lawyers/site-provisioner/internal/domain/consts"
	"github.com/Builder-Lawyers/site-provisioner/internal/domain/entity"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/config"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/metrics"
	"github.com/google/uuid"
)

type StartStep struct {
	ledger     interfaces.StepLedger
	dispatcher interfaces.StepDispatcher
	notifier   interfaces.Notifier
	cfg        *config.ExecutorConfig
}

func NewStartStep(ledger interfaces.StepLedger, dispatcher interfaces.StepDispatcher, notifier interfaces.Notifier, cfg *config.ExecutorConfig) *StartStep {
	return &StartStep{ledger: ledger, dispatcher: dispatcher, notifier: notifier, cfg: cfg}
}

// Execute claims the step and hands it to the executor. It returns as soon as the step
// is IN_PROGRESS. A step that is running or already succeeded yields a ConflictError
// carrying the step untouched.
func (c *StartStep) Execute(ctx context.Context, installationID uint64, stepType consts.StepType, overrides entity.StepData) (entity.Step, error) {
	if !stepType.IsProvisioning() {
		return entity.Step{}, errs.ValidationError{Err: fmt.Errorf("unknown step type %q", stepType)}
	}

	lease := interfaces.Lease{Token: uuid.New(), ExpiresAt: time.Now().Add(c.cfg.LeaseTTL)}
	step, err := c.ledger.ClaimStep(ctx, installationID, stepType, lease, overrides)
	if err != nil {
		var conflict errs.ConflictError
		if errors.As(err, &conflict) {
			metrics.StartConflicts.WithLabelValues(string(stepType), string(conflict.Reason)).Inc()
			slog.Info("step start rejected", "installationID", installationID, "step", stepType, "reason", conflict.Reason)
		}
		return entity.Step{}, err
	}

	slog.Info("step claimed", "installationID", installationID, "step", stepType, "attempt", step.Attempts)
	c.notifier.Notify(ctx, installationID)
	c.dispatcher.Dispatch(step, lease)
	return step, nil
}
