package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Builder-Lawyers/site-provisioner/internal/application/errs"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/interfaces"
	"github.com/Builder-Lawyers/site-provisioner/internal/domain/consts"
	"github.com/Builder-Lawyers/site-provisioner/internal/domain/entity"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/db"
	dbs "github.com/Builder-Lawyers/site-provisioner/pkg/db"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Ledger is the Postgres step ledger. Every method runs in its own unit of work.
type Ledger struct {
	uowFactory *dbs.UOWFactory
	defaults   entity.ProviderSettings
}

var _ interfaces.StepLedger = (*Ledger)(nil)

func NewLedger(uowFactory *dbs.UOWFactory, defaults entity.ProviderSettings) *Ledger {
	return &Ledger{uowFactory: uowFactory, defaults: defaults}
}

func (l *Ledger) ClaimStep(ctx context.Context, installationID uint64, stepType consts.StepType, lease interfaces.Lease, overrides entity.StepData) (step entity.Step, err error) {
	uow := l.uowFactory.GetUoW()
	tx, err := uow.BeginCtx(ctx)
	if err != nil {
		return entity.Step{}, err
	}
	defer uow.Finalize(&err)

	now := time.Now()
	steps := NewStepRepo(tx)
	claimed, err := steps.Claim(ctx, installationID, stepType, lease.Token, lease.ExpiresAt, db.MapToRawMessage(overrides), now)
	if errors.Is(err, pgx.ErrNoRows) {
		current, getErr := steps.GetStep(ctx, installationID, stepType)
		if getErr != nil {
			return entity.Step{}, getErr
		}
		existing := db.MapStepModelToEntity(*current)
		reason := errs.ReasonAlreadyInProgress
		if existing.Status == consts.StepSuccess {
			reason = errs.ReasonAlreadyCompleted
		}
		return entity.Step{}, errs.ConflictError{Reason: reason, Step: &existing}
	}
	if err != nil {
		return entity.Step{}, fmt.Errorf("err claiming step: %w", err)
	}

	if err = NewInstallationRepo(tx).SetStatus(ctx, installationID, consts.InstallationInProgress, now); err != nil {
		return entity.Step{}, err
	}
	return db.MapStepModelToEntity(*claimed), nil
}

func (l *Ledger) ExtendLease(ctx context.Context, stepID uint64, token uuid.UUID, until time.Time) (err error) {
	uow := l.uowFactory.GetUoW()
	tx, err := uow.BeginCtx(ctx)
	if err != nil {
		return err
	}
	defer uow.Finalize(&err)

	held, err := NewStepRepo(tx).ExtendLease(ctx, stepID, token, until)
	if err != nil {
		return err
	}
	if !held {
		return interfaces.ErrLeaseLost
	}
	return nil
}

func (l *Ledger) CompleteStep(ctx context.Context, c interfaces.Completion) (err error) {
	uow := l.uowFactory.GetUoW()
	tx, err := uow.BeginCtx(ctx)
	if err != nil {
		return err
	}
	defer uow.Finalize(&err)

	now := time.Now()
	var errorMessage *string
	if c.ErrorMessage != "" {
		errorMessage = &c.ErrorMessage
	}
	held, err := NewStepRepo(tx).Complete(ctx, c.StepID, c.Lease, c.Status, errorMessage, db.MapToRawMessage(c.Payload), now)
	if err != nil {
		return err
	}
	if !held {
		return interfaces.ErrLeaseLost
	}

	installations := NewInstallationRepo(tx)
	if c.InstallerSiteID != nil {
		if err = installations.SetInstallerSiteID(ctx, c.InstallationID, *c.InstallerSiteID, now); err != nil {
			return err
		}
	}
	if c.Status != consts.StepSuccess {
		return nil
	}
	// steps of one installation complete concurrently; the row lock makes the last
	// of them see every other success
	if _, err = installations.GetInstallation(ctx, c.InstallationID, true); err != nil {
		return err
	}
	_, err = installations.CompleteIfAllSucceeded(ctx, c.InstallationID, now)
	return err
}

func (l *Ledger) ExecutionContext(ctx context.Context, installationID uint64, stepType consts.StepType) (ec interfaces.ExecutionContext, err error) {
	uow := l.uowFactory.GetUoW()
	tx, err := uow.BeginCtx(ctx)
	if err != nil {
		return ec, err
	}
	defer uow.Finalize(&err)

	installation, err := NewInstallationRepo(tx).GetInstallation(ctx, installationID, false)
	if err != nil {
		return ec, err
	}
	ec.Installation = db.MapInstallationModelToEntity(*installation)

	projects := NewProjectRepo(tx)
	project, err := projects.GetProject(ctx, installation.ProjectID)
	if err != nil {
		return ec, err
	}
	ec.Providers = db.MapProjectModelToEntity(*project).Providers.WithDefaults(l.defaults)

	if installation.ClientID != nil {
		client, err := projects.GetClient(ctx, *installation.ClientID)
		if err != nil {
			return ec, err
		}
		ec.ClientName = client.Name
	}

	steps := NewStepRepo(tx)
	ec.DraftData = entity.StepData{}
	pre, err := steps.GetStep(ctx, installationID, consts.StepPreInstallation)
	var notFound errs.NotFoundError
	switch {
	case err == nil:
		ec.DraftData = db.RawMessageToStepData(pre.Payload)
	case !errors.As(err, &notFound):
		return ec, err
	}

	step, err := steps.GetStep(ctx, installationID, stepType)
	if err != nil {
		return ec, err
	}
	ec.Step = db.MapStepModelToEntity(*step)
	return ec, nil
}

func (l *Ledger) ListSteps(ctx context.Context, installationID uint64) (steps []entity.Step, err error) {
	uow := l.uowFactory.GetUoW()
	tx, err := uow.BeginCtx(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Finalize(&err)

	if _, err = NewInstallationRepo(tx).GetInstallation(ctx, installationID, false); err != nil {
		return nil, err
	}
	models, err := NewStepRepo(tx).ListSteps(ctx, installationID)
	if err != nil {
		return nil, err
	}
	steps = make([]entity.Step, 0, len(models))
	for _, m := range models {
		steps = append(steps, db.MapStepModelToEntity(m))
	}
	return steps, nil
}

func (l *Ledger) FailExpiredLeases(ctx context.Context, now time.Time, message string) (ids []uint64, err error) {
	uow := l.uowFactory.GetUoW()
	tx, err := uow.BeginCtx(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Finalize(&err)

	return NewStepRepo(tx).FailExpired(ctx, now, message)
}
