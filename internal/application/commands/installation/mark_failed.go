package installation

import (
	"context"
	"log/slog"
	"time"

	"github.com/Builder-Lawyers/site-provisioner/internal/application/dto"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/errs"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/interfaces"
	"github.com/Builder-Lawyers/site-provisioner/internal/domain/consts"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/db/repo"
	dbs "github.com/Builder-Lawyers/site-provisioner/pkg/db"
)

type MarkFailed struct {
	uowFactory *dbs.UOWFactory
	notifier   interfaces.Notifier
}

func NewMarkFailed(factory *dbs.UOWFactory, notifier interfaces.Notifier) *MarkFailed {
	return &MarkFailed{uowFactory: factory, notifier: notifier}
}

// Execute marks the installation FAILED. It is only accepted once every provisioning
// step is terminal and at least one of them failed.
func (c *MarkFailed) Execute(ctx context.Context, id uint64) (resp dto.MarkFailedResponse, err error) {
	uow := c.uowFactory.GetUoW()
	tx, err := uow.BeginCtx(ctx)
	if err != nil {
		return resp, err
	}
	defer func() {
		if err == nil {
			c.notifier.Notify(ctx, id)
		}
	}()
	defer uow.Finalize(&err)

	installations := repo.NewInstallationRepo(tx)
	if _, err = installations.GetInstallation(ctx, id, true); err != nil {
		return resp, err
	}
	models, err := repo.NewStepRepo(tx).ListSteps(ctx, id)
	if err != nil {
		return resp, err
	}

	terminal, failed := 0, 0
	for _, m := range models {
		if !m.Type.IsProvisioning() {
			continue
		}
		if m.Status.Terminal() {
			terminal++
		}
		if m.Status == consts.StepFailed {
			failed++
		}
	}
	if terminal != consts.TotalProvisioningSteps {
		return resp, errs.ConflictError{Reason: errs.ReasonNotTerminal}
	}
	if failed == 0 {
		return resp, errs.ConflictError{Reason: errs.ReasonAlreadyCompleted}
	}

	if err = installations.SetStatus(ctx, id, consts.InstallationFailed, time.Now()); err != nil {
		return resp, err
	}
	written, err := installations.GetInstallation(ctx, id, false)
	if err != nil {
		return resp, err
	}

	slog.Info("installation marked failed", "installationID", id, "failedSteps", failed, "status", written.Status)
	return dto.MarkFailedResponse{ID: id, Status: string(written.Status)}, nil
}
