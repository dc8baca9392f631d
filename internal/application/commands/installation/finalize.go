package installation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Builder-Lawyers/site-provisioner/internal/application/dto"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/errs"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/interfaces"
	"github.com/Builder-Lawyers/site-provisioner/internal/domain/consts"
	"github.com/Builder-Lawyers/site-provisioner/internal/domain/entity"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/db"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/db/repo"
	dbs "github.com/Builder-Lawyers/site-provisioner/pkg/db"
)

type Finalize struct {
	uowFactory *dbs.UOWFactory
	sealer     interfaces.Sealer
	notifier   interfaces.Notifier
}

func NewFinalize(factory *dbs.UOWFactory, sealer interfaces.Sealer, notifier interfaces.Notifier) *Finalize {
	return &Finalize{uowFactory: factory, sealer: sealer, notifier: notifier}
}

// Execute stores the site credentials and marks the installation COMPLETED once every
// provisioning step succeeded. Calling it again is acknowledged without rewriting.
func (c *Finalize) Execute(ctx context.Context, id uint64, req dto.FinalizeRequest) (resp dto.FinalizeResponse, err error) {
	creds := entity.Credentials{
		Domain:        entity.NormalizeDomain(req.Domain),
		AdminEmail:    req.AdminEmail,
		AdminPassword: req.AdminPassword,
	}
	if creds.Domain == "" || creds.AdminEmail == "" || creds.AdminPassword == "" {
		return resp, errs.ValidationError{Err: errors.New("domain, adminEmail and adminPassword are required")}
	}

	uow := c.uowFactory.GetUoW()
	tx, err := uow.BeginCtx(ctx)
	if err != nil {
		return resp, err
	}
	written := false
	defer func() {
		if err == nil && written {
			c.notifier.Notify(ctx, id)
		}
	}()
	defer uow.Finalize(&err)

	installations := repo.NewInstallationRepo(tx)
	installation, err := installations.GetInstallation(ctx, id, true)
	if err != nil {
		return resp, err
	}
	resp = dto.FinalizeResponse{ID: id, Status: string(consts.InstallationCompleted)}
	if installation.FinalizedAt != nil {
		resp.AlreadyFinalized = true
		return resp, nil
	}
	if installation.IsDraft {
		return resp, errs.ConflictError{Reason: errs.ReasonNotDraft}
	}

	models, err := repo.NewStepRepo(tx).ListSteps(ctx, id)
	if err != nil {
		return resp, err
	}
	if !allProvisioningSucceeded(models) {
		return resp, errs.ConflictError{Reason: errs.ReasonNotSucceeded}
	}

	plain, err := json.Marshal(creds)
	if err != nil {
		return resp, err
	}
	sealed, err := c.sealer.Seal(plain)
	if err != nil {
		return resp, fmt.Errorf("sealing credentials: %w", err)
	}
	written, err = installations.Finalize(ctx, id, sealed, time.Now())
	if err != nil {
		return resp, err
	}
	resp.AlreadyFinalized = !written

	slog.Info("installation finalized", "installationID", id, "domain", creds.Domain)
	return resp, nil
}

func allProvisioningSucceeded(models []db.InstallStep) bool {
	succeeded := 0
	for _, m := range models {
		if m.Type.IsProvisioning() && m.Status == consts.StepSuccess {
			succeeded++
		}
	}
	return succeeded == consts.TotalProvisioningSteps
}
