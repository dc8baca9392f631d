package installation

import (
	"context"
	"errors"
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

type Promote struct {
	uowFactory *dbs.UOWFactory
	notifier   interfaces.Notifier
}

func NewPromote(factory *dbs.UOWFactory, notifier interfaces.Notifier) *Promote {
	return &Promote{uowFactory: factory, notifier: notifier}
}

// Execute turns a draft (or the installation already owning the domain, or a new one)
// into a live installation with the four provisioning steps. Re-running it never adds
// step rows; steps that did not succeed are reset to PENDING.
func (c *Promote) Execute(ctx context.Context, req dto.PromoteRequest) (installation entity.Installation, err error) {
	domain := entity.NormalizeDomain(req.Domain)
	switch {
	case req.ClientID <= 0:
		return installation, errs.ValidationError{Err: errors.New("clientId is required")}
	case req.ProjectID <= 0:
		return installation, errs.ValidationError{Err: errors.New("projectId is required")}
	case domain == "":
		return installation, errs.ValidationError{Err: errors.New("domain is required")}
	}

	var targetID uint64
	uow := c.uowFactory.GetUoW()
	tx, err := uow.BeginCtx(ctx)
	if err != nil {
		return installation, err
	}
	defer func() {
		if err == nil {
			c.notifier.Notify(ctx, targetID)
		}
	}()
	defer uow.Finalize(&err)

	projects := repo.NewProjectRepo(tx)
	if _, err = projects.GetProject(ctx, req.ProjectID); err != nil {
		return installation, err
	}
	if _, err = projects.GetClient(ctx, req.ClientID); err != nil {
		return installation, err
	}

	now := time.Now()
	installations := repo.NewInstallationRepo(tx)
	var owner *db.Installation
	switch {
	case req.DraftID != nil:
		if _, err = installations.GetInstallation(ctx, *req.DraftID, true); err != nil {
			return installation, err
		}
		if owner, err = installations.FindActiveByDomain(ctx, domain, *req.DraftID); err != nil {
			return installation, err
		}
		if owner != nil {
			return installation, errs.ConflictError{Reason: errs.ReasonDomainTaken}
		}
		targetID = *req.DraftID
	default:
		if owner, err = installations.FindActiveByDomain(ctx, domain, 0); err != nil {
			return installation, err
		}
		if owner != nil {
			targetID = owner.ID
			break
		}
		targetID, err = installations.InsertInstallation(ctx, db.Installation{
			ClientID:  &req.ClientID,
			ProjectID: req.ProjectID,
			Domain:    &domain,
			Status:    consts.InstallationPending,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return installation, err
		}
	}

	if err = installations.Activate(ctx, targetID, req.ClientID, req.ProjectID, domain, now); err != nil {
		return installation, err
	}

	steps := repo.NewStepRepo(tx)
	payload := db.MapToRawMessage(entity.StepData{entity.KeyDomain: domain})
	for _, stepType := range consts.ProvisioningSteps {
		if err = steps.UpsertPending(ctx, targetID, stepType, payload, now); err != nil {
			return installation, err
		}
	}

	installation, err = repo.LoadInstallation(ctx, tx, targetID)
	if err != nil {
		return installation, err
	}

	slog.Info("installation promoted", "installationID", targetID, "domain", domain, "fromDraft", req.DraftID != nil)
	return installation, nil
}
