package draft

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Builder-Lawyers/site-provisioner/internal/application/errs"
	"github.com/Builder-Lawyers/site-provisioner/internal/domain/consts"
	"github.com/Builder-Lawyers/site-provisioner/internal/domain/entity"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/db"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/db/repo"
	dbs "github.com/Builder-Lawyers/site-provisioner/pkg/db"
)

type CreateDraft struct {
	uowFactory *dbs.UOWFactory
}

func NewCreateDraft(factory *dbs.UOWFactory) *CreateDraft {
	return &CreateDraft{uowFactory: factory}
}

// Execute stores the first wizard input as a draft installation owning a
// PRE_INSTALLATION step. projectId is required.
func (c *CreateDraft) Execute(ctx context.Context, data entity.StepData) (id uint64, err error) {
	projectID, ok := data.Int64(entity.KeyProjectID)
	if !ok || projectID <= 0 {
		return 0, errs.ValidationError{Err: errors.New("projectId is required")}
	}
	columns := columnsOf(data)

	uow := c.uowFactory.GetUoW()
	tx, err := uow.BeginCtx(ctx)
	if err != nil {
		return 0, err
	}
	defer uow.Finalize(&err)

	now := time.Now()
	id, err = repo.NewInstallationRepo(tx).InsertInstallation(ctx, db.Installation{
		ClientID:  columns.clientID,
		ProjectID: projectID,
		Domain:    columns.domain,
		Status:    consts.InstallationPending,
		IsDraft:   true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return 0, err
	}

	_, err = repo.NewStepRepo(tx).InsertStep(ctx, db.InstallStep{
		InstallationID: id,
		Type:           consts.StepPreInstallation,
		Status:         consts.StepPending,
		Payload:        db.MapToRawMessage(data),
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return 0, err
	}

	slog.Info("draft created", "installationID", id, "projectID", projectID)
	return id, nil
}

// draftColumns are the wizard fields mirrored onto the installation row.
type draftColumns struct {
	projectID *int64
	clientID  *int64
	domain    *string
}

func columnsOf(data entity.StepData) draftColumns {
	var cols draftColumns
	if v, ok := data.Int64(entity.KeyProjectID); ok && v > 0 {
		cols.projectID = &v
	}
	if v, ok := data.Int64(entity.KeyClientID); ok && v > 0 {
		cols.clientID = &v
	}
	if v := entity.NormalizeDomain(data.String(entity.KeyDomain)); v != "" {
		cols.domain = &v
	}
	return cols
}
