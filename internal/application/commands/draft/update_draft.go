package draft

import (
	"context"
	"log/slog"
	"time"

	"github.com/Builder-Lawyers/site-provisioner/internal/domain/consts"
	"github.com/Builder-Lawyers/site-provisioner/internal/domain/entity"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/db"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/db/repo"
	dbs "github.com/Builder-Lawyers/site-provisioner/pkg/db"
)

type UpdateDraft struct {
	uowFactory *dbs.UOWFactory
}

func NewUpdateDraft(factory *dbs.UOWFactory) *UpdateDraft {
	return &UpdateDraft{uowFactory: factory}
}

// Execute merges partial into the stored wizard data. Top-level keys of partial
// replace stored ones; everything else is kept. The merge happens in one statement,
// so writers of different keys do not overwrite each other.
func (c *UpdateDraft) Execute(ctx context.Context, id uint64, partial entity.StepData) (data entity.StepData, err error) {
	uow := c.uowFactory.GetUoW()
	tx, err := uow.BeginCtx(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Finalize(&err)

	now := time.Now()
	if _, err = repo.NewInstallationRepo(tx).GetInstallation(ctx, id, false); err != nil {
		return nil, err
	}

	step, err := repo.NewStepRepo(tx).MergePayload(ctx, id, consts.StepPreInstallation, db.MapToRawMessage(partial), now)
	if err != nil {
		return nil, err
	}

	cols := columnsOf(partial)
	if cols.projectID != nil || cols.clientID != nil || cols.domain != nil {
		err = repo.NewInstallationRepo(tx).UpdateDraftColumns(ctx, id, cols.projectID, cols.clientID, cols.domain, now)
		if err != nil {
			return nil, err
		}
	}

	slog.Debug("draft updated", "installationID", id, "keys", len(partial))
	return db.RawMessageToStepData(step.Payload), nil
}
