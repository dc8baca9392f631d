package draft

import (
	"context"
	"log/slog"

	"github.com/Builder-Lawyers/site-provisioner/internal/application/errs"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/db/repo"
	dbs "github.com/Builder-Lawyers/site-provisioner/pkg/db"
)

type DeleteDraft struct {
	uowFactory *dbs.UOWFactory
}

func NewDeleteDraft(factory *dbs.UOWFactory) *DeleteDraft {
	return &DeleteDraft{uowFactory: factory}
}

// Execute removes an abandoned draft together with its step. Promoted installations
// cannot be deleted here.
func (c *DeleteDraft) Execute(ctx context.Context, id uint64) (err error) {
	uow := c.uowFactory.GetUoW()
	tx, err := uow.BeginCtx(ctx)
	if err != nil {
		return err
	}
	defer uow.Finalize(&err)

	installations := repo.NewInstallationRepo(tx)
	installation, err := installations.GetInstallation(ctx, id, true)
	if err != nil {
		return err
	}
	if !installation.IsDraft {
		return errs.ConflictError{Reason: errs.ReasonNotDraft}
	}
	if err = installations.DeleteInstallation(ctx, id); err != nil {
		return err
	}

	slog.Info("draft deleted", "installationID", id)
	return nil
}
