package repo

import (
	"context"
	"errors"

	"github.com/Builder-Lawyers/site-provisioner/internal/application/errs"
	"github.com/Builder-Lawyers/site-provisioner/internal/domain/entity"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/db"
	"github.com/jackc/pgx/v5"
)

// LoadInstallation reads the installation with its ledger, client and project attached.
// A client or project that no longer exists is left nil.
func LoadInstallation(ctx context.Context, tx pgx.Tx, id uint64) (entity.Installation, error) {
	m, err := NewInstallationRepo(tx).GetInstallation(ctx, id, false)
	if err != nil {
		return entity.Installation{}, err
	}
	installation := db.MapInstallationModelToEntity(*m)

	steps, err := NewStepRepo(tx).ListSteps(ctx, id)
	if err != nil {
		return entity.Installation{}, err
	}
	for _, s := range steps {
		installation.Steps = append(installation.Steps, db.MapStepModelToEntity(s))
	}

	var notFound errs.NotFoundError
	projects := NewProjectRepo(tx)
	project, err := projects.GetProject(ctx, m.ProjectID)
	switch {
	case err == nil:
		p := db.MapProjectModelToEntity(*project)
		installation.Project = &p
	case !errors.As(err, &notFound):
		return entity.Installation{}, err
	}

	if m.ClientID != nil {
		client, err := projects.GetClient(ctx, *m.ClientID)
		switch {
		case err == nil:
			installation.Client = &entity.Client{ID: client.ID, Name: client.Name}
		case !errors.As(err, &notFound):
			return entity.Installation{}, err
		}
	}
	return installation, nil
}
