package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Builder-Lawyers/site-provisioner/internal/application/errs"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/db"
	"github.com/jackc/pgx/v5"
)

// ProjectRepo reads the project and client rows owned by the CRM side.
type ProjectRepo struct {
	tx pgx.Tx
}

func NewProjectRepo(tx pgx.Tx) *ProjectRepo {
	return &ProjectRepo{tx: tx}
}

func (r *ProjectRepo) GetProject(ctx context.Context, id int64) (*db.Project, error) {
	var m db.Project
	err := r.tx.QueryRow(ctx, "SELECT id, name, provider_config FROM provisioner.projects WHERE id = $1", id).
		Scan(&m.ID, &m.Name, &m.ProviderConfig)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFoundError{Entity: "project", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("err getting project %d: %w", id, err)
	}
	return &m, nil
}

func (r *ProjectRepo) GetClient(ctx context.Context, id int64) (*db.Client, error) {
	var m db.Client
	err := r.tx.QueryRow(ctx, "SELECT id, name FROM provisioner.clients WHERE id = $1", id).Scan(&m.ID, &m.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFoundError{Entity: "client", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("err getting client %d: %w", id, err)
	}
	return &m, nil
}
