package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Builder-Lawyers/site-provisioner/internal/application/errs"
	"github.com/Builder-Lawyers/site-provisioner/internal/domain/consts"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/db"
	"github.com/jackc/pgx/v5"
)

const installationColumns = `id, client_id, project_id, domain, status, is_draft, installer_site_id,
	credentials, finalized_at, created_at, updated_at`

type InstallationRepo struct {
	tx pgx.Tx
}

func NewInstallationRepo(tx pgx.Tx) *InstallationRepo {
	return &InstallationRepo{tx: tx}
}

func scanInstallation(row pgx.Row) (*db.Installation, error) {
	var m db.Installation
	err := row.Scan(&m.ID, &m.ClientID, &m.ProjectID, &m.Domain, &m.Status, &m.IsDraft, &m.InstallerSiteID,
		&m.Credentials, &m.FinalizedAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *InstallationRepo) InsertInstallation(ctx context.Context, m db.Installation) (uint64, error) {
	var id uint64
	err := r.tx.QueryRow(ctx, `INSERT INTO provisioner.installations
			(client_id, project_id, domain, status, is_draft, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		m.ClientID, m.ProjectID, m.Domain, m.Status, m.IsDraft, m.CreatedAt, m.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, translate(err)
	}
	return id, nil
}

// GetInstallation reads the row and locks it for the rest of the transaction when
// forUpdate is set.
func (r *InstallationRepo) GetInstallation(ctx context.Context, id uint64, forUpdate bool) (*db.Installation, error) {
	query := "SELECT " + installationColumns + " FROM provisioner.installations WHERE id = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}
	m, err := scanInstallation(r.tx.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFoundError{Entity: "installation", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("err getting installation %d: %w", id, err)
	}
	return m, nil
}

// FindActiveByDomain returns the non-draft installation owning domain, or nil.
func (r *InstallationRepo) FindActiveByDomain(ctx context.Context, domain string, excludeID uint64) (*db.Installation, error) {
	query := "SELECT " + installationColumns + ` FROM provisioner.installations
		WHERE NOT is_draft AND lower(domain) = lower($1) AND id <> $2 LIMIT 1`
	m, err := scanInstallation(r.tx.QueryRow(ctx, query, domain, excludeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("err finding installation by domain: %w", err)
	}
	return m, nil
}

// UpdateDraftColumns mirrors wizard fields onto the draft row. Nil arguments are left alone.
func (r *InstallationRepo) UpdateDraftColumns(ctx context.Context, id uint64, projectID, clientID *int64, domain *string, now time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE provisioner.installations SET
			project_id = COALESCE($2, project_id),
			client_id = COALESCE($3, client_id),
			domain = CASE WHEN is_draft THEN COALESCE($4, domain) ELSE domain END,
			updated_at = $5
		WHERE id = $1`, id, projectID, clientID, domain, now)
	return translate(err)
}

// Activate turns the row into a live installation for the given owner and domain.
func (r *InstallationRepo) Activate(ctx context.Context, id uint64, clientID, projectID int64, domain string, now time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE provisioner.installations SET
			client_id = $2, project_id = $3, domain = $4, is_draft = false,
			status = CASE WHEN status = $5 THEN status ELSE $6 END,
			updated_at = $7
		WHERE id = $1`,
		id, clientID, projectID, domain, consts.InstallationCompleted, consts.InstallationPending, now)
	return translate(err)
}

// SetStatus changes the status unless the installation is already COMPLETED.
func (r *InstallationRepo) SetStatus(ctx context.Context, id uint64, status consts.InstallationStatus, now time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE provisioner.installations SET status = $2, updated_at = $3
		WHERE id = $1 AND status <> $4`, id, status, now, consts.InstallationCompleted)
	return err
}

// CompleteIfAllSucceeded marks the installation COMPLETED when every provisioning step
// succeeded. It reports whether the row changed.
func (r *InstallationRepo) CompleteIfAllSucceeded(ctx context.Context, id uint64, now time.Time) (bool, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE provisioner.installations SET status = $2, updated_at = $3
		WHERE id = $1 AND status <> $2 AND (
			SELECT count(*) FROM provisioner.install_steps
			WHERE installation_id = $1 AND "type" <> $4 AND status = $5
		) = $6`,
		id, consts.InstallationCompleted, now, consts.StepPreInstallation, consts.StepSuccess, consts.TotalProvisioningSteps)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *InstallationRepo) SetInstallerSiteID(ctx context.Context, id uint64, siteID string, now time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE provisioner.installations SET installer_site_id = $2, updated_at = $3
		WHERE id = $1`, id, siteID, now)
	return err
}

func (r *InstallationRepo) DeleteInstallation(ctx context.Context, id uint64) error {
	_, err := r.tx.Exec(ctx, "DELETE FROM provisioner.installations WHERE id = $1", id)
	return err
}

// Finalize stores the sealed credentials and completes the installation. It reports
// false when the installation was finalized before; nothing is rewritten then.
func (r *InstallationRepo) Finalize(ctx context.Context, id uint64, sealed string, now time.Time) (bool, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE provisioner.installations SET
			credentials = $2, finalized_at = $3, status = $4, updated_at = $3
		WHERE id = $1 AND finalized_at IS NULL`, id, sealed, now, consts.InstallationCompleted)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// DomainOwner is the installation holding a domain, with its client when known.
type DomainOwner struct {
	InstallationID uint64
	ClientID       *int64
	ClientName     *string
}

func (r *InstallationRepo) DomainOwner(ctx context.Context, domain string, excludeID uint64) (*DomainOwner, error) {
	var owner DomainOwner
	err := r.tx.QueryRow(ctx, `SELECT i.id, i.client_id, c.name
		FROM provisioner.installations i
		LEFT JOIN provisioner.clients c ON c.id = i.client_id
		WHERE NOT i.is_draft AND lower(i.domain) = lower($1) AND i.id <> $2
		LIMIT 1`, domain, excludeID).Scan(&owner.InstallationID, &owner.ClientID, &owner.ClientName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("err checking domain owner: %w", err)
	}
	return &owner, nil
}
