package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Builder-Lawyers/site-provisioner/internal/application/errs"
	"github.com/Builder-Lawyers/site-provisioner/internal/domain/consts"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/db"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const stepColumns = `id, installation_id, "type", status, payload, error_message, lease_token,
	lease_expires_at, attempts, created_at, updated_at`

type StepRepo struct {
	tx pgx.Tx
}

func NewStepRepo(tx pgx.Tx) *StepRepo {
	return &StepRepo{tx: tx}
}

func scanStep(row pgx.Row) (*db.InstallStep, error) {
	var m db.InstallStep
	err := row.Scan(&m.ID, &m.InstallationID, &m.Type, &m.Status, &m.Payload, &m.ErrorMessage, &m.LeaseToken,
		&m.LeaseExpiresAt, &m.Attempts, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *StepRepo) InsertStep(ctx context.Context, m db.InstallStep) (uint64, error) {
	var id uint64
	err := r.tx.QueryRow(ctx, `INSERT INTO provisioner.install_steps
			(installation_id, "type", status, payload, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		m.InstallationID, m.Type, m.Status, m.Payload, m.CreatedAt, m.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, translate(err)
	}
	return id, nil
}

func (r *StepRepo) GetStep(ctx context.Context, installationID uint64, stepType consts.StepType) (*db.InstallStep, error) {
	m, err := scanStep(r.tx.QueryRow(ctx, "SELECT "+stepColumns+
		` FROM provisioner.install_steps WHERE installation_id = $1 AND "type" = $2`, installationID, stepType))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFoundError{Entity: "step", ID: fmt.Sprintf("%d/%s", installationID, stepType)}
	}
	if err != nil {
		return nil, fmt.Errorf("err getting step: %w", err)
	}
	return m, nil
}

// ListSteps returns the ledger in fixed step order.
func (r *StepRepo) ListSteps(ctx context.Context, installationID uint64) ([]db.InstallStep, error) {
	rows, err := r.tx.Query(ctx, "SELECT "+stepColumns+` FROM provisioner.install_steps
		WHERE installation_id = $1
		ORDER BY CASE "type"
			WHEN 'PRE_INSTALLATION' THEN 0
			WHEN 'CPANEL_ENTRY' THEN 1
			WHEN 'CLOUDFLARE_ENTRY' THEN 2
			WHEN 'DIRECTORY_SETUP' THEN 3
			WHEN 'DB_CREATION' THEN 4
			ELSE 99 END`, installationID)
	if err != nil {
		return nil, fmt.Errorf("err listing steps: %w", err)
	}
	defer rows.Close()

	var steps []db.InstallStep
	for rows.Next() {
		m, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, *m)
	}
	return steps, rows.Err()
}

// MergePayload applies a shallow merge of partial onto the stored payload in a single
// statement and returns the updated step.
func (r *StepRepo) MergePayload(ctx context.Context, installationID uint64, stepType consts.StepType, partial json.RawMessage, now time.Time) (*db.InstallStep, error) {
	m, err := scanStep(r.tx.QueryRow(ctx, `UPDATE provisioner.install_steps
		SET payload = payload || $3::jsonb, updated_at = $4
		WHERE installation_id = $1 AND "type" = $2
		RETURNING `+stepColumns, installationID, stepType, partial, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFoundError{Entity: "draft", ID: installationID}
	}
	if err != nil {
		return nil, fmt.Errorf("err merging step payload: %w", err)
	}
	return m, nil
}

// UpsertPending creates the step as PENDING, or resets an existing one to PENDING with
// its error cleared. SUCCESS steps and steps whose lease is still live are left as they
// are. The payload is merged either way.
func (r *StepRepo) UpsertPending(ctx context.Context, installationID uint64, stepType consts.StepType, payload json.RawMessage, now time.Time) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO provisioner.install_steps
			(installation_id, "type", status, payload, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (installation_id, "type") DO UPDATE SET
			status = CASE
				WHEN install_steps.status = $6 THEN install_steps.status
				WHEN install_steps.status = $7 AND install_steps.lease_expires_at > $5 THEN install_steps.status
				ELSE EXCLUDED.status END,
			error_message = CASE
				WHEN install_steps.status = $6 THEN install_steps.error_message
				WHEN install_steps.status = $7 AND install_steps.lease_expires_at > $5 THEN install_steps.error_message
				ELSE NULL END,
			payload = install_steps.payload || EXCLUDED.payload,
			updated_at = CASE
				WHEN install_steps.status = $6 THEN install_steps.updated_at
				ELSE EXCLUDED.updated_at END`,
		installationID, stepType, consts.StepPending, payload, now, consts.StepSuccess, consts.StepInProgress)
	if err != nil {
		return fmt.Errorf("err upserting step %s: %w", stepType, err)
	}
	return nil
}

// Claim moves a PENDING or FAILED step to IN_PROGRESS under a new lease. It returns
// pgx.ErrNoRows when the step is missing or not claimable.
func (r *StepRepo) Claim(ctx context.Context, installationID uint64, stepType consts.StepType, token uuid.UUID, expiresAt time.Time, overrides json.RawMessage, now time.Time) (*db.InstallStep, error) {
	return scanStep(r.tx.QueryRow(ctx, `UPDATE provisioner.install_steps SET
			status = $3, error_message = NULL, lease_token = $4, lease_expires_at = $5,
			attempts = attempts + 1, payload = payload || $6::jsonb, updated_at = $7
		WHERE installation_id = $1 AND "type" = $2 AND status IN ($8, $9)
		RETURNING `+stepColumns,
		installationID, stepType, consts.StepInProgress, token, expiresAt, overrides, now,
		consts.StepPending, consts.StepFailed))
}

// ExtendLease reports false when token no longer holds the step.
func (r *StepRepo) ExtendLease(ctx context.Context, stepID uint64, token uuid.UUID, until time.Time) (bool, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE provisioner.install_steps SET lease_expires_at = $3
		WHERE id = $1 AND lease_token = $2 AND status = $4`, stepID, token, until, consts.StepInProgress)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Complete writes the terminal status if token still holds the step.
func (r *StepRepo) Complete(ctx context.Context, stepID uint64, token uuid.UUID, status consts.StepStatus, errorMessage *string, payload json.RawMessage, now time.Time) (bool, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE provisioner.install_steps SET
			status = $3, error_message = $4, payload = payload || $5::jsonb,
			lease_token = NULL, lease_expires_at = NULL, updated_at = $6
		WHERE id = $1 AND lease_token = $2 AND status = $7`,
		stepID, token, status, errorMessage, payload, now, consts.StepInProgress)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// FailExpired fails IN_PROGRESS steps whose lease ended before now and returns the
// ids of their installations.
func (r *StepRepo) FailExpired(ctx context.Context, now time.Time, message string) ([]uint64, error) {
	rows, err := r.tx.Query(ctx, `UPDATE provisioner.install_steps SET
			status = $2, error_message = $3, lease_token = NULL, lease_expires_at = NULL, updated_at = $1
		WHERE status = $4 AND lease_expires_at < $1
		RETURNING installation_id`, now, consts.StepFailed, message, consts.StepInProgress)
	if err != nil {
		return nil, fmt.Errorf("err failing expired leases: %w", err)
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
