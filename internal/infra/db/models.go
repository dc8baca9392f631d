package db

import (
	"encoding/json"
	"time"

	"github.com/Builder-Lawyers/site-provisioner/internal/domain/consts"
	"github.com/google/uuid"
)

type Installation struct {
	ID              uint64                    `db:"id"`
	ClientID        *int64                    `db:"client_id"`
	ProjectID       int64                     `db:"project_id"`
	Domain          *string                   `db:"domain"`
	Status          consts.InstallationStatus `db:"status"`
	IsDraft         bool                      `db:"is_draft"`
	InstallerSiteID *string                   `db:"installer_site_id"`
	Credentials     *string                   `db:"credentials"`
	FinalizedAt     *time.Time                `db:"finalized_at"`
	CreatedAt       time.Time                 `db:"created_at"`
	UpdatedAt       time.Time                 `db:"updated_at"`
}

type InstallStep struct {
	ID             uint64            `db:"id"`
	InstallationID uint64            `db:"installation_id"`
	Type           consts.StepType   `db:"type"`
	Status         consts.StepStatus `db:"status"`
	Payload        json.RawMessage   `db:"payload"`
	ErrorMessage   *string           `db:"error_message"`
	LeaseToken     *uuid.UUID        `db:"lease_token"`
	LeaseExpiresAt *time.Time        `db:"lease_expires_at"`
	Attempts       int               `db:"attempts"`
	CreatedAt      time.Time         `db:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at"`
}

type Project struct {
	ID             int64           `db:"id"`
	Name           string          `db:"name"`
	ProviderConfig json.RawMessage `db:"provider_config"`
}

type Client struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}
