package dto

import (
	"time"

	"github.com/Builder-Lawyers/site-provisioner/internal/domain/consts"
	"github.com/Builder-Lawyers/site-provisioner/internal/domain/entity"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// ConflictResponse is returned with 409. Start-step conflicts carry the current step.
type ConflictResponse struct {
	Error  string        `json:"error"`
	Reason string        `json:"reason"`
	Step   *StepResponse `json:"step,omitempty"`
}

type CreateDraftResponse struct {
	ID uint64 `json:"id"`
}

type DraftResponse struct {
	ID           uint64               `json:"id"`
	StepData     entity.StepData      `json:"stepData"`
	Step         StepResponse         `json:"step"`
	Installation InstallationResponse `json:"installation"`
}

type UpdateDraftResponse struct {
	ID       uint64          `json:"id"`
	StepData entity.StepData `json:"stepData"`
}

type PromoteRequest struct {
	DraftID   *uint64 `json:"draftId,omitempty"`
	ClientID  int64   `json:"clientId"`
	ProjectID int64   `json:"projectId"`
	Domain    string  `json:"domain"`
}

type StartStepRequest struct {
	Payload entity.StepData `json:"payload,omitempty"`
}

type FinalizeRequest struct {
	Domain        string `json:"domain"`
	AdminEmail    string `json:"adminEmail"`
	AdminPassword string `json:"adminPassword"`
}

type FinalizeResponse struct {
	ID               uint64 `json:"id"`
	Status           string `json:"status"`
	AlreadyFinalized bool   `json:"alreadyFinalized"`
}

type MarkFailedResponse struct {
	ID     uint64 `json:"id"`
	Status string `json:"status"`
}

type CredentialsResponse struct {
	Domain        string    `json:"domain"`
	AdminEmail    string    `json:"adminEmail"`
	AdminPassword string    `json:"adminPassword"`
	FinalizedAt   time.Time `json:"finalizedAt"`
}

type DomainConflict struct {
	InstallationID uint64  `json:"installationId"`
	ClientID       *int64  `json:"clientId,omitempty"`
	ClientName     *string `json:"clientName,omitempty"`
}

type DomainAvailability struct {
	Domain    string          `json:"domain"`
	Available bool            `json:"available"`
	Conflict  *DomainConflict `json:"conflict,omitempty"`
}

type StepResponse struct {
	ID             uint64     `json:"id"`
	InstallationID uint64     `json:"installationId"`
	Type           string     `json:"type"`
	Status         string     `json:"status"`
	ErrorMessage   *string    `json:"errorMessage"`
	Attempts       int        `json:"attempts"`
	LeaseExpiresAt *time.Time `json:"leaseExpiresAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

type ClientResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type ProjectResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type InstallationResponse struct {
	ID              uint64           `json:"id"`
	ClientID        *int64           `json:"clientId"`
	ProjectID       int64            `json:"projectId"`
	Domain          *string          `json:"domain"`
	Status          string           `json:"status"`
	IsDraft         bool             `json:"isDraft"`
	InstallerSiteID *string          `json:"installerSiteId"`
	FinalizedAt     *time.Time       `json:"finalizedAt,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
	Steps           []StepResponse   `json:"steps,omitempty"`
	Client          *ClientResponse  `json:"client,omitempty"`
	Project         *ProjectResponse `json:"project,omitempty"`
}

type StepsResponse struct {
	InstallationID uint64         `json:"installationId"`
	Steps          []StepResponse `json:"steps"`
}

func FromStep(s entity.Step) StepResponse {
	return StepResponse{
		ID:             s.ID,
		InstallationID: s.InstallationID,
		Type:           string(s.Type),
		Status:         string(s.Status),
		ErrorMessage:   s.ErrorMessage,
		Attempts:       s.Attempts,
		LeaseExpiresAt: s.LeaseExpiresAt,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

// FromSteps maps the ledger. PRE_INSTALLATION is left out unless includeDraft is set.
func FromSteps(steps []entity.Step, includeDraft bool) []StepResponse {
	out := make([]StepResponse, 0, len(steps))
	for _, s := range steps {
		if s.Type == consts.StepPreInstallation && !includeDraft {
			continue
		}
		out = append(out, FromStep(s))
	}
	return out
}

func FromInstallation(i entity.Installation) InstallationResponse {
	resp := InstallationResponse{
		ID:              i.ID,
		ClientID:        i.ClientID,
		ProjectID:       i.ProjectID,
		Domain:          i.Domain,
		Status:          string(i.Status),
		IsDraft:         i.IsDraft,
		InstallerSiteID: i.InstallerSiteID,
		FinalizedAt:     i.FinalizedAt,
		CreatedAt:       i.CreatedAt,
		UpdatedAt:       i.UpdatedAt,
		Steps:           FromSteps(i.Steps, false),
	}
	if i.Client != nil {
		resp.Client = &ClientResponse{ID: i.Client.ID, Name: i.Client.Name}
	}
	if i.Project != nil {
		resp.Project = &ProjectResponse{ID: i.Project.ID, Name: i.Project.Name}
	}
	return resp
}
