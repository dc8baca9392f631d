package entity

import (
	"time"

	"github.com/Builder-Lawyers/site-provisioner/internal/domain/consts"
)

type Installation struct {
	ID              uint64
	ClientID        *int64
	ProjectID       int64
	Domain          *string
	Status          consts.InstallationStatus
	IsDraft         bool
	InstallerSiteID *string
	FinalizedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Steps   []Step
	Client  *Client
	Project *Project
}

// Step returns the ledger entry of the given type, if present.
func (i *Installation) Step(stepType consts.StepType) (Step, bool) {
	for _, s := range i.Steps {
		if s.Type == stepType {
			return s, true
		}
	}
	return Step{}, false
}

type Step struct {
	ID             uint64
	InstallationID uint64
	Type           consts.StepType
	Status         consts.StepStatus
	Payload        StepData
	ErrorMessage   *string
	Attempts       int
	LeaseExpiresAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Client struct {
	ID   int64
	Name string
}

type Project struct {
	ID        int64
	Name      string
	Providers ProviderSettings
}

// Credentials are stored encrypted once an installation is finalized.
type Credentials struct {
	Domain        string `json:"domain"`
	AdminEmail    string `json:"adminEmail"`
	AdminPassword string `json:"adminPassword"`
}
