package application

import (
	"github.com/Builder-Lawyers/site-provisioner/internal/application/commands/draft"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/commands/installation"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/commands/step"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/query"
)

type Handlers struct {
	CreateDraft    *draft.CreateDraft
	UpdateDraft    *draft.UpdateDraft
	DeleteDraft    *draft.DeleteDraft
	Promote        *installation.Promote
	StartStep      *step.StartStep
	Finalize       *installation.Finalize
	MarkFailed     *installation.MarkFailed
	GetDraft       *query.GetDraft
	GetSteps       *query.GetSteps
	CheckDomain    *query.CheckDomain
	GetCredentials *query.GetCredentials
}
