package db

import (
	"encoding/json"
	"log/slog"

	"github.com/Builder-Lawyers/site-provisioner/internal/domain/entity"
)

func RawMessageToStepData(raw json.RawMessage) entity.StepData {
	result := entity.StepData{}
	if len(raw) == 0 {
		return result
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		slog.Error("error unmarshaling step payload", "err", err)
	}
	return result
}

func MapToRawMessage(data entity.StepData) json.RawMessage {
	if data == nil {
		return json.RawMessage("{}")
	}
	bytes, err := json.Marshal(data)
	if err != nil {
		slog.Error("error marshaling step payload", "err", err)
		return json.RawMessage("{}")
	}
	return json.RawMessage(bytes)
}

func MapInstallationModelToEntity(m Installation) entity.Installation {
	return entity.Installation{
		ID:              m.ID,
		ClientID:        m.ClientID,
		ProjectID:       m.ProjectID,
		Domain:          m.Domain,
		Status:          m.Status,
		IsDraft:         m.IsDraft,
		InstallerSiteID: m.InstallerSiteID,
		FinalizedAt:     m.FinalizedAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func MapStepModelToEntity(m InstallStep) entity.Step {
	return entity.Step{
		ID:             m.ID,
		InstallationID: m.InstallationID,
		Type:           m.Type,
		Status:         m.Status,
		Payload:        RawMessageToStepData(m.Payload),
		ErrorMessage:   m.ErrorMessage,
		Attempts:       m.Attempts,
		LeaseExpiresAt: m.LeaseExpiresAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func MapProjectModelToEntity(m Project) entity.Project {
	project := entity.Project{ID: m.ID, Name: m.Name}
	if len(m.ProviderConfig) > 0 {
		if err := json.Unmarshal(m.ProviderConfig, &project.Providers); err != nil {
			slog.Error("error unmarshaling provider config", "projectID", m.ID, "err", err)
		}
	}
	return project
}
