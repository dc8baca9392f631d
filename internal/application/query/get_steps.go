package query

import (
	"context"

	"github.com/Builder-Lawyers/site-provisioner/internal/application/dto"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/interfaces"
)

type GetSteps struct {
	ledger interfaces.StepLedger
}

func NewGetSteps(ledger interfaces.StepLedger) *GetSteps {
	return &GetSteps{ledger: ledger}
}

// Query returns the provisioning ledger in fixed step order.
func (c *GetSteps) Query(ctx context.Context, installationID uint64) (dto.StepsResponse, error) {
	steps, err := c.ledger.ListSteps(ctx, installationID)
	if err != nil {
		return dto.StepsResponse{}, err
	}
	return dto.StepsResponse{InstallationID: installationID, Steps: dto.FromSteps(steps, false)}, nil
}
