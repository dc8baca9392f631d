package query

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Builder-Lawyers/site-provisioner/internal/application/dto"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/errs"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/interfaces"
	"github.com/Builder-Lawyers/site-provisioner/internal/domain/entity"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/db/repo"
	dbs "github.com/Builder-Lawyers/site-provisioner/pkg/db"
)

type GetCredentials struct {
	uowFactory *dbs.UOWFactory
	sealer     interfaces.Sealer
}

func NewGetCredentials(factory *dbs.UOWFactory, sealer interfaces.Sealer) *GetCredentials {
	return &GetCredentials{uowFactory: factory, sealer: sealer}
}

func (c *GetCredentials) Query(ctx context.Context, id uint64) (resp dto.CredentialsResponse, err error) {
	uow := c.uowFactory.GetUoW()
	tx, err := uow.BeginCtx(ctx)
	if err != nil {
		return resp, err
	}
	defer uow.Finalize(&err)

	installation, err := repo.NewInstallationRepo(tx).GetInstallation(ctx, id, false)
	if err != nil {
		return resp, err
	}
	if installation.Credentials == nil || installation.FinalizedAt == nil {
		return resp, errs.NotFoundError{Entity: "credentials", ID: id}
	}

	plain, err := c.sealer.Open(*installation.Credentials)
	if err != nil {
		return resp, fmt.Errorf("opening credentials of installation %d: %w", id, err)
	}
	var creds entity.Credentials
	if err = json.Unmarshal(plain, &creds); err != nil {
		return resp, fmt.Errorf("decoding credentials of installation %d: %w", id, err)
	}

	return dto.CredentialsResponse{
		Domain:        creds.Domain,
		AdminEmail:    creds.AdminEmail,
		AdminPassword: creds.AdminPassword,
		FinalizedAt:   *installation.FinalizedAt,
	}, nil
}
