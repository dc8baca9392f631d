package query

import (
	"context"
	"errors"

	"github.com/Builder-Lawyers/site-provisioner/internal/application/dto"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/errs"
	"github.com/Builder-Lawyers/site-provisioner/internal/domain/entity"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/db/repo"
	dbs "github.com/Builder-Lawyers/site-provisioner/pkg/db"
)

type CheckDomain struct {
	uowFactory *dbs.UOWFactory
}

func NewCheckDomain(factory *dbs.UOWFactory) *CheckDomain {
	return &CheckDomain{uowFactory: factory}
}

// Query reports whether domain is free among live installations, ignoring excludeID
// (0 excludes nothing). Drafts never hold a domain.
func (c *CheckDomain) Query(ctx context.Context, domain string, excludeID uint64) (resp dto.DomainAvailability, err error) {
	domain = entity.NormalizeDomain(domain)
	if domain == "" {
		return resp, errs.ValidationError{Err: errors.New("domain is required")}
	}

	uow := c.uowFactory.GetUoW()
	tx, err := uow.BeginCtx(ctx)
	if err != nil {
		return resp, err
	}
	defer uow.Finalize(&err)

	owner, err := repo.NewInstallationRepo(tx).DomainOwner(ctx, domain, excludeID)
	if err != nil {
		return resp, err
	}
	resp = dto.DomainAvailability{Domain: domain, Available: owner == nil}
	if owner != nil {
		resp.Conflict = &dto.DomainConflict{
			InstallationID: owner.InstallationID,
			ClientID:       owner.ClientID,
			ClientName:     owner.ClientName,
		}
	}
	return resp, nil
}
