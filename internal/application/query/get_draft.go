package query

import (
	"context"

	"github.com/Builder-Lawyers/site-provisioner/internal/application/dto"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/errs"
	"github.com/Builder-Lawyers/site-provisioner/internal/domain/consts"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/db/repo"
	dbs "github.com/Builder-Lawyers/site-provisioner/pkg/db"
)

type GetDraft struct {
	uowFactory *dbs.UOWFactory
}

func NewGetDraft(factory *dbs.UOWFactory) *GetDraft {
	return &GetDraft{uowFactory: factory}
}

func (c *GetDraft) Query(ctx context.Context, id uint64) (resp dto.DraftResponse, err error) {
	uow := c.uowFactory.GetUoW()
	tx, err := uow.BeginCtx(ctx)
	if err != nil {
		return resp, err
	}
	defer uow.Finalize(&err)

	installation, err := repo.LoadInstallation(ctx, tx, id)
	if err != nil {
		return resp, err
	}
	pre, ok := installation.Step(consts.StepPreInstallation)
	if !ok {
		return resp, errs.NotFoundError{Entity: "draft", ID: id}
	}

	return dto.DraftResponse{
		ID:           id,
		StepData:     pre.Payload,
		Step:         dto.FromStep(pre),
		Installation: dto.FromInstallation(installation),
	}, nil
}
