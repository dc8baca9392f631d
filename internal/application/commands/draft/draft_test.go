package draft_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	sut "github.com/Builder-Lawyers/site-provisioner/internal/application/commands/draft"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/commands/installation"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/dto"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/errs"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/query"
	"github.com/Builder-Lawyers/site-provisioner/internal/domain/consts"
	"github.com/Builder-Lawyers/site-provisioner/internal/domain/entity"
	"github.com/Builder-Lawyers/site-provisioner/internal/testinfra"
	"github.com/Builder-Lawyers/site-provisioner/pkg/db"
	"github.com/stretchr/testify/require"
)

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, uint64) {}

func Test_CreateDraft_When_Project_Given_Then_Draft_With_PreInstallation_Step(t *testing.T) {
	ctx := context.Background()
	defer testinfra.Truncate(ctx)
	factory := db.NewUoWFactory(testinfra.Pool)
	projectID := testinfra.SeedProject(ctx, "Sites", `{}`)

	id, err := sut.NewCreateDraft(factory).Execute(ctx, entity.StepData{
		"projectId": float64(projectID),
		"domain":    "Blog.Acme.com",
		"wizard":    map[string]any{"page": 1},
	})
	require.NoError(t, err)

	draft, err := query.NewGetDraft(factory).Query(ctx, id)
	require.NoError(t, err)
	require.True(t, draft.Installation.IsDraft)
	require.Equal(t, "blog.acme.com", *draft.Installation.Domain)
	require.Equal(t, string(consts.StepPreInstallation), draft.Step.Type)
	require.Equal(t, map[string]any{"page": float64(1)}, draft.StepData["wizard"])
}

func Test_CreateDraft_When_Project_Missing_Then_Validation_Error(t *testing.T) {
	ctx := context.Background()
	defer testinfra.Truncate(ctx)

	_, err := sut.NewCreateDraft(db.NewUoWFactory(testinfra.Pool)).Execute(ctx, entity.StepData{"domain": "acme.com"})

	var validation errs.ValidationError
	require.True(t, errors.As(err, &validation))
}

func Test_UpdateDraft_Merges_Top_Level_Keys_And_Keeps_The_Rest(t *testing.T) {
	ctx := context.Background()
	defer testinfra.Truncate(ctx)
	factory := db.NewUoWFactory(testinfra.Pool)
	projectID := testinfra.SeedProject(ctx, "Sites", `{}`)
	id, err := sut.NewCreateDraft(factory).Execute(ctx, entity.StepData{
		"projectId":  float64(projectID),
		"clientName": "Acme",
		"branding":   map[string]any{"color": "red", "logo": "a.png"},
	})
	require.NoError(t, err)

	data, err := sut.NewUpdateDraft(factory).Execute(ctx, id, entity.StepData{
		"branding":    map[string]any{"color": "blue"},
		"currentStep": float64(3),
	})

	require.NoError(t, err)
	require.Equal(t, "Acme", data["clientName"])
	require.Equal(t, map[string]any{"color": "blue"}, data["branding"])
	require.Equal(t, float64(3), data["currentStep"])
}

func Test_UpdateDraft_When_Concurrent_Writers_Use_Different_Keys_Then_Both_Kept(t *testing.T) {
	ctx := context.Background()
	defer testinfra.Truncate(ctx)
	factory := db.NewUoWFactory(testinfra.Pool)
	projectID := testinfra.SeedProject(ctx, "Sites", `{}`)
	id, err := sut.NewCreateDraft(factory).Execute(ctx, entity.StepData{"projectId": float64(projectID)})
	require.NoError(t, err)
	SUT := sut.NewUpdateDraft(factory)

	var wg sync.WaitGroup
	for _, key := range []string{"adminEmail", "clientName", "subdomain", "serverIp"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_, err := SUT.Execute(ctx, id, entity.StepData{key: key + "-value"})
			require.NoError(t, err)
		}(key)
	}
	wg.Wait()

	draft, err := query.NewGetDraft(factory).Query(ctx, id)
	require.NoError(t, err)
	for _, key := range []string{"adminEmail", "clientName", "subdomain", "serverIp"} {
		require.Equal(t, key+"-value", draft.StepData[key])
	}
}

func Test_UpdateDraft_When_Unknown_Then_NotFound(t *testing.T) {
	ctx := context.Background()
	defer testinfra.Truncate(ctx)

	_, err := sut.NewUpdateDraft(db.NewUoWFactory(testinfra.Pool)).Execute(ctx, 4242, entity.StepData{"a": "b"})

	var notFound errs.NotFoundError
	require.True(t, errors.As(err, &notFound))
}

func Test_DeleteDraft_When_Promoted_Then_Conflict(t *testing.T) {
	ctx := context.Background()
	defer testinfra.Truncate(ctx)
	factory := db.NewUoWFactory(testinfra.Pool)
	projectID := testinfra.SeedProject(ctx, "Sites", `{}`)
	clientID := testinfra.SeedClient(ctx, "Acme")
	id, err := sut.NewCreateDraft(factory).Execute(ctx, entity.StepData{"projectId": float64(projectID)})
	require.NoError(t, err)
	_, err = installation.NewPromote(factory, nopNotifier{}).Execute(ctx, dto.PromoteRequest{
		DraftID: &id, ClientID: clientID, ProjectID: projectID, Domain: "acme.com",
	})
	require.NoError(t, err)

	err = sut.NewDeleteDraft(factory).Execute(ctx, id)

	var conflict errs.ConflictError
	require.True(t, errors.As(err, &conflict))
	require.Equal(t, errs.ReasonNotDraft, conflict.Reason)
}

func Test_DeleteDraft_Removes_Draft_And_Step(t *testing.T) {
	ctx := context.Background()
	defer testinfra.Truncate(ctx)
	factory := db.NewUoWFactory(testinfra.Pool)
	projectID := testinfra.SeedProject(ctx, "Sites", `{}`)
	id, err := sut.NewCreateDraft(factory).Execute(ctx, entity.StepData{"projectId": float64(projectID)})
	require.NoError(t, err)

	require.NoError(t, sut.NewDeleteDraft(factory).Execute(ctx, id))

	var steps int
	require.NoError(t, testinfra.Pool.QueryRow(ctx, `SELECT count(*) FROM provisioner.install_steps WHERE installation_id = $1`, id).Scan(&steps))
	require.Zero(t, steps)
	_, err = query.NewGetDraft(factory).Query(ctx, id)
	var notFound errs.NotFoundError
	require.True(t, errors.As(err, &notFound))
}
