package installation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Builder-Lawyers/site-provisioner/internal/application/commands/draft"
	sut "github.com/Builder-Lawyers/site-provisioner/internal/application/commands/installation"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/dto"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/errs"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/query"
	"github.com/Builder-Lawyers/site-provisioner/internal/domain/consts"
	"github.com/Builder-Lawyers/site-provisioner/internal/domain/entity"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/crypto"
	"github.com/Builder-Lawyers/site-provisioner/internal/testinfra"
	"github.com/Builder-Lawyers/site-provisioner/pkg/db"
	"github.com/stretchr/testify/require"
)

type countingNotifier struct {
	ids []uint64
}

func (n *countingNotifier) Notify(_ context.Context, id uint64) {
	n.ids = append(n.ids, id)
}

type fixture struct {
	factory   *db.UOWFactory
	projectID int64
	clientID  int64
	notifier  *countingNotifier
}

func newFixture(ctx context.Context) fixture {
	return fixture{
		factory:   db.NewUoWFactory(testinfra.Pool),
		projectID: testinfra.SeedProject(ctx, "Sites", `{}`),
		clientID:  testinfra.SeedClient(ctx, "Acme"),
		notifier:  &countingNotifier{},
	}
}

func (f fixture) promote(t *testing.T, ctx context.Context, draftID *uint64, domain string) entity.Installation {
	t.Helper()
	inst, err := sut.NewPromote(f.factory, f.notifier).Execute(ctx, dto.PromoteRequest{
		DraftID: draftID, ClientID: f.clientID, ProjectID: f.projectID, Domain: domain,
	})
	require.NoError(t, err)
	return inst
}

func setStepStatus(t *testing.T, ctx context.Context, id uint64, stepType consts.StepType, status consts.StepStatus) {
	t.Helper()
	var msg *string
	if status == consts.StepFailed {
		m := "boom"
		msg = &m
	}
	_, err := testinfra.Pool.Exec(ctx, `UPDATE provisioner.install_steps SET status = $3, error_message = $4
		WHERE installation_id = $1 AND "type" = $2`, id, stepType, status, msg)
	require.NoError(t, err)
}

func setAll(t *testing.T, ctx context.Context, id uint64, status consts.StepStatus) {
	t.Helper()
	for _, stepType := range consts.ProvisioningSteps {
		setStepStatus(t, ctx, id, stepType, status)
	}
}

func Test_Promote_When_Draft_Given_Then_Live_With_Four_Pending_Steps(t *testing.T) {
	ctx := context.Background()
	defer testinfra.Truncate(ctx)
	f := newFixture(ctx)
	draftID, err := draft.NewCreateDraft(f.factory).Execute(ctx, entity.StepData{"projectId": float64(f.projectID)})
	require.NoError(t, err)

	inst := f.promote(t, ctx, &draftID, "Blog.Acme.com")

	require.Equal(t, draftID, inst.ID)
	require.False(t, inst.IsDraft)
	require.Equal(t, consts.InstallationPending, inst.Status)
	require.Equal(t, "blog.acme.com", *inst.Domain)
	require.Len(t, inst.Steps, 5)
	for _, stepType := range consts.ProvisioningSteps {
		s, ok := inst.Step(stepType)
		require.True(t, ok)
		require.Equal(t, consts.StepPending, s.Status)
		require.Equal(t, "blog.acme.com", s.Payload.String(entity.KeyDomain))
	}
	require.Equal(t, []uint64{draftID}, f.notifier.ids)
}

func Test_Promote_When_Repeated_Then_No_New_Rows_And_Unsucceeded_Steps_Reset(t *testing.T) {
	ctx := context.Background()
	defer testinfra.Truncate(ctx)
	f := newFixture(ctx)
	first := f.promote(t, ctx, nil, "acme.com")
	setStepStatus(t, ctx, first.ID, consts.StepCPanelEntry, consts.StepSuccess)
	setStepStatus(t, ctx, first.ID, consts.StepCloudflareEntry, consts.StepFailed)

	second := f.promote(t, ctx, nil, "ACME.com")

	require.Equal(t, first.ID, second.ID)
	require.Len(t, second.Steps, 4)
	cpanel, _ := second.Step(consts.StepCPanelEntry)
	require.Equal(t, consts.StepSuccess, cpanel.Status)
	dns, _ := second.Step(consts.StepCloudflareEntry)
	require.Equal(t, consts.StepPending, dns.Status)
	require.Nil(t, dns.ErrorMessage)
}

func Test_Promote_Given_Promoted_Draft_When_Promoted_Again_Then_Steps_Not_Duplicated(t *testing.T) {
	ctx := context.Background()
	defer testinfra.Truncate(ctx)
	f := newFixture(ctx)
	draftID, err := draft.NewCreateDraft(f.factory).Execute(ctx, entity.StepData{"projectId": float64(f.projectID)})
	require.NoError(t, err)
	f.promote(t, ctx, &draftID, "blog.acme.com")
	setStepStatus(t, ctx, draftID, consts.StepCPanelEntry, consts.StepSuccess)
	setStepStatus(t, ctx, draftID, consts.StepDirectorySetup, consts.StepFailed)

	again := f.promote(t, ctx, &draftID, "blog.acme.com")

	require.Equal(t, draftID, again.ID)
	var provisioning int
	require.NoError(t, testinfra.Pool.QueryRow(ctx, `SELECT count(*) FROM provisioner.install_steps
		WHERE installation_id = $1 AND "type" <> $2`, draftID, consts.StepPreInstallation).Scan(&provisioning))
	require.Equal(t, consts.TotalProvisioningSteps, provisioning)
	cpanel, _ := again.Step(consts.StepCPanelEntry)
	require.Equal(t, consts.StepSuccess, cpanel.Status)
	directory, _ := again.Step(consts.StepDirectorySetup)
	require.Equal(t, consts.StepPending, directory.Status)
	require.Nil(t, directory.ErrorMessage)
	require.Equal(t, []uint64{draftID, draftID}, f.notifier.ids)
}

func Test_Promote_When_Draft_Domain_Owned_Elsewhere_Then_Conflict(t *testing.T) {
	ctx := context.Background()
	defer testinfra.Truncate(ctx)
	f := newFixture(ctx)
	f.promote(t, ctx, nil, "acme.com")
	draftID, err := draft.NewCreateDraft(f.factory).Execute(ctx, entity.StepData{"projectId": float64(f.projectID)})
	require.NoError(t, err)

	_, err = sut.NewPromote(f.factory, f.notifier).Execute(ctx, dto.PromoteRequest{
		DraftID: &draftID, ClientID: f.clientID, ProjectID: f.projectID, Domain: "acme.com",
	})

	var conflict errs.ConflictError
	require.True(t, errors.As(err, &conflict))
	require.Equal(t, errs.ReasonDomainTaken, conflict.Reason)
}

func Test_Promote_When_Client_Unknown_Then_NotFound(t *testing.T) {
	ctx := context.Background()
	defer testinfra.Truncate(ctx)
	f := newFixture(ctx)

	_, err := sut.NewPromote(f.factory, f.notifier).Execute(ctx, dto.PromoteRequest{
		ClientID: f.clientID + 100, ProjectID: f.projectID, Domain: "acme.com",
	})

	var notFound errs.NotFoundError
	require.True(t, errors.As(err, &notFound))
	require.Empty(t, f.notifier.ids)
}

func Test_Finalize_When_Steps_Not_All_Succeeded_Then_Conflict(t *testing.T) {
	ctx := context.Background()
	defer testinfra.Truncate(ctx)
	f := newFixture(ctx)
	inst := f.promote(t, ctx, nil, "acme.com")
	sealer, err := crypto.NewSealer("test-key")
	require.NoError(t, err)
	setAll(t, ctx, inst.ID, consts.StepSuccess)
	setStepStatus(t, ctx, inst.ID, consts.StepDBCreation, consts.StepFailed)

	_, err = sut.NewFinalize(f.factory, sealer, f.notifier).Execute(ctx, inst.ID, dto.FinalizeRequest{
		Domain: "acme.com", AdminEmail: "admin@acme.com", AdminPassword: "pw",
	})

	var conflict errs.ConflictError
	require.True(t, errors.As(err, &conflict))
	require.Equal(t, errs.ReasonNotSucceeded, conflict.Reason)
}

func Test_Finalize_When_All_Succeeded_Then_Completed_Once_And_Credentials_Readable(t *testing.T) {
	ctx := context.Background()
	defer testinfra.Truncate(ctx)
	f := newFixture(ctx)
	inst := f.promote(t, ctx, nil, "acme.com")
	setAll(t, ctx, inst.ID, consts.StepSuccess)
	sealer, err := crypto.NewSealer("test-key")
	require.NoError(t, err)
	SUT := sut.NewFinalize(f.factory, sealer, f.notifier)
	req := dto.FinalizeRequest{Domain: "acme.com", AdminEmail: "admin@acme.com", AdminPassword: "pw"}

	first, err := SUT.Execute(ctx, inst.ID, req)
	require.NoError(t, err)
	require.False(t, first.AlreadyFinalized)
	require.Equal(t, string(consts.InstallationCompleted), first.Status)

	again, err := SUT.Execute(ctx, inst.ID, dto.FinalizeRequest{Domain: "acme.com", AdminEmail: "other@acme.com", AdminPassword: "pw2"})
	require.NoError(t, err)
	require.True(t, again.AlreadyFinalized)

	creds, err := query.NewGetCredentials(f.factory, sealer).Query(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, "admin@acme.com", creds.AdminEmail)
	require.Equal(t, "pw", creds.AdminPassword)

	var stored string
	require.NoError(t, testinfra.Pool.QueryRow(ctx, `SELECT credentials FROM provisioner.installations WHERE id = $1`, inst.ID).Scan(&stored))
	require.NotContains(t, stored, "admin@acme.com")
	// promote plus the first finalize
	require.Len(t, f.notifier.ids, 2)
}

func Test_MarkFailed_When_A_Step_Still_Pending_Then_Conflict(t *testing.T) {
	ctx := context.Background()
	defer testinfra.Truncate(ctx)
	f := newFixture(ctx)
	inst := f.promote(t, ctx, nil, "acme.com")
	setStepStatus(t, ctx, inst.ID, consts.StepCPanelEntry, consts.StepFailed)

	_, err := sut.NewMarkFailed(f.factory, f.notifier).Execute(ctx, inst.ID)

	var conflict errs.ConflictError
	require.True(t, errors.As(err, &conflict))
	require.Equal(t, errs.ReasonNotTerminal, conflict.Reason)
}

func Test_MarkFailed_When_All_Terminal_With_Failure_Then_Failed(t *testing.T) {
	ctx := context.Background()
	defer testinfra.Truncate(ctx)
	f := newFixture(ctx)
	inst := f.promote(t, ctx, nil, "acme.com")
	setAll(t, ctx, inst.ID, consts.StepSuccess)
	setStepStatus(t, ctx, inst.ID, consts.StepDirectorySetup, consts.StepFailed)

	resp, err := sut.NewMarkFailed(f.factory, f.notifier).Execute(ctx, inst.ID)

	require.NoError(t, err)
	require.Equal(t, string(consts.InstallationFailed), resp.Status)
	var status string
	require.NoError(t, testinfra.Pool.QueryRow(ctx, `SELECT status FROM provisioner.installations WHERE id = $1`, inst.ID).Scan(&status))
	require.Equal(t, string(consts.InstallationFailed), status)
}

func Test_CheckDomain_Ignores_Drafts_And_Excluded_Installation(t *testing.T) {
	ctx := context.Background()
	defer testinfra.Truncate(ctx)
	f := newFixture(ctx)
	_, err := draft.NewCreateDraft(f.factory).Execute(ctx, entity.StepData{"projectId": float64(f.projectID), "domain": "draft.acme.com"})
	require.NoError(t, err)
	inst := f.promote(t, ctx, nil, "live.acme.com")
	SUT := query.NewCheckDomain(f.factory)

	free, err := SUT.Query(ctx, "draft.acme.com", 0)
	require.NoError(t, err)
	require.True(t, free.Available)

	taken, err := SUT.Query(ctx, "LIVE.acme.com", 0)
	require.NoError(t, err)
	require.False(t, taken.Available)
	require.Equal(t, inst.ID, taken.Conflict.InstallationID)
	require.Equal(t, "Acme", *taken.Conflict.ClientName)

	own, err := SUT.Query(ctx, "live.acme.com", inst.ID)
	require.NoError(t, err)
	require.True(t, own.Available)
}
