package rest_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Builder-Lawyers/site-provisioner/internal/application"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/commands/draft"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/commands/installation"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/commands/step"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/dto"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/processors"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/query"
	"github.com/Builder-Lawyers/site-provisioner/internal/domain/entity"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/config"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/crypto"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/db/repo"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/events"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/provider/adapters"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/provider/cloudflare"
	sut "github.com/Builder-Lawyers/site-provisioner/internal/presentation/rest"
	"github.com/Builder-Lawyers/site-provisioner/internal/testinfra"
	"github.com/Builder-Lawyers/site-provisioner/pkg/client"
	"github.com/Builder-Lawyers/site-provisioner/pkg/db"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/stretchr/testify/require"
)

// fakeProviders serves the control panel, DNS and installer APIs. The first database
// setup is rejected.
type fakeProviders struct {
	cpanel     *httptest.Server
	cloudflare *httptest.Server
	installer  *httptest.Server
	dbSetups   atomic.Int32
}

func newFakeProviders(t *testing.T) *fakeProviders {
	t.Helper()
	p := &fakeProviders{}
	p.cpanel = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/execute/DomainInfo/list_domains":
			fmt.Fprint(w, `{"status":1,"data":{"sub_domains":[]}}`)
		case "/execute/SubDomain/addsubdomain":
			fmt.Fprint(w, `{"status":1,"data":{}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	p.cloudflare = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, `{"success":true,"result":[]}`)
			return
		}
		fmt.Fprint(w, `{"success":true,"result":{"id":"rec-1"}}`)
	}))
	p.installer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/directory-setup":
			fmt.Fprint(w, `{"success":true,"data":{"site_id":42}}`)
		case "/database-setup":
			if p.dbSetups.Add(1) == 1 {
				w.WriteHeader(http.StatusConflict)
				fmt.Fprint(w, `{"success":false,"error":"database already exists"}`)
				return
			}
			fmt.Fprint(w, `{"success":true,"data":{"database":"wp_blog"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(func() {
		p.cpanel.Close()
		p.cloudflare.Close()
		p.installer.Close()
	})
	return p
}

func (p *fakeProviders) projectConfig() string {
	return fmt.Sprintf(`{
		"controlPanel": {"host": %q, "username": "acme", "token": "cp-token", "baseDir": "/home/acme"},
		"dns": {"provider": "cloudflare", "zoneId": "zone-1", "apiToken": "cf-token", "serverIp": "203.0.113.7"},
		"installer": {"endpoint": %q, "token": "in-token"}
	}`, p.cpanel.URL, p.installer.URL)
}

type stack struct {
	app      *fiber.App
	server   *sut.Server
	executor *processors.ExecuteStep
	handlers *application.Handlers
}

func newStack(t *testing.T, p *fakeProviders) *stack {
	t.Helper()
	factory := db.NewUoWFactory(testinfra.Pool)
	sealer, err := crypto.NewSealer("e2e-key")
	require.NoError(t, err)
	hub := events.NewHub()
	executorConfig := &config.ExecutorConfig{LeaseTTL: time.Minute, HeartbeatEvery: 20 * time.Second}
	timeouts := &config.AdapterTimeouts{ControlPanel: 5 * time.Second, DNS: 5 * time.Second, Installer: 5 * time.Second}

	ledger := repo.NewLedger(factory, entity.ProviderSettings{})
	executor := processors.NewExecuteStep(ledger, adapters.NewFactory(timeouts, nil, cloudflare.WithBaseURL(p.cloudflare.URL)), hub, executorConfig)
	handlers := &application.Handlers{
		CreateDraft:    draft.NewCreateDraft(factory),
		UpdateDraft:    draft.NewUpdateDraft(factory),
		DeleteDraft:    draft.NewDeleteDraft(factory),
		Promote:        installation.NewPromote(factory, hub),
		StartStep:      step.NewStartStep(ledger, executor, hub, executorConfig),
		Finalize:       installation.NewFinalize(factory, sealer, hub),
		MarkFailed:     installation.NewMarkFailed(factory, hub),
		GetDraft:       query.NewGetDraft(factory),
		GetSteps:       query.NewGetSteps(ledger),
		CheckDomain:    query.NewCheckDomain(factory),
		GetCredentials: query.NewGetCredentials(factory, sealer),
	}
	server := sut.NewServer(handlers, hub)
	app := fiber.New()
	sut.RegisterHandlers(app, server)
	return &stack{app: app, server: server, executor: executor, handlers: handlers}
}

func (s *stack) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, s.executor.Wait(ctx))
}

func Test_Installation_From_Draft_To_Completed_With_One_Retry(t *testing.T) {
	ctx := context.Background()
	defer testinfra.Truncate(ctx)
	providers := newFakeProviders(t)
	s := newStack(t, providers)
	srv := httptest.NewServer(adaptor.FiberApp(s.app))
	defer srv.Close()
	api := client.New(srv.URL)
	projectID := testinfra.SeedProject(ctx, "Sites", providers.projectConfig())
	clientID := testinfra.SeedClient(ctx, "Acme")

	draftID, err := api.CreateDraft(ctx, map[string]any{
		"projectId":     projectID,
		"domain":        "blog.acme.com",
		"adminEmail":    "admin@acme.com",
		"adminPassword": "s3cret",
	})
	require.NoError(t, err)
	data, err := api.UpdateDraft(ctx, draftID, map[string]any{"clientName": "Acme Ltd"})
	require.NoError(t, err)
	require.Equal(t, "blog.acme.com", data["domain"])

	availability, err := api.CheckDomain(ctx, "blog.acme.com", 0)
	require.NoError(t, err)
	require.True(t, availability.Available)

	inst, err := api.Promote(ctx, client.PromoteRequest{DraftID: &draftID, ClientID: clientID, ProjectID: projectID, Domain: "blog.acme.com"})
	require.NoError(t, err)
	require.Equal(t, draftID, inst.ID)
	require.False(t, inst.IsDraft)

	for _, stepType := range client.ProvisioningSteps {
		started, err := api.StartStep(ctx, inst.ID, stepType, nil)
		require.NoError(t, err)
		require.Equal(t, client.StatusInProgress, started.Status)
		s.drain(t)
	}

	_, err = api.StartStep(ctx, inst.ID, client.StepCPanelEntry, nil)
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	require.True(t, apiErr.IsConflict())
	require.Equal(t, "already completed", apiErr.Reason)
	require.Equal(t, client.StatusSuccess, apiErr.Step.Status)

	poller := client.NewPoller(api, inst.ID, client.PollerConfig{
		MinGap:      time.Nanosecond,
		Credentials: client.FinalizeRequest{Domain: "blog.acme.com", AdminEmail: "admin@acme.com", AdminPassword: "s3cret"},
	})
	snap, err := poller.Poll(ctx)
	require.NoError(t, err)
	require.True(t, snap.Failed)
	require.Equal(t, 3, snap.Progress.Completed)
	require.Equal(t, client.StepDBCreation, snap.Progress.FirstFailed.Type)
	require.Contains(t, *snap.Progress.FirstFailed.ErrorMessage, "database already exists")

	require.NoError(t, poller.RetryStep(ctx, client.StepDBCreation))
	s.drain(t)
	snap, err = poller.Poll(ctx)
	require.NoError(t, err)
	require.True(t, snap.Progress.AllSuccess)
	require.True(t, snap.Finalized)

	creds, err := s.handlers.GetCredentials.Query(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, "blog.acme.com", creds.Domain)
	require.Equal(t, "s3cret", creds.AdminPassword)

	var status, siteID string
	require.NoError(t, testinfra.Pool.QueryRow(ctx, `SELECT status, installer_site_id FROM provisioner.installations WHERE id = $1`,
		inst.ID).Scan(&status, &siteID))
	require.Equal(t, "COMPLETED", status)
	require.Equal(t, "42", siteID)
	require.EqualValues(t, 2, providers.dbSetups.Load())
}

func Test_StartStep_When_Unknown_Type_Then_Bad_Request(t *testing.T) {
	s := newStack(t, newFakeProviders(t))

	resp, err := s.app.Test(httptest.NewRequest(http.MethodPost, "/installations/1/steps/PRE_INSTALLATION/start", nil))

	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func Test_StreamSteps_When_Installation_Unknown_Then_NotFound(t *testing.T) {
	ctx := context.Background()
	defer testinfra.Truncate(ctx)
	s := newStack(t, newFakeProviders(t))

	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, "/installations/999/steps/stream", nil))

	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func Test_StreamSteps_Sends_Ledger_On_Connect(t *testing.T) {
	ctx := context.Background()
	defer testinfra.Truncate(ctx)
	providers := newFakeProviders(t)
	s := newStack(t, providers)
	projectID := testinfra.SeedProject(ctx, "Sites", providers.projectConfig())
	clientID := testinfra.SeedClient(ctx, "Acme")
	inst, err := s.handlers.Promote.Execute(ctx, dto.PromoteRequest{ClientID: clientID, ProjectID: projectID, Domain: "acme.com"})
	require.NoError(t, err)
	// a closed server ends the stream after the first event
	s.server.Close()

	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, fmt.Sprintf("/installations/%d/steps/stream", inst.ID), nil), 5000)

	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(body), "data: {"))
	require.Contains(t, string(body), `"type":"CPANEL_ENTRY"`)
}
