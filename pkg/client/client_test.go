package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Client_StartStep_When_Conflict_Then_APIError_Carries_Step(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/installations/3/steps/CPANEL_ENTRY/start", r.URL.Path)
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":  "conflict: already completed",
			"reason": "already completed",
			"step":   map[string]any{"id": 9, "type": "CPANEL_ENTRY", "status": "SUCCESS"},
		})
	}))
	defer srv.Close()

	_, err := New(srv.URL).StartStep(context.Background(), 3, StepCPanelEntry, nil)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.True(t, apiErr.IsConflict())
	require.Equal(t, "already completed", apiErr.Reason)
	require.Equal(t, StatusSuccess, apiErr.Step.Status)
}

func Test_Client_GetSteps_Decodes_Ledger(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"installationId":3,"steps":[{"id":1,"type":"CPANEL_ENTRY","status":"FAILED","errorMessage":"control panel: cannot connect to host","attempts":2}]}`))
	}))
	defer srv.Close()

	steps, err := New(srv.URL).GetSteps(context.Background(), 3)

	require.NoError(t, err)
	require.Len(t, steps, 1)
	require.Equal(t, StatusFailed, steps[0].Status)
	require.Equal(t, "control panel: cannot connect to host", *steps[0].ErrorMessage)
	require.Equal(t, 2, steps[0].Attempts)
}

func Test_Client_CheckDomain_Sends_Exclude(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "acme.example.com", r.URL.Query().Get("domain"))
		require.Equal(t, "12", r.URL.Query().Get("exclude"))
		_, _ = w.Write([]byte(`{"domain":"acme.example.com","available":true}`))
	}))
	defer srv.Close()

	a, err := New(srv.URL).CheckDomain(context.Background(), "acme.example.com", 12)

	require.NoError(t, err)
	require.True(t, a.Available)
}
