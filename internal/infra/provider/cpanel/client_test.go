package cpanel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Builder-Lawyers/site-provisioner/internal/application/errs"
	"github.com/Builder-Lawyers/site-provisioner/internal/domain/entity"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(entity.ControlPanelSettings{Host: srv.URL, Username: "acme", Token: "tok"}, 5*time.Second)
}

func Test_EnsureSubdomain_Creates_When_Missing(t *testing.T) {
	var added map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "cpanel acme:tok", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/execute/DomainInfo/list_domains":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": 1,
				"data":   map[string]any{"sub_domains": []string{"other.example.com"}},
			})
		case "/execute/SubDomain/addsubdomain":
			q := r.URL.Query()
			added = map[string]string{"domain": q.Get("domain"), "rootdomain": q.Get("rootdomain"), "dir": q.Get("dir")}
			_ = json.NewEncoder(w).Encode(map[string]any{"status": 1})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	res, err := c.EnsureSubdomain(context.Background(), "example.com", "acme", "/home/sites")

	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, map[string]string{"domain": "acme", "rootdomain": "example.com", "dir": "/home/sites/acme"}, added)
}

func Test_EnsureSubdomain_Is_NoOp_When_Present(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/execute/DomainInfo/list_domains" {
			t.Fatalf("unexpected call to %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": 1,
			"data":   map[string]any{"sub_domains": []string{"ACME.example.com"}},
		})
	})

	res, err := c.EnsureSubdomain(context.Background(), "example.com", "acme", "/home/sites")

	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, false, res.Data["created"])
}

func Test_EnsureSubdomain_Reports_Remote_Errors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": 0, "errors": []string{"Access denied"}})
	})

	res, err := c.EnsureSubdomain(context.Background(), "example.com", "acme", "/home/sites")

	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, "Access denied", res.Error)
}

func Test_EnsureSubdomain_Reports_Auth_Rejection(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	res, err := c.EnsureSubdomain(context.Background(), "example.com", "acme", "/home/sites")

	require.NoError(t, err)
	require.False(t, res.Success)
	require.Contains(t, res.Error, "authentication rejected")
}

func Test_EnsureSubdomain_Translates_Transport_Failures(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()
	c := NewClient(entity.ControlPanelSettings{Host: addr}, time.Second)

	_, err := c.EnsureSubdomain(context.Background(), "example.com", "acme", "/home")

	var transportErr errs.TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, "control panel: cannot connect to host", err.Error())
}

func Test_BaseURL(t *testing.T) {
	require.Equal(t, "https://cp.internal:2083", baseURL("cp.internal"))
	require.Equal(t, "https://cp.internal:2087", baseURL("cp.internal:2087"))
	require.Equal(t, "http://127.0.0.1:8080", baseURL("http://127.0.0.1:8080/"))
}
