// Package cpanel is a minimal UAPI client for the hosting control panel.
package cpanel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/Builder-Lawyers/site-provisioner/internal/application/errs"
	"github.com/Builder-Lawyers/site-provisioner/internal/domain/entity"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/provider"
)

const providerName = "control panel"

const defaultPort = "2083"

type Client struct {
	baseURL    string
	username   string
	token      string
	httpClient *http.Client
}

type uapiResponse struct {
	Status   int             `json:"status"`
	Data     json.RawMessage `json:"data"`
	Errors   []string        `json:"errors"`
	Messages []string        `json:"messages"`
}

type domainsData struct {
	MainDomain   string   `json:"main_domain"`
	SubDomains   []string `json:"sub_domains"`
	AddonDomains []string `json:"addon_domains"`
}

func NewClient(settings entity.ControlPanelSettings, timeout time.Duration) *Client {
	return &Client{
		baseURL:  baseURL(settings.Host),
		username: settings.Username,
		token:    settings.Token,
		httpClient: provider.HTTPClient(provider.ClientOptions{
			Timeout:     timeout,
			InsecureTLS: settings.InsecureTLS,
		}),
	}
}

// baseURL accepts a bare host, host:port or full URL.
func baseURL(host string) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	if !strings.Contains(host, ":") {
		host += ":" + defaultPort
	}
	return "https://" + host
}

// EnsureSubdomain creates sub.root under baseDir/sub unless it already exists.
func (c *Client) EnsureSubdomain(ctx context.Context, root, sub, baseDir string) (provider.Result, error) {
	exists, res, err := c.SubdomainExists(ctx, root, sub)
	if err != nil || !res.Success {
		return res, err
	}
	if exists {
		return provider.Ok(map[string]any{"subdomain": sub + "." + root, "created": false}), nil
	}
	return c.AddSubdomain(ctx, root, sub, path.Join(baseDir, sub))
}

func (c *Client) SubdomainExists(ctx context.Context, root, sub string) (bool, provider.Result, error) {
	var resp uapiResponse
	if err := c.call(ctx, "DomainInfo", "list_domains", nil, &resp); err != nil {
		return false, provider.Result{}, err
	}
	if resp.Status != 1 {
		return false, provider.Rejected(joinErrors(resp.Errors)), nil
	}
	var domains domainsData
	if err := json.Unmarshal(resp.Data, &domains); err != nil {
		return false, provider.Result{}, fmt.Errorf("parse list_domains: %w", err)
	}
	fqdn := strings.ToLower(sub + "." + root)
	for _, d := range domains.SubDomains {
		if strings.ToLower(d) == fqdn {
			return true, provider.Ok(nil), nil
		}
	}
	return false, provider.Ok(nil), nil
}

func (c *Client) AddSubdomain(ctx context.Context, root, sub, dir string) (provider.Result, error) {
	params := url.Values{}
	params.Set("domain", sub)
	params.Set("rootdomain", root)
	params.Set("dir", dir)

	var resp uapiResponse
	if err := c.call(ctx, "SubDomain", "addsubdomain", params, &resp); err != nil {
		return provider.Result{}, err
	}
	if resp.Status != 1 {
		return provider.Rejected(joinErrors(resp.Errors)), nil
	}
	return provider.Ok(map[string]any{"subdomain": sub + "." + root, "created": true, "dir": dir}), nil
}

func (c *Client) call(ctx context.Context, module, function string, params url.Values, out *uapiResponse) error {
	endpoint := fmt.Sprintf("%s/execute/%s/%s", c.baseURL, module, function)
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("cpanel %s:%s", c.username, c.token))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errs.TranslateTransport(providerName, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.TranslateTransport(providerName, err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		*out = uapiResponse{Errors: []string{fmt.Sprintf("authentication rejected (status %d)", resp.StatusCode)}}
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		if resp.StatusCode >= 300 {
			*out = uapiResponse{Errors: []string{fmt.Sprintf("unexpected status %d", resp.StatusCode)}}
			return nil
		}
		return fmt.Errorf("parse %s/%s response: %w", module, function, err)
	}
	return nil
}

func joinErrors(errors []string) string {
	if len(errors) == 0 {
		return "unknown control panel error"
	}
	return strings.Join(errors, "; ")
}
