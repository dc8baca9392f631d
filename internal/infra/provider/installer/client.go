// Package installer talks to the application installer service.
package installer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Builder-Lawyers/site-provisioner/internal/application/errs"
	"github.com/Builder-Lawyers/site-provisioner/internal/domain/entity"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/provider"
)

const providerName = "installer"

type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

type response struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
	Error   string         `json:"error"`
	Message string         `json:"message"`
}

func NewClient(settings entity.InstallerSettings, timeout time.Duration) *Client {
	return &Client{
		endpoint: strings.TrimRight(settings.Endpoint, "/"),
		token:    settings.Token,
		httpClient: provider.HTTPClient(provider.ClientOptions{
			Timeout:     timeout,
			InsecureTLS: settings.InsecureTLS,
		}),
	}
}

// SetupDirectory prepares the site directory. On success Data carries "siteId".
func (c *Client) SetupDirectory(ctx context.Context, params provider.InstallerParams) (provider.Result, error) {
	res, err := c.post(ctx, "/directory-setup", params)
	if err != nil || !res.Success {
		return res, err
	}
	siteID := siteIDFrom(res.Data)
	if siteID == "" {
		return provider.Rejected("directory setup returned no site id"), nil
	}
	res.Data["siteId"] = siteID
	return res, nil
}

func (c *Client) SetupDatabase(ctx context.Context, params provider.InstallerParams) (provider.Result, error) {
	return c.post(ctx, "/database-setup", params)
}

func (c *Client) post(ctx context.Context, path string, params provider.InstallerParams) (provider.Result, error) {
	payload, err := json.Marshal(params)
	if err != nil {
		return provider.Result{}, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return provider.Result{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return provider.Result{}, errs.TranslateTransport(providerName, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.Result{}, errs.TranslateTransport(providerName, err)
	}

	var body response
	if err := json.Unmarshal(raw, &body); err != nil {
		return provider.Rejected(fmt.Sprintf("unexpected response (status %d)", resp.StatusCode)), nil
	}
	if resp.StatusCode >= 300 || !body.Success {
		msg := body.Error
		if msg == "" {
			msg = body.Message
		}
		if msg == "" {
			msg = fmt.Sprintf("request failed with status %d", resp.StatusCode)
		}
		return provider.Rejected(msg), nil
	}
	if body.Data == nil {
		body.Data = map[string]any{}
	}
	return provider.Ok(body.Data), nil
}

func siteIDFrom(data map[string]any) string {
	for _, key := range []string{"siteId", "site_id", "id"} {
		switch v := data[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}
