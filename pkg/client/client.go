// Package client is a typed client for the provisioner REST API together with the
// progress poller that drives an installation to completion.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	StepPreInstallation = "PRE_INSTALLATION"
	StepCPanelEntry     = "CPANEL_ENTRY"
	StepCloudflareEntry = "CLOUDFLARE_ENTRY"
	StepDirectorySetup  = "DIRECTORY_SETUP"
	StepDBCreation      = "DB_CREATION"

	StatusPending    = "PENDING"
	StatusInProgress = "IN_PROGRESS"
	StatusSuccess    = "SUCCESS"
	StatusFailed     = "FAILED"
)

// ProvisioningSteps are the steps counted towards progress, in execution order.
var ProvisioningSteps = []string{StepCPanelEntry, StepCloudflareEntry, StepDirectorySetup, StepDBCreation}

type Step struct {
	ID             uint64    `json:"id"`
	InstallationID uint64    `json:"installationId"`
	Type           string    `json:"type"`
	Status         string    `json:"status"`
	ErrorMessage   *string   `json:"errorMessage"`
	Attempts       int       `json:"attempts"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type Installation struct {
	ID              uint64  `json:"id"`
	ClientID        *int64  `json:"clientId"`
	ProjectID       int64   `json:"projectId"`
	Domain          *string `json:"domain"`
	Status          string  `json:"status"`
	IsDraft         bool    `json:"isDraft"`
	InstallerSiteID *string `json:"installerSiteId"`
	Steps           []Step  `json:"steps"`
}

type Draft struct {
	ID           uint64         `json:"id"`
	StepData     map[string]any `json:"stepData"`
	Installation Installation   `json:"installation"`
}

type PromoteRequest struct {
	DraftID   *uint64 `json:"draftId,omitempty"`
	ClientID  int64   `json:"clientId"`
	ProjectID int64   `json:"projectId"`
	Domain    string  `json:"domain"`
}

type FinalizeRequest struct {
	Domain        string `json:"domain"`
	AdminEmail    string `json:"adminEmail"`
	AdminPassword string `json:"adminPassword"`
}

type FinalizeResult struct {
	ID               uint64 `json:"id"`
	Status           string `json:"status"`
	AlreadyFinalized bool   `json:"alreadyFinalized"`
}

type Availability struct {
	Domain    string `json:"domain"`
	Available bool   `json:"available"`
	Conflict  *struct {
		InstallationID uint64  `json:"installationId"`
		ClientID       *int64  `json:"clientId"`
		ClientName     *string `json:"clientName"`
	} `json:"conflict"`
}

// APIError is a non-2xx answer. Conflicts carry the reason and, for step starts, the
// step as the server sees it.
type APIError struct {
	StatusCode int
	Message    string
	Reason     string
	Step       *Step
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provisioner API %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) IsConflict() bool {
	return e.StatusCode == http.StatusConflict
}

func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) CreateDraft(ctx context.Context, data map[string]any) (uint64, error) {
	var out struct {
		ID uint64 `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "/drafts", data, &out)
	return out.ID, err
}

func (c *Client) GetDraft(ctx context.Context, id uint64) (Draft, error) {
	var out Draft
	err := c.do(ctx, http.MethodGet, "/drafts/"+strconv.FormatUint(id, 10), nil, &out)
	return out, err
}

func (c *Client) UpdateDraft(ctx context.Context, id uint64, partial map[string]any) (map[string]any, error) {
	var out struct {
		StepData map[string]any `json:"stepData"`
	}
	err := c.do(ctx, http.MethodPut, "/drafts/"+strconv.FormatUint(id, 10), partial, &out)
	return out.StepData, err
}

func (c *Client) DeleteDraft(ctx context.Context, id uint64) error {
	return c.do(ctx, http.MethodDelete, "/drafts/"+strconv.FormatUint(id, 10), nil, nil)
}

func (c *Client) Promote(ctx context.Context, req PromoteRequest) (Installation, error) {
	var out Installation
	err := c.do(ctx, http.MethodPost, "/installations", req, &out)
	return out, err
}

func (c *Client) StartStep(ctx context.Context, installationID uint64, stepType string, payload map[string]any) (Step, error) {
	var body any
	if len(payload) > 0 {
		body = map[string]any{"payload": payload}
	}
	var out Step
	path := fmt.Sprintf("/installations/%d/steps/%s/start", installationID, stepType)
	err := c.do(ctx, http.MethodPost, path, body, &out)
	return out, err
}

func (c *Client) GetSteps(ctx context.Context, installationID uint64) ([]Step, error) {
	var out struct {
		Steps []Step `json:"steps"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/installations/%d/steps", installationID), nil, &out)
	return out.Steps, err
}

func (c *Client) Finalize(ctx context.Context, installationID uint64, req FinalizeRequest) (FinalizeResult, error) {
	var out FinalizeResult
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/installations/%d/finalize", installationID), req, &out)
	return out, err
}

func (c *Client) MarkFailed(ctx context.Context, installationID uint64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/installations/%d/fail", installationID), nil, nil)
}

func (c *Client) CheckDomain(ctx context.Context, domain string, excludeID uint64) (Availability, error) {
	q := url.Values{"domain": {domain}}
	if excludeID > 0 {
		q.Set("exclude", strconv.FormatUint(excludeID, 10))
	}
	var out Availability
	err := c.do(ctx, http.MethodGet, "/domains/availability?"+q.Encode(), nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var payload struct {
			Error  string `json:"error"`
			Reason string `json:"reason"`
			Step   *Step  `json:"step"`
		}
		if json.Unmarshal(raw, &payload) == nil {
			if payload.Error != "" {
				apiErr.Message = payload.Error
			}
			apiErr.Reason = payload.Reason
			apiErr.Step = payload.Step
		}
		return apiErr
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
