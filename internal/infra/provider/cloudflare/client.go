// Package cloudflare is a minimal Cloudflare API client for DNS record management.
package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Builder-Lawyers/site-provisioner/internal/application/errs"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/provider"
)

const defaultBaseURL = "https://api.cloudflare.com/client/v4"

const providerName = "dns provider"

type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

// Record represents a Cloudflare DNS record.
type Record struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl,omitempty"`
	Proxied bool   `json:"proxied"`
}

type apiResponse struct {
	Success bool            `json:"success"`
	Errors  []apiError      `json:"errors"`
	Result  json.RawMessage `json:"result"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type Option func(*Client)

// WithBaseURL points the client at another API root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

func NewClient(apiToken string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		apiToken:   apiToken,
		httpClient: provider.HTTPClient(provider.ClientOptions{Timeout: timeout}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnsureARecord creates an A record fqdn -> ip in the zone unless one already exists.
func (c *Client) EnsureARecord(ctx context.Context, zoneID, fqdn, ip string) (provider.Result, error) {
	existing, res, err := c.FindRecord(ctx, zoneID, "A", fqdn)
	if err != nil || !res.Success {
		return res, err
	}
	if existing != nil {
		return provider.Ok(map[string]any{"recordId": existing.ID, "created": false}), nil
	}
	return c.CreateRecord(ctx, zoneID, Record{Type: "A", Name: fqdn, Content: ip, TTL: 1})
}

func (c *Client) FindRecord(ctx context.Context, zoneID, recordType, name string) (*Record, provider.Result, error) {
	q := url.Values{}
	q.Set("type", recordType)
	q.Set("name", name)
	var resp apiResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/zones/%s/dns_records?%s", zoneID, q.Encode()), nil, &resp); err != nil {
		return nil, provider.Result{}, err
	}
	if !resp.Success {
		return nil, provider.Rejected(joinErrors(resp.Errors)), nil
	}
	var records []Record
	if err := json.Unmarshal(resp.Result, &records); err != nil {
		return nil, provider.Result{}, fmt.Errorf("parse records: %w", err)
	}
	for i := range records {
		if strings.EqualFold(records[i].Name, name) && records[i].Type == recordType {
			return &records[i], provider.Ok(nil), nil
		}
	}
	return nil, provider.Ok(nil), nil
}

func (c *Client) CreateRecord(ctx context.Context, zoneID string, record Record) (provider.Result, error) {
	var resp apiResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/zones/%s/dns_records", zoneID), record, &resp); err != nil {
		return provider.Result{}, err
	}
	if !resp.Success {
		return provider.Rejected(joinErrors(resp.Errors)), nil
	}
	var created Record
	if err := json.Unmarshal(resp.Result, &created); err != nil {
		return provider.Result{}, fmt.Errorf("parse created record: %w", err)
	}
	return provider.Ok(map[string]any{"recordId": created.ID, "created": true}), nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out *apiResponse) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errs.TranslateTransport(providerName, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.TranslateTransport(providerName, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		// non-JSON bodies (proxy error pages) are reported as a rejection
		*out = apiResponse{Errors: []apiError{{Code: resp.StatusCode, Message: fmt.Sprintf("unexpected status %d", resp.StatusCode)}}}
		return nil
	}
	if resp.StatusCode >= 300 && len(out.Errors) == 0 {
		out.Success = false
		out.Errors = []apiError{{Code: resp.StatusCode, Message: fmt.Sprintf("unexpected status %d", resp.StatusCode)}}
	}
	return nil
}

func joinErrors(apiErrors []apiError) string {
	if len(apiErrors) == 0 {
		return "unknown dns provider error"
	}
	msgs := make([]string, 0, len(apiErrors))
	for _, e := range apiErrors {
		msgs = append(msgs, fmt.Sprintf("%s (code %d)", e.Message, e.Code))
	}
	return strings.Join(msgs, "; ")
}
