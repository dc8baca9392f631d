// Package provider holds what the provider adapters share: the uniform result shape
// and HTTP clients that carry their own TLS policy.
package provider

import (
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"time"
)

// Result is the uniform outcome of an adapter operation.
type Result struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func Ok(data map[string]any) Result {
	return Result{Success: true, Data: data}
}

func Rejected(msg string) Result {
	return Result{Success: false, Error: msg}
}

// ClientOptions configures one adapter's HTTP client.
type ClientOptions struct {
	Timeout     time.Duration
	InsecureTLS bool
}

var (
	clientsMu sync.Mutex
	clients   = map[ClientOptions]*http.Client{}
)

// HTTPClient returns the client for opts. Adapters with equal options share it and
// its idle connections; skipping certificate verification never leaks into a client
// built for other options.
func HTTPClient(opts ClientOptions) *http.Client {
	clientsMu.Lock()
	defer clientsMu.Unlock()
	if c, ok := clients[opts]; ok {
		return c
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        20,
		IdleConnTimeout:     90 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: opts.InsecureTLS, // #nosec G402 -- internal panels with self-signed certs, opt-in per project
		},
	}
	c := &http.Client{Timeout: opts.Timeout, Transport: transport}
	clients[opts] = c
	return c
}

// InstallerParams is what the installer needs for both the directory and the
// database setup.
type InstallerParams struct {
	Subdomain     string `json:"subdomain"`
	ClientName    string `json:"clientName"`
	AdminEmail    string `json:"adminEmail"`
	AdminPassword string `json:"adminPassword"`
}
