// Package client is the Go SDK for the Beacon registry API. It covers the
// entity CRUD surface, hybrid search, federation administration, health
// probes, and the caller-identity endpoint.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Sentinel errors mapped from the registry's error kinds. Callers branch
// with errors.Is.
var (
	ErrNotFound     = errors.New("entity not found")
	ErrDenied       = errors.New("permission denied")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("entity already exists")
	ErrBlocked      = errors.New("registration blocked by security scan")
)

// APIError carries the registry's structured error body alongside the
// mapped sentinel.
type APIError struct {
	StatusCode int
	Kind       string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("registry error %d (%s): %s", e.StatusCode, e.Kind, e.Message)
}

// Unwrap maps the error kind onto its sentinel.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusForbidden:
		return ErrDenied
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusConflict:
		return ErrConflict
	case http.StatusUnprocessableEntity:
		return ErrBlocked
	}
	return nil
}

// Client talks to one Beacon registry.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken attaches a bearer token to every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithInsecureSkipVerify disables TLS certificate verification. Development
// only.
func WithInsecureSkipVerify() Option {
	return func(c *Client) {
		c.httpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
			Timeout: 30 * time.Second,
		}
	}
}

// New creates a Client for the registry at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// do executes one request and decodes the JSON response into out (nil skips
// decoding). Non-2xx responses become *APIError.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var bodyReader io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return apiErr
	}
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// ── Servers ─────────────────────────────────────────────────────────────────

// ListServers returns every server visible to the caller.
func (c *Client) ListServers(ctx context.Context) ([]Server, error) {
	var wrapper struct {
		Servers []Server `json:"servers"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/servers", nil, &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Servers, nil
}

// GetServer fetches one server by routing path.
func (c *Client) GetServer(ctx context.Context, path string) (*Server, error) {
	var s Server
	if err := c.do(ctx, http.MethodGet, "/api/servers"+canonical(path), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// RegisterServer creates a server entry.
func (c *Client) RegisterServer(ctx context.Context, req RegisterServerRequest) (*Server, error) {
	var s Server
	if err := c.do(ctx, http.MethodPost, "/api/servers", req, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateServer updates a server entry.
func (c *Client) UpdateServer(ctx context.Context, path string, req UpdateServerRequest) (*Server, error) {
	var s Server
	if err := c.do(ctx, http.MethodPut, "/api/servers"+canonical(path), req, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteServer removes a server entry.
func (c *Client) DeleteServer(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, "/api/servers"+canonical(path), nil, nil)
}

// ToggleServer enables or disables a server.
func (c *Client) ToggleServer(ctx context.Context, path string, enabled bool) (*Server, error) {
	var s Server
	body := map[string]bool{"enabled": enabled}
	if err := c.do(ctx, http.MethodPost, "/api/servers"+canonical(path)+"/toggle", body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// RateServer records a 1..5 star vote on a server.
func (c *Client) RateServer(ctx context.Context, path string, rating int) (*Server, error) {
	var s Server
	body := map[string]int{"rating": rating}
	if err := c.do(ctx, http.MethodPost, "/api/servers"+canonical(path)+"/rate", body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ── Agents ──────────────────────────────────────────────────────────────────

// ListAgents returns every agent visible to the caller.
func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	var wrapper struct {
		Agents []Agent `json:"agents"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/agents", nil, &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Agents, nil
}

// GetAgent fetches one agent by routing path.
func (c *Client) GetAgent(ctx context.Context, path string) (*Agent, error) {
	var a Agent
	if err := c.do(ctx, http.MethodGet, "/api/agents"+canonical(path), nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// RegisterAgent creates an agent entry.
func (c *Client) RegisterAgent(ctx context.Context, req RegisterAgentRequest) (*Agent, error) {
	var a Agent
	if err := c.do(ctx, http.MethodPost, "/api/agents", req, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// DeleteAgent removes an agent entry.
func (c *Client) DeleteAgent(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, "/api/agents"+canonical(path), nil, nil)
}

// ToggleAgent enables or disables an agent.
func (c *Client) ToggleAgent(ctx context.Context, path string, enabled bool) (*Agent, error) {
	var a Agent
	body := map[string]bool{"enabled": enabled}
	if err := c.do(ctx, http.MethodPost, "/api/agents"+canonical(path)+"/toggle", body, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// RateAgent records a 1..5 star vote on an agent.
func (c *Client) RateAgent(ctx context.Context, path string, rating int) (*Agent, error) {
	var a Agent
	body := map[string]int{"rating": rating}
	if err := c.do(ctx, http.MethodPost, "/api/agents"+canonical(path)+"/rate", body, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ── Search, identity, health, federation, scans ─────────────────────────────

// Search runs a hybrid semantic+keyword query.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	var resp SearchResponse
	if err := c.do(ctx, http.MethodPost, "/api/search/semantic", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Me returns the caller's identity and effective grants.
func (c *Client) Me(ctx context.Context) (*Identity, error) {
	var id Identity
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// CheckHealth runs an on-demand probe against one entity.
func (c *Client) CheckHealth(ctx context.Context, path string) (*HealthStatus, error) {
	var st HealthStatus
	if err := c.do(ctx, http.MethodGet, "/api/health"+canonical(path), nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// ListFederationSources lists configured upstream registries.
func (c *Client) ListFederationSources(ctx context.Context) ([]FederationSource, error) {
	var wrapper struct {
		Sources []FederationSource `json:"sources"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/federation/config", nil, &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Sources, nil
}

// SyncFederation triggers a sync; source "" syncs every enabled upstream.
func (c *Client) SyncFederation(ctx context.Context, source string) ([]SyncOutcome, error) {
	endpoint := "/api/federation/sync"
	if source != "" {
		endpoint += "?source=" + url.QueryEscape(source)
	}
	var wrapper struct {
		Outcomes []SyncOutcome `json:"outcomes"`
	}
	if err := c.do(ctx, http.MethodPost, endpoint, nil, &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Outcomes, nil
}

// GetScan returns the stored security scan results for one entity.
func (c *Client) GetScan(ctx context.Context, path string) (*ScanReport, error) {
	var report ScanReport
	if err := c.do(ctx, http.MethodGet, "/api/scans"+canonical(path), nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func canonical(path string) string {
	return "/" + strings.Trim(path, "/")
}
