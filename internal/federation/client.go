// Package federation pulls selected servers from upstream MCP registries
// into the local catalog. Imported entries are read-only and recreated
// idempotently on every sync.
package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	v0 "github.com/modelcontextprotocol/registry/pkg/api/v0"
)

// upstreamClient speaks the MCP registry v0 API to one upstream.
type upstreamClient struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

func newUpstreamClient(endpoint, authToken string) *upstreamClient {
	return &upstreamClient{
		baseURL:    strings.TrimSuffix(endpoint, "/"),
		authToken:  authToken,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *upstreamClient) do(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("upstream returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// GetServer fetches one server by its reverse-DNS name.
func (c *upstreamClient) GetServer(ctx context.Context, name string) (*v0.ServerJSON, error) {
	endpoint := fmt.Sprintf("%s/v0/servers/%s", c.baseURL, url.PathEscape(name))
	var resp v0.ServerResponse
	if err := c.do(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	return &resp.Server, nil
}

// ListServers walks the paginated listing to the end.
func (c *upstreamClient) ListServers(ctx context.Context) ([]v0.ServerJSON, error) {
	var out []v0.ServerJSON
	cursor := ""
	for {
		endpoint := c.baseURL + "/v0/servers?limit=100"
		if cursor != "" {
			endpoint += "&cursor=" + url.QueryEscape(cursor)
		}
		var page v0.ServerListResponse
		if err := c.do(ctx, endpoint, &page); err != nil {
			return nil, err
		}
		for _, entry := range page.Servers {
			out = append(out, entry.Server)
		}
		cursor = page.Metadata.NextCursor
		if cursor == "" {
			return out, nil
		}
		if len(out) > 10000 {
			return nil, fmt.Errorf("upstream listing exceeded 10000 servers")
		}
	}
}
