// Package client talks to the status API of a running simulation.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rmax-ai/auditsim/pkg/api"
	"github.com/rmax-ai/auditsim/pkg/simulation"
)

// DefaultEndpoint matches the address suggested for run --metrics-addr.
const DefaultEndpoint = "http://127.0.0.1:9464"

// Client is the status API client.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient creates a new client. endpoint defaults to DefaultEndpoint.
func NewClient(endpoint string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// RecordsOptions mirrors the /v1/records query parameters.
type RecordsOptions struct {
	AgentID  string
	Role     string
	Scenario string
	Success  *bool
	Limit    int
}

// Ping checks the health of the server.
func (c *Client) Ping(ctx context.Context) (api.HealthResponse, error) {
	var h api.HealthResponse
	err := c.get(ctx, "/v1/health", &h)
	return h, err
}

// Progress fetches the current progress snapshot.
func (c *Client) Progress(ctx context.Context) (simulation.Progress, error) {
	var p simulation.Progress
	err := c.get(ctx, "/v1/progress", &p)
	return p, err
}

// Records fetches recorded actions in canonical order.
func (c *Client) Records(ctx context.Context, opts RecordsOptions) (api.RecordsResponse, error) {
	q := url.Values{}
	if opts.AgentID != "" {
		q.Set("agent", opts.AgentID)
	}
	if opts.Role != "" {
		q.Set("role", opts.Role)
	}
	if opts.Scenario != "" {
		q.Set("scenario", opts.Scenario)
	}
	if opts.Success != nil {
		q.Set("success", strconv.FormatBool(*opts.Success))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	path := "/v1/records"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp api.RecordsResponse
	err := c.get(ctx, path, &resp)
	return resp, err
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e api.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return fmt.Errorf("unexpected status %d: %s %s", resp.StatusCode, e.Error, e.Reason)
		}
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
