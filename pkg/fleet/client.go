package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/fleetdns/zonekeeper/pkg/log"
	"github.com/fleetdns/zonekeeper/pkg/types"
)

const (
	nodesPath         = "/api/nodes"
	defaultMaxRetries = 3
)

// Client fetches fleet snapshots from the node health API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries uint64
	logger     zerolog.Logger
}

// NewClient creates a fleet client. timeout bounds each snapshot request.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: defaultMaxRetries,
		logger:     log.WithComponent("fleet"),
	}
}

type nodePayload struct {
	UUID         string `json:"uuid"`
	Name         string `json:"name"`
	Address      string `json:"address"`
	IsConnected  bool   `json:"isConnected"`
	IsDisabled   bool   `json:"isDisabled"`
	AgentVersion string `json:"agentVersion"`
	UsersOnline  int    `json:"usersOnline"`
}

type nodesResponse struct {
	Response []nodePayload `json:"response"`
}

// Nodes requests a fresh fleet snapshot. Any failure after bounded
// retries is a fetch failure for the caller's tick.
func (c *Client) Nodes(ctx context.Context) ([]types.Node, error) {
	var payload nodesResponse

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		if err := c.fetch(ctx, &payload); err != nil {
			c.logger.Warn().Err(err).Int("attempt", attempt).Msg("fleet snapshot failed, retrying")
			return err
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch fleet snapshot: %w", err)
	}

	nodes := make([]types.Node, 0, len(payload.Response))
	for _, p := range payload.Response {
		nodes = append(nodes, types.Node{
			ID:           p.UUID,
			Name:         p.Name,
			Address:      p.Address,
			Connected:    p.IsConnected,
			Disabled:     p.IsDisabled,
			AgentVersion: p.AgentVersion,
			UsersOnline:  p.UsersOnline,
		})
	}

	c.logger.Debug().Int("nodes", len(nodes)).Msg("fetched fleet snapshot")
	return nodes, nil
}

func (c *Client) fetch(ctx context.Context, out *nodesResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+nodesPath, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, nodesPath)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
