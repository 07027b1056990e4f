// Package registry talks to the Asset Registry, the external collaborator
// that owns asset identity and ownership records. The exchange core only ever
// asks two questions: does this asset exist, and who owns it.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bellaamanda2500291/decentralized-space-asset-trading/services/exchange/internal/engine"
	"github.com/google/uuid"
	"log/slog"
)

type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

func New(baseURL string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("registry base url is required")
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

type ownerResponse struct {
	AssetID string `json:"asset_id"`
	Owner   string `json:"owner"`
}

func (c *Client) OwnershipOf(ctx context.Context, asset engine.ID) (uuid.UUID, error) {
	var resp ownerResponse
	status, err := c.getJSON(ctx, "/assets/"+asset.String()+"/owner", &resp)
	if err != nil {
		return uuid.Nil, err
	}
	if status == http.StatusNotFound {
		return uuid.Nil, fmt.Errorf("asset %s: %w", asset, engine.ErrNotFound)
	}
	if status != http.StatusOK {
		return uuid.Nil, fmt.Errorf("registry returned status %d", status)
	}
	owner, err := uuid.Parse(strings.TrimSpace(resp.Owner))
	if err != nil {
		return uuid.Nil, fmt.Errorf("registry returned invalid owner: %w", err)
	}
	return owner, nil
}

func (c *Client) AssetExists(ctx context.Context, asset engine.ID) (bool, error) {
	status, err := c.getJSON(ctx, "/assets/"+asset.String(), nil)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("registry returned status %d", status)
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("build registry request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("registry request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK && out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return 0, fmt.Errorf("decode registry response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
