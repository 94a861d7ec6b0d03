package bytemark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/movesmart/maas-backend/pkg/config"
	"github.com/movesmart/maas-backend/pkg/httpclient"
)

// UpstreamClient fetches passes from the Bytemark API on behalf of a user.
type UpstreamClient interface {
	// GetPasses returns the v1 pass list (full replacement source).
	GetPasses(ctx context.Context, oauthToken string) ([]UpstreamPass, error)
	// GetExpiredPasses returns the v4 expired pass list (merge source).
	GetExpiredPasses(ctx context.Context, oauthToken string) ([]UpstreamPass, error)
}

// Client implements UpstreamClient over the Bytemark HTTP API.
type Client struct {
	http *httpclient.Client
}

// NewClient creates a new Bytemark API client
func NewClient(cfg config.BytemarkConfig) *Client {
	return &Client{
		http: httpclient.NewClient(cfg.BaseURL, cfg.Timeout(), httpclient.WithDefaultRetry()),
	}
}

type passListResponse struct {
	Passes []json.RawMessage `json:"passes"`
}

func (c *Client) GetPasses(ctx context.Context, oauthToken string) ([]UpstreamPass, error) {
	return c.fetch(ctx, "/passes?limit=9999&page=1", oauthToken)
}

func (c *Client) GetExpiredPasses(ctx context.Context, oauthToken string) ([]UpstreamPass, error) {
	return c.fetch(ctx, "/v4.0/passes?status=EXPIRED", oauthToken)
}

func (c *Client) fetch(ctx context.Context, path, oauthToken string) ([]UpstreamPass, error) {
	body, err := c.http.Get(ctx, path, map[string]string{
		"Authorization": "Bearer " + oauthToken,
	})
	if err != nil {
		return nil, fmt.Errorf("bytemark %s: %w", path, err)
	}

	var resp passListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("bytemark %s: decode: %w", path, err)
	}

	passes := make([]UpstreamPass, 0, len(resp.Passes))
	for _, raw := range resp.Passes {
		var p UpstreamPass
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("bytemark %s: decode pass: %w", path, err)
		}

		compact := &bytes.Buffer{}
		if err := json.Compact(compact, raw); err != nil {
			return nil, fmt.Errorf("bytemark %s: compact pass: %w", path, err)
		}
		p.Raw = compact.Bytes()
		passes = append(passes, p)
	}

	SortByTimeCreated(passes)
	return passes, nil
}

// SortByTimeCreated orders passes ascending by their upstream creation time.
// The upstream format is ISO 8601, so a lexical sort is chronological.
func SortByTimeCreated(passes []UpstreamPass) {
	sort.SliceStable(passes, func(i, j int) bool {
		return passes[i].TimeCreated < passes[j].TimeCreated
	})
}
