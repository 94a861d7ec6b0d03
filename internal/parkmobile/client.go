package parkmobile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/movesmart/maas-backend/pkg/config"
)

// TokenClient performs the upstream OAuth client-credentials grant.
type TokenClient interface {
	FetchToken(ctx context.Context) (*TokenResponse, error)
}

// Client implements TokenClient against the ParkMobile identity server.
// The token endpoint is form-encoded per OAuth2, so this does not go
// through the shared JSON http client.
type Client struct {
	httpClient   *http.Client
	authURL      string
	clientID     string
	clientSecret string
	validate     *validator.Validate
}

// NewClient creates a new ParkMobile OAuth client
func NewClient(cfg config.ParkMobileConfig) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: cfg.TokenTimeout()},
		authURL:      cfg.AuthURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		validate:     validator.New(),
	}
}

// FetchToken requests a client-credentials token and validates the response
// shape before returning it.
func (c *Client) FetchToken(ctx context.Context) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.authURL+"/connect/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("parkmobile token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("parkmobile token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parkmobile token response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("parkmobile token endpoint returned %d: %s", resp.StatusCode, body)
	}

	var token TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("parkmobile token response: %w", err)
	}
	if err := c.validate.Struct(&token); err != nil {
		return nil, fmt.Errorf("parkmobile token response invalid: %w", err)
	}

	return &token, nil
}
