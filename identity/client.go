// Package identity is the caller side of the token exchange function: it
// trades an identity-provider access token for a Git Gateway bearer
// token over HTTP.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// DefaultPath is where the exchange function is deployed on a Netlify
// site.
const DefaultPath = "/.netlify/functions/git-gateway-token"

// ErrNoIdentity is returned when there is no signed-in identity whose
// token could be exchanged.
var ErrNoIdentity = errors.New("identity: no signed-in user")

// Error is a non-2xx answer from the exchange function.
type Error struct {
	StatusCode int
	Message    string
	Details    string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("identity: exchange failed (%d): %s: %s", e.StatusCode, e.Message, e.Details)
	}
	return fmt.Sprintf("identity: exchange failed (%d): %s", e.StatusCode, e.Message)
}

// TokenSource returns the current identity-provider access token.
type TokenSource func(ctx context.Context) (string, error)

// Config configures a Client.
type Config struct {
	// URL is the full address of the exchange function.
	URL string

	// Source supplies the identity token used by ExchangeToken.
	Source TokenSource

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client calls the token exchange function.
type Client struct {
	url        string
	source     TokenSource
	httpClient *http.Client
	logger     *slog.Logger
}

func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("identity: URL is required")
	}
	c := &Client{
		url:        cfg.URL,
		source:     cfg.Source,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// ExchangeToken exchanges the token of the configured source. It lets a
// Client act as the token exchanger of a gateway client.
func (c *Client) ExchangeToken(ctx context.Context) (string, error) {
	if c.source == nil {
		return "", ErrNoIdentity
	}
	identityToken, err := c.source(ctx)
	if err != nil {
		return "", err
	}
	if identityToken == "" {
		return "", ErrNoIdentity
	}
	return c.Exchange(ctx, identityToken)
}

// Exchange posts the identity token and returns the gateway token.
func (c *Client) Exchange(ctx context.Context, identityToken string) (string, error) {
	payload, err := json.Marshal(map[string]string{"supabase_token": identityToken})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("identity: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("identity: calling exchange function: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("identity: reading response: %w", err)
	}

	var wire struct {
		Token   string          `json:"token"`
		Error   string          `json:"error"`
		Details json.RawMessage `json:"details"`
	}
	decodeErr := json.Unmarshal(body, &wire)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e := &Error{StatusCode: resp.StatusCode, Message: wire.Error}
		if decodeErr != nil || e.Message == "" {
			e.Message = http.StatusText(resp.StatusCode)
		}
		e.Details = detailsString(wire.Details)
		c.logger.Warn("token exchange rejected", "status", resp.StatusCode, "error", e.Message)
		return "", e
	}
	if decodeErr != nil {
		return "", fmt.Errorf("identity: decoding response: %w", decodeErr)
	}
	if wire.Token == "" {
		return "", errors.New("identity: exchange function returned no token")
	}
	return wire.Token, nil
}

// detailsString flattens the details field, which upstream errors carry
// either as a string or as a JSON document.
func detailsString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}
