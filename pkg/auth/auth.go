// Package auth validates bearer tokens against a Supabase-compatible auth
// service and resolves them to users.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrInvalidToken indicates a missing, malformed, expired or revoked token.
var ErrInvalidToken = errors.New("invalid token")

// User is the authenticated caller resolved from a token.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Validator resolves bearer tokens to users.
type Validator interface {
	// Validate resolves token to a user. It returns ErrInvalidToken when
	// the token is not accepted; any other error is a transport failure.
	Validate(ctx context.Context, token string) (*User, error)
}

// Config holds connection settings for the auth service.
type Config struct {
	// BaseURL is the auth service root, e.g. "https://xyz.supabase.co".
	BaseURL string

	// AnonKey is sent in the apikey header alongside the bearer token.
	AnonKey string

	// Timeout bounds each validation request. Defaults to 10 seconds.
	Timeout time.Duration
}

// Client validates tokens over HTTP using the GET /auth/v1/user endpoint.
type Client struct {
	baseURL string
	anonKey string
	http    *http.Client
}

// NewClient creates an auth client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, errors.New("auth base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid auth base URL: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		anonKey: cfg.AnonKey,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// Validate resolves a bearer token to its user.
func (c *Client) Validate(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build auth request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if c.anonKey != "" {
		req.Header.Set("apikey", c.anonKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrInvalidToken
	default:
		return nil, fmt.Errorf("auth service returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read auth response: %w", err)
	}

	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("failed to decode auth response: %w", err)
	}
	if user.ID == "" {
		return nil, ErrInvalidToken
	}
	return &user, nil
}

// BearerToken extracts the token from an Authorization header value. It
// returns the empty string when the header is missing or not a bearer scheme.
func BearerToken(header string) string {
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
