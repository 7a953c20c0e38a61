// Package authapi is the HTTP client for the upstream identity provider.
// The provider issues signed bearer tokens; this client only moves them
// around and normalizes failures onto a single error taxonomy.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/arkcms/authengine/internal/identity"
	"github.com/arkcms/authengine/internal/ids"
	"github.com/arkcms/authengine/internal/obs"
)

const (
	loginPath   = "/v1/auth/login"
	refreshPath = "/v1/auth/refresh"
	logoutPath  = "/v1/auth/logout"
	mePath      = "/v1/auth/me"

	requestIDHeader = "X-Request-Id"
)

// Client talks to the auth provider. It is safe for concurrent use.
type Client struct {
	baseURL string
	hc      *http.Client
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client (useful for tests and
// custom transports).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.hc = hc
		}
	}
}

// NewClient builds a client for the given base URL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("authapi: base URL is required")
	}
	c := &Client{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// LoginResult is a successful credential exchange.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	Identity     identity.Identity
}

// RefreshResult is a successful token refresh. RefreshToken is set only
// when the provider rotates it.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

type identityPayload struct {
	ID         string            `json:"id"`
	Email      string            `json:"email"`
	Username   string            `json:"username"`
	Role       string            `json:"role"`
	Status     string            `json:"status"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func (p identityPayload) toIdentity() identity.Identity {
	return identity.Identity{
		ID:         p.ID,
		Email:      strings.TrimSpace(strings.ToLower(p.Email)),
		Username:   p.Username,
		Role:       identity.ParseRole(p.Role),
		Status:     strings.TrimSpace(strings.ToLower(p.Status)),
		Attributes: p.Attributes,
	}
}

// Login exchanges credentials for a token pair and the identity snapshot.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	body := map[string]string{"email": strings.TrimSpace(strings.ToLower(email)), "password": password}
	var payload struct {
		AccessToken  string          `json:"access_token"`
		RefreshToken string          `json:"refresh_token"`
		ExpiresIn    int64           `json:"expires_in"`
		User         identityPayload `json:"user"`
	}
	if err := c.do(ctx, "login", http.MethodPost, loginPath, "", body, &payload); err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresIn:    time.Duration(payload.ExpiresIn) * time.Second,
		Identity:     payload.User.toIdentity(),
	}, nil
}

// Refresh exchanges a refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (RefreshResult, error) {
	body := map[string]string{"refresh_token": refreshToken}
	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := c.do(ctx, "refresh", http.MethodPost, refreshPath, "", body, &payload); err != nil {
		return RefreshResult{}, err
	}
	return RefreshResult{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresIn:    time.Duration(payload.ExpiresIn) * time.Second,
	}, nil
}

// Logout invalidates the session on the provider side. The engine treats
// failures here as best effort.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	return c.do(ctx, "logout", http.MethodPost, logoutPath, accessToken, nil, nil)
}

// CurrentUser fetches the identity snapshot for the given access token.
func (c *Client) CurrentUser(ctx context.Context, accessToken string) (identity.Identity, error) {
	var payload identityPayload
	if err := c.do(ctx, "current_user", http.MethodGet, mePath, accessToken, nil, &payload); err != nil {
		return identity.Identity{}, err
	}
	return payload.toIdentity(), nil
}

func (c *Client) do(ctx context.Context, op, method, path, bearer string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: encode request: %v", ErrServer, err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrNetwork, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	req.Header.Set(requestIDHeader, ids.NewRequestID())

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		obs.ObserveAPIRequest(op, "error", time.Since(start))
		return fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	obs.ObserveAPIRequest(op, strconv.Itoa(resp.StatusCode), time.Since(start))

	if err := normalizeStatus(op, resp.StatusCode); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrServer, op, err)
	}
	return nil
}

// normalizeStatus maps HTTP statuses onto the boundary taxonomy. A 401 on
// login means the credentials were rejected; on every other call it means
// the presented token is no longer honored.
func normalizeStatus(op string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		if op == "login" {
			return ErrInvalidCredentials
		}
		return ErrTokenExpired
	case status >= 500:
		return fmt.Errorf("%w: %s returned status %d", ErrServer, op, status)
	default:
		return fmt.Errorf("%w: %s returned unexpected status %d", ErrServer, op, status)
	}
}
