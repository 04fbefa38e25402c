// Package identity is the REST client for the external identity store
// that persists users, sessions, linked accounts, and verification
// tokens. The authorization pipeline consumes it as an opaque
// collaborator; its own persistence model is not modeled here.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const basePath = "/api/v1"

// StatusError is an unexpected (non-2xx, non-404) identity API response.
// Callers must treat it as a hard failure: a sign-in or refresh attempt
// that hits one does not complete.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("identity: unexpected status %d: %s", e.Status, e.Body)
}

// Client talks to the identity API. Safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient constructs a Client. apiKey may be empty in development; when
// set it is sent as x-api-key on every request.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// CreateUser persists a new user.
func (c *Client) CreateUser(ctx context.Context, user User) (*User, error) {
	var out User
	if err := c.do(ctx, http.MethodPost, "/users", user, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUser fetches a user by ID. Returns (nil, nil) when absent.
func (c *Client) GetUser(ctx context.Context, id string) (*User, error) {
	return c.lookupUser(ctx, "/users/"+url.PathEscape(id))
}

// GetUserByEmail fetches a user by email. Returns (nil, nil) when absent.
func (c *Client) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return c.lookupUser(ctx, "/users/by-email/"+url.PathEscape(email))
}

// GetUserByAccount resolves the user linked to a provider account.
// Returns (nil, nil) when absent.
func (c *Client) GetUserByAccount(ctx context.Context, provider, providerAccountID string) (*User, error) {
	return c.lookupUser(ctx, "/accounts/"+url.PathEscape(provider)+"/"+url.PathEscape(providerAccountID)+"/user")
}

// UpdateUser applies a partial update and returns the stored user.
func (c *Client) UpdateUser(ctx context.Context, user User) (*User, error) {
	var out User
	if err := c.do(ctx, http.MethodPatch, "/users/"+url.PathEscape(user.ID), user, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteUser removes a user and cascades to sessions and accounts.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/users/"+url.PathEscape(id), nil, nil)
}

// LinkAccount attaches a provider account to a user.
func (c *Client) LinkAccount(ctx context.Context, account Account) error {
	return c.do(ctx, http.MethodPost, "/accounts", account, nil)
}

// UnlinkAccount detaches a provider account.
func (c *Client) UnlinkAccount(ctx context.Context, provider, providerAccountID string) error {
	return c.do(ctx, http.MethodDelete, "/accounts/"+url.PathEscape(provider)+"/"+url.PathEscape(providerAccountID), nil, nil)
}

// CreateSession persists a new session.
func (c *Client) CreateSession(ctx context.Context, session Session) (*Session, error) {
	var out Session
	if err := c.do(ctx, http.MethodPost, "/sessions", session, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSession fetches a session by its token. Returns (nil, nil) when the
// token is unknown or expired server-side.
func (c *Client) GetSession(ctx context.Context, token string) (*Session, error) {
	var out Session
	found, err := c.lookup(ctx, "/sessions/"+url.PathEscape(token), &out)
	if err != nil || !found {
		return nil, err
	}
	return &out, nil
}

// UpdateSession persists changed session fields (expiry, device binding).
func (c *Client) UpdateSession(ctx context.Context, session Session) (*Session, error) {
	var out Session
	if err := c.do(ctx, http.MethodPatch, "/sessions/"+url.PathEscape(session.Token), session, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSession invalidates a session by token.
func (c *Client) DeleteSession(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(token), nil, nil)
}

// CreateVerificationToken persists a one-time verification token.
func (c *Client) CreateVerificationToken(ctx context.Context, vt VerificationToken) error {
	return c.do(ctx, http.MethodPost, "/verification-tokens", vt, nil)
}

// UseVerificationToken consumes a token, returning (nil, nil) when it
// does not exist or was already used.
func (c *Client) UseVerificationToken(ctx context.Context, identifier, token string) (*VerificationToken, error) {
	var out VerificationToken
	found, err := c.lookup(ctx, "/verification-tokens/"+url.PathEscape(identifier)+"/"+url.PathEscape(token)+"/use", &out)
	if err != nil || !found {
		return nil, err
	}
	return &out, nil
}

func (c *Client) lookupUser(ctx context.Context, path string) (*User, error) {
	var out User
	found, err := c.lookup(ctx, path, &out)
	if err != nil || !found {
		return nil, err
	}
	return &out, nil
}

// lookup performs a GET where 404 is a legitimate empty result.
func (c *Client) lookup(ctx context.Context, path string, target any) (bool, error) {
	resp, err := c.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return false, fmt.Errorf("identity: decode %s: %w", path, err)
	}
	return true, nil
}

// do performs a mutating call where any non-2xx status is an error,
// except 404 on DELETE which is treated as already-gone.
func (c *Client) do(ctx context.Context, method, path string, body, target any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if method == http.MethodDelete && resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("identity: decode %s: %w", path, err)
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("identity: encode %s: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+basePath+path, reader)
	if err != nil {
		return nil, fmt.Errorf("identity: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-store")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity: %s %s: %w", method, path, err)
	}
	return resp, nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
