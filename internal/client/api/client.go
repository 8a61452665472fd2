package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spec-kit/folio/internal/domain"
)

// Client talks to the folio API.
type Client struct {
	baseURL string
	http    *http.Client
}

// LoginResponse is the success body of POST /api/auth/login.
type LoginResponse struct {
	Success   bool               `json:"success"`
	Token     string             `json:"token"`
	User      *domain.PublicUser `json:"user"`
	ExpiresAt time.Time          `json:"expiresAt"`
	Message   string             `json:"message,omitempty"`
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type userEnvelope struct {
	Success bool               `json:"success"`
	User    *domain.PublicUser `json:"user"`
}

// New returns a client for baseURL. A nil httpClient uses http.DefaultClient.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// BaseURL returns the configured backend URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Login exchanges credentials for a token. A nominal success without a token
// or user is reported as ErrMalformedLoginResponse.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	payload, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	var out LoginResponse
	if err := c.do(ctx, "login", http.MethodPost, "/api/auth/login", "", payload, &out); err != nil {
		return nil, err
	}
	if !out.Success || out.Token == "" || out.User == nil {
		return nil, ErrMalformedLoginResponse
	}
	return &out, nil
}

// Verify checks a token and returns the user its claims describe.
func (c *Client) Verify(ctx context.Context, token string) (*domain.PublicUser, error) {
	if domain.KindOf(token) == domain.TokenKindDemo {
		return nil, ErrDemoToken
	}
	var out userEnvelope
	if err := c.do(ctx, "verify", http.MethodGet, "/api/auth/verify", token, nil, &out); err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, fmt.Errorf("verify: response missing user")
	}
	return out.User, nil
}

// Logout tells the server the session ended.
func (c *Client) Logout(ctx context.Context, token string) error {
	if domain.KindOf(token) == domain.TokenKindDemo {
		return ErrDemoToken
	}
	return c.do(ctx, "logout", http.MethodPost, "/api/auth/logout", token, nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path, token string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var env envelope
		_ = json.Unmarshal(raw, &env)
		if env.Message == "" {
			env.Message = http.StatusText(resp.StatusCode)
		}
		return &ResponseError{Status: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		if op == "login" {
			return ErrMalformedLoginResponse
		}
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
