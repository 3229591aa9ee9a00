// Package identity creates login accounts on a hosted auth service.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JonMunkholm/schoolbulk/internal/core"
)

const defaultTimeout = 30 * time.Second

// Config holds the Supabase project settings.
type Config struct {
	ProjectURL string
	ServiceKey string
	Timeout    time.Duration
}

// Client provisions users through the GoTrue admin API with the service
// role key.
type Client struct {
	authURL    string
	serviceKey string
	http       *http.Client
}

// New validates cfg and returns a client.
func New(cfg Config) (*Client, error) {
	if cfg.ProjectURL == "" {
		return nil, fmt.Errorf("project URL is required")
	}
	if cfg.ServiceKey == "" {
		return nil, fmt.Errorf("service key is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Client{
		authURL:    strings.TrimRight(cfg.ProjectURL, "/") + "/auth/v1",
		serviceKey: cfg.ServiceKey,
		http:       &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type createUserRequest struct {
	Email        string         `json:"email"`
	Password     string         `json:"password"`
	EmailConfirm bool           `json:"email_confirm"`
	UserMetadata map[string]any `json:"user_metadata"`
}

type user struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// CreateAccount creates a confirmed user whose metadata carries the role,
// school and record the login belongs to.
func (c *Client) CreateAccount(ctx context.Context, req core.AccountRequest) (string, error) {
	body, err := json.Marshal(createUserRequest{
		Email:        req.Email,
		Password:     req.Credential,
		EmailConfirm: true,
		UserMetadata: map[string]any{
			"role":      string(req.Role),
			"school_id": req.SchoolID,
			"record_id": req.RecordID,
			"name":      req.DisplayName,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	respBody, statusCode, err := c.requestWithServiceKey(ctx, http.MethodPost, c.authURL+"/admin/users", body)
	if err != nil {
		return "", err
	}

	if statusCode >= 400 {
		return "", parseError(respBody, statusCode)
	}

	var u user
	if err := json.Unmarshal(respBody, &u); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if u.ID == "" {
		return "", fmt.Errorf("response has no user id")
	}

	return u.ID, nil
}

func (c *Client) requestWithServiceKey(ctx context.Context, method, url string, body []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	return respBody, resp.StatusCode, nil
}

// Error is an error response from the auth service.
type Error struct {
	Code       string
	Message    string
	StatusCode int
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("auth service returned status %d", e.StatusCode)
	}
	return e.Message
}

func parseError(body []byte, statusCode int) error {
	var errResp struct {
		Code             any    `json:"code"`
		ErrorCode        string `json:"error_code"`
		Message          string `json:"message"`
		Msg              string `json:"msg"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}

	if err := json.Unmarshal(body, &errResp); err != nil {
		return &Error{
			Code:       "unknown",
			Message:    strings.TrimSpace(string(body)),
			StatusCode: statusCode,
		}
	}

	msg := errResp.Message
	for _, alt := range []string{errResp.Msg, errResp.Error, errResp.ErrorDescription} {
		if msg == "" {
			msg = alt
		}
	}

	code := errResp.ErrorCode
	if code == "" && errResp.Code != nil {
		code = fmt.Sprint(errResp.Code)
	}

	return &Error{
		Code:       code,
		Message:    msg,
		StatusCode: statusCode,
	}
}

var _ core.AccountProvider = (*Client)(nil)
