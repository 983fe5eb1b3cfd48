package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// AuthResult is what the external auth service hands back on success. The
// token is treated as an opaque credential everywhere past this point.
type AuthResult struct {
	Token string `json:"token"`
	User  struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Avatar   string `json:"avatar,omitempty"`
	} `json:"user"`
}

func (c *Client) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	return c.auth(ctx, "/auth/login", map[string]string{
		"username": username,
		"password": password,
	})
}

func (c *Client) Register(ctx context.Context, username, password string) (*AuthResult, error) {
	return c.auth(ctx, "/auth/register", map[string]string{
		"username": username,
		"password": password,
	})
}

// ValidateToken asks the auth service whether a stored token is still good.
func (c *Client) ValidateToken(ctx context.Context) (*AuthResult, error) {
	env, err := c.do(ctx, http.MethodGet, "/auth/me", nil)
	if err != nil {
		return nil, err
	}
	var res AuthResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		return nil, fmt.Errorf("decode auth response: %w", err)
	}
	res.Token = c.token()
	return &res, nil
}

func (c *Client) auth(ctx context.Context, path string, body interface{}) (*AuthResult, error) {
	env, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	var res AuthResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		return nil, fmt.Errorf("decode auth response: %w", err)
	}
	if res.Token == "" {
		return nil, fmt.Errorf("auth response carries no token")
	}
	return &res, nil
}
