package client

import (
	"context"
	"net/http"

	"github.com/unkn0wn-root/shopcache"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *Client) Login(ctx context.Context, email, password string) (shopcache.AuthResponse, error) {
	return c.auth(ctx, "/auth/login", loginRequest{Email: email, Password: password})
}

func (c *Client) Register(ctx context.Context, fullName, email, password string) (shopcache.AuthResponse, error) {
	return c.auth(ctx, "/auth/register", registerRequest{FullName: fullName, Email: email, Password: password})
}

// CheckStatus validates token and returns a refreshed token with its user.
func (c *Client) CheckStatus(ctx context.Context, token string) (shopcache.AuthResponse, error) {
	var out shopcache.AuthResponse
	err := c.do(ctx, request{method: http.MethodGet, path: "/auth/check-status", token: token}, &out)
	return out, err
}

func (c *Client) auth(ctx context.Context, p string, payload any) (shopcache.AuthResponse, error) {
	body, err := jsonBody(payload)
	if err != nil {
		return shopcache.AuthResponse{}, err
	}
	var out shopcache.AuthResponse
	err = c.do(ctx, request{method: http.MethodPost, path: p, body: body, contentType: "application/json"}, &out)
	return out, err
}
