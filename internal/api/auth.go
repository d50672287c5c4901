package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

const jsonContentType = "application/json"

// identityResponse mirrors the auth endpoints' user JSON exactly.
// Unexported — callers use Identity via toIdentity() normalization.
type identityResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"` // email
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	IsActive  bool   `json:"isActive"`
	ParentID  string `json:"parentId"` // root folder id, may be absent
}

func (r *identityResponse) toIdentity() Identity {
	return Identity{
		ID:           r.ID,
		Email:        r.Username,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		IsActive:     r.IsActive,
		RootFolderID: r.ParentID,
	}
}

// resultEnvelope wraps endpoints that return {"result": <identity>}.
type resultEnvelope struct {
	Result identityResponse `json:"result"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Result identityResponse `json:"result"`
	Token  string           `json:"token"`
}

type registerRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// postJSON marshals body and issues a POST. Shared by the auth endpoints.
func (c *Client) postJSON(ctx context.Context, path string, body any, cred string) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("api: marshaling %s request: %w", path, err)
	}

	return c.do(ctx, http.MethodPost, path, jsonContentType, bytes.NewReader(data), cred)
}

// WhoAmI validates a credential against the service and returns the identity
// it belongs to. This is the only way to determine credential validity — the
// token itself is opaque and carries no client-inspectable expiry.
func (c *Client) WhoAmI(ctx context.Context, cred string) (*Identity, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/auth/me", "", nil, cred)
	if err != nil {
		return nil, err
	}

	var env resultEnvelope
	if err := decodeInto(resp, &env, "whoami"); err != nil {
		return nil, err
	}

	id := env.Result.toIdentity()

	return &id, nil
}

// Login exchanges email and password for an identity and a fresh bearer
// credential. The password is never logged.
func (c *Client) Login(ctx context.Context, email, password string) (*Identity, string, error) {
	c.logger.Info("logging in", slog.String("email", email))

	resp, err := c.postJSON(ctx, "/api/auth/login", loginRequest{Email: email, Password: password}, "")
	if err != nil {
		return nil, "", err
	}

	var lr loginResponse
	if err := decodeInto(resp, &lr, "login"); err != nil {
		return nil, "", err
	}

	id := lr.Result.toIdentity()

	return &id, lr.Token, nil
}

// Register creates a new account. The server sends an activation email;
// the returned message describes the next step and is shown verbatim.
func (c *Client) Register(ctx context.Context, firstName, lastName, email, password string) (string, error) {
	c.logger.Info("registering account", slog.String("email", email))

	req := registerRequest{FirstName: firstName, LastName: lastName, Email: email, Password: password}

	resp, err := c.postJSON(ctx, "/api/auth/register", req, "")
	if err != nil {
		return "", err
	}

	var mr messageResponse
	if err := decodeInto(resp, &mr, "register"); err != nil {
		return "", err
	}

	return mr.Message, nil
}

// Logout notifies the service that the owner's session ended. Best-effort:
// callers ignore failures and clear local state regardless.
func (c *Client) Logout(ctx context.Context, ownerID string) error {
	resp, err := c.postJSON(ctx, "/api/auth/logout", map[string]string{"userId": ownerID}, "")
	if err != nil {
		return err
	}

	return drainAndClose(resp)
}

// Activate redeems an account activation token.
func (c *Client) Activate(ctx context.Context, token string) (string, error) {
	resp, err := c.postJSON(ctx, "/api/auth/activate", map[string]string{"token": token}, "")
	if err != nil {
		return "", err
	}

	var mr messageResponse
	if err := decodeInto(resp, &mr, "activate"); err != nil {
		return "", err
	}

	return mr.Message, nil
}

// ForgotPassword requests a password reset email for the given address.
func (c *Client) ForgotPassword(ctx context.Context, email string) (string, error) {
	resp, err := c.postJSON(ctx, "/api/auth/forgot-password", map[string]string{"email": email}, "")
	if err != nil {
		return "", err
	}

	var mr messageResponse
	if err := decodeInto(resp, &mr, "forgot-password"); err != nil {
		return "", err
	}

	return mr.Message, nil
}

// ResetPassword redeems a reset token and sets a new password.
func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) (string, error) {
	req := map[string]string{"token": token, "newPassword": newPassword}

	resp, err := c.postJSON(ctx, "/api/auth/reset-password", req, "")
	if err != nil {
		return "", err
	}

	var mr messageResponse
	if err := decodeInto(resp, &mr, "reset-password"); err != nil {
		return "", err
	}

	return mr.Message, nil
}
