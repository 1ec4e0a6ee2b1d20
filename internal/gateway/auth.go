package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// AuthClient handles session-based authentication against the backend.
type AuthClient struct {
	client *Client
}

// SignUp registers a new user and returns the initial session.
func (a *AuthClient) SignUp(ctx context.Context, req SignUpRequest) (*Session, error) {
	return a.sessionRequest(ctx, a.client.authURL+"/signup", req)
}

// SignInWithPassword authenticates with email and password.
func (a *AuthClient) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	req := map[string]string{"email": email, "password": password}
	return a.sessionRequest(ctx, a.client.authURL+"/token?grant_type=password", req)
}

// SignInWithIDToken authenticates with a third-party identity token
// (e.g. a Google ID token obtained by the app shell).
func (a *AuthClient) SignInWithIDToken(ctx context.Context, provider, idToken string) (*Session, error) {
	req := map[string]string{"provider": provider, "id_token": idToken}
	return a.sessionRequest(ctx, a.client.authURL+"/token?grant_type=id_token", req)
}

// RefreshToken exchanges a refresh token for a fresh session.
func (a *AuthClient) RefreshToken(ctx context.Context, refreshToken string) (*Session, error) {
	req := map[string]string{"refresh_token": refreshToken}
	return a.sessionRequest(ctx, a.client.authURL+"/token?grant_type=refresh_token", req)
}

// GetUser retrieves the user behind an access token.
func (a *AuthClient) GetUser(ctx context.Context, accessToken string) (*User, error) {
	ctx = WithAccessToken(ctx, accessToken)
	body, status, err := a.client.do(ctx, http.MethodGet, a.client.authURL+"/user", "auth", nil, nil)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, parseError(body, status)
	}

	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &user, nil
}

// UpdateUser updates profile attributes of the current user.
func (a *AuthClient) UpdateUser(ctx context.Context, accessToken string, updates map[string]any) (*User, error) {
	body, err := json.Marshal(updates)
	if err != nil {
		return nil, fmt.Errorf("marshal updates: %w", err)
	}

	ctx = WithAccessToken(ctx, accessToken)
	respBody, status, err := a.client.do(ctx, http.MethodPut, a.client.authURL+"/user", "auth", body, nil)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, parseError(respBody, status)
	}

	var user User
	if err := json.Unmarshal(respBody, &user); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &user, nil
}

// SignOut invalidates the session behind an access token.
func (a *AuthClient) SignOut(ctx context.Context, accessToken string) error {
	ctx = WithAccessToken(ctx, accessToken)
	body, status, err := a.client.do(ctx, http.MethodPost, a.client.authURL+"/logout", "auth", nil, nil)
	if err != nil {
		return err
	}
	if status >= 400 {
		return parseError(body, status)
	}
	return nil
}

// ResetPasswordForEmail requests a password-reset email.
func (a *AuthClient) ResetPasswordForEmail(ctx context.Context, email string) error {
	body, err := json.Marshal(map[string]string{"email": email})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	respBody, status, err := a.client.do(ctx, http.MethodPost, a.client.authURL+"/recover", "auth", body, nil)
	if err != nil {
		return err
	}
	if status >= 400 {
		return parseError(respBody, status)
	}
	return nil
}

func (a *AuthClient) sessionRequest(ctx context.Context, url string, req any) (*Session, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	respBody, status, err := a.client.do(ctx, http.MethodPost, url, "auth", body, nil)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, parseError(respBody, status)
	}

	var session Session
	if err := json.Unmarshal(respBody, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}
