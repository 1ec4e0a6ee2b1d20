// Package auth holds the client's session state. The current user lives in
// memory only; tokens are persisted so a cold start can re-validate the
// session with the gateway instead of trusting stale local state.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/greenmarket/storefront/internal/gateway"
	"github.com/greenmarket/storefront/internal/storage"
	"github.com/greenmarket/storefront/pkg/logger"
)

const storageKey = "session"

// API is the gateway auth surface the store depends on.
type API interface {
	SignUp(ctx context.Context, req gateway.SignUpRequest) (*gateway.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*gateway.Session, error)
	SignInWithIDToken(ctx context.Context, provider, idToken string) (*gateway.Session, error)
	RefreshToken(ctx context.Context, refreshToken string) (*gateway.Session, error)
	GetUser(ctx context.Context, accessToken string) (*gateway.User, error)
	UpdateUser(ctx context.Context, accessToken string, updates map[string]any) (*gateway.User, error)
	SignOut(ctx context.Context, accessToken string) error
	ResetPasswordForEmail(ctx context.Context, email string) error
}

// persistedTokens is what survives restarts. Never the user object: that is
// re-derived from the gateway on restore.
type persistedTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Store is the session state store.
type Store struct {
	mu   sync.RWMutex
	api  API
	kv   storage.KV
	log  *logger.Logger
	sess *gateway.Session
	user *gateway.User
}

// NewStore creates a signed-out session store.
func NewStore(api API, kv storage.KV, log *logger.Logger) *Store {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	return &Store{api: api, kv: kv, log: log}
}

// IsAuthenticated is derived strictly from user presence.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

// User returns the current user, or nil when signed out.
func (s *Store) User() *gateway.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// AccessToken returns the current session token, or empty when signed out.
// Other stores attach it to gateway requests via gateway.WithAccessToken.
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.sess == nil {
		return ""
	}
	return s.sess.AccessToken
}

// SignUp registers a new user and adopts the returned session.
func (s *Store) SignUp(ctx context.Context, email, password, fullName, phone string) error {
	sess, err := s.api.SignUp(ctx, gateway.SignUpRequest{
		Email:    email,
		Password: password,
		Phone:    phone,
		Data:     map[string]any{"full_name": fullName},
	})
	if err != nil {
		return fmt.Errorf("sign up: %w", err)
	}
	s.adopt(ctx, sess)
	return nil
}

// SignIn authenticates with email and password.
func (s *Store) SignIn(ctx context.Context, email, password string) error {
	sess, err := s.api.SignInWithPassword(ctx, email, password)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	s.adopt(ctx, sess)
	return nil
}

// SignInWithIDToken authenticates with a third-party identity token.
func (s *Store) SignInWithIDToken(ctx context.Context, provider, idToken string) error {
	sess, err := s.api.SignInWithIDToken(ctx, provider, idToken)
	if err != nil {
		return fmt.Errorf("sign in with %s: %w", provider, err)
	}
	s.adopt(ctx, sess)
	return nil
}

// SignOut asks the gateway to invalidate the session and clears local state.
// Local state is cleared even when the remote call fails; the returned error
// reports the remote outcome.
func (s *Store) SignOut(ctx context.Context) error {
	s.mu.Lock()
	token := ""
	if s.sess != nil {
		token = s.sess.AccessToken
	}
	s.sess = nil
	s.user = nil
	s.mu.Unlock()

	if s.kv != nil {
		if err := s.kv.Delete(ctx, storageKey); err != nil {
			s.log.WithError(err).Warn("failed to clear persisted session")
		}
	}

	if token == "" {
		return nil
	}
	if err := s.api.SignOut(ctx, token); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// ResetPassword requests a password-reset email.
func (s *Store) ResetPassword(ctx context.Context, email string) error {
	if err := s.api.ResetPasswordForEmail(ctx, email); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	return nil
}

// UpdateProfile changes the display name and phone of the current user.
func (s *Store) UpdateProfile(ctx context.Context, fullName, phone string) error {
	s.mu.RLock()
	sess := s.sess
	s.mu.RUnlock()

	if sess == nil {
		return fmt.Errorf("update profile: not signed in")
	}

	updates := map[string]any{
		"data": map[string]any{"full_name": fullName},
	}
	if phone != "" {
		updates["phone"] = phone
	}

	user, err := s.api.UpdateUser(ctx, sess.AccessToken, updates)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}

	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
	return nil
}

// Restore re-derives the session on cold start. Persisted tokens are only a
// hint: an unexpired access token is still re-validated with GetUser, an
// expired one goes through a refresh first. Any failure leaves the store
// signed out.
func (s *Store) Restore(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}

	data, err := s.kv.Get(ctx, storageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("read persisted session: %w", err)
	}

	var tokens persistedTokens
	if err := json.Unmarshal(data, &tokens); err != nil {
		s.log.WithError(err).Warn("discarding corrupt persisted session")
		_ = s.kv.Delete(ctx, storageKey)
		return nil
	}

	sess := &gateway.Session{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}

	if tokenExpired(tokens.AccessToken, time.Now()) {
		if tokens.RefreshToken == "" {
			_ = s.kv.Delete(ctx, storageKey)
			return nil
		}
		refreshed, err := s.api.RefreshToken(ctx, tokens.RefreshToken)
		if err != nil {
			s.log.WithError(err).Info("session refresh failed, staying signed out")
			_ = s.kv.Delete(ctx, storageKey)
			return nil
		}
		sess = refreshed
	}

	user, err := s.api.GetUser(ctx, sess.AccessToken)
	if err != nil {
		s.log.WithError(err).Info("session validation failed, staying signed out")
		_ = s.kv.Delete(ctx, storageKey)
		return nil
	}

	sess.User = user
	s.adopt(ctx, sess)
	return nil
}

func (s *Store) adopt(ctx context.Context, sess *gateway.Session) {
	s.mu.Lock()
	s.sess = sess
	s.user = sess.User
	s.mu.Unlock()

	if s.kv == nil {
		return
	}
	data, err := json.Marshal(persistedTokens{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
	})
	if err != nil {
		s.log.WithError(err).Warn("failed to encode session tokens")
		return
	}
	if err := s.kv.Set(ctx, storageKey, data); err != nil {
		s.log.WithError(err).Warn("failed to persist session tokens")
	}
}

// tokenExpired reports whether a JWT's exp claim is in the past. The token
// is parsed without signature verification: verification is the gateway's
// job, this only decides whether a refresh is needed before calling it.
func tokenExpired(token string, now time.Time) bool {
	if token == "" {
		return true
	}

	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return now.After(claims.ExpiresAt.Time)
}
