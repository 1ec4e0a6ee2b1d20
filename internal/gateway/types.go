// Package gateway is the client for the hosted data backend: table CRUD
// through a PostgREST-style query builder, session-based authentication,
// and realtime change subscriptions.
package gateway

import (
	"encoding/json"
	"errors"
	"time"
)

// User is the backend's view of an authenticated user.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Phone        string         `json:"phone,omitempty"`
	Role         string         `json:"role,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	LastSignInAt *time.Time     `json:"last_sign_in_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// DisplayName returns the user's display name from metadata, if present.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if name, ok := u.UserMetadata["full_name"].(string); ok {
		return name
	}
	return ""
}

// Session is an authenticated session returned by the auth endpoints.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user,omitempty"`
}

// SignUpRequest registers a new user.
type SignUpRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Phone    string         `json:"phone,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// EventType identifies a realtime change kind.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
	EventAll    EventType = "*"
)

// SubscriptionConfig describes interest in changes on one table.
type SubscriptionConfig struct {
	Schema string
	Table  string
	Event  EventType
	// Filter is a column equality filter, e.g. "user_id=eq.42".
	Filter string
}

// ChangeEvent is a single insert/update/delete notification.
type ChangeEvent struct {
	Type      EventType
	Table     string
	Schema    string
	Record    json.RawMessage
	OldRecord json.RawMessage
	Timestamp time.Time
}

// ChangeHandler receives change events for a subscription.
type ChangeHandler func(ChangeEvent)

// Error is an error response from the backend.
type Error struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	Hint       string `json:"hint,omitempty"`
	StatusCode int    `json:"status_code"`
}

func (e *Error) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// IsNotFound reports whether err is a not-found gateway error.
func IsNotFound(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && (ge.StatusCode == 404 || ge.StatusCode == 406)
}

// IsUnauthorized reports whether err is an authentication failure.
func IsUnauthorized(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.StatusCode == 401
}

// IsConflict reports whether err is a constraint violation.
func IsConflict(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.StatusCode == 409
}

// parseError maps an error response body to *Error.
func parseError(body []byte, statusCode int) error {
	var resp struct {
		Code             string `json:"code"`
		Message          string `json:"message"`
		Details          string `json:"details"`
		Hint             string `json:"hint"`
		ErrorField       string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Msg              string `json:"msg"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return &Error{Code: "unknown", Message: string(body), StatusCode: statusCode}
	}

	msg := resp.Message
	if msg == "" {
		msg = resp.Msg
	}
	if msg == "" {
		msg = resp.ErrorField
	}
	if msg == "" {
		msg = resp.ErrorDescription
	}

	return &Error{
		Code:       resp.Code,
		Message:    msg,
		Details:    resp.Details,
		Hint:       resp.Hint,
		StatusCode: statusCode,
	}
}
