// Package gateway is the typed boundary to the backend-as-a-service that owns
// persistence, authentication and row-level authorization. Backend is the raw
// remote surface; Client is the per-device wrapper that carries the current
// auth session and pushes auth-state changes to subscribers.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/suPer8Hu/prompt-hub/internal/models"
)

var (
	// ErrUnavailable marks an optional resource (aggregated view) that the
	// backend has not provisioned.
	ErrUnavailable = errors.New("gateway: resource unavailable")

	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrUserExists         = errors.New("user already registered")
	ErrNoSession          = errors.New("auth session missing")
	ErrForbidden          = errors.New("new row violates row-level security policy")
)

// RequestError is a request the backend refused as invalid. Its message is
// meant for the user.
type RequestError struct {
	Message string
}

func (e *RequestError) Error() string { return e.Message }

// User is the authenticated principal as reported by the auth endpoints.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
}

// AuthSession is a token pair plus the user it belongs to.
type AuthSession struct {
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// PromptQuery narrows prompt reads.
type PromptQuery struct {
	OwnerID     string
	NewestFirst bool
}

// Tables is the row/view surface.
type Tables interface {
	PromptsWithCounts(ctx context.Context, q PromptQuery) ([]models.PromptWithCount, error)
	Prompts(ctx context.Context, q PromptQuery) ([]models.Prompt, error)
	InsertPrompt(ctx context.Context, p models.Prompt) (*models.Prompt, error)
	UpdatePrompt(ctx context.Context, id, ownerID string, u models.PromptUpdate) error

	VotedPromptIDs(ctx context.Context, userID string) ([]string, error)
	CountVotesGiven(ctx context.Context, userID string) (int64, error)
	InsertVote(ctx context.Context, v models.Vote) error
	DeleteVote(ctx context.Context, promptID, userID string) error

	// Profile returns nil, nil when no row exists.
	Profile(ctx context.Context, id string) (*models.Profile, error)
	UpdateDisplayName(ctx context.Context, id string, name *string) error
	// ProfileMetrics returns nil, nil when no row exists and ErrUnavailable
	// when the view is missing.
	ProfileMetrics(ctx context.Context, userID string) (*models.ProfileMetrics, error)
}

// Auth is the authentication sub-interface.
type Auth interface {
	SignIn(ctx context.Context, email, password string) (*AuthSession, error)
	// SignUp returns a nil session when the backend requires email
	// confirmation before the first sign-in.
	SignUp(ctx context.Context, email, password, displayName string) (*AuthSession, error)
	SignOut(ctx context.Context, accessToken string) error
	User(ctx context.Context, accessToken string) (*User, error)
	Refresh(ctx context.Context, refreshToken string) (*AuthSession, error)
}

type Backend interface {
	Tables
	Auth
}

type accessTokenKey struct{}

// WithAccessToken attaches the caller's access token to ctx. Backends use it
// for row-level authorization.
func WithAccessToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, accessTokenKey{}, token)
}

// AccessToken returns the token attached by WithAccessToken.
func AccessToken(ctx context.Context) string {
	v, _ := ctx.Value(accessTokenKey{}).(string)
	return v
}
