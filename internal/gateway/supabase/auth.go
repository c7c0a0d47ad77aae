package supabase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/supabase-community/gotrue-go/types"

	"github.com/suPer8Hu/prompt-hub/internal/gateway"
)

func (b *Backend) SignIn(ctx context.Context, email, password string) (*gateway.AuthSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := b.anon.Auth.SignInWithEmailPassword(email, password)
	if err != nil {
		return nil, mapAuthError(err)
	}
	return toSession(resp.Session), nil
}

func (b *Backend) SignUp(ctx context.Context, email, password, displayName string) (*gateway.AuthSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := types.SignupRequest{Email: email, Password: password}
	if name := strings.TrimSpace(displayName); name != "" {
		req.Data = map[string]interface{}{metadataDisplayNameKey: name}
	}
	resp, err := b.anon.Auth.Signup(req)
	if err != nil {
		return nil, mapAuthError(err)
	}
	// Without autoconfirm the project answers with the user only.
	if resp.Session.AccessToken == "" {
		b.log.Info("signup pending confirmation")
		return nil, nil
	}
	return toSession(resp.Session), nil
}

func (b *Backend) SignOut(ctx context.Context, accessToken string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.anon.Auth.WithToken(accessToken).Logout(); err != nil {
		return mapAuthError(err)
	}
	return nil
}

func (b *Backend) User(ctx context.Context, accessToken string) (*gateway.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := b.anon.Auth.WithToken(accessToken).GetUser()
	if err != nil {
		return nil, mapAuthError(err)
	}
	u := toUser(resp.User)
	return &u, nil
}

func (b *Backend) Refresh(ctx context.Context, refreshToken string) (*gateway.AuthSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if refreshToken == "" {
		return nil, gateway.ErrNoSession
	}
	resp, err := b.anon.Auth.RefreshToken(refreshToken)
	if err != nil {
		return nil, mapAuthError(err)
	}
	return toSession(resp.Session), nil
}

func toSession(s types.Session) *gateway.AuthSession {
	exp := time.Unix(s.ExpiresAt, 0)
	if s.ExpiresAt == 0 {
		exp = time.Now().Add(time.Duration(s.ExpiresIn) * time.Second)
	}
	return &gateway.AuthSession{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    exp,
		User:         toUser(s.User),
	}
}

func toUser(u types.User) gateway.User {
	out := gateway.User{ID: u.ID.String(), Email: u.Email}
	if name, ok := u.UserMetadata[metadataDisplayNameKey].(string); ok {
		out.DisplayName = name
	}
	return out
}

// mapAuthError turns GoTrue's "response status code N: {json}" errors into
// gateway errors where the cause is known.
func mapAuthError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "invalid login credentials"), strings.Contains(msg, "invalid_grant") && strings.Contains(msg, "password"):
		return gateway.ErrInvalidCredentials
	case strings.Contains(msg, "already registered"), strings.Contains(msg, "user_already_exists"):
		return gateway.ErrUserExists
	case strings.Contains(msg, "refresh token"), strings.Contains(msg, "status code 401"), strings.Contains(msg, "session_not_found"):
		return fmt.Errorf("%w: %v", gateway.ErrNoSession, err)
	case strings.Contains(msg, "status code 422"), strings.Contains(msg, "weak_password"):
		return &gateway.RequestError{Message: err.Error()}
	}
	return fmt.Errorf("auth: %w", err)
}
