package local

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/suPer8Hu/prompt-hub/internal/auth"
	"github.com/suPer8Hu/prompt-hub/internal/gateway"
	"github.com/suPer8Hu/prompt-hub/internal/models"
)

// SignUp creates the account and its profile row in one transaction and
// signs the user in immediately (no email confirmation locally).
func (b *Backend) SignUp(ctx context.Context, email, password, displayName string) (*gateway.AuthSession, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, &gateway.RequestError{Message: "signup requires a valid email and password"}
	}
	if len(password) < 6 {
		return nil, &gateway.RequestError{Message: "password should be at least 6 characters"}
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := b.now()
	acct := Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(displayName),
		CreatedAt:    now,
	}

	err = b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cnt int64
		if err := tx.Model(&Account{}).Where("email = ?", email).Count(&cnt).Error; err != nil {
			return err
		}
		if cnt > 0 {
			return gateway.ErrUserExists
		}
		if err := tx.Create(&acct).Error; err != nil {
			return err
		}
		prof := models.Profile{ID: acct.ID, CreatedAt: &now}
		if acct.DisplayName != "" {
			name := acct.DisplayName
			prof.DisplayName = &name
		}
		return tx.Create(&prof).Error
	})
	if err != nil {
		return nil, err
	}
	return b.issue(ctx, acct)
}

func (b *Backend) SignIn(ctx context.Context, email, password string) (*gateway.AuthSession, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var acct Account
	err := b.db.WithContext(ctx).Where("email = ?", email).First(&acct).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gateway.ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.CheckPassword(acct.PasswordHash, password) {
		return nil, gateway.ErrInvalidCredentials
	}
	return b.issue(ctx, acct)
}

// SignOut revokes every refresh token of the token's subject.
func (b *Backend) SignOut(ctx context.Context, accessToken string) error {
	claims, err := auth.ParseJWT(accessToken, b.secret)
	if err != nil {
		return gateway.ErrNoSession
	}
	return b.db.WithContext(ctx).Model(&RefreshToken{}).
		Where("user_id = ? AND revoked = ?", claims.Subject, false).
		Update("revoked", true).Error
}

func (b *Backend) User(ctx context.Context, accessToken string) (*gateway.User, error) {
	claims, err := auth.ParseJWT(accessToken, b.secret)
	if err != nil {
		return nil, gateway.ErrNoSession
	}
	var acct Account
	if err := b.db.WithContext(ctx).First(&acct, "id = ?", claims.Subject).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gateway.ErrNoSession
		}
		return nil, err
	}
	u := toUser(acct)
	return &u, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued.
func (b *Backend) Refresh(ctx context.Context, refreshToken string) (*gateway.AuthSession, error) {
	if refreshToken == "" {
		return nil, gateway.ErrNoSession
	}
	var acct Account
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rt RefreshToken
		if err := tx.First(&rt, "token = ?", refreshToken).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return gateway.ErrNoSession
			}
			return err
		}
		if rt.Revoked || b.now().After(rt.ExpiresAt) {
			return gateway.ErrNoSession
		}
		res := tx.Model(&RefreshToken{}).
			Where("token = ? AND revoked = ?", rt.Token, false).
			Update("revoked", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gateway.ErrNoSession
		}
		return tx.First(&acct, "id = ?", rt.UserID).Error
	})
	if err != nil {
		return nil, err
	}
	return b.issue(ctx, acct)
}

func (b *Backend) issue(ctx context.Context, acct Account) (*gateway.AuthSession, error) {
	access, exp, err := auth.SignJWT(acct.ID, acct.Email, b.secret, b.accessTTL)
	if err != nil {
		return nil, err
	}
	token, err := auth.RandomToken(32)
	if err != nil {
		return nil, err
	}
	rt := RefreshToken{
		Token:     token,
		UserID:    acct.ID,
		ExpiresAt: b.now().Add(b.refreshTTL),
	}
	if err := b.db.WithContext(ctx).Create(&rt).Error; err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	return &gateway.AuthSession{
		AccessToken:  access,
		RefreshToken: token,
		ExpiresAt:    exp,
		User:         toUser(acct),
	}, nil
}

func toUser(a Account) gateway.User {
	return gateway.User{ID: a.ID, Email: a.Email, DisplayName: a.DisplayName}
}

