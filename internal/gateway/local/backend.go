// Package local implements gateway.Backend on gorm. It stands in for the
// hosted backend in development, in the metrics worker and in tests, and
// emulates the hosted row-level policies: writes must carry an access token
// whose subject owns the row.
package local

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/suPer8Hu/prompt-hub/internal/auth"
	"github.com/suPer8Hu/prompt-hub/internal/gateway"
	"github.com/suPer8Hu/prompt-hub/internal/models"
)

// Account is a credential record of the local auth emulation.
type Account struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string    `gorm:"type:varchar(100);not null"`
	DisplayName  string    `gorm:"type:varchar(128)"`
	CreatedAt    time.Time
}

func (Account) TableName() string { return "auth_users" }

// RefreshToken is an opaque, single-use refresh token.
type RefreshToken struct {
	Token     string    `gorm:"primaryKey;type:varchar(64)"`
	UserID    string    `gorm:"type:varchar(36);index;not null"`
	ExpiresAt time.Time `gorm:"not null"`
	Revoked   bool      `gorm:"not null;default:false"`
	CreatedAt time.Time
}

func (RefreshToken) TableName() string { return "auth_refresh_tokens" }

type Option func(*Backend)

// WithoutViews makes the aggregated views report gateway.ErrUnavailable, as a
// hosted project that never provisioned them would.
func WithoutViews() Option {
	return func(b *Backend) { b.views = false }
}

// WithRefreshTTL overrides the refresh token lifetime (default 30 days).
func WithRefreshTTL(d time.Duration) Option {
	return func(b *Backend) { b.refreshTTL = d }
}

type Backend struct {
	db         *gorm.DB
	secret     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	views      bool
	now        func() time.Time
}

func New(db *gorm.DB, secret string, accessTTL time.Duration, opts ...Option) *Backend {
	if accessTTL <= 0 {
		accessTTL = time.Hour
	}
	b := &Backend{
		db:         db,
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: 30 * 24 * time.Hour,
		views:      true,
		now:        time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Migrate creates the tables of the local backend.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Account{},
		&RefreshToken{},
		&models.Profile{},
		&models.Prompt{},
		&models.Vote{},
		&models.ProfileMetrics{},
	)
}

// caller returns the subject of the access token attached to ctx.
func (b *Backend) caller(ctx context.Context) (string, error) {
	tok := gateway.AccessToken(ctx)
	if tok == "" {
		return "", gateway.ErrNoSession
	}
	claims, err := auth.ParseJWT(tok, b.secret)
	if err != nil {
		return "", gateway.ErrNoSession
	}
	return claims.Subject, nil
}

// owns enforces the write policy "auth.uid() = owner".
func (b *Backend) owns(ctx context.Context, ownerID string) error {
	uid, err := b.caller(ctx)
	if err != nil {
		return err
	}
	if uid != ownerID {
		return gateway.ErrForbidden
	}
	return nil
}

var _ gateway.Backend = (*Backend)(nil)
