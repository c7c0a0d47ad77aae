// Package localtest opens throwaway local backends for tests.
package localtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/suPer8Hu/prompt-hub/internal/gateway"
	"github.com/suPer8Hu/prompt-hub/internal/gateway/local"
	"github.com/suPer8Hu/prompt-hub/internal/models"
)

const Secret = "test-secret"

// OpenDB returns a migrated in-memory database private to t.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := local.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Open returns a local backend over a fresh database.
func Open(t *testing.T, opts ...local.Option) (*local.Backend, *gorm.DB) {
	t.Helper()
	db := OpenDB(t)
	return local.New(db, Secret, time.Hour, opts...), db
}

// SignUp registers a user and fails the test on error.
func SignUp(t *testing.T, b gateway.Auth, email, displayName string) *gateway.AuthSession {
	t.Helper()
	s, err := b.SignUp(context.Background(), email, "secret-pw", displayName)
	if err != nil {
		t.Fatalf("signup %s: %v", email, err)
	}
	return s
}

// As returns ctx carrying s's access token.
func As(s *gateway.AuthSession) context.Context {
	return gateway.WithAccessToken(context.Background(), s.AccessToken)
}

// SeedPrompt inserts a prompt owned by s and returns it.
func SeedPrompt(t *testing.T, b gateway.Tables, s *gateway.AuthSession, title string, cat models.Category, at time.Time) *models.Prompt {
	t.Helper()
	p, err := b.InsertPrompt(As(s), models.Prompt{
		UserID:    s.User.ID,
		Title:     title,
		Body:      title + " body",
		Type:      cat,
		Tags:      []string{},
		CreatedAt: at,
	})
	if err != nil {
		t.Fatalf("seed prompt %q: %v", title, err)
	}
	return p
}

// SeedVote records a vote by s on promptID.
func SeedVote(t *testing.T, b gateway.Tables, s *gateway.AuthSession, promptID string) {
	t.Helper()
	if err := b.InsertVote(As(s), models.Vote{PromptID: promptID, UserID: s.User.ID}); err != nil {
		t.Fatalf("seed vote: %v", err)
	}
}
