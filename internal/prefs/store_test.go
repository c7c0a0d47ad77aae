package prefs

import (
	"context"
	"fmt"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestDeviceStoreSetGetOverwrite(t *testing.T) {
	s := NewStore(openTestDB(t))
	ctx := context.Background()
	a := s.Device("dev-a")
	b := s.Device("dev-b")

	_, ok, err := a.Get(ctx, "theme-mode")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Set(ctx, "theme-mode", "light"))
	require.NoError(t, a.Set(ctx, "theme-mode", "dark"))
	v, ok, err := a.Get(ctx, "theme-mode")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "dark", v)

	_, ok, err = b.Get(ctx, "theme-mode")
	require.NoError(t, err)
	assert.False(t, ok, "devices are isolated")
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	d := NewStore(openTestDB(t)).Device("dev")
	ctx := context.Background()

	rt, err := d.LoadRefreshToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, rt)

	require.NoError(t, d.SaveRefreshToken(ctx, "tok"))
	rt, err = d.LoadRefreshToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok", rt)

	require.NoError(t, d.SaveRefreshToken(ctx, ""))
	_, ok, err := d.Get(ctx, KeyRefreshToken)
	require.NoError(t, err)
	assert.False(t, ok)
}
