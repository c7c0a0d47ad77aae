package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/suPer8Hu/prompt-hub/internal/gateway"
	"github.com/suPer8Hu/prompt-hub/internal/gateway/local"
	"github.com/suPer8Hu/prompt-hub/internal/gateway/local/localtest"
	"github.com/suPer8Hu/prompt-hub/internal/listing"
	"github.com/suPer8Hu/prompt-hub/internal/models"
	"github.com/suPer8Hu/prompt-hub/internal/prefs"
	"github.com/suPer8Hu/prompt-hub/internal/submission"
	"github.com/suPer8Hu/prompt-hub/internal/theme"
	"github.com/suPer8Hu/prompt-hub/internal/vote"
)

func noTimer(time.Duration, func()) func() bool { return func() bool { return true } }

func newRegistry(t *testing.T, maxDevices int) *Registry {
	t.Helper()
	b, db := localtest.Open(t)
	return newRegistryOn(t, b, db, maxDevices)
}

func newRegistryOn(t *testing.T, b *local.Backend, db *gorm.DB, maxDevices int) *Registry {
	t.Helper()
	require.NoError(t, prefs.Migrate(db))
	r := NewRegistry(Deps{
		Backend:    b,
		Prefs:      prefs.NewStore(db),
		SavedTimer: []submission.Option{submission.WithAfterFunc(noTimer)},
	}, maxDevices)
	t.Cleanup(r.Close)
	return r
}

func TestAnonymousExploreAndVote(t *testing.T) {
	r := newRegistry(t, 10)
	ctx := context.Background()
	d := r.Get(ctx, "dev-1")
	assert.Equal(t, "", d.ViewerID())
	assert.False(t, d.Session.Loading())

	rows, err := d.Explore(ctx, "", listing.FilterAll)
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = d.Explore(ctx, "", "Nope")
	assert.ErrorIs(t, err, listing.ErrBadFilter)

	_, err = d.ToggleVote(ctx, "anything")
	assert.ErrorIs(t, err, vote.ErrSignInRequired)

	_, err = d.MyPrompts(ctx, 1)
	assert.ErrorIs(t, err, ErrSignInRequired)
	_, err = d.MyProfile(ctx)
	assert.ErrorIs(t, err, ErrSignInRequired)
}

func TestSignedInFlow(t *testing.T) {
	r := newRegistry(t, 10)
	ctx := context.Background()
	d := r.Get(ctx, "dev-1")

	pending, err := d.Session.SignUp(ctx, "alice@example.com", "secret-pw", "Alice")
	require.NoError(t, err)
	assert.False(t, pending)
	viewer := d.ViewerID()
	require.NotEmpty(t, viewer)

	p, err := d.Submit(ctx, submission.Draft{Title: "Tutor", Body: "teach me", Type: models.CategoryPersona})
	require.NoError(t, err)

	rows, err := d.Explore(ctx, "tutor", listing.FilterAll)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, p.ID, rows[0].ID)
	assert.False(t, rows[0].Voted)

	card, err := d.ToggleVote(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, card.Voted)
	assert.Equal(t, int64(1), card.Count)

	rows, err = d.Explore(ctx, "", listing.FilterAll)
	require.NoError(t, err)
	assert.True(t, rows[0].Voted)
	assert.Equal(t, int64(1), rows[0].VoteCount)

	page, err := d.MyPrompts(ctx, 1)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	title := "Tutor v2"
	rec, err := d.EditPrompt(ctx, p.ID, submission.Patch{Title: &title})
	require.NoError(t, err)
	assert.True(t, rec.Dirty)
	rec, err = d.SavePrompt(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, rec.Dirty)

	rows, err = d.Explore(ctx, "", listing.FilterAll)
	require.NoError(t, err)
	assert.Equal(t, "Tutor v2", rows[0].Title)

	st, err := d.MyProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Alice", st.Value)
	st, err = d.SetDisplayName(ctx, " Ally ")
	require.NoError(t, err)
	assert.Equal(t, "Ally", st.Value)

	prof, err := d.Profile(ctx, viewer)
	require.NoError(t, err)
	assert.Equal(t, "Ally", prof.DisplayName)
	require.Len(t, prof.Prompts, 1)
	assert.True(t, prof.Prompts[0].Voted)

	require.NoError(t, d.Session.SignOut(ctx))
	assert.Equal(t, "", d.ViewerID())
	assert.False(t, d.Listing.Loaded())
	_, ok := d.Board.Get(p.ID)
	assert.False(t, ok)
}

func TestDeviceStateSurvivesEviction(t *testing.T) {
	r := newRegistry(t, 1)
	ctx := context.Background()

	d := r.Get(ctx, "dev-1")
	_, err := d.Session.SignUp(ctx, "alice@example.com", "secret-pw", "")
	require.NoError(t, err)
	viewer := d.ViewerID()
	_, err = d.Theme.SetMode(ctx, theme.ModeLight)
	require.NoError(t, err)

	other := r.Get(ctx, "dev-2")
	assert.Equal(t, "", other.ViewerID())
	assert.Equal(t, 1, r.Len())

	again := r.Get(ctx, "dev-1")
	assert.NotSame(t, d, again)
	assert.Equal(t, viewer, again.ViewerID())
	assert.Equal(t, theme.ModeLight, again.Theme.Snapshot().Mode)
}

func TestRegistryReusesDevice(t *testing.T) {
	r := newRegistry(t, 10)
	ctx := context.Background()
	assert.Same(t, r.Get(ctx, "a"), r.Get(ctx, "a"))
	assert.NotSame(t, r.Get(ctx, "a"), r.Get(ctx, "b"))
	assert.Equal(t, 2, r.Len())
}

func TestAccessTokenExpiryRefreshes(t *testing.T) {
	db := localtest.OpenDB(t)
	r := newRegistryOn(t, local.New(db, localtest.Secret, 2*time.Second), db, 10)
	ctx := context.Background()

	d := r.Get(ctx, "dev-1")
	_, err := d.Session.SignUp(ctx, "alice@example.com", "secret-pw", "")
	require.NoError(t, err)
	viewer := d.ViewerID()

	// the first access token is now past its expiry
	time.Sleep(2500 * time.Millisecond)

	p, err := d.Submit(ctx, submission.Draft{Title: "Late", Body: "still signed in", Type: models.CategoryOther})
	require.NoError(t, err)
	assert.Equal(t, viewer, p.UserID)

	rows, err := d.Explore(ctx, "", listing.FilterAll)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	card, err := d.ToggleVote(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, card.Voted)
	assert.Equal(t, viewer, d.ViewerID())
}

func TestRevokedSessionSignsDeviceOut(t *testing.T) {
	db := localtest.OpenDB(t)
	r := newRegistryOn(t, local.New(db, localtest.Secret, 2*time.Second), db, 10)
	ctx := context.Background()

	d := r.Get(ctx, "dev-1")
	_, err := d.Session.SignUp(ctx, "alice@example.com", "secret-pw", "")
	require.NoError(t, err)
	require.NotEmpty(t, d.ViewerID())

	// the 2s token sits inside the refresh leeway, so the next read refreshes
	require.NoError(t, db.Model(&local.RefreshToken{}).Where("1 = 1").Update("revoked", true).Error)

	_, err = d.Explore(ctx, "", listing.FilterAll)
	require.NoError(t, err)
	assert.Equal(t, "", d.ViewerID())

	_, err = d.Submit(ctx, submission.Draft{Title: "t", Body: "b"})
	assert.ErrorIs(t, err, submission.ErrSignInRequired)
}

func TestConcurrentExploreOnOneDevice(t *testing.T) {
	r := newRegistry(t, 10)
	ctx := context.Background()
	d := r.Get(ctx, "dev-1")
	_, err := d.Session.SignUp(ctx, "alice@example.com", "secret-pw", "")
	require.NoError(t, err)
	_, err = d.Submit(ctx, submission.Draft{Title: "Tutor", Body: "teach me"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	lens := make([]int, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rows, err := d.Explore(ctx, "", listing.FilterAll)
			errs[i], lens[i] = err, len(rows)
		}(i)
	}
	wg.Wait()
	for i := range errs {
		assert.NoError(t, errs[i])
		assert.Equal(t, 1, lens[i])
	}
}

func TestAnonymousListingOrderAndVotingDisabled(t *testing.T) {
	b, db := localtest.Open(t)
	r := newRegistryOn(t, b, db, 10)
	ctx := context.Background()

	voters := make([]*gateway.AuthSession, 5)
	for i := range voters {
		voters[i] = localtest.SignUp(t, b, fmt.Sprintf("voter%d@example.com", i), "")
	}
	counts := []int{5, 3, 5, 0, 1, 2, 2, 5}
	byID := map[string]int64{}
	now := time.Now()
	for i, n := range counts {
		p := localtest.SeedPrompt(t, b, voters[0], fmt.Sprintf("Prompt %d", i), models.CategoryOther, now.Add(time.Duration(i)*time.Minute))
		for _, v := range voters[:n] {
			localtest.SeedVote(t, b, v, p.ID)
		}
		byID[p.ID] = int64(n)
	}

	// equal counts keep the backend's row order
	raw, err := b.PromptsWithCounts(ctx, gateway.PromptQuery{})
	require.NoError(t, err)
	var wantOrder []string
	for _, n := range []int64{5, 3, 2, 1, 0} {
		for _, p := range raw {
			if p.VoteCount == n {
				wantOrder = append(wantOrder, p.ID)
			}
		}
	}

	d := r.Get(ctx, "anon")
	rows, err := d.Explore(ctx, "", listing.FilterAll)
	require.NoError(t, err)
	require.Len(t, rows, len(counts))

	got := make([]string, len(rows))
	gotCounts := make([]int64, len(rows))
	for i, row := range rows {
		got[i], gotCounts[i] = row.ID, row.VoteCount
		assert.Equal(t, byID[row.ID], row.VoteCount)
		assert.False(t, row.Voted)
	}
	assert.Equal(t, []int64{5, 5, 5, 3, 2, 2, 1, 0}, gotCounts)
	assert.Equal(t, wantOrder, got)

	assert.Equal(t, "", d.ViewerID())
	for _, row := range rows {
		_, err := d.ToggleVote(ctx, row.ID)
		assert.ErrorIs(t, err, vote.ErrSignInRequired, row.Title)
	}

	again, err := d.Explore(ctx, "", listing.FilterAll)
	require.NoError(t, err)
	assert.Equal(t, rows, again)
}
