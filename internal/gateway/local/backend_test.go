package local_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suPer8Hu/prompt-hub/internal/gateway"
	"github.com/suPer8Hu/prompt-hub/internal/gateway/local"
	"github.com/suPer8Hu/prompt-hub/internal/gateway/local/localtest"
	"github.com/suPer8Hu/prompt-hub/internal/models"
)

func TestSignUpCreatesProfileAndSession(t *testing.T) {
	b, _ := localtest.Open(t)
	ctx := context.Background()

	s, err := b.SignUp(ctx, " Ada@Example.com ", "secret-pw", "Ada")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "ada@example.com", s.User.Email)
	assert.NotEmpty(t, s.AccessToken)
	assert.NotEmpty(t, s.RefreshToken)

	p, err := b.Profile(ctx, s.User.ID)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.NotNil(t, p.DisplayName)
	assert.Equal(t, "Ada", *p.DisplayName)

	_, err = b.SignUp(ctx, "ada@example.com", "other-pw", "")
	assert.ErrorIs(t, err, gateway.ErrUserExists)
}

func TestSignInRejectsBadPassword(t *testing.T) {
	b, _ := localtest.Open(t)
	ctx := context.Background()
	localtest.SignUp(t, b, "bo@example.com", "")

	_, err := b.SignIn(ctx, "bo@example.com", "wrong")
	assert.ErrorIs(t, err, gateway.ErrInvalidCredentials)
	_, err = b.SignIn(ctx, "nobody@example.com", "secret-pw")
	assert.ErrorIs(t, err, gateway.ErrInvalidCredentials)

	s, err := b.SignIn(ctx, "bo@example.com", "secret-pw")
	require.NoError(t, err)
	u, err := b.User(ctx, s.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, s.User.ID, u.ID)
}

func TestRefreshRotatesToken(t *testing.T) {
	b, _ := localtest.Open(t)
	ctx := context.Background()
	s := localtest.SignUp(t, b, "cy@example.com", "")

	next, err := b.Refresh(ctx, s.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, s.RefreshToken, next.RefreshToken)

	_, err = b.Refresh(ctx, s.RefreshToken)
	assert.ErrorIs(t, err, gateway.ErrNoSession)

	require.NoError(t, b.SignOut(ctx, next.AccessToken))
	_, err = b.Refresh(ctx, next.RefreshToken)
	assert.ErrorIs(t, err, gateway.ErrNoSession)
}

func TestWritesRequireOwner(t *testing.T) {
	b, _ := localtest.Open(t)
	alice := localtest.SignUp(t, b, "alice@example.com", "")
	bob := localtest.SignUp(t, b, "bob@example.com", "")

	_, err := b.InsertPrompt(context.Background(), models.Prompt{UserID: alice.User.ID, Title: "t", Body: "b"})
	assert.ErrorIs(t, err, gateway.ErrNoSession)

	_, err = b.InsertPrompt(localtest.As(bob), models.Prompt{UserID: alice.User.ID, Title: "t", Body: "b"})
	assert.ErrorIs(t, err, gateway.ErrForbidden)

	p := localtest.SeedPrompt(t, b, alice, "mine", models.CategoryLearning, time.Now())
	err = b.UpdatePrompt(localtest.As(bob), p.ID, alice.User.ID, models.PromptUpdate{Title: "x", Body: "y"})
	assert.ErrorIs(t, err, gateway.ErrForbidden)

	err = b.InsertVote(localtest.As(bob), models.Vote{PromptID: p.ID, UserID: alice.User.ID})
	assert.ErrorIs(t, err, gateway.ErrForbidden)
}

func TestPromptsWithCounts(t *testing.T) {
	b, _ := localtest.Open(t)
	ctx := context.Background()
	alice := localtest.SignUp(t, b, "alice@example.com", "Alice")
	bob := localtest.SignUp(t, b, "bob@example.com", "")

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p1 := localtest.SeedPrompt(t, b, alice, "one", models.CategoryLearning, base)
	p2 := localtest.SeedPrompt(t, b, alice, "two", models.CategoryPersona, base.Add(time.Hour))
	localtest.SeedPrompt(t, b, bob, "three", models.CategoryOther, base.Add(2*time.Hour))
	localtest.SeedVote(t, b, alice, p1.ID)
	localtest.SeedVote(t, b, bob, p1.ID)
	localtest.SeedVote(t, b, bob, p2.ID)

	rows, err := b.PromptsWithCounts(ctx, gateway.PromptQuery{OwnerID: alice.User.ID, NewestFirst: true})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "two", rows[0].Title)
	assert.Equal(t, int64(1), rows[0].VoteCount)
	assert.Equal(t, int64(2), rows[1].VoteCount)
	require.NotNil(t, rows[1].AuthorDisplayName)
	assert.Equal(t, "Alice", *rows[1].AuthorDisplayName)
	assert.Equal(t, []string{}, rows[1].Tags)

	ids, err := b.VotedPromptIDs(ctx, bob.User.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{p1.ID, p2.ID}, ids)

	n, err := b.CountVotesGiven(ctx, bob.User.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, b.DeleteVote(localtest.As(bob), p1.ID, bob.User.ID))
	n, err = b.CountVotesGiven(ctx, bob.User.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDuplicateVoteFails(t *testing.T) {
	b, _ := localtest.Open(t)
	alice := localtest.SignUp(t, b, "alice@example.com", "")
	p := localtest.SeedPrompt(t, b, alice, "one", models.CategoryLearning, time.Now())
	localtest.SeedVote(t, b, alice, p.ID)

	err := b.InsertVote(localtest.As(alice), models.Vote{PromptID: p.ID, UserID: alice.User.ID})
	assert.Error(t, err)
}

func TestUpdatePromptWritesZeroValues(t *testing.T) {
	b, _ := localtest.Open(t)
	alice := localtest.SignUp(t, b, "alice@example.com", "")
	p, err := b.InsertPrompt(localtest.As(alice), models.Prompt{
		UserID: alice.User.ID, Title: "t", Body: "b", Type: models.CategoryLearning, Tags: []string{"go"},
	})
	require.NoError(t, err)

	err = b.UpdatePrompt(localtest.As(alice), p.ID, alice.User.ID, models.PromptUpdate{
		Title: "t2", Body: "b2", Type: models.CategoryPersona,
	})
	require.NoError(t, err)

	rows, err := b.Prompts(context.Background(), gateway.PromptQuery{OwnerID: alice.User.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "t2", rows[0].Title)
	assert.Equal(t, models.CategoryPersona, rows[0].Type)
	assert.Empty(t, rows[0].Tags)
}

func TestUpdateDisplayName(t *testing.T) {
	b, _ := localtest.Open(t)
	alice := localtest.SignUp(t, b, "alice@example.com", "Alice")

	require.NoError(t, b.UpdateDisplayName(localtest.As(alice), alice.User.ID, nil))
	p, err := b.Profile(context.Background(), alice.User.ID)
	require.NoError(t, err)
	assert.Nil(t, p.DisplayName)
	assert.NotNil(t, p.DisplayNameLastChangedAt)

	missing, err := b.Profile(context.Background(), "no-such-id")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestViewsUnavailable(t *testing.T) {
	b, _ := localtest.Open(t, local.WithoutViews())
	ctx := context.Background()

	_, err := b.PromptsWithCounts(ctx, gateway.PromptQuery{})
	assert.ErrorIs(t, err, gateway.ErrUnavailable)
	_, err = b.ProfileMetrics(ctx, "x")
	assert.ErrorIs(t, err, gateway.ErrUnavailable)
}

func TestRecomputeProfileMetrics(t *testing.T) {
	b, db := localtest.Open(t)
	ctx := context.Background()
	alice := localtest.SignUp(t, b, "alice@example.com", "")
	bob := localtest.SignUp(t, b, "bob@example.com", "")
	carol := localtest.SignUp(t, b, "carol@example.com", "")

	now := time.Now()
	p1 := localtest.SeedPrompt(t, b, alice, "a1", models.CategoryLearning, now)
	localtest.SeedPrompt(t, b, alice, "a2", models.CategoryLearning, now)
	localtest.SeedPrompt(t, b, bob, "b1", models.CategoryLearning, now)
	localtest.SeedVote(t, b, bob, p1.ID)
	localtest.SeedVote(t, b, carol, p1.ID)

	n, err := local.RecomputeProfileMetrics(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	m, err := b.ProfileMetrics(ctx, alice.User.ID)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, int64(2), m.PromptsCreated)
	assert.Equal(t, int64(2), m.VotesReceived)
	assert.Equal(t, int64(0), m.VotesGiven)
	assert.InDelta(t, 100, m.PromptsPercentile, 0.001)
	assert.InDelta(t, 0, m.VotesGivenPercentile, 0.001)

	m, err = b.ProfileMetrics(ctx, carol.User.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), m.PromptsCreated)
	assert.InDelta(t, 0, m.PromptsPercentile, 0.001)
	assert.InDelta(t, 50, m.VotesGivenPercentile, 0.001)

	// idempotent
	n, err = local.RecomputeProfileMetrics(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestPercentRanks(t *testing.T) {
	assert.Equal(t, []float64{}, local.PercentRanks(nil))
	assert.Equal(t, []float64{100}, local.PercentRanks([]int64{7}))
	assert.Equal(t, []float64{0, 100, 50}, local.PercentRanks([]int64{1, 5, 3}))
	assert.Equal(t, []float64{0, 0, 100}, local.PercentRanks([]int64{2, 2, 9}))
}
