package gateway_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suPer8Hu/prompt-hub/internal/gateway"
	"github.com/suPer8Hu/prompt-hub/internal/gateway/local"
	"github.com/suPer8Hu/prompt-hub/internal/gateway/local/localtest"
	"github.com/suPer8Hu/prompt-hub/internal/models"
)

type memTokens struct {
	mu sync.Mutex
	rt string
}

func (m *memTokens) LoadRefreshToken(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rt, nil
}

func (m *memTokens) SaveRefreshToken(_ context.Context, t string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rt = t
	return nil
}

type recorder struct {
	mu     sync.Mutex
	events []gateway.AuthEvent
}

func (r *recorder) on(ch gateway.AuthChange) {
	r.mu.Lock()
	r.events = append(r.events, ch.Event)
	r.mu.Unlock()
}

func (r *recorder) all() []gateway.AuthEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]gateway.AuthEvent(nil), r.events...)
}

func TestClientSignInEventsAndPersistence(t *testing.T) {
	b, _ := localtest.Open(t)
	localtest.SignUp(t, b, "ada@example.com", "Ada")
	ctx := context.Background()

	tokens := &memTokens{}
	c := gateway.NewClient(b, tokens, nil)
	rec := &recorder{}
	unsub := c.OnAuthStateChange(rec.on)

	s, err := c.Session(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = c.SignIn(ctx, "ada@example.com", "secret-pw")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", s.User.Email)
	assert.NotEmpty(t, tokens.rt)

	// A second client on the same device restores the session.
	c2 := gateway.NewClient(b, tokens, nil)
	rec2 := &recorder{}
	c2.OnAuthStateChange(rec2.on)
	restored, err := c2.Session(ctx)
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, s.User.ID, restored.User.ID)
	assert.Equal(t, []gateway.AuthEvent{gateway.EventInitialSession}, rec2.all())

	require.NoError(t, c.SignOut(ctx))
	assert.Empty(t, tokens.rt)

	unsub()
	unsub()
	_, err = c.SignIn(ctx, "ada@example.com", "secret-pw")
	require.NoError(t, err)

	assert.Equal(t, []gateway.AuthEvent{
		gateway.EventInitialSession,
		gateway.EventSignedIn,
		gateway.EventSignedOut,
	}, rec.all())
}

func TestClientRefreshesNearExpiry(t *testing.T) {
	db := localtest.OpenDB(t)
	b := local.New(db, localtest.Secret, time.Second)
	localtest.SignUp(t, b, "ada@example.com", "")
	ctx := context.Background()

	c := gateway.NewClient(b, nil, nil)
	_, _ = c.Session(ctx)
	first, err := c.SignIn(ctx, "ada@example.com", "secret-pw")
	require.NoError(t, err)

	rec := &recorder{}
	c.OnAuthStateChange(rec.on)

	// The 1s access token is inside the refresh leeway.
	next, err := c.Session(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.NotEqual(t, first.RefreshToken, next.RefreshToken)
	assert.Equal(t, []gateway.AuthEvent{gateway.EventTokenRefreshed}, rec.all())
}

func TestClientRejectedRefreshSignsOut(t *testing.T) {
	db := localtest.OpenDB(t)
	b := local.New(db, localtest.Secret, time.Second)
	localtest.SignUp(t, b, "ada@example.com", "")
	ctx := context.Background()

	c := gateway.NewClient(b, nil, nil)
	_, _ = c.Session(ctx)
	s, err := c.SignIn(ctx, "ada@example.com", "secret-pw")
	require.NoError(t, err)
	require.NoError(t, b.SignOut(ctx, s.AccessToken))

	rec := &recorder{}
	c.OnAuthStateChange(rec.on)
	got, err := c.Session(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, []gateway.AuthEvent{gateway.EventSignedOut}, rec.all())
}

func TestClientAttachesAccessToken(t *testing.T) {
	b, _ := localtest.Open(t)
	localtest.SignUp(t, b, "ada@example.com", "")
	ctx := context.Background()

	c := gateway.NewClient(b, nil, nil)
	_, err := c.InsertPrompt(ctx, models.Prompt{UserID: "anyone", Title: "t", Body: "b"})
	assert.ErrorIs(t, err, gateway.ErrNoSession)

	s, err := c.SignIn(ctx, "ada@example.com", "secret-pw")
	require.NoError(t, err)
	p, err := c.InsertPrompt(ctx, models.Prompt{UserID: s.User.ID, Title: "t", Body: "b", Type: models.CategoryLearning})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
}

func TestClientRefreshesBeforeAuthedCalls(t *testing.T) {
	db := localtest.OpenDB(t)
	b := local.New(db, localtest.Secret, 2*time.Second)
	localtest.SignUp(t, b, "ada@example.com", "")
	ctx := context.Background()

	c := gateway.NewClient(b, nil, nil)
	_, _ = c.Session(ctx)
	s, err := c.SignIn(ctx, "ada@example.com", "secret-pw")
	require.NoError(t, err)
	rec := &recorder{}
	c.OnAuthStateChange(rec.on)

	time.Sleep(2500 * time.Millisecond)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.InsertPrompt(ctx, models.Prompt{UserID: s.User.ID, Title: "t", Body: "b", Type: models.CategoryOther})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}

	cur, err := c.Session(ctx)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, s.User.ID, cur.User.ID)
	assert.NotContains(t, rec.all(), gateway.EventSignedOut)
}
