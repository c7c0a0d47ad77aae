package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/suPer8Hu/prompt-hub/internal/models"
)

// AuthEvent names an auth-state change.
type AuthEvent string

const (
	EventInitialSession AuthEvent = "INITIAL_SESSION"
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
)

// AuthChange is delivered to OnAuthStateChange listeners. Session is nil
// after sign-out.
type AuthChange struct {
	Event   AuthEvent
	Session *AuthSession
}

// TokenStore persists the refresh token on the device.
type TokenStore interface {
	LoadRefreshToken(ctx context.Context) (string, error)
	SaveRefreshToken(ctx context.Context, token string) error
}

// refreshLeeway is how early before expiry a session is refreshed.
const refreshLeeway = 30 * time.Second

// Client is the typed, per-device gateway client. It implements Tables by
// forwarding to the backend with the current access token attached,
// refreshing that token first when it is about to expire.
type Client struct {
	backend Backend
	tokens  TokenStore
	log     *zap.Logger
	now     func() time.Time

	// refresh tokens are single-use, so concurrent refreshes share one call
	refreshes singleflight.Group

	mu        sync.Mutex
	session   *AuthSession
	restored  bool
	listeners map[int]func(AuthChange)
	nextID    int
}

func NewClient(backend Backend, tokens TokenStore, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		backend:   backend,
		tokens:    tokens,
		log:       log,
		now:       time.Now,
		listeners: make(map[int]func(AuthChange)),
	}
}

// OnAuthStateChange registers fn and returns its unsubscribe func.
func (c *Client) OnAuthStateChange(fn func(AuthChange)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

func (c *Client) emit(ev AuthEvent, s *AuthSession) {
	c.mu.Lock()
	fns := make([]func(AuthChange), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	ch := AuthChange{Event: ev, Session: copySession(s)}
	for _, fn := range fns {
		fn(ch)
	}
}

// Session returns the current session, restoring it from the persisted
// refresh token on first use and refreshing it when close to expiry.
// It returns nil, nil for an anonymous device.
func (c *Client) Session(ctx context.Context) (*AuthSession, error) {
	c.mu.Lock()
	first := !c.restored
	c.restored = true
	c.mu.Unlock()

	if first {
		s := c.restore(ctx)
		c.emit(EventInitialSession, s)
		return copySession(s), nil
	}
	return copySession(c.current(ctx)), nil
}

// current returns the live session, rotating it when the access token is
// inside refreshLeeway of expiry. A refresh the backend rejects signs the
// device out; other refresh failures keep the old session.
func (c *Client) current(ctx context.Context) *AuthSession {
	c.mu.Lock()
	cur := c.session
	c.mu.Unlock()
	if cur == nil || c.now().Add(refreshLeeway).Before(cur.ExpiresAt) {
		return cur
	}

	v, _, _ := c.refreshes.Do(cur.RefreshToken, func() (any, error) {
		// the refresh outlives a caller that gives up on it
		ctx := context.WithoutCancel(ctx)
		if latest, ok := c.superseded(cur); ok {
			return latest, nil
		}
		s, err := c.backend.Refresh(ctx, cur.RefreshToken)
		if latest, ok := c.superseded(cur); ok {
			// signed out or in again meanwhile
			return latest, nil
		}
		if err != nil {
			if !errors.Is(err, ErrNoSession) {
				c.log.Warn("session refresh failed", zap.Error(err))
				return cur, nil
			}
			c.log.Info("session refresh rejected", zap.Error(err))
			c.setSession(ctx, nil)
			c.emit(EventSignedOut, nil)
			return (*AuthSession)(nil), nil
		}
		c.setSession(ctx, s)
		c.emit(EventTokenRefreshed, s)
		return s, nil
	})
	s, _ := v.(*AuthSession)
	return s
}

// superseded reports whether the session changed away from cur.
func (c *Client) superseded(cur *AuthSession) (*AuthSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.session.RefreshToken != cur.RefreshToken {
		return c.session, true
	}
	return nil, false
}

func (c *Client) restore(ctx context.Context) *AuthSession {
	if c.tokens == nil {
		return nil
	}
	rt, err := c.tokens.LoadRefreshToken(ctx)
	if err != nil {
		c.log.Warn("load refresh token", zap.Error(err))
		return nil
	}
	if rt == "" {
		return nil
	}
	s, err := c.backend.Refresh(ctx, rt)
	if err != nil {
		c.log.Info("persisted session rejected", zap.Error(err))
		c.setSession(ctx, nil)
		return nil
	}
	c.setSession(ctx, s)
	return s
}

func (c *Client) setSession(ctx context.Context, s *AuthSession) {
	c.mu.Lock()
	c.session = s
	c.restored = true
	c.mu.Unlock()

	if c.tokens == nil {
		return
	}
	rt := ""
	if s != nil {
		rt = s.RefreshToken
	}
	if err := c.tokens.SaveRefreshToken(ctx, rt); err != nil {
		c.log.Warn("persist refresh token", zap.Error(err))
	}
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*AuthSession, error) {
	s, err := c.backend.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	c.setSession(ctx, s)
	c.emit(EventSignedIn, s)
	return copySession(s), nil
}

// SignUp creates the account. A nil session means the backend wants the
// address confirmed first.
func (c *Client) SignUp(ctx context.Context, email, password, displayName string) (*AuthSession, error) {
	s, err := c.backend.SignUp(ctx, email, password, displayName)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, nil
	}
	c.setSession(ctx, s)
	c.emit(EventSignedIn, s)
	return copySession(s), nil
}

// SignOut always clears the local session; the backend error, if any, is
// returned after the local state is gone.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	cur := c.session
	c.mu.Unlock()

	var err error
	if cur != nil {
		err = c.backend.SignOut(ctx, cur.AccessToken)
	}
	c.setSession(ctx, nil)
	c.emit(EventSignedOut, nil)
	return err
}

func (c *Client) authed(ctx context.Context) context.Context {
	s := c.current(ctx)
	if s == nil {
		return ctx
	}
	return WithAccessToken(ctx, s.AccessToken)
}

func (c *Client) PromptsWithCounts(ctx context.Context, q PromptQuery) ([]models.PromptWithCount, error) {
	return c.backend.PromptsWithCounts(c.authed(ctx), q)
}

func (c *Client) Prompts(ctx context.Context, q PromptQuery) ([]models.Prompt, error) {
	return c.backend.Prompts(c.authed(ctx), q)
}

func (c *Client) InsertPrompt(ctx context.Context, p models.Prompt) (*models.Prompt, error) {
	return c.backend.InsertPrompt(c.authed(ctx), p)
}

func (c *Client) UpdatePrompt(ctx context.Context, id, ownerID string, u models.PromptUpdate) error {
	return c.backend.UpdatePrompt(c.authed(ctx), id, ownerID, u)
}

func (c *Client) VotedPromptIDs(ctx context.Context, userID string) ([]string, error) {
	return c.backend.VotedPromptIDs(c.authed(ctx), userID)
}

func (c *Client) CountVotesGiven(ctx context.Context, userID string) (int64, error) {
	return c.backend.CountVotesGiven(c.authed(ctx), userID)
}

func (c *Client) InsertVote(ctx context.Context, v models.Vote) error {
	return c.backend.InsertVote(c.authed(ctx), v)
}

func (c *Client) DeleteVote(ctx context.Context, promptID, userID string) error {
	return c.backend.DeleteVote(c.authed(ctx), promptID, userID)
}

func (c *Client) Profile(ctx context.Context, id string) (*models.Profile, error) {
	return c.backend.Profile(c.authed(ctx), id)
}

func (c *Client) UpdateDisplayName(ctx context.Context, id string, name *string) error {
	return c.backend.UpdateDisplayName(c.authed(ctx), id, name)
}

func (c *Client) ProfileMetrics(ctx context.Context, userID string) (*models.ProfileMetrics, error) {
	return c.backend.ProfileMetrics(c.authed(ctx), userID)
}

func copySession(s *AuthSession) *AuthSession {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

var _ Tables = (*Client)(nil)
