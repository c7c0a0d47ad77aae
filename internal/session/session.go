// Package session tracks the signed-in identity of one device and fans out
// identity changes to subscribers.
package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/suPer8Hu/prompt-hub/internal/gateway"
)

// Identity is the signed-in user.
type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
}

// Auth is the part of gateway.Client the session needs.
type Auth interface {
	Session(ctx context.Context) (*gateway.AuthSession, error)
	OnAuthStateChange(fn func(gateway.AuthChange)) func()
	SignIn(ctx context.Context, email, password string) (*gateway.AuthSession, error)
	SignUp(ctx context.Context, email, password, displayName string) (*gateway.AuthSession, error)
	SignOut(ctx context.Context) error
}

type State struct {
	auth Auth
	log  *zap.Logger

	mu       sync.Mutex
	identity *Identity
	loading  bool
	started  bool
	unsub    func()
	subs     map[int]func(*Identity)
	nextID   int
}

func New(auth Auth, log *zap.Logger) *State {
	if log == nil {
		log = zap.NewNop()
	}
	return &State{
		auth:    auth,
		log:     log,
		loading: true,
		subs:    make(map[int]func(*Identity)),
	}
}

// Start reads the current session once and follows auth-state events until
// Close. Calling it again is a no-op.
func (s *State) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	unsub := s.auth.OnAuthStateChange(func(ch gateway.AuthChange) {
		s.set(fromSession(ch.Session))
	})
	s.mu.Lock()
	s.unsub = unsub
	s.mu.Unlock()

	sess, err := s.auth.Session(ctx)
	if err != nil {
		s.log.Warn("load session", zap.Error(err))
	}
	s.set(fromSession(sess))
	return err
}

// Close stops following auth-state events.
func (s *State) Close() {
	s.mu.Lock()
	unsub := s.unsub
	s.unsub = nil
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Identity returns a copy of the current identity, nil when signed out.
func (s *State) Identity() *Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyIdentity(s.identity)
}

// Loading is true until the first session read completes.
func (s *State) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Subscribe registers fn for identity changes and returns its unsubscribe func.
func (s *State) Subscribe(fn func(*Identity)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *State) SignIn(ctx context.Context, email, password string) error {
	_, err := s.auth.SignIn(ctx, email, password)
	return err
}

// SignUp registers and signs in. pending reports that the backend wants the
// email address confirmed before a session is issued.
func (s *State) SignUp(ctx context.Context, email, password, displayName string) (pending bool, err error) {
	sess, err := s.auth.SignUp(ctx, email, password, displayName)
	if err != nil {
		return false, err
	}
	return sess == nil, nil
}

func (s *State) SignOut(ctx context.Context) error {
	return s.auth.SignOut(ctx)
}

func (s *State) set(id *Identity) {
	s.mu.Lock()
	wasLoading := s.loading
	s.loading = false
	if !wasLoading && sameIdentity(s.identity, id) {
		s.mu.Unlock()
		return
	}
	s.identity = id
	fns := make([]func(*Identity), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(copyIdentity(id))
	}
}

func fromSession(sess *gateway.AuthSession) *Identity {
	if sess == nil {
		return nil
	}
	return &Identity{ID: sess.User.ID, Email: sess.User.Email, DisplayName: sess.User.DisplayName}
}

func sameIdentity(a, b *Identity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func copyIdentity(id *Identity) *Identity {
	if id == nil {
		return nil
	}
	cp := *id
	return &cp
}
