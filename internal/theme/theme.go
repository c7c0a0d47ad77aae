// Package theme holds the per-device color theme preference.
package theme

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

type Mode string

const (
	ModeSystem Mode = "system"
	ModeLight  Mode = "light"
	ModeDark   Mode = "dark"
)

type Theme string

const (
	Light Theme = "light"
	Dark  Theme = "dark"
)

// StorageKey is the device storage key of the persisted mode.
const StorageKey = "theme-mode"

var (
	ErrInvalidMode  = errors.New("theme: invalid mode")
	ErrInvalidTheme = errors.New("theme: invalid system theme")
)

func ParseMode(s string) (Mode, bool) {
	switch m := Mode(s); m {
	case ModeSystem, ModeLight, ModeDark:
		return m, true
	}
	return ModeSystem, false
}

func ParseTheme(s string) (Theme, bool) {
	switch t := Theme(s); t {
	case Light, Dark:
		return t, true
	}
	return "", false
}

func (t Theme) opposite() Theme {
	if t == Dark {
		return Light
	}
	return Dark
}

// Storage is device-local key/value storage.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Snapshot is the observable theme state.
type Snapshot struct {
	Mode      Mode  `json:"mode"`
	System    Theme `json:"system"`
	Effective Theme `json:"effective"`
}

type State struct {
	storage Storage
	log     *zap.Logger

	mu     sync.Mutex
	mode   Mode
	system Theme
	subs   map[int]func(Snapshot)
	nextID int
}

// Load reads the persisted mode. Missing, unreadable or unknown values yield
// system mode. The system theme starts dark until the client reports it.
func Load(ctx context.Context, storage Storage, log *zap.Logger) *State {
	if log == nil {
		log = zap.NewNop()
	}
	s := &State{
		storage: storage,
		log:     log,
		mode:    ModeSystem,
		system:  Dark,
		subs:    make(map[int]func(Snapshot)),
	}
	if storage == nil {
		return s
	}
	v, ok, err := storage.Get(ctx, StorageKey)
	if err != nil {
		log.Warn("read theme mode", zap.Error(err))
		return s
	}
	if ok {
		s.mode, _ = ParseMode(v)
	}
	return s
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() Snapshot {
	eff := s.system
	if s.mode != ModeSystem {
		eff = Theme(s.mode)
	}
	return Snapshot{Mode: s.mode, System: s.system, Effective: eff}
}

func (s *State) SetMode(ctx context.Context, m Mode) (Snapshot, error) {
	if _, ok := ParseMode(string(m)); !ok {
		return s.Snapshot(), ErrInvalidMode
	}
	return s.apply(ctx, func() { s.mode = m }), nil
}

// Toggle leaves system mode for the opposite of the system theme, and returns
// to system mode from an explicit choice.
func (s *State) Toggle(ctx context.Context) Snapshot {
	return s.apply(ctx, func() {
		if s.mode == ModeSystem {
			s.mode = Mode(s.system.opposite())
		} else {
			s.mode = ModeSystem
		}
	})
}

// SetSystemTheme records the theme reported by the client platform.
func (s *State) SetSystemTheme(t Theme) (Snapshot, error) {
	if _, ok := ParseTheme(string(t)); !ok {
		return s.Snapshot(), ErrInvalidTheme
	}
	s.mu.Lock()
	prev := s.snapshotLocked()
	s.system = t
	snap := s.snapshotLocked()
	fns := s.subscribersLocked()
	s.mu.Unlock()

	if snap != prev {
		for _, fn := range fns {
			fn(snap)
		}
	}
	return snap, nil
}

func (s *State) apply(ctx context.Context, mutate func()) Snapshot {
	s.mu.Lock()
	prev := s.snapshotLocked()
	mutate()
	snap := s.snapshotLocked()
	fns := s.subscribersLocked()
	s.mu.Unlock()

	if snap.Mode != prev.Mode && s.storage != nil {
		if err := s.storage.Set(ctx, StorageKey, string(snap.Mode)); err != nil {
			s.log.Warn("persist theme mode", zap.Error(err))
		}
	}
	if snap != prev {
		for _, fn := range fns {
			fn(snap)
		}
	}
	return snap
}

func (s *State) subscribersLocked() []func(Snapshot) {
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	return fns
}

// Subscribe registers fn for changes and returns its unsubscribe func.
func (s *State) Subscribe(fn func(Snapshot)) func() {
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
