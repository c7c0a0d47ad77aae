package submission

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/suPer8Hu/prompt-hub/internal/activity"
	"github.com/suPer8Hu/prompt-hub/internal/models"
)

// ProfileStore reads and writes the viewer's profile row.
type ProfileStore interface {
	Profile(ctx context.Context, id string) (*models.Profile, error)
	UpdateDisplayName(ctx context.Context, id string, name *string) error
}

// NameState is the display-name form as rendered on the account page.
type NameState struct {
	Value     string     `json:"display_name"`
	CreatedAt *time.Time `json:"created_at"`
	Saving    bool       `json:"saving"`
	Saved     bool       `json:"saved"`
	Error     string     `json:"error,omitempty"`
}

// NameForm edits the viewer's display name.
type NameForm struct {
	pub   activity.Publisher
	log   *zap.Logger
	after AfterFunc

	mu     sync.Mutex
	state  NameState
	loaded bool
	seq    uint64
}

func NewNameForm(pub activity.Publisher, log *zap.Logger, opts ...Option) *NameForm {
	if pub == nil {
		pub = activity.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &NameForm{pub: pub, log: log, after: buildOptions(opts).after}
}

// Load reads userID's profile. A missing row leaves the form empty.
func (f *NameForm) Load(ctx context.Context, src ProfileStore, userID string) error {
	p, err := src.Profile(ctx, userID)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = NameState{}
	if err != nil {
		f.state.Error = err.Error()
		return err
	}
	f.loaded = true
	if p != nil {
		if p.DisplayName != nil {
			f.state.Value = *p.DisplayName
		}
		f.state.CreatedAt = p.CreatedAt
	}
	return nil
}

func (f *NameForm) Set(v string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Value = v
	f.state.Saved = false
}

func (f *NameForm) State() NameState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *NameForm) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.state = NameState{}
	f.loaded = false
}

func (f *NameForm) Loaded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaded
}

// Save stores the trimmed value for userID; a blank value clears the name.
func (f *NameForm) Save(ctx context.Context, store ProfileStore, userID string) (NameState, error) {
	if userID == "" {
		return f.State(), ErrSignInRequired
	}
	f.mu.Lock()
	if f.state.Saving {
		st := f.state
		f.mu.Unlock()
		return st, ErrSaving
	}
	f.state.Saving = true
	f.state.Saved = false
	f.state.Error = ""
	trimmed := strings.TrimSpace(f.state.Value)
	f.mu.Unlock()

	var name *string
	if trimmed != "" {
		name = &trimmed
	}
	err := store.UpdateDisplayName(ctx, userID, name)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Saving = false
	if err != nil {
		f.log.Warn("update display name", zap.String("user_id", userID), zap.Error(err))
		f.state.Error = err.Error()
		return f.state, err
	}
	f.state.Value = trimmed
	f.state.Saved = true
	f.seq++
	seq := f.seq
	f.after(SavedFor, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.seq == seq {
			f.state.Saved = false
		}
	})
	_ = f.pub.Publish(ctx, activity.New(activity.ProfileUpdated, userID, ""))
	return f.state, nil
}
