package submission

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/suPer8Hu/prompt-hub/internal/activity"
	"github.com/suPer8Hu/prompt-hub/internal/models"
)

var (
	ErrSignInRequired = errors.New("Please sign in first.")
	ErrInFlight       = errors.New("submission: request already in flight")
	ErrBlankTitle     = errors.New("title is required")
	ErrBlankBody      = errors.New("prompt text is required")
	ErrBadCategory    = errors.New("unknown prompt type")
)

// Draft is the content of the submit dialog.
type Draft struct {
	Title string          `json:"title"`
	Body  string          `json:"body"`
	Type  models.Category `json:"type"`
	Tags  []string        `json:"tags"`
}

// NewDraft is the state of a freshly opened dialog.
func NewDraft() Draft {
	return Draft{Type: models.CategoryLearning, Tags: []string{}}
}

// Validate checks title, body and category. An empty category means the
// default.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return ErrBlankTitle
	}
	if strings.TrimSpace(d.Body) == "" {
		return ErrBlankBody
	}
	if d.Type != "" && !d.Type.Valid() {
		return ErrBadCategory
	}
	return nil
}

// CanSubmit mirrors the submit button: enabled only with content, an
// identity and nothing in flight.
func (d Draft) CanSubmit(signedIn, inFlight bool) bool {
	return signedIn && !inFlight && d.Validate() == nil
}

// Inserter stores new prompts.
type Inserter interface {
	InsertPrompt(ctx context.Context, p models.Prompt) (*models.Prompt, error)
}

// Submitter creates prompts for one device. At most one submission is in
// flight at a time.
type Submitter struct {
	pub activity.Publisher
	log *zap.Logger

	mu       sync.Mutex
	inFlight bool
}

func NewSubmitter(pub activity.Publisher, log *zap.Logger) *Submitter {
	if pub == nil {
		pub = activity.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Submitter{pub: pub, log: log}
}

func (s *Submitter) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Submit inserts d owned by ownerID with title and body trimmed and tags
// normalized. Backend errors are returned unchanged for inline display.
func (s *Submitter) Submit(ctx context.Context, store Inserter, ownerID string, d Draft) (*models.Prompt, error) {
	if ownerID == "" {
		return nil, ErrSignInRequired
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return nil, ErrInFlight
	}
	s.inFlight = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	cat := d.Type
	if cat == "" {
		cat = models.CategoryLearning
	}
	p, err := store.InsertPrompt(ctx, models.Prompt{
		UserID: ownerID,
		Title:  strings.TrimSpace(d.Title),
		Body:   strings.TrimSpace(d.Body),
		Type:   cat,
		Tags:   NewTagSet(d.Tags...).Tags(),
	})
	if err != nil {
		s.log.Warn("insert prompt", zap.String("user_id", ownerID), zap.Error(err))
		return nil, err
	}
	_ = s.pub.Publish(ctx, activity.New(activity.PromptCreated, ownerID, p.ID))
	return p, nil
}
