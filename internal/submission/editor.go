package submission

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/suPer8Hu/prompt-hub/internal/activity"
	"github.com/suPer8Hu/prompt-hub/internal/gateway"
	"github.com/suPer8Hu/prompt-hub/internal/models"
)

const (
	// SavedFor is how long a successful save keeps its saved indicator.
	SavedFor = 1400 * time.Millisecond
	PageSize = 5
)

var (
	ErrNotFound   = errors.New("submission: prompt not found")
	ErrNotSavable = errors.New("submission: nothing to save")
	ErrSaving     = errors.New("submission: save already in flight")
)

// AfterFunc schedules fn after d. It matches time.AfterFunc so tests can
// substitute a manual clock.
type AfterFunc func(d time.Duration, fn func()) (stop func() bool)

func realAfterFunc(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}

// Record is one of the viewer's prompts with its edit state.
type Record struct {
	models.Prompt
	Dirty  bool   `json:"dirty"`
	Saving bool   `json:"saving"`
	Saved  bool   `json:"saved"`
	Error  string `json:"error,omitempty"`

	savedSeq uint64
	edits    uint64
}

// CanSave mirrors the save button.
func (r Record) CanSave() bool {
	return r.Dirty && !r.Saving &&
		strings.TrimSpace(r.Title) != "" && strings.TrimSpace(r.Body) != ""
}

// Patch changes editable fields. Nil fields are left alone.
type Patch struct {
	Title *string          `json:"title"`
	Body  *string          `json:"body"`
	Type  *models.Category `json:"type"`
	Tags  []string         `json:"tags"`
}

// Page is one page of records.
type Page struct {
	Items      []Record `json:"items"`
	Page       int      `json:"page"`
	TotalPages int      `json:"total_pages"`
	Total      int      `json:"total"`
}

// Lister reads the viewer's prompts.
type Lister interface {
	Prompts(ctx context.Context, q gateway.PromptQuery) ([]models.Prompt, error)
}

// Updater writes one of the viewer's prompts.
type Updater interface {
	UpdatePrompt(ctx context.Context, id, ownerID string, u models.PromptUpdate) error
}

// Editor is the account view's list of the viewer's own prompts.
type Editor struct {
	pub   activity.Publisher
	log   *zap.Logger
	after AfterFunc

	mu      sync.Mutex
	records []*Record
	loaded  bool
	gen     uint64
	seq     uint64
}

type options struct {
	after AfterFunc
}

// Option configures an Editor or NameForm.
type Option func(*options)

// WithAfterFunc replaces the timer used for the saved indicator.
func WithAfterFunc(f AfterFunc) Option {
	return func(o *options) { o.after = f }
}

func buildOptions(opts []Option) options {
	o := options{after: realAfterFunc}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func NewEditor(pub activity.Publisher, log *zap.Logger, opts ...Option) *Editor {
	if pub == nil {
		pub = activity.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Editor{pub: pub, log: log, after: buildOptions(opts).after}
}

// Load replaces the records with ownerID's prompts, newest first. A failed
// read is logged and leaves an empty list. A load overtaken by Reset is
// dropped.
func (e *Editor) Load(ctx context.Context, src Lister, ownerID string) {
	e.mu.Lock()
	gen := e.gen
	e.mu.Unlock()

	var recs []*Record
	if ownerID != "" {
		rows, err := src.Prompts(ctx, gateway.PromptQuery{OwnerID: ownerID, NewestFirst: true})
		if err != nil {
			e.log.Error("load own prompts", zap.String("user_id", ownerID), zap.Error(err))
		}
		recs = make([]*Record, 0, len(rows))
		for _, p := range rows {
			p.Type = models.NormalizeCategory(p.Type)
			if p.Tags == nil {
				p.Tags = []string{}
			}
			recs = append(recs, &Record{Prompt: p})
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen {
		return
	}
	e.records = recs
	e.loaded = true
}

func (e *Editor) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// Reset drops all records and invalidates loads in progress.
func (e *Editor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gen++
	e.records = nil
	e.loaded = false
}

func (e *Editor) find(id string) *Record {
	for _, r := range e.records {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (e *Editor) Get(id string) (Record, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.find(id)
	if r == nil {
		return Record{}, false
	}
	return *r, true
}

func (e *Editor) Records() []Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Record, 0, len(e.records))
	for _, r := range e.records {
		out = append(out, *r)
	}
	return out
}

// Update applies p to the record and marks it dirty.
func (e *Editor) Update(id string, p Patch) (Record, error) {
	if p.Type != nil && !p.Type.Valid() {
		return Record{}, ErrBadCategory
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.find(id)
	if r == nil {
		return Record{}, ErrNotFound
	}
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Body != nil {
		r.Body = *p.Body
	}
	if p.Type != nil {
		r.Type = *p.Type
	}
	if p.Tags != nil {
		r.Tags = NewTagSet(p.Tags...).Tags()
	}
	r.Dirty = true
	r.Saved = false
	r.edits++
	return *r, nil
}

// Save writes the record owned by ownerID. On failure the record stays dirty
// and carries the error message. On success it is clean and shows saved for
// SavedFor, unless it was edited while the write was in flight: then the
// newer edits are kept and the record stays dirty.
func (e *Editor) Save(ctx context.Context, store Updater, ownerID, id string) (Record, error) {
	e.mu.Lock()
	r := e.find(id)
	if r == nil {
		e.mu.Unlock()
		return Record{}, ErrNotFound
	}
	if r.Saving {
		e.mu.Unlock()
		return *r, ErrSaving
	}
	if !r.CanSave() {
		e.mu.Unlock()
		return *r, ErrNotSavable
	}
	r.Saving = true
	r.Error = ""
	r.Saved = false
	edits := r.edits
	u := models.PromptUpdate{
		Title: strings.TrimSpace(r.Title),
		Body:  strings.TrimSpace(r.Body),
		Type:  r.Type,
		Tags:  append([]string{}, r.Tags...),
	}
	e.mu.Unlock()

	err := store.UpdatePrompt(ctx, id, ownerID, u)

	e.mu.Lock()
	defer e.mu.Unlock()
	r = e.find(id)
	if r == nil {
		// reset while saving
		return Record{}, ErrNotFound
	}
	r.Saving = false
	if err != nil {
		e.log.Warn("update prompt", zap.String("prompt_id", id), zap.Error(err))
		r.Error = err.Error()
		return *r, err
	}
	if r.edits != edits {
		_ = e.pub.Publish(ctx, activity.New(activity.PromptUpdated, ownerID, id))
		return *r, nil
	}
	r.Title, r.Body = u.Title, u.Body
	r.Dirty = false
	r.Error = ""
	r.Saved = true
	e.seq++
	r.savedSeq = e.seq
	seq := e.seq
	e.after(SavedFor, func() { e.clearSaved(id, seq) })

	_ = e.pub.Publish(ctx, activity.New(activity.PromptUpdated, ownerID, id))
	return *r, nil
}

func (e *Editor) clearSaved(id string, seq uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r := e.find(id); r != nil && r.savedSeq == seq {
		r.Saved = false
	}
}

// Page returns page n (1-based) of PageSize records, clamped to
// [1, TotalPages]. An empty list has one empty page.
func (e *Editor) Page(n int) Page {
	all := e.Records()
	total := len(all)
	pages := (total + PageSize - 1) / PageSize
	if pages < 1 {
		pages = 1
	}
	if n < 1 {
		n = 1
	}
	if n > pages {
		n = pages
	}
	lo := (n - 1) * PageSize
	hi := min(lo+PageSize, total)
	return Page{Items: all[lo:hi], Page: n, TotalPages: pages, Total: total}
}
