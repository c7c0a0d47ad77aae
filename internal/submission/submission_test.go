package submission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suPer8Hu/prompt-hub/internal/activity"
	"github.com/suPer8Hu/prompt-hub/internal/gateway"
	"github.com/suPer8Hu/prompt-hub/internal/gateway/local/localtest"
	"github.com/suPer8Hu/prompt-hub/internal/models"
)

func TestTagSetKeys(t *testing.T) {
	s := NewTagSet()

	in := s.Key("  Go ", KeyEnter)
	assert.Equal(t, "", in)
	in = s.Key("rust", KeyComma)
	assert.Equal(t, "", in)
	assert.Equal(t, []string{"go", "rust"}, s.Tags())

	// duplicates and blanks keep the input
	assert.Equal(t, "GO", s.Key("GO", KeyEnter))
	assert.Equal(t, "   ", s.Key("   ", KeyEnter))
	assert.Equal(t, 2, s.Len())

	// backspace only removes on empty input
	assert.Equal(t, "x", s.Key("x", KeyBackspace))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, "", s.Key("", KeyBackspace))
	assert.Equal(t, []string{"go"}, s.Tags())

	assert.Equal(t, "abc", s.Key("abc", "a"))
	s.Remove("go")
	assert.Equal(t, []string{}, s.Tags())
	assert.Equal(t, "", s.Key("", KeyBackspace))
}

func TestNewTagSetDedupes(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, NewTagSet("A", " a", "b", "").Tags())
}

func TestDraftCanSubmit(t *testing.T) {
	d := NewDraft()
	assert.Equal(t, models.CategoryLearning, d.Type)
	assert.False(t, d.CanSubmit(true, false))

	d.Title, d.Body = "t", "  "
	assert.ErrorIs(t, d.Validate(), ErrBlankBody)
	d.Body = "b"
	assert.True(t, d.CanSubmit(true, false))
	assert.False(t, d.CanSubmit(false, false))
	assert.False(t, d.CanSubmit(true, true))

	d.Type = "Chat Setup"
	assert.ErrorIs(t, d.Validate(), ErrBadCategory)
}

type memPublisher struct {
	mu     sync.Mutex
	events []activity.Event
}

func (p *memPublisher) Publish(_ context.Context, e activity.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func TestSubmitAgainstLocalBackend(t *testing.T) {
	b, _ := localtest.Open(t)
	alice := localtest.SignUp(t, b, "alice@example.com", "Alice")
	pub := &memPublisher{}
	s := NewSubmitter(pub, nil)

	_, err := s.Submit(context.Background(), b, "", Draft{Title: "x", Body: "y"})
	assert.EqualError(t, err, "Please sign in first.")

	p, err := s.Submit(localtest.As(alice), b, alice.User.ID, Draft{
		Title: "  Tutor  ",
		Body:  " explain things ",
		Tags:  []string{"Go", "go", " study "},
	})
	require.NoError(t, err)
	assert.Equal(t, "Tutor", p.Title)
	assert.Equal(t, "explain things", p.Body)
	assert.Equal(t, models.CategoryLearning, p.Type)
	assert.Equal(t, []string{"go", "study"}, p.Tags)
	assert.False(t, s.InFlight())

	require.Len(t, pub.events, 1)
	assert.Equal(t, activity.PromptCreated, pub.events[0].Kind)
	assert.Equal(t, p.ID, pub.events[0].PromptID)
}

type failingInserter struct{ err error }

func (f failingInserter) InsertPrompt(context.Context, models.Prompt) (*models.Prompt, error) {
	return nil, f.err
}

func TestSubmitSurfacesBackendError(t *testing.T) {
	pub := &memPublisher{}
	s := NewSubmitter(pub, nil)
	_, err := s.Submit(context.Background(), failingInserter{gateway.ErrForbidden}, "u1", Draft{Title: "a", Body: "b"})
	assert.EqualError(t, err, gateway.ErrForbidden.Error())
	assert.Empty(t, pub.events)
}

// manualTimers collects scheduled callbacks so tests fire them explicitly.
type manualTimers struct {
	mu  sync.Mutex
	fns []func()
	ds  []time.Duration
}

func (m *manualTimers) AfterFunc(d time.Duration, fn func()) func() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fns = append(m.fns, fn)
	m.ds = append(m.ds, d)
	return func() bool { return true }
}

func (m *manualTimers) fire() {
	m.mu.Lock()
	fns := m.fns
	m.fns = nil
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func ptr[T any](v T) *T { return &v }

func TestEditorLoadSaveCycle(t *testing.T) {
	b, _ := localtest.Open(t)
	alice := localtest.SignUp(t, b, "alice@example.com", "")
	bob := localtest.SignUp(t, b, "bob@example.com", "")
	now := time.Now()
	old := localtest.SeedPrompt(t, b, alice, "old", models.LegacyChatSetup, now.Add(-time.Hour))
	newer := localtest.SeedPrompt(t, b, alice, "new", models.CategoryOther, now)
	localtest.SeedPrompt(t, b, bob, "bobs", models.CategoryOther, now)

	timers := &manualTimers{}
	pub := &memPublisher{}
	e := NewEditor(pub, nil, WithAfterFunc(timers.AfterFunc))
	ctx := localtest.As(alice)
	e.Load(ctx, b, alice.User.ID)

	recs := e.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, newer.ID, recs[0].ID)
	assert.Equal(t, old.ID, recs[1].ID)
	assert.Equal(t, models.CategoryLearning, recs[1].Type)
	assert.False(t, recs[0].CanSave())

	_, err := e.Save(ctx, b, alice.User.ID, newer.ID)
	assert.ErrorIs(t, err, ErrNotSavable)

	r, err := e.Update(newer.ID, Patch{Title: ptr("  renamed "), Tags: []string{"X"}})
	require.NoError(t, err)
	assert.True(t, r.Dirty)
	assert.True(t, r.CanSave())

	r, err = e.Save(ctx, b, alice.User.ID, newer.ID)
	require.NoError(t, err)
	assert.False(t, r.Dirty)
	assert.True(t, r.Saved)
	assert.Equal(t, "renamed", r.Title)
	require.Len(t, timers.ds, 1)
	assert.Equal(t, SavedFor, timers.ds[0])

	timers.fire()
	r, _ = e.Get(newer.ID)
	assert.False(t, r.Saved)

	rows, err := b.Prompts(ctx, gateway.PromptQuery{OwnerID: alice.User.ID, NewestFirst: true})
	require.NoError(t, err)
	assert.Equal(t, "renamed", rows[0].Title)
	assert.Equal(t, []string{"x"}, rows[0].Tags)

	require.Len(t, pub.events, 1)
	assert.Equal(t, activity.PromptUpdated, pub.events[0].Kind)
}

type failingUpdater struct{ err error }

func (f failingUpdater) UpdatePrompt(context.Context, string, string, models.PromptUpdate) error {
	return f.err
}

type staticLister struct {
	rows []models.Prompt
	err  error
}

func (s staticLister) Prompts(context.Context, gateway.PromptQuery) ([]models.Prompt, error) {
	return s.rows, s.err
}

func TestEditorSaveFailureKeepsDirty(t *testing.T) {
	e := NewEditor(nil, nil, WithAfterFunc((&manualTimers{}).AfterFunc))
	e.Load(context.Background(), staticLister{rows: []models.Prompt{{ID: "p1", Title: "a", Body: "b"}}}, "u1")

	_, err := e.Update("p1", Patch{Body: ptr("c")})
	require.NoError(t, err)
	r, err := e.Save(context.Background(), failingUpdater{errors.New("denied")}, "u1", "p1")
	assert.EqualError(t, err, "denied")
	assert.True(t, r.Dirty)
	assert.False(t, r.Saving)
	assert.False(t, r.Saved)
	assert.Equal(t, "denied", r.Error)
	assert.Equal(t, []string{}, r.Tags)

	_, err = e.Update("p1", Patch{Title: ptr(" ")})
	require.NoError(t, err)
	r, _ = e.Get("p1")
	assert.False(t, r.CanSave())

	_, err = e.Update("p1", Patch{Type: ptr(models.Category("nope"))})
	assert.ErrorIs(t, err, ErrBadCategory)
	_, err = e.Update("missing", Patch{})
	assert.ErrorIs(t, err, ErrNotFound)
}

// duringUpdate runs fn while the write is in flight.
type duringUpdate struct {
	fn  func()
	got models.PromptUpdate
}

func (d *duringUpdate) UpdatePrompt(_ context.Context, _, _ string, u models.PromptUpdate) error {
	d.got = u
	d.fn()
	return nil
}

func TestEditorEditDuringSaveStaysDirty(t *testing.T) {
	timers := &manualTimers{}
	pub := &memPublisher{}
	e := NewEditor(pub, nil, WithAfterFunc(timers.AfterFunc))
	e.Load(context.Background(), staticLister{rows: []models.Prompt{{ID: "p1", Title: "a", Body: "b"}}}, "u1")

	_, err := e.Update("p1", Patch{Title: ptr("first")})
	require.NoError(t, err)

	store := &duringUpdate{fn: func() {
		_, err := e.Update("p1", Patch{Title: ptr("second")})
		require.NoError(t, err)
	}}
	r, err := e.Save(context.Background(), store, "u1", "p1")
	require.NoError(t, err)
	assert.Equal(t, "first", store.got.Title)
	assert.Equal(t, "second", r.Title)
	assert.True(t, r.Dirty)
	assert.False(t, r.Saving)
	assert.False(t, r.Saved)
	assert.True(t, r.CanSave())
	assert.Empty(t, timers.fns)
	assert.Len(t, pub.events, 1)

	// saving again writes the newer title and settles
	r, err = e.Save(context.Background(), failingUpdater{}, "u1", "p1")
	require.NoError(t, err)
	assert.Equal(t, "second", r.Title)
	assert.False(t, r.Dirty)
	assert.True(t, r.Saved)
}

func TestEditorLoadErrorGivesEmptyList(t *testing.T) {
	e := NewEditor(nil, nil)
	e.Load(context.Background(), staticLister{err: errors.New("down")}, "u1")
	assert.Empty(t, e.Records())
	p := e.Page(3)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 1, p.TotalPages)
	assert.Empty(t, p.Items)
}

func TestEditorPaging(t *testing.T) {
	rows := make([]models.Prompt, 12)
	for i := range rows {
		rows[i] = models.Prompt{ID: string(rune('a' + i)), Title: "t", Body: "b"}
	}
	e := NewEditor(nil, nil)
	e.Load(context.Background(), staticLister{rows: rows}, "u1")

	p := e.Page(1)
	assert.Equal(t, 3, p.TotalPages)
	assert.Len(t, p.Items, 5)
	assert.Equal(t, "a", p.Items[0].ID)

	p = e.Page(9)
	assert.Equal(t, 3, p.Page)
	require.Len(t, p.Items, 2)
	assert.Equal(t, "k", p.Items[0].ID)

	assert.Equal(t, 1, e.Page(0).Page)

	e.Reset()
	assert.Empty(t, e.Records())
}

func TestNameFormSave(t *testing.T) {
	b, _ := localtest.Open(t)
	alice := localtest.SignUp(t, b, "alice@example.com", "Alice")
	ctx := localtest.As(alice)
	timers := &manualTimers{}
	pub := &memPublisher{}
	f := NewNameForm(pub, nil, WithAfterFunc(timers.AfterFunc))

	require.NoError(t, f.Load(ctx, b, alice.User.ID))
	st := f.State()
	assert.Equal(t, "Alice", st.Value)
	assert.NotNil(t, st.CreatedAt)

	f.Set("  Al  ")
	st, err := f.Save(ctx, b, alice.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "Al", st.Value)
	assert.True(t, st.Saved)
	timers.fire()
	assert.False(t, f.State().Saved)

	p, err := b.Profile(ctx, alice.User.ID)
	require.NoError(t, err)
	require.NotNil(t, p.DisplayName)
	assert.Equal(t, "Al", *p.DisplayName)

	f.Set("   ")
	_, err = f.Save(ctx, b, alice.User.ID)
	require.NoError(t, err)
	p, err = b.Profile(ctx, alice.User.ID)
	require.NoError(t, err)
	assert.Nil(t, p.DisplayName)

	require.Len(t, pub.events, 2)
	assert.Equal(t, activity.ProfileUpdated, pub.events[0].Kind)

	_, err = f.Save(ctx, b, "")
	assert.ErrorIs(t, err, ErrSignInRequired)
}
