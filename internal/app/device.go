// Package app bundles the per-device state objects and the operations the
// HTTP layer runs against them.
package app

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/suPer8Hu/prompt-hub/internal/activity"
	"github.com/suPer8Hu/prompt-hub/internal/gateway"
	"github.com/suPer8Hu/prompt-hub/internal/listing"
	"github.com/suPer8Hu/prompt-hub/internal/models"
	"github.com/suPer8Hu/prompt-hub/internal/prefs"
	"github.com/suPer8Hu/prompt-hub/internal/profile"
	"github.com/suPer8Hu/prompt-hub/internal/session"
	"github.com/suPer8Hu/prompt-hub/internal/submission"
	"github.com/suPer8Hu/prompt-hub/internal/theme"
	"github.com/suPer8Hu/prompt-hub/internal/vote"
)

var ErrSignInRequired = errors.New("sign in required")

// maxStaleReloads bounds reloads of a listing invalidated while loading.
const maxStaleReloads = 3

// Deps are shared by every device.
type Deps struct {
	Backend   gateway.Backend
	Prefs     *prefs.Store
	Loader    *listing.Loader
	Votes     *vote.Reconciler
	Profiles  *profile.Aggregator
	Publisher activity.Publisher
	Log       *zap.Logger

	// Timer options for the saved indicators; tests use a manual clock.
	SavedTimer []submission.Option
}

func (d *Deps) defaults() {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Publisher == nil {
		d.Publisher = activity.Nop{}
	}
	if d.Loader == nil {
		d.Loader = listing.NewLoader(d.Log, nil)
	}
	if d.Votes == nil {
		d.Votes = vote.NewReconciler(nil, d.Publisher, nil, d.Log)
	}
	if d.Profiles == nil {
		d.Profiles = profile.NewAggregator(d.Loader, d.Log)
	}
}

// Device is the state of one browser. Its identity changes drop every
// cached view so nothing loaded for one user is shown to another.
type Device struct {
	ID string

	Client    *gateway.Client
	Session   *session.State
	Theme     *theme.State
	Listing   *listing.View
	Board     *vote.Board
	Submitter *submission.Submitter
	Editor    *submission.Editor
	Name      *submission.NameForm

	deps   *Deps
	log    *zap.Logger
	unsubs []func()
	once   sync.Once
}

func newDevice(ctx context.Context, id string, deps *Deps) *Device {
	log := deps.Log.With(zap.String("device_id", id))
	store := deps.Prefs.Device(id)
	client := gateway.NewClient(deps.Backend, store, log)

	d := &Device{
		ID:        id,
		Client:    client,
		Session:   session.New(client, log),
		Theme:     theme.Load(ctx, store, log),
		Listing:   listing.NewView(deps.Loader),
		Board:     vote.NewBoard(),
		Submitter: submission.NewSubmitter(deps.Publisher, log),
		Editor:    submission.NewEditor(deps.Publisher, log, deps.SavedTimer...),
		Name:      submission.NewNameForm(deps.Publisher, log, deps.SavedTimer...),
		deps:      deps,
		log:       log,
	}
	d.unsubs = append(d.unsubs, d.Session.Subscribe(func(*session.Identity) {
		d.Listing.Invalidate()
		d.Board.Reset()
		d.Editor.Reset()
		d.Name.Reset()
	}))
	if err := d.Session.Start(ctx); err != nil {
		log.Warn("start session", zap.Error(err))
	}
	return d
}

// Close releases the device's subscriptions.
func (d *Device) Close() {
	d.once.Do(func() {
		for _, u := range d.unsubs {
			u()
		}
		d.Session.Close()
	})
}

// ViewerID is the signed-in user id, or "" when anonymous.
func (d *Device) ViewerID() string {
	if id := d.Session.Identity(); id != nil {
		return id.ID
	}
	return ""
}

// Refresh brings the identity up to date with the backend session, rotating
// an access token close to expiry, and returns the viewer id. A session the
// backend no longer accepts leaves the device signed out.
func (d *Device) Refresh(ctx context.Context) string {
	if _, err := d.Client.Session(ctx); err != nil {
		d.log.Warn("refresh session", zap.Error(err))
	}
	return d.ViewerID()
}

// Explore returns the explore list, loading it on first use. Rows carry the
// device's card state so a vote in flight shows its pre-toggle values.
func (d *Device) Explore(ctx context.Context, query, filter string) ([]listing.Row, error) {
	if !listing.ValidFilter(filter) {
		return nil, listing.ErrBadFilter
	}
	viewer := d.Refresh(ctx)
	for attempt := 0; attempt <= maxStaleReloads && !d.Listing.Loaded(); attempt++ {
		err := d.Listing.Load(ctx, d.Client, viewer)
		if errors.Is(err, listing.ErrStale) {
			// identity changed mid-load; load again for the new viewer
			viewer = d.ViewerID()
			continue
		}
		if err != nil {
			return nil, err
		}
	}
	return d.syncCards(d.Listing.Results(query, filter)), nil
}

func (d *Device) syncCards(rows []listing.Row) []listing.Row {
	for i := range rows {
		c := d.Board.Sync(rows[i].ID, rows[i].Voted, rows[i].VoteCount)
		rows[i].Voted, rows[i].VoteCount = c.Voted, c.Count
	}
	return rows
}

// ToggleVote flips the viewer's vote on promptID. The prompt must have been
// shown to this device.
func (d *Device) ToggleVote(ctx context.Context, promptID string) (vote.Card, error) {
	if _, ok := d.Board.Get(promptID); !ok {
		if r, ok := d.Listing.Row(promptID); ok {
			d.Board.Sync(r.ID, r.Voted, r.VoteCount)
		}
	}
	viewer := d.Refresh(ctx)
	card, err := d.deps.Votes.Toggle(ctx, d.Client, d.Board, promptID, viewer, nil)
	if err != nil {
		return card, err
	}
	d.Listing.ApplyVote(promptID, card.Voted, card.Count)
	return card, nil
}

// Submit creates a prompt for the viewer. The explore list reloads on next
// read so the new prompt appears.
func (d *Device) Submit(ctx context.Context, draft submission.Draft) (*models.Prompt, error) {
	p, err := d.Submitter.Submit(ctx, d.Client, d.Refresh(ctx), draft)
	if err != nil {
		return nil, err
	}
	d.Listing.Invalidate()
	d.Editor.Reset()
	return p, nil
}

func (d *Device) ensureEditor(ctx context.Context) (string, error) {
	viewer := d.Refresh(ctx)
	if viewer == "" {
		return "", ErrSignInRequired
	}
	if !d.Editor.Loaded() {
		d.Editor.Load(ctx, d.Client, viewer)
	}
	return viewer, nil
}

// MyPrompts returns page n of the viewer's prompts.
func (d *Device) MyPrompts(ctx context.Context, page int) (submission.Page, error) {
	if _, err := d.ensureEditor(ctx); err != nil {
		return submission.Page{}, err
	}
	return d.Editor.Page(page), nil
}

func (d *Device) EditPrompt(ctx context.Context, id string, p submission.Patch) (submission.Record, error) {
	if _, err := d.ensureEditor(ctx); err != nil {
		return submission.Record{}, err
	}
	return d.Editor.Update(id, p)
}

func (d *Device) SavePrompt(ctx context.Context, id string) (submission.Record, error) {
	viewer, err := d.ensureEditor(ctx)
	if err != nil {
		return submission.Record{}, err
	}
	rec, err := d.Editor.Save(ctx, d.Client, viewer, id)
	if err == nil {
		d.Listing.Invalidate()
	}
	return rec, err
}

// MyProfile returns the display-name form, reading the profile on first use.
func (d *Device) MyProfile(ctx context.Context) (submission.NameState, error) {
	viewer := d.Refresh(ctx)
	if viewer == "" {
		return submission.NameState{}, ErrSignInRequired
	}
	if !d.Name.Loaded() {
		if err := d.Name.Load(ctx, d.Client, viewer); err != nil {
			return d.Name.State(), err
		}
	}
	return d.Name.State(), nil
}

func (d *Device) SetDisplayName(ctx context.Context, name string) (submission.NameState, error) {
	if _, err := d.MyProfile(ctx); err != nil {
		return submission.NameState{}, err
	}
	d.Name.Set(name)
	st, err := d.Name.Save(ctx, d.Client, d.ViewerID())
	if err == nil {
		d.Listing.Invalidate()
	}
	return st, err
}

// Profile aggregates profileID's page as seen by the viewer.
func (d *Device) Profile(ctx context.Context, profileID string) (*profile.Page, error) {
	page, err := d.deps.Profiles.Aggregate(ctx, d.Client, profileID, d.Refresh(ctx))
	if err != nil {
		return nil, err
	}
	page.Prompts = d.syncCards(page.Prompts)
	return page, nil
}
