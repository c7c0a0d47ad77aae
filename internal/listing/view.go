package listing

import (
	"context"
	"errors"
	"sync"

	"github.com/suPer8Hu/prompt-hub/internal/gateway"
)

// ErrStale is returned by View.Load when an Invalidate happened while the load
// was in flight; its result was discarded.
var ErrStale = errors.New("listing: load superseded")

// View is the explore list state of one device.
type View struct {
	loader *Loader

	mu     sync.Mutex
	gen    uint64
	loaded bool
	rows   []Row
}

func NewView(loader *Loader) *View {
	return &View{loader: loader}
}

// Load replaces the rows unless the view was invalidated meanwhile.
// Overlapping loads for one generation all succeed; the last to finish wins.
func (v *View) Load(ctx context.Context, src Source, viewerID string) error {
	v.mu.Lock()
	gen := v.gen
	v.mu.Unlock()

	rows, err := v.loader.Load(ctx, src, viewerID, gateway.PromptQuery{})

	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.gen {
		return ErrStale
	}
	if err != nil {
		return err
	}
	v.rows = rows
	v.loaded = true
	return nil
}

// Invalidate drops the rows and discards any load still in flight.
func (v *View) Invalidate() {
	v.mu.Lock()
	v.gen++
	v.loaded = false
	v.rows = nil
	v.mu.Unlock()
}

func (v *View) Loaded() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loaded
}

// Results builds the list for query and filter from the loaded rows.
func (v *View) Results(query, filter string) []Row {
	v.mu.Lock()
	rows := v.rows
	v.mu.Unlock()
	return Build(rows, query, filter)
}

// Row returns the loaded row with id.
func (v *View) Row(id string) (Row, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, r := range v.rows {
		if r.ID == id {
			return r, true
		}
	}
	return Row{}, false
}

// ApplyVote records a confirmed vote change on the loaded row.
func (v *View) ApplyVote(id string, voted bool, count int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	rows := make([]Row, len(v.rows))
	copy(rows, v.rows)
	for i := range rows {
		if rows[i].ID == id {
			rows[i].Voted = voted
			rows[i].VoteCount = count
		}
	}
	v.rows = rows
}
