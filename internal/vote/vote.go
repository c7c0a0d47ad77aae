// Package vote toggles a viewer's vote on a prompt. Local card state changes
// only after the backend confirms the write, so a failed toggle leaves the
// card exactly as it was.
package vote

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/suPer8Hu/prompt-hub/internal/activity"
	"github.com/suPer8Hu/prompt-hub/internal/models"
)

var (
	ErrSignInRequired = errors.New("vote: sign in required")
	ErrInFlight       = errors.New("vote: toggle already in flight")
	ErrUnknownPrompt  = errors.New("vote: unknown prompt")
)

// Card is the vote state of one prompt as seen by one viewer.
type Card struct {
	PromptID string `json:"prompt_id"`
	Voted    bool   `json:"voted"`
	Count    int64  `json:"vote_count"`
	Pending  bool   `json:"pending"`
}

// Board holds the cards of one device.
type Board struct {
	mu    sync.Mutex
	cards map[string]*Card
}

func NewBoard() *Board {
	return &Board{cards: make(map[string]*Card)}
}

// Sync seeds or refreshes a card from loaded row values. A card with a toggle
// in flight keeps its state.
func (b *Board) Sync(promptID string, voted bool, count int64) Card {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.cards[promptID]
	if !ok {
		c = &Card{PromptID: promptID}
		b.cards[promptID] = c
	}
	if !c.Pending {
		c.Voted = voted
		c.Count = count
	}
	return *c
}

func (b *Board) Get(promptID string) (Card, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.cards[promptID]
	if !ok {
		return Card{}, false
	}
	return *c, true
}

// Reset forgets every card that is not mid-toggle.
func (b *Board) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, c := range b.cards {
		if !c.Pending {
			delete(b.cards, id)
		}
	}
}

func (b *Board) begin(promptID string) (Card, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.cards[promptID]
	if !ok {
		return Card{}, ErrUnknownPrompt
	}
	if c.Pending {
		return Card{}, ErrInFlight
	}
	c.Pending = true
	return *c, nil
}

func (b *Board) finish(promptID string, apply func(*Card)) Card {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.cards[promptID]
	if apply != nil {
		apply(c)
	}
	c.Pending = false
	return *c
}

// Store is the write surface for votes.
type Store interface {
	InsertVote(ctx context.Context, v models.Vote) error
	DeleteVote(ctx context.Context, promptID, userID string) error
}

// Recorder observes toggle outcomes.
type Recorder interface {
	VoteToggled(outcome string)
}

// Toggle outcomes reported to the Recorder.
const (
	OutcomeAdded    = "added"
	OutcomeRemoved  = "removed"
	OutcomeFailed   = "failed"
	OutcomeRejected = "rejected"
)

type Reconciler struct {
	guard Guard
	pub   activity.Publisher
	rec   Recorder
	log   *zap.Logger
}

func NewReconciler(guard Guard, pub activity.Publisher, rec Recorder, log *zap.Logger) *Reconciler {
	if guard == nil {
		guard = NewLocalGuard()
	}
	if pub == nil {
		pub = activity.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{guard: guard, pub: pub, rec: rec, log: log}
}

func (r *Reconciler) record(outcome string) {
	if r.rec != nil {
		r.rec.VoteToggled(outcome)
	}
}

// Toggle flips the viewer's vote on the card for promptID. Without a viewer
// it returns ErrSignInRequired and does nothing; with a toggle already in
// flight for the card it returns ErrInFlight. onChange, when set, runs after
// a confirmed write with the count delta and the new voted state.
func (r *Reconciler) Toggle(ctx context.Context, store Store, board *Board, promptID, viewerID string, onChange func(delta int64, voted bool)) (Card, error) {
	if viewerID == "" {
		return Card{}, ErrSignInRequired
	}
	before, err := board.begin(promptID)
	if err != nil {
		if errors.Is(err, ErrInFlight) {
			r.record(OutcomeRejected)
		}
		return Card{}, err
	}

	release, ok, err := r.guard.Acquire(ctx, promptID+":"+viewerID)
	if err != nil || !ok {
		board.finish(promptID, nil)
		r.record(OutcomeRejected)
		if err != nil {
			return before, fmt.Errorf("vote guard: %w", err)
		}
		return before, ErrInFlight
	}
	defer release()

	var (
		kind  activity.Kind
		delta int64
	)
	if before.Voted {
		err = store.DeleteVote(ctx, promptID, viewerID)
		kind, delta = activity.VoteRemoved, -1
	} else {
		err = store.InsertVote(ctx, models.Vote{PromptID: promptID, UserID: viewerID})
		kind, delta = activity.VoteAdded, 1
	}
	if err != nil {
		r.log.Error("toggle vote",
			zap.String("prompt_id", promptID),
			zap.String("user_id", viewerID),
			zap.Bool("was_voted", before.Voted),
			zap.Error(err),
		)
		board.finish(promptID, nil)
		r.record(OutcomeFailed)
		return before, err
	}

	after := board.finish(promptID, func(c *Card) {
		c.Voted = !before.Voted
		c.Count += delta
	})
	if onChange != nil {
		onChange(delta, after.Voted)
	}
	if after.Voted {
		r.record(OutcomeAdded)
	} else {
		r.record(OutcomeRemoved)
	}
	_ = r.pub.Publish(ctx, activity.New(kind, viewerID, promptID))
	return after, nil
}
