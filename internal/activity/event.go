// Package activity defines the events emitted when prompts, votes or profiles
// change. The server publishes them; the worker consumes them to refresh the
// precomputed profile metrics.
package activity

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/suPer8Hu/prompt-hub/internal/common"
)

type Kind string

const (
	VoteAdded      Kind = "vote.added"
	VoteRemoved    Kind = "vote.removed"
	PromptCreated  Kind = "prompt.created"
	PromptUpdated  Kind = "prompt.updated"
	ProfileUpdated Kind = "profile.updated"
)

var ErrBadEvent = errors.New("activity: malformed event")

type Event struct {
	ID       string    `json:"id"`
	Kind     Kind      `json:"type"`
	UserID   string    `json:"user_id"`
	PromptID string    `json:"prompt_id,omitempty"`
	At       time.Time `json:"at"`
}

// New stamps an event with a ULID and the current time.
func New(kind Kind, userID, promptID string) Event {
	id, err := common.NewULID()
	if err != nil {
		id = ""
	}
	return Event{ID: id, Kind: kind, UserID: userID, PromptID: promptID, At: time.Now().UTC()}
}

func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses and validates a published event.
func Decode(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, err
	}
	if e.Kind == "" || e.UserID == "" {
		return Event{}, ErrBadEvent
	}
	return e, nil
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop drops every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Outcome receives the result of every publish attempt.
type Outcome func(kind Kind, err error)

// Logged wraps a Publisher so that failures are logged and reported to an
// Outcome but never returned to the caller.
type Logged struct {
	next    Publisher
	log     *zap.Logger
	outcome Outcome
}

func NewLogged(next Publisher, log *zap.Logger, outcome Outcome) *Logged {
	if next == nil {
		next = Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Logged{next: next, log: log, outcome: outcome}
}

func (l *Logged) Publish(ctx context.Context, e Event) error {
	err := l.next.Publish(ctx, e)
	if err != nil {
		l.log.Warn("publish activity event",
			zap.String("event_id", e.ID),
			zap.String("type", string(e.Kind)),
			zap.Error(err),
		)
	}
	if l.outcome != nil {
		l.outcome(e.Kind, err)
	}
	return nil
}
