// Package refresh keeps the precomputed profile metrics current as activity
// events arrive. Events that land while a recompute runs are folded into a
// single follow-up pass.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/suPer8Hu/prompt-hub/internal/activity"
)

// ErrBadMessage marks bodies that can never be handled and should not be retried.
var ErrBadMessage = errors.New("refresh: bad message")

// RecomputeFunc rebuilds every profile's metrics and returns the row count.
type RecomputeFunc func(ctx context.Context) (int, error)

type Refresher struct {
	recompute RecomputeFunc
	log       *zap.Logger
	onDone    func()

	mu      sync.Mutex
	running bool
	dirty   bool
}

// New returns a Refresher. onDone, when set, runs after each successful pass.
func New(recompute RecomputeFunc, log *zap.Logger, onDone func()) *Refresher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Refresher{recompute: recompute, log: log, onDone: onDone}
}

// Handle decodes one message body and refreshes. Malformed bodies return an
// error wrapping ErrBadMessage.
func (r *Refresher) Handle(ctx context.Context, body []byte) error {
	e, err := activity.Decode(body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadMessage, err)
	}
	r.log.Debug("activity event",
		zap.String("event_id", e.ID),
		zap.String("type", string(e.Kind)),
		zap.String("user_id", e.UserID),
	)
	return r.Trigger(ctx)
}

// Trigger recomputes now, or when a pass is already running, asks that pass
// to run once more after it finishes and returns immediately.
func (r *Refresher) Trigger(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.dirty = true
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.mu.Unlock()

	for {
		start := time.Now()
		n, err := r.recompute(ctx)

		r.mu.Lock()
		again := r.dirty && err == nil
		r.dirty = false
		if !again {
			r.running = false
		}
		r.mu.Unlock()

		if err != nil {
			return fmt.Errorf("recompute profile metrics: %w", err)
		}
		r.log.Info("profile metrics refreshed", zap.Int("profiles", n), zap.Duration("cost", time.Since(start)))
		if r.onDone != nil {
			r.onDone()
		}
		if !again {
			return nil
		}
	}
}
