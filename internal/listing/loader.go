package listing

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/suPer8Hu/prompt-hub/internal/gateway"
	"github.com/suPer8Hu/prompt-hub/internal/models"
)

// Source is the read surface the loader needs.
type Source interface {
	PromptsWithCounts(ctx context.Context, q gateway.PromptQuery) ([]models.PromptWithCount, error)
	Prompts(ctx context.Context, q gateway.PromptQuery) ([]models.Prompt, error)
	VotedPromptIDs(ctx context.Context, userID string) ([]string, error)
}

// DegradedRecorder counts reads that fell back to a degraded path.
type DegradedRecorder interface {
	Degraded(resource string)
}

type nopRecorder struct{}

func (nopRecorder) Degraded(string) {}

type Loader struct {
	log      *zap.Logger
	degraded DegradedRecorder
}

func NewLoader(log *zap.Logger, degraded DegradedRecorder) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	if degraded == nil {
		degraded = nopRecorder{}
	}
	return &Loader{log: log, degraded: degraded}
}

// Load fetches rows and, for a signed-in viewer, the viewer's vote set
// concurrently, then marks and normalizes the rows. When the aggregated view
// fails or is empty the base prompts are used with zero counts. A failed
// vote-set read leaves every row unvoted.
func (l *Loader) Load(ctx context.Context, src Source, viewerID string, q gateway.PromptQuery) ([]Row, error) {
	var (
		rows  []Row
		voted []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := l.rows(gctx, src, q)
		rows = r
		return err
	})
	if viewerID != "" {
		g.Go(func() error {
			ids, err := src.VotedPromptIDs(gctx, viewerID)
			if err != nil {
				l.log.Warn("load viewer votes", zap.String("viewer", viewerID), zap.Error(err))
				return nil
			}
			voted = ids
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	Mark(rows, voted)
	return Normalize(rows), nil
}

func (l *Loader) rows(ctx context.Context, src Source, q gateway.PromptQuery) ([]Row, error) {
	counted, err := src.PromptsWithCounts(ctx, q)
	if err == nil && len(counted) > 0 {
		return FromCounts(counted), nil
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		l.log.Warn("prompts_with_counts unavailable, falling back to prompts", zap.Error(err))
		l.degraded.Degraded("prompts_with_counts")
	}

	base, err := src.Prompts(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	return FromPrompts(base), nil
}
