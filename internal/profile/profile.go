// Package profile assembles the public profile page: the profile row, the
// optional precomputed metrics, the profile's prompts and its vote counts.
package profile

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/suPer8Hu/prompt-hub/internal/gateway"
	"github.com/suPer8Hu/prompt-hub/internal/listing"
	"github.com/suPer8Hu/prompt-hub/internal/models"
)

var ErrNotFound = errors.New("Profile not found")

const (
	fallbackName = "User"
	unknownAge   = "—"
)

// Source is the read surface of the profile page.
type Source interface {
	listing.Source
	Profile(ctx context.Context, id string) (*models.Profile, error)
	ProfileMetrics(ctx context.Context, userID string) (*models.ProfileMetrics, error)
	CountVotesGiven(ctx context.Context, userID string) (int64, error)
}

// Stat is one headline number, with a percentile label when metrics exist.
type Stat struct {
	Value      int64  `json:"value"`
	Percentile string `json:"percentile,omitempty"`
}

type Stats struct {
	PromptsCreated Stat `json:"prompts_created"`
	VotesReceived  Stat `json:"votes_received"`
	VotesGiven     Stat `json:"votes_given"`
}

// Page is everything the profile page renders.
type Page struct {
	Profile     models.Profile         `json:"profile"`
	DisplayName string                 `json:"display_name"`
	ShortID     string                 `json:"short_id"`
	Age         string                 `json:"age"`
	Metrics     *models.ProfileMetrics `json:"metrics"`
	Stats       Stats                  `json:"stats"`
	Prompts     []listing.Row          `json:"prompts"`
}

type Aggregator struct {
	loader *listing.Loader
	log    *zap.Logger
	now    func() time.Time
}

func NewAggregator(loader *listing.Loader, log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	if loader == nil {
		loader = listing.NewLoader(log, nil)
	}
	return &Aggregator{loader: loader, log: log, now: time.Now}
}

// Aggregate reads the four parts of profileID's page concurrently. Only an
// empty profileID fails; every read error degrades its part.
func (a *Aggregator) Aggregate(ctx context.Context, src Source, profileID, viewerID string) (*Page, error) {
	if profileID == "" {
		return nil, ErrNotFound
	}

	var (
		prof       *models.Profile
		metrics    *models.ProfileMetrics
		rows       []listing.Row
		votesGiven int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := src.Profile(gctx, profileID)
		if err != nil {
			a.log.Warn("load profile", zap.String("profile_id", profileID), zap.Error(err))
		}
		prof = p
		return nil
	})
	g.Go(func() error {
		m, err := src.ProfileMetrics(gctx, profileID)
		if err != nil && !errors.Is(err, gateway.ErrUnavailable) {
			a.log.Debug("load profile metrics", zap.String("profile_id", profileID), zap.Error(err))
		}
		if err == nil {
			metrics = m
		}
		return nil
	})
	g.Go(func() error {
		r, err := a.loader.Load(gctx, src, viewerID, gateway.PromptQuery{OwnerID: profileID, NewestFirst: true})
		if err != nil {
			a.log.Error("load profile prompts", zap.String("profile_id", profileID), zap.Error(err))
			r = []listing.Row{}
		}
		rows = r
		return nil
	})
	g.Go(func() error {
		n, err := src.CountVotesGiven(gctx, profileID)
		if err != nil {
			a.log.Warn("count votes given", zap.String("profile_id", profileID), zap.Error(err))
			n = 0
		}
		votesGiven = n
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if prof == nil {
		prof = &models.Profile{ID: profileID}
	}

	name := fallbackName
	if prof.DisplayName != nil && strings.TrimSpace(*prof.DisplayName) != "" {
		name = *prof.DisplayName
	}
	page := &Page{
		Profile:     *prof,
		DisplayName: name,
		ShortID:     ShortID(profileID),
		Age:         Age(prof.CreatedAt, a.now()),
		Metrics:     metrics,
		Prompts:     rows,
		Stats:       BuildStats(metrics, rows, votesGiven),
	}
	return page, nil
}

// BuildStats prefers the precomputed metrics and otherwise derives the
// numbers from the loaded prompts and the direct votes-given count.
func BuildStats(m *models.ProfileMetrics, rows []listing.Row, votesGiven int64) Stats {
	if m != nil {
		return Stats{
			PromptsCreated: Stat{Value: m.PromptsCreated, Percentile: Ordinal(m.PromptsPercentile)},
			VotesReceived:  Stat{Value: m.VotesReceived, Percentile: Ordinal(m.VotesReceivedPercentile)},
			VotesGiven:     Stat{Value: m.VotesGiven, Percentile: Ordinal(m.VotesGivenPercentile)},
		}
	}
	var received int64
	for _, r := range rows {
		received += r.VoteCount
	}
	return Stats{
		PromptsCreated: Stat{Value: int64(len(rows))},
		VotesReceived:  Stat{Value: received},
		VotesGiven:     Stat{Value: votesGiven},
	}
}

// Ordinal renders a percentile as "42nd percentile". Values at or below zero
// render as "0th percentile"; others are rounded and clamped to 1..100.
func Ordinal(p float64) string {
	if math.IsNaN(p) || p <= 0 {
		return "0th percentile"
	}
	v := int(math.Max(1, math.Min(100, math.Round(p))))
	j, k := v%10, v%100
	suffix := "th"
	switch {
	case j == 1 && k != 11:
		suffix = "st"
	case j == 2 && k != 12:
		suffix = "nd"
	case j == 3 && k != 13:
		suffix = "rd"
	}
	return fmt.Sprintf("%d%s percentile", v, suffix)
}

// AgeDays is the number of whole days since created, never negative.
func AgeDays(created, now time.Time) int {
	d := int(math.Floor(now.Sub(created).Hours() / 24))
	return max(0, d)
}

// Age renders AgeDays as "12d", or a dash when created is unknown.
func Age(created *time.Time, now time.Time) string {
	if created == nil || created.IsZero() {
		return unknownAge
	}
	return fmt.Sprintf("%dd", AgeDays(*created, now))
}

// ShortID is the first eight characters of id followed by an ellipsis.
func ShortID(id string) string {
	r := []rune(id)
	if len(r) > 8 {
		r = r[:8]
	}
	return string(r) + "…"
}
