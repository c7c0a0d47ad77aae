// Package supabase implements gateway.Backend against a hosted Supabase
// project: PostgREST for tables and views, GoTrue for auth. Row-level
// policies are enforced by the project; requests carry the caller's access
// token from the context.
package supabase

import (
	"context"
	"fmt"
	"strings"
	"time"

	postgrest "github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"
	"go.uber.org/zap"

	"github.com/suPer8Hu/prompt-hub/internal/gateway"
	"github.com/suPer8Hu/prompt-hub/internal/models"
)

const (
	tablePrompts           = "prompts"
	tableVotes             = "prompt_votes"
	tableProfiles          = "profiles"
	viewPromptsWithCounts  = "prompts_with_counts"
	viewProfileMetrics     = "profile_metrics"
	metadataDisplayNameKey = "display_name"
)

type Backend struct {
	url  string
	key  string
	anon *supa.Client
	log  *zap.Logger
}

func New(url, anonKey string, log *zap.Logger) (*Backend, error) {
	if log == nil {
		log = zap.NewNop()
	}
	c, err := supa.NewClient(url, anonKey, nil)
	if err != nil {
		return nil, fmt.Errorf("supabase client: %w", err)
	}
	return &Backend{url: url, key: anonKey, anon: c, log: log}, nil
}

// rest returns a client that acts as the caller in ctx, or anonymously.
func (b *Backend) rest(ctx context.Context) (*supa.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tok := gateway.AccessToken(ctx)
	if tok == "" {
		return b.anon, nil
	}
	return supa.NewClient(b.url, b.key, &supa.ClientOptions{
		Headers: map[string]string{"Authorization": "Bearer " + tok},
	})
}

func (b *Backend) from(ctx context.Context, table string) (*postgrest.QueryBuilder, error) {
	c, err := b.rest(ctx)
	if err != nil {
		return nil, err
	}
	return c.From(table), nil
}

// mapError converts PostgREST error strings, formatted "(code) message", to
// gateway errors.
func mapError(resource string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "(42P01)"), strings.Contains(msg, "(PGRST205)"):
		return fmt.Errorf("%s: %w", resource, gateway.ErrUnavailable)
	case strings.Contains(msg, "(42501)"):
		return fmt.Errorf("%s: %w", resource, gateway.ErrForbidden)
	}
	return fmt.Errorf("%s: %w", resource, err)
}

func (b *Backend) PromptsWithCounts(ctx context.Context, q gateway.PromptQuery) ([]models.PromptWithCount, error) {
	qb, err := b.from(ctx, viewPromptsWithCounts)
	if err != nil {
		return nil, err
	}
	fb := qb.Select("*", "", false)
	if q.OwnerID != "" {
		fb = fb.Eq("user_id", q.OwnerID)
	}
	if q.NewestFirst {
		fb = fb.Order("created_at", &postgrest.OrderOpts{Ascending: false})
	}
	var rows []models.PromptWithCount
	if _, err := fb.ExecuteTo(&rows); err != nil {
		return nil, mapError(viewPromptsWithCounts, err)
	}
	return rows, nil
}

func (b *Backend) Prompts(ctx context.Context, q gateway.PromptQuery) ([]models.Prompt, error) {
	qb, err := b.from(ctx, tablePrompts)
	if err != nil {
		return nil, err
	}
	fb := qb.Select("*", "", false)
	if q.OwnerID != "" {
		fb = fb.Eq("user_id", q.OwnerID)
	}
	if q.NewestFirst {
		fb = fb.Order("created_at", &postgrest.OrderOpts{Ascending: false})
	}
	var rows []models.Prompt
	if _, err := fb.ExecuteTo(&rows); err != nil {
		return nil, mapError(tablePrompts, err)
	}
	return rows, nil
}

// promptInsert leaves id and created_at to column defaults.
type promptInsert struct {
	UserID string          `json:"user_id"`
	Title  string          `json:"title"`
	Body   string          `json:"body"`
	Type   models.Category `json:"type"`
	Tags   []string        `json:"tags"`
}

func (b *Backend) InsertPrompt(ctx context.Context, p models.Prompt) (*models.Prompt, error) {
	qb, err := b.from(ctx, tablePrompts)
	if err != nil {
		return nil, err
	}
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	row := promptInsert{UserID: p.UserID, Title: p.Title, Body: p.Body, Type: p.Type, Tags: tags}

	var out []models.Prompt
	if _, err := qb.Insert(row, false, "", "representation", "").ExecuteTo(&out); err != nil {
		return nil, mapError(tablePrompts, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: insert returned no row", tablePrompts)
	}
	return &out[0], nil
}

func (b *Backend) UpdatePrompt(ctx context.Context, id, ownerID string, u models.PromptUpdate) error {
	qb, err := b.from(ctx, tablePrompts)
	if err != nil {
		return err
	}
	if u.Tags == nil {
		u.Tags = []string{}
	}
	_, _, err = qb.Update(u, "minimal", "").
		Eq("id", id).
		Eq("user_id", ownerID).
		Execute()
	return mapError(tablePrompts, err)
}

func (b *Backend) VotedPromptIDs(ctx context.Context, userID string) ([]string, error) {
	qb, err := b.from(ctx, tableVotes)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		PromptID string `json:"prompt_id"`
	}
	if _, err := qb.Select("prompt_id", "", false).Eq("user_id", userID).ExecuteTo(&rows); err != nil {
		return nil, mapError(tableVotes, err)
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.PromptID
	}
	return ids, nil
}

func (b *Backend) CountVotesGiven(ctx context.Context, userID string) (int64, error) {
	qb, err := b.from(ctx, tableVotes)
	if err != nil {
		return 0, err
	}
	_, n, err := qb.Select("*", "exact", true).Eq("user_id", userID).Execute()
	if err != nil {
		return 0, mapError(tableVotes, err)
	}
	return n, nil
}

func (b *Backend) InsertVote(ctx context.Context, v models.Vote) error {
	qb, err := b.from(ctx, tableVotes)
	if err != nil {
		return err
	}
	row := map[string]string{"prompt_id": v.PromptID, "user_id": v.UserID}
	_, _, err = qb.Insert(row, false, "", "minimal", "").Execute()
	return mapError(tableVotes, err)
}

func (b *Backend) DeleteVote(ctx context.Context, promptID, userID string) error {
	qb, err := b.from(ctx, tableVotes)
	if err != nil {
		return err
	}
	_, _, err = qb.Delete("minimal", "").
		Eq("prompt_id", promptID).
		Eq("user_id", userID).
		Execute()
	return mapError(tableVotes, err)
}

func (b *Backend) Profile(ctx context.Context, id string) (*models.Profile, error) {
	qb, err := b.from(ctx, tableProfiles)
	if err != nil {
		return nil, err
	}
	var rows []models.Profile
	if _, err := qb.Select("*", "", false).Eq("id", id).Limit(1, "").ExecuteTo(&rows); err != nil {
		return nil, mapError(tableProfiles, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (b *Backend) UpdateDisplayName(ctx context.Context, id string, name *string) error {
	qb, err := b.from(ctx, tableProfiles)
	if err != nil {
		return err
	}
	patch := map[string]any{
		"display_name":                 name,
		"display_name_last_changed_at": time.Now().UTC().Format(time.RFC3339),
	}
	_, _, err = qb.Update(patch, "minimal", "").Eq("id", id).Execute()
	return mapError(tableProfiles, err)
}

func (b *Backend) ProfileMetrics(ctx context.Context, userID string) (*models.ProfileMetrics, error) {
	qb, err := b.from(ctx, viewProfileMetrics)
	if err != nil {
		return nil, err
	}
	var rows []models.ProfileMetrics
	if _, err := qb.Select("*", "", false).Eq("user_id", userID).Limit(1, "").ExecuteTo(&rows); err != nil {
		return nil, mapError(viewProfileMetrics, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

var _ gateway.Backend = (*Backend)(nil)
