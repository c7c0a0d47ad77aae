package local

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/suPer8Hu/prompt-hub/internal/gateway"
	"github.com/suPer8Hu/prompt-hub/internal/models"
)

func (b *Backend) PromptsWithCounts(ctx context.Context, q gateway.PromptQuery) ([]models.PromptWithCount, error) {
	if !b.views {
		return nil, fmt.Errorf("prompts_with_counts: %w", gateway.ErrUnavailable)
	}
	tx := b.db.WithContext(ctx).
		Table("prompts AS p").
		Select("p.*, COUNT(v.user_id) AS vote_count, pr.display_name AS author_display_name").
		Joins("LEFT JOIN prompt_votes v ON v.prompt_id = p.id").
		Joins("LEFT JOIN profiles pr ON pr.id = p.user_id").
		Group("p.id, pr.display_name")
	if q.OwnerID != "" {
		tx = tx.Where("p.user_id = ?", q.OwnerID)
	}
	if q.NewestFirst {
		tx = tx.Order("p.created_at DESC")
	}

	var rows []models.PromptWithCount
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (b *Backend) Prompts(ctx context.Context, q gateway.PromptQuery) ([]models.Prompt, error) {
	tx := b.db.WithContext(ctx).Model(&models.Prompt{})
	if q.OwnerID != "" {
		tx = tx.Where("user_id = ?", q.OwnerID)
	}
	if q.NewestFirst {
		tx = tx.Order("created_at DESC")
	}
	var rows []models.Prompt
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (b *Backend) InsertPrompt(ctx context.Context, p models.Prompt) (*models.Prompt, error) {
	if err := b.owns(ctx, p.UserID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Title) == "" || strings.TrimSpace(p.Body) == "" {
		return nil, &gateway.RequestError{Message: "null value violates not-null constraint"}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if err := b.db.WithContext(ctx).Create(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (b *Backend) UpdatePrompt(ctx context.Context, id, ownerID string, u models.PromptUpdate) error {
	if err := b.owns(ctx, ownerID); err != nil {
		return err
	}
	tags := u.Tags
	if tags == nil {
		tags = []string{}
	}
	// Updates with a struct would skip zero values, so go through Select.
	return b.db.WithContext(ctx).Model(&models.Prompt{}).
		Where("id = ? AND user_id = ?", id, ownerID).
		Select("title", "body", "type", "tags").
		Updates(&models.Prompt{Title: u.Title, Body: u.Body, Type: u.Type, Tags: tags}).Error
}

func (b *Backend) VotedPromptIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := b.db.WithContext(ctx).Model(&models.Vote{}).
		Where("user_id = ?", userID).
		Pluck("prompt_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (b *Backend) CountVotesGiven(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := b.db.WithContext(ctx).Model(&models.Vote{}).
		Where("user_id = ?", userID).
		Count(&n).Error
	return n, err
}

func (b *Backend) InsertVote(ctx context.Context, v models.Vote) error {
	if err := b.owns(ctx, v.UserID); err != nil {
		return err
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = b.now()
	}
	return b.db.WithContext(ctx).Create(&v).Error
}

func (b *Backend) DeleteVote(ctx context.Context, promptID, userID string) error {
	if err := b.owns(ctx, userID); err != nil {
		return err
	}
	return b.db.WithContext(ctx).
		Where("prompt_id = ? AND user_id = ?", promptID, userID).
		Delete(&models.Vote{}).Error
}

func (b *Backend) Profile(ctx context.Context, id string) (*models.Profile, error) {
	var p models.Profile
	err := b.db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, nil
	}
	return &p, nil
}

func (b *Backend) UpdateDisplayName(ctx context.Context, id string, name *string) error {
	if err := b.owns(ctx, id); err != nil {
		return err
	}
	now := b.now()
	return b.db.WithContext(ctx).Model(&models.Profile{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"display_name":                 name,
			"display_name_last_changed_at": now,
		}).Error
}

func (b *Backend) ProfileMetrics(ctx context.Context, userID string) (*models.ProfileMetrics, error) {
	if !b.views {
		return nil, fmt.Errorf("profile_metrics: %w", gateway.ErrUnavailable)
	}
	var m models.ProfileMetrics
	err := b.db.WithContext(ctx).Where("user_id = ?", userID).Limit(1).Find(&m).Error
	if err != nil {
		return nil, err
	}
	if m.UserID == "" {
		return nil, nil
	}
	return &m, nil
}
