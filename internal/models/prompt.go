package models

import "time"

// Prompt is a row of the prompts table.
type Prompt struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UserID    string    `gorm:"type:varchar(36);index;not null" json:"user_id"`
	Title     string    `gorm:"type:text;not null" json:"title"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	Type      Category  `gorm:"column:type;type:varchar(64);not null" json:"type"`
	Tags      []string  `gorm:"serializer:json" json:"tags"`
}

func (Prompt) TableName() string { return "prompts" }

// PromptUpdate carries the editable columns of a prompt.
type PromptUpdate struct {
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Type  Category `json:"type"`
	Tags  []string `json:"tags"`
}

// PromptWithCount is a row of the prompts_with_counts view.
type PromptWithCount struct {
	Prompt
	VoteCount         int64   `json:"vote_count"`
	AuthorDisplayName *string `json:"author_display_name"`
}

// Vote is a row of prompt_votes. The pair (PromptID, UserID) is unique.
type Vote struct {
	PromptID  string    `gorm:"primaryKey;type:varchar(36)" json:"prompt_id"`
	UserID    string    `gorm:"primaryKey;type:varchar(36);index" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (Vote) TableName() string { return "prompt_votes" }
