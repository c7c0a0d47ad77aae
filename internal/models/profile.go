package models

import "time"

type Profile struct {
	ID                       string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt                *time.Time `json:"created_at"`
	DisplayName              *string    `gorm:"type:varchar(128)" json:"display_name"`
	DisplayNameLastChangedAt *time.Time `json:"display_name_last_changed_at"`
}

func (Profile) TableName() string { return "profiles" }

// ProfileMetrics is a row of the profile_metrics view. Percentiles are in [0,100].
type ProfileMetrics struct {
	UserID                  string  `gorm:"primaryKey;type:varchar(36)" json:"user_id"`
	PromptsCreated          int64   `json:"prompts_created"`
	VotesReceived           int64   `json:"votes_received"`
	VotesGiven              int64   `json:"votes_given"`
	PromptsPercentile       float64 `json:"prompts_percentile"`
	VotesReceivedPercentile float64 `json:"votes_received_percentile"`
	VotesGivenPercentile    float64 `json:"votes_given_percentile"`
}

func (ProfileMetrics) TableName() string { return "profile_metrics" }
