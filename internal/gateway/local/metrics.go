package local

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/suPer8Hu/prompt-hub/internal/models"
)

type userCount struct {
	UserID string
	N      int64
}

// RecomputeProfileMetrics rebuilds the profile_metrics table from profiles,
// prompts and votes. Every profile gets a row; percentiles are percent ranks
// over all profiles. It returns the number of rows written.
func RecomputeProfileMetrics(ctx context.Context, db *gorm.DB) (int, error) {
	db = db.WithContext(ctx)

	var ids []string
	if err := db.Model(&models.Profile{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("list profiles: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	created, err := countBy(db, `SELECT user_id, COUNT(*) AS n FROM prompts GROUP BY user_id`)
	if err != nil {
		return 0, fmt.Errorf("prompts created: %w", err)
	}
	received, err := countBy(db, `SELECT p.user_id AS user_id, COUNT(*) AS n
		FROM prompt_votes v JOIN prompts p ON p.id = v.prompt_id
		GROUP BY p.user_id`)
	if err != nil {
		return 0, fmt.Errorf("votes received: %w", err)
	}
	given, err := countBy(db, `SELECT user_id, COUNT(*) AS n FROM prompt_votes GROUP BY user_id`)
	if err != nil {
		return 0, fmt.Errorf("votes given: %w", err)
	}

	rows := make([]models.ProfileMetrics, len(ids))
	cv := make([]int64, len(ids))
	rv := make([]int64, len(ids))
	gv := make([]int64, len(ids))
	for i, id := range ids {
		cv[i], rv[i], gv[i] = created[id], received[id], given[id]
		rows[i] = models.ProfileMetrics{
			UserID:         id,
			PromptsCreated: cv[i],
			VotesReceived:  rv[i],
			VotesGiven:     gv[i],
		}
	}
	cp, rp, gp := PercentRanks(cv), PercentRanks(rv), PercentRanks(gv)
	for i := range rows {
		rows[i].PromptsPercentile = cp[i]
		rows[i].VotesReceivedPercentile = rp[i]
		rows[i].VotesGivenPercentile = gp[i]
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.ProfileMetrics{}).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).
			CreateInBatches(&rows, 200).Error
	})
	if err != nil {
		return 0, fmt.Errorf("write profile metrics: %w", err)
	}
	return len(rows), nil
}

func countBy(db *gorm.DB, q string) (map[string]int64, error) {
	var out []userCount
	if err := db.Raw(q).Scan(&out).Error; err != nil {
		return nil, err
	}
	m := make(map[string]int64, len(out))
	for _, c := range out {
		m[c.UserID] = c.N
	}
	return m, nil
}

// PercentRanks maps each value to 100*(values strictly below)/(n-1).
// A single value ranks 100.
func PercentRanks(values []int64) []float64 {
	n := len(values)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	if n == 1 {
		out[0] = 100
		return out
	}
	sorted := append([]int64(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for i, v := range values {
		below := sort.Search(n, func(k int) bool { return sorted[k] >= v })
		out[i] = 100 * float64(below) / float64(n-1)
	}
	return out
}
