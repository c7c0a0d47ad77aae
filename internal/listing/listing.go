// Package listing turns aggregated prompt rows into the ordered, annotated
// explore list: load with fallback, vote marking, category filter, fuzzy
// search and a stable vote-count sort.
package listing

import (
	"errors"
	"sort"

	"github.com/suPer8Hu/prompt-hub/internal/models"
)

// FilterAll disables the category filter.
const FilterAll = "All"

var ErrBadFilter = errors.New("listing: unknown category filter")

// Row is a prompt with its vote count, marked with the viewer's vote.
type Row struct {
	models.PromptWithCount
	Voted bool `json:"voted"`
}

// Normalize relabels legacy categories and replaces missing tags with an
// empty list. The input is not modified.
func Normalize(rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		r.Type = models.NormalizeCategory(r.Type)
		if r.Tags == nil {
			r.Tags = []string{}
		}
		out[i] = r
	}
	return out
}

// ValidFilter reports whether f is FilterAll or a current category.
func ValidFilter(f string) bool {
	return f == "" || f == FilterAll || models.Category(f).Valid()
}

// FilterByCategory keeps rows of category f. The Learning filter also keeps
// rows that still carry the legacy Chat Setup label.
func FilterByCategory(rows []Row, f string) []Row {
	if f == "" || f == FilterAll {
		return rows
	}
	want := models.Category(f)
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if r.Type == want || (want == models.CategoryLearning && r.Type == models.LegacyChatSetup) {
			out = append(out, r)
		}
	}
	return out
}

// SortByVotes orders a copy of rows by descending vote count, keeping the
// input order between equal counts.
func SortByVotes(rows []Row) []Row {
	out := append([]Row(nil), rows...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].VoteCount > out[j].VoteCount })
	return out
}

// Build is the render list for rows under query and filter. It is a pure
// function of its inputs; the result is never nil.
func Build(rows []Row, query, filter string) []Row {
	list := FilterByCategory(rows, filter)
	list = Search(list, query)
	out := SortByVotes(list)
	if out == nil {
		out = []Row{}
	}
	return out
}

// Mark sets Voted on every row from the viewer's voted prompt ids.
func Mark(rows []Row, voted []string) {
	set := make(map[string]struct{}, len(voted))
	for _, id := range voted {
		set[id] = struct{}{}
	}
	for i := range rows {
		_, rows[i].Voted = set[rows[i].ID]
	}
}

// FromPrompts lifts base prompt rows to Rows with a zero vote count.
func FromPrompts(ps []models.Prompt) []Row {
	out := make([]Row, len(ps))
	for i, p := range ps {
		out[i] = Row{PromptWithCount: models.PromptWithCount{Prompt: p}}
	}
	return out
}

// FromCounts wraps view rows.
func FromCounts(ps []models.PromptWithCount) []Row {
	out := make([]Row, len(ps))
	for i, p := range ps {
		out[i] = Row{PromptWithCount: p}
	}
	return out
}
