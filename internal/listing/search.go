package listing

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/sahilm/fuzzy"
)

// Search weights per field; title dominates.
const (
	weightTitle    = 0.5
	weightBody     = 0.3
	weightCategory = 0.2
	weightTags     = 0.2

	// Threshold is the maximum accepted distance (1 - similarity) of the best
	// matching field.
	Threshold = 0.35

	// minTypoLen is the shortest query word scored by edit distance.
	minTypoLen = 4
)

// similarity scores text against a lowercased, trimmed query in [0,1].
// A case-insensitive substring hit scores 1. Otherwise a word scores the
// better of two signals: how compactly it occurs as a subsequence
// (len(query) over the span of matched bytes), and one minus the edit
// distance to the closest window of text relative to its length, which
// tolerates transposed or mistyped letters. Multi-word queries average the
// per-word scores.
func similarity(query, text string) float64 {
	if query == "" || text == "" {
		return 0
	}
	if strings.Contains(strings.ToLower(text), query) {
		return 1
	}
	words := strings.Fields(query)
	if len(words) > 1 {
		var sum float64
		for _, w := range words {
			sum += similarity(w, text)
		}
		return sum / float64(len(words))
	}
	return math.Max(compactness(query, text), typoScore(query, text))
}

func compactness(pattern, text string) float64 {
	ms := fuzzy.Find(pattern, []string{text})
	if len(ms) == 0 {
		return 0
	}
	idx := ms[0].MatchedIndexes
	if len(idx) == 0 {
		return 0
	}
	span := idx[len(idx)-1] - idx[0] + 1
	if span <= 0 {
		return 0
	}
	s := float64(len(pattern)) / float64(span)
	if s > 1 {
		s = 1
	}
	return s
}

// typoScore compares pattern with the windows of text that start at a word
// and are within one rune of the pattern's length.
func typoScore(pattern, text string) float64 {
	p := []rune(pattern)
	if len(p) < minTypoLen {
		return 0
	}
	t := []rune(strings.ToLower(text))
	best := len(p)
	for i := range t {
		if !isWordRune(t[i]) || (i > 0 && isWordRune(t[i-1])) {
			continue
		}
		for l := len(p) - 1; l <= len(p)+1 && i+l <= len(t); l++ {
			if d := levenshtein.ComputeDistance(pattern, string(t[i:i+l])); d < best {
				best = d
			}
		}
		if best == 0 {
			break
		}
	}
	return 1 - float64(best)/float64(len(p))
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func tagsSimilarity(query string, tags []string) float64 {
	var best float64
	for _, t := range tags {
		if s := similarity(query, t); s > best {
			best = s
		}
	}
	return best
}

type scored struct {
	row  Row
	rank float64
}

// Search keeps rows with at least one field within Threshold of the query
// and orders them by weighted relevance, best first. Ties keep input order.
// A blank query returns rows unchanged.
func Search(rows []Row, query string) []Row {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return rows
	}
	minSim := 1 - Threshold

	hits := make([]scored, 0, len(rows))
	for _, r := range rows {
		st := similarity(q, r.Title)
		sb := similarity(q, r.Body)
		sc := similarity(q, string(r.Type))
		sg := tagsSimilarity(q, r.Tags)
		if st < minSim && sb < minSim && sc < minSim && sg < minSim {
			continue
		}
		rank := (weightTitle*st + weightBody*sb + weightCategory*sc + weightTags*sg) /
			(weightTitle + weightBody + weightCategory + weightTags)
		hits = append(hits, scored{row: r, rank: rank})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].rank > hits[j].rank })

	out := make([]Row, len(hits))
	for i, h := range hits {
		out[i] = h.row
	}
	return out
}
