// Package submission covers creating prompts, editing one's own prompts and
// the account display name.
package submission

import "strings"

// Keys that drive TagSet.Key.
const (
	KeyEnter     = "Enter"
	KeyComma     = ","
	KeyBackspace = "Backspace"
)

// TagSet is an ordered set of lowercase tags.
type TagSet struct {
	tags []string
}

// NewTagSet builds a set from tags, normalizing and dropping duplicates.
func NewTagSet(tags ...string) *TagSet {
	s := &TagSet{tags: make([]string, 0, len(tags))}
	for _, t := range tags {
		s.Add(t)
	}
	return s
}

func normalizeTag(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

// Add appends the normalized tag. It reports false for blank tags and
// duplicates.
func (s *TagSet) Add(raw string) bool {
	t := normalizeTag(raw)
	if t == "" {
		return false
	}
	for _, have := range s.tags {
		if have == t {
			return false
		}
	}
	s.tags = append(s.tags, t)
	return true
}

func (s *TagSet) Remove(tag string) {
	out := s.tags[:0]
	for _, t := range s.tags {
		if t != tag {
			out = append(out, t)
		}
	}
	s.tags = out
}

// Tags returns a copy of the tags in entry order, never nil.
func (s *TagSet) Tags() []string {
	return append([]string{}, s.tags...)
}

func (s *TagSet) Len() int { return len(s.tags) }

// Key applies a key press to the set given the pending text input and
// returns the new input. Enter and comma commit the input; the input is
// cleared only when the tag was added. Backspace on an empty input removes
// the last tag. Other keys leave both unchanged.
func (s *TagSet) Key(input, key string) string {
	switch key {
	case KeyEnter, KeyComma:
		if s.Add(input) {
			return ""
		}
	case KeyBackspace:
		if input == "" && len(s.tags) > 0 {
			s.tags = s.tags[:len(s.tags)-1]
		}
	}
	return input
}
