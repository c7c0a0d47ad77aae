package models

// Category is the prompt "type" column.
type Category string

const (
	CategoryGlobalInstruction Category = "Global Instruction"
	CategoryLearning          Category = "Learning"
	CategoryPersona           Category = "Persona"
	CategoryToolSetup         Category = "Tool Setup"
	CategoryEvaluation        Category = "Evaluation"
	CategoryOther             Category = "Other"
)

// Retired labels still present on old rows.
const (
	LegacySystemPrompt Category = "System Prompt"
	LegacyChatSetup    Category = "Chat Setup"
)

// Categories lists the current labels in display order.
var Categories = []Category{
	CategoryGlobalInstruction,
	CategoryLearning,
	CategoryPersona,
	CategoryToolSetup,
	CategoryEvaluation,
	CategoryOther,
}

// legacyCategories relabels retired categories on read.
var legacyCategories = map[Category]Category{
	LegacySystemPrompt: CategoryGlobalInstruction,
	LegacyChatSetup:    CategoryLearning,
}

// NormalizeCategory maps a retired label to its current one and returns any
// other value unchanged.
func NormalizeCategory(c Category) Category {
	if cur, ok := legacyCategories[c]; ok {
		return cur
	}
	return c
}

// IsLegacy reports whether c is a retired label.
func (c Category) IsLegacy() bool {
	_, ok := legacyCategories[c]
	return ok
}

// Valid reports whether c is one of the current labels.
func (c Category) Valid() bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}
