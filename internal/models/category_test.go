package models

import "testing"

func TestNormalizeCategory(t *testing.T) {
	cases := map[Category]Category{
		"System Prompt":      CategoryGlobalInstruction,
		"Chat Setup":         CategoryLearning,
		"Learning":           CategoryLearning,
		"Persona":            CategoryPersona,
		"Something Else":     "Something Else",
		"Global Instruction": CategoryGlobalInstruction,
	}
	for in, want := range cases {
		if got := NormalizeCategory(in); got != want {
			t.Fatalf("NormalizeCategory(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeCategory_NeverReturnsLegacy(t *testing.T) {
	inputs := append([]Category{LegacySystemPrompt, LegacyChatSetup, ""}, Categories...)
	for _, in := range inputs {
		if NormalizeCategory(in).IsLegacy() {
			t.Fatalf("NormalizeCategory(%q) returned a legacy label", in)
		}
	}
}

func TestCategoryValid(t *testing.T) {
	for _, c := range Categories {
		if !c.Valid() {
			t.Fatalf("expected %q to be valid", c)
		}
	}
	if LegacyChatSetup.Valid() || Category("").Valid() {
		t.Fatalf("legacy and empty labels must not be valid")
	}
}
