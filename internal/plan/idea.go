package plan

import "strings"

// NormalizeIdea returns the de-duplication key for an idea.
func NormalizeIdea(idea string) string {
	return strings.ToLower(strings.TrimSpace(idea))
}

// SameIdea reports whether two ideas differ only by casing or surrounding
// whitespace.
func SameIdea(a, b string) bool {
	return NormalizeIdea(a) == NormalizeIdea(b)
}

// ValidateIdea trims the idea and rejects empty input.
func ValidateIdea(idea string) (string, error) {
	trimmed := strings.TrimSpace(idea)
	if trimmed == "" {
		return "", ErrEmptyIdea
	}
	return trimmed, nil
}
