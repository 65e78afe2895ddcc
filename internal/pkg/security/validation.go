package security

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ValidationError describes why a value was rejected.
type ValidationError struct {
	Field      string
	Value      any
	Constraint string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed for %s: %s (got: %v)", e.Field, e.Constraint, e.Value)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Constraint)
}

// ValidateQuery checks a recognition query: it must be valid UTF-8, contain
// a non-space character, and hold at most maxLen runes. maxLen <= 0 means
// no limit. The query itself is never modified.
func ValidateQuery(query string, maxLen int) error {
	if !utf8.ValidString(query) {
		return &ValidationError{
			Field:      "query",
			Constraint: "must be valid UTF-8",
		}
	}

	if strings.TrimSpace(query) == "" {
		return &ValidationError{
			Field:      "query",
			Constraint: "required",
		}
	}

	if maxLen > 0 {
		if length := utf8.RuneCountInString(query); length > maxLen {
			return &ValidationError{
				Field:      "query",
				Value:      length,
				Constraint: fmt.Sprintf("maximum length is %d characters", maxLen),
			}
		}
	}

	return nil
}
