package expenses

import (
	"strings"

	"github.com/kzhdev5/tbank-bridge/internal/store"
)

// Categorizer maps transaction descriptions onto category titles by keyword
// containment, case-insensitive. First matching category wins, in the order
// the categories were loaded.
type Categorizer struct {
	categories []store.CategoryKeywords
}

func NewCategorizer(categories []store.CategoryKeywords) *Categorizer {
	return &Categorizer{categories: categories}
}

// Categorize returns the category title for a description, or "" when no
// keyword matches.
func (c *Categorizer) Categorize(description string) string {
	lower := strings.ToLower(description)
	for _, cat := range c.categories {
		for _, kw := range cat.Keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				return cat.Title
			}
		}
	}
	return ""
}
