package categorizer

import (
	"fmt"
	"sort"
	"strings"
)

// Category is one allowed label.
type Category string

func (c Category) String() string { return string(c) }

// Categories is the closed set a text is classified into.
type Categories []Category

// NewCategories trims, de-duplicates (case-insensitively) and validates names.
func NewCategories(names ...string) (Categories, error) {
	seen := map[string]bool{}
	var out Categories
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		key := strings.ToLower(n)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, Category(n))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one category is required")
	}
	return out, nil
}

// Names returns the category names as strings.
func (cs Categories) Names() []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = string(c)
	}
	return out
}

// Match finds the category named s, ignoring case and surrounding whitespace.
func (cs Categories) Match(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	for _, c := range cs {
		if strings.EqualFold(string(c), s) {
			return c, true
		}
	}
	return "", false
}

// Key identifies the set regardless of order and case.
func (cs Categories) Key() string {
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = strings.ToLower(string(c))
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
