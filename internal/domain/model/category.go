package model

import (
	"errors"
	"fmt"
	"strings"
)

// Category is an interest category an event belongs to.
type Category string

// Known interest categories.
const (
	CategoryTech     Category = "Tech"
	CategoryCultural Category = "Cultural"
	CategorySports   Category = "Sports"
	CategoryAcademic Category = "Academic"
	CategoryMusic    Category = "Music"
	CategoryDrama    Category = "Drama"
	CategoryWorkshop Category = "Workshop"
)

// Categories lists the known categories in display order.
var Categories = []Category{
	CategoryTech,
	CategoryCultural,
	CategorySports,
	CategoryAcademic,
	CategoryMusic,
	CategoryDrama,
	CategoryWorkshop,
}

// Category errors.
var (
	// ErrUnknownCategory is returned by ParseCategory for unrecognized names.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrDuplicateCategory is returned by NormalizeInterests when two names
	// resolve to the same category.
	ErrDuplicateCategory = errors.New("duplicate category")
)

// ParseCategory maps a case-insensitive name to a known Category.
func ParseCategory(s string) (Category, error) {
	name := strings.TrimSpace(s)
	for _, c := range Categories {
		if strings.EqualFold(string(c), name) {
			return c, nil
		}
	}
	return Category(name), fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

// NormalizeCategory returns the canonical spelling of a known category and
// the trimmed name of an unknown one.
func NormalizeCategory(s string) Category {
	c, _ := ParseCategory(s)
	return c
}

// NormalizeInterests keys raw interest scores by normalized category. Names
// that collide after normalization, such as "tech" and "Tech", are rejected
// because neither score is more authoritative than the other.
func NormalizeInterests(raw map[string]float64) (map[Category]float64, error) {
	out := make(map[Category]float64, len(raw))
	seen := make(map[Category]string, len(raw))
	for name, score := range raw {
		c := NormalizeCategory(name)
		if prev, dup := seen[c]; dup {
			a, b := prev, name
			if a > b {
				a, b = b, a
			}
			return nil, fmt.Errorf("%w: %q and %q are both %s", ErrDuplicateCategory, a, b, c)
		}
		seen[c] = name
		out[c] = score
	}
	return out, nil
}

// Known reports whether c is one of Categories.
func (c Category) Known() bool {
	_, err := ParseCategory(string(c))
	return err == nil
}
