package domain

import (
	"strconv"
	"strings"
)

// FilterMode selects which tasks are in scope for a view.
type FilterMode string

const (
	FilterAll   FilterMode = "all"
	FilterToday FilterMode = "today"
	FilterMonth FilterMode = "month"
)

// FilterModes lists the supported modes in tab order.
var FilterModes = []FilterMode{FilterAll, FilterToday, FilterMonth}

// ParseFilterMode parses a mode name. Unknown names are validation errors.
func ParseFilterMode(raw string) (FilterMode, error) {
	switch m := FilterMode(strings.ToLower(strings.TrimSpace(raw))); m {
	case FilterAll, FilterToday, FilterMonth:
		return m, nil
	}
	return "", Validation("filter", "unknown filter mode "+strconv.Quote(raw))
}

// Valid reports whether m is a supported mode.
func (m FilterMode) Valid() bool {
	switch m {
	case FilterAll, FilterToday, FilterMonth:
		return true
	}
	return false
}
