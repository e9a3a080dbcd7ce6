// Package view holds the task presentation pipeline: filtering, date
// grouping, capacity-aware pagination and the calendar overlay. Everything
// here is pure and operates on in-memory task collections.
package view

import (
	"strconv"

	"taskcal/internal/domain"
)

// Filter returns the tasks visible under mode for the reference day. The
// input slice is not modified; the result is always a fresh slice.
func Filter(tasks []domain.Task, mode domain.FilterMode, ref domain.Day) ([]domain.Task, error) {
	var keep func(domain.Task) bool
	switch mode {
	case domain.FilterAll:
		keep = func(domain.Task) bool { return true }
	case domain.FilterToday:
		key := ref.Key()
		keep = func(t domain.Task) bool { return t.Key() == key }
	case domain.FilterMonth:
		month := ref.MonthOf()
		keep = func(t domain.Task) bool { return month.Contains(t.Date) }
	default:
		return nil, domain.Validation("filter", "unknown filter mode "+strconv.Quote(string(mode)))
	}

	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out, nil
}
