package view

import (
	"sort"

	"taskcal/internal/domain"
)

// TieBreak orders tasks that share a date.
type TieBreak int

const (
	// CreatedAsc keeps the earliest created task first within a day.
	CreatedAsc TieBreak = iota
	// CreatedDesc keeps the most recently created task first within a day.
	CreatedDesc
	// Insertion keeps the order tasks had in the input.
	Insertion
)

// Group is a non-empty bucket of tasks sharing a date key.
type Group struct {
	Key   string        `json:"date"`
	Day   domain.Day    `json:"-"`
	Tasks []domain.Task `json:"tasks"`
}

// Sort returns a copy of tasks ordered by date descending, ties broken by tb.
func Sort(tasks []domain.Task, tb TieBreak) []domain.Task {
	out := make([]domain.Task, len(tasks))
	copy(out, tasks)
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].Date.Compare(out[j].Date); c != 0 {
			return c > 0
		}
		switch tb {
		case CreatedAsc:
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		case CreatedDesc:
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return false
	})
	return out
}

// GroupByDay sorts tasks and partitions them into date groups. Group order
// follows the sorted order; every task lands in exactly one group.
func GroupByDay(tasks []domain.Task, tb TieBreak) []Group {
	return groupSorted(Sort(tasks, tb))
}

// groupSorted buckets an already sorted sequence without reordering it.
func groupSorted(sorted []domain.Task) []Group {
	groups := make([]Group, 0)
	index := make(map[string]int)
	for _, t := range sorted {
		key := t.Key()
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Key: key, Day: t.Date})
		}
		groups[i].Tasks = append(groups[i].Tasks, t)
	}
	return groups
}

// Flatten concatenates groups back into a single ordered sequence.
func Flatten(groups []Group) []domain.Task {
	n := 0
	for _, g := range groups {
		n += len(g.Tasks)
	}
	out := make([]domain.Task, 0, n)
	for _, g := range groups {
		out = append(out, g.Tasks...)
	}
	return out
}
