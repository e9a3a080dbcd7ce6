package view

import (
	"taskcal/internal/domain"
)

// Page is the rendered slice of a filtered, grouped collection.
type Page struct {
	Mode       domain.FilterMode
	Reference  domain.Day
	Number     int
	TotalPages int
	PageSize   int
	Total      int
	Groups     []Group
}

// Empty reports whether there is nothing to show.
func (p Page) Empty() bool { return p.Total == 0 }

// Build runs the pipeline over tasks: filter, sort and group by day, then
// slice the sorted sequence through pager. The pager is re-fed the sorted
// sequence, so callers must only call Build when the data set changed.
func Build(tasks []domain.Task, mode domain.FilterMode, ref domain.Day, tb TieBreak, pager *Pager) (Page, error) {
	filtered, err := Filter(tasks, mode, ref)
	if err != nil {
		return Page{}, err
	}
	sorted := Flatten(GroupByDay(filtered, tb))
	pager.SetTasks(sorted)
	return Current(mode, ref, len(sorted), pager), nil
}

// Current renders the pager's current page without remeasuring.
func Current(mode domain.FilterMode, ref domain.Day, total int, pager *Pager) Page {
	return Page{
		Mode:       mode,
		Reference:  ref,
		Number:     pager.Page(),
		TotalPages: pager.TotalPages(),
		PageSize:   pager.PageSize(),
		Total:      total,
		Groups:     groupSorted(pager.Items()),
	}
}
