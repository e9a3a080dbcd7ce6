package view

import (
	"time"

	"taskcal/internal/domain"
)

// Highlight is the single treatment a renderer applies to a day cell.
type Highlight int

const (
	HighlightNone Highlight = iota
	HighlightHasTasks
	HighlightSelected
	HighlightToday
)

// Cell is one slot of the month grid. Blank cells pad the first week.
type Cell struct {
	Blank      bool       `json:"blank,omitempty"`
	Day        domain.Day `json:"-"`
	Key        string     `json:"date,omitempty"`
	IsToday    bool       `json:"isToday,omitempty"`
	IsSelected bool       `json:"isSelected,omitempty"`
	HasTasks   bool       `json:"hasTasks,omitempty"`
}

// Highlight resolves the independent flags into one treatment. Today wins
// over selected, which wins over has-tasks.
func (c Cell) Highlight() Highlight {
	switch {
	case c.Blank:
		return HighlightNone
	case c.IsToday:
		return HighlightToday
	case c.IsSelected:
		return HighlightSelected
	case c.HasTasks:
		return HighlightHasTasks
	}
	return HighlightNone
}

// Calendar is the mini-calendar overlay for one displayed month.
type Calendar struct {
	Month          domain.Month
	Today          domain.Day
	Selected       domain.Day
	DatesWithTasks map[string]struct{}
	Cells          []Cell
}

// Summarize builds the dates-with-tasks set over the whole collection and
// the grid for month. Weeks start on Sunday.
func Summarize(tasks []domain.Task, month domain.Month, today, selected domain.Day) Calendar {
	dates := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		dates[t.Key()] = struct{}{}
	}
	c := Calendar{Today: today, Selected: selected, DatesWithTasks: dates}
	c.ShowMonth(month)
	return c
}

// Has reports whether any task falls on the day with the given key.
func (c *Calendar) Has(key string) bool {
	_, ok := c.DatesWithTasks[key]
	return ok
}

// ShowMonth switches the displayed month. Only the grid is rebuilt.
func (c *Calendar) ShowMonth(month domain.Month) {
	c.Month = month
	c.rebuild()
}

// Select changes the selected day and refreshes the cell flags.
func (c *Calendar) Select(d domain.Day) {
	c.Selected = d
	c.rebuild()
}

// NextMonth displays the following month.
func (c *Calendar) NextMonth() { c.ShowMonth(c.Month.Next()) }

// PrevMonth displays the preceding month.
func (c *Calendar) PrevMonth() { c.ShowMonth(c.Month.Prev()) }

// Weeks splits the grid into rows of seven. The last row may be short.
func (c *Calendar) Weeks() [][]Cell {
	rows := make([][]Cell, 0, 6)
	for start := 0; start < len(c.Cells); start += 7 {
		end := start + 7
		if end > len(c.Cells) {
			end = len(c.Cells)
		}
		rows = append(rows, c.Cells[start:end:end])
	}
	return rows
}

func (c *Calendar) rebuild() {
	first := c.Month.First()
	lead := int(first.Weekday() - time.Sunday)
	cells := make([]Cell, 0, lead+c.Month.Len())
	for i := 0; i < lead; i++ {
		cells = append(cells, Cell{Blank: true})
	}
	for n := 1; n <= c.Month.Len(); n++ {
		d := domain.Day{Year: c.Month.Year, Month: c.Month.Month, Day: n}
		key := d.Key()
		cells = append(cells, Cell{
			Day:        d,
			Key:        key,
			IsToday:    d == c.Today,
			IsSelected: d == c.Selected,
			HasTasks:   c.Has(key),
		})
	}
	c.Cells = cells
}
