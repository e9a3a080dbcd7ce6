package view

import (
	"taskcal/internal/domain"
)

// DefaultCapacityBudget is the content height available to a page of tasks:
// a 600 unit container minus 64 units of tab and pager chrome.
const DefaultCapacityBudget = 600 - 64

// Sizer reports the rendered size of a task in budget units.
type Sizer func(domain.Task) int

// PageSize packs tasks by prefix: sizes are accumulated in order until the
// next item would overflow budget. The resulting count is used for every
// page. It never returns less than 1.
func PageSize(tasks []domain.Task, budget int, size Sizer) int {
	total, count := 0, 0
	for _, t := range tasks {
		h := size(t)
		if total+h > budget {
			break
		}
		total += h
		count++
	}
	if count == 0 {
		return 1
	}
	return count
}

// TotalPages returns ceil(n/pageSize).
func TotalPages(n, pageSize int) int {
	if pageSize < 1 {
		pageSize = 1
	}
	return (n + pageSize - 1) / pageSize
}

// Paginate slices tasks into pages of PageSize items. Concatenating the
// result reproduces tasks exactly.
func Paginate(tasks []domain.Task, budget int, size Sizer) [][]domain.Task {
	pageSize := PageSize(tasks, budget, size)
	pages := make([][]domain.Task, 0, TotalPages(len(tasks), pageSize))
	for start := 0; start < len(tasks); start += pageSize {
		end := start + pageSize
		if end > len(tasks) {
			end = len(tasks)
		}
		pages = append(pages, tasks[start:end:end])
	}
	return pages
}

// Pager holds the session-local page index over a sorted task sequence.
// Page numbers are 1-based.
type Pager struct {
	budget   int
	sizer    Sizer
	tasks    []domain.Task
	pageSize int
	page     int
}

// NewPager creates a pager. A non-positive budget falls back to
// DefaultCapacityBudget and a nil sizer to the default TextSizer.
func NewPager(budget int, sizer Sizer) *Pager {
	if budget <= 0 {
		budget = DefaultCapacityBudget
	}
	if sizer == nil {
		sizer = DefaultTextSizer().Size
	}
	return &Pager{budget: budget, sizer: sizer, pageSize: 1, page: 1}
}

// SetTasks replaces the sequence, remeasures and resets to page 1.
func (p *Pager) SetTasks(tasks []domain.Task) {
	p.tasks = tasks
	p.measure()
	p.page = 1
}

// SetBudget changes the capacity budget and remeasures.
func (p *Pager) SetBudget(budget int) {
	if budget <= 0 {
		budget = DefaultCapacityBudget
	}
	p.budget = budget
	p.measure()
	p.clamp()
}

// SetSizer swaps the size estimator, e.g. when an item enters inline edit,
// and remeasures.
func (p *Pager) SetSizer(sizer Sizer) {
	if sizer == nil {
		sizer = DefaultTextSizer().Size
	}
	p.sizer = sizer
	p.measure()
	p.clamp()
}

// Reset moves back to page 1.
func (p *Pager) Reset() { p.page = 1 }

// Next advances one page. It is a no-op on the last page.
func (p *Pager) Next() bool {
	if p.page >= p.TotalPages() {
		return false
	}
	p.page++
	return true
}

// Prev goes back one page. It is a no-op on page 1.
func (p *Pager) Prev() bool {
	if p.page <= 1 {
		return false
	}
	p.page--
	return true
}

// Goto jumps to page n, clamped to the valid range.
func (p *Pager) Goto(n int) {
	p.page = n
	p.clamp()
}

// Page returns the current 1-based page.
func (p *Pager) Page() int { return p.page }

// PageSize returns the measured items per page.
func (p *Pager) PageSize() int { return p.pageSize }

// Budget returns the capacity budget.
func (p *Pager) Budget() int { return p.budget }

// TotalPages returns the page count; zero when there are no tasks.
func (p *Pager) TotalPages() int { return TotalPages(len(p.tasks), p.pageSize) }

// Items returns the tasks on the current page.
func (p *Pager) Items() []domain.Task {
	start := (p.page - 1) * p.pageSize
	if start >= len(p.tasks) {
		return nil
	}
	end := start + p.pageSize
	if end > len(p.tasks) {
		end = len(p.tasks)
	}
	return p.tasks[start:end:end]
}

func (p *Pager) measure() {
	p.pageSize = PageSize(p.tasks, p.budget, p.sizer)
}

func (p *Pager) clamp() {
	if total := p.TotalPages(); p.page > total {
		p.page = total
	}
	if p.page < 1 {
		p.page = 1
	}
}
