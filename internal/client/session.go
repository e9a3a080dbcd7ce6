package client

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"taskcal/internal/domain"
	"taskcal/internal/view"
)

// API is the subset of Client a Session drives.
type API interface {
	List(ctx context.Context, mode domain.FilterMode, day domain.Day) ([]domain.Task, error)
	ListAll(ctx context.Context) ([]domain.Task, error)
	Create(ctx context.Context, in domain.NewTask, key string) (domain.Task, error)
	Update(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error)
	Delete(ctx context.Context, id string) error
}

// Options tunes a Session. Zero values select the defaults.
type Options struct {
	Budget   int
	Sizer    view.TextSizer
	TieBreak view.TieBreak
	Today    func() domain.Day
}

// Session holds the state a task view renders from: the filter and
// selected day, the fetched collections, the pager and the calendar.
// Responses from superseded fetches are discarded.
type Session struct {
	api      API
	today    func() domain.Day
	sizer    view.TextSizer
	tieBreak view.TieBreak

	mu       sync.Mutex
	mode     domain.FilterMode
	selected domain.Day
	tasks    []domain.Task
	all      []domain.Task
	pager    *view.Pager
	page     view.Page
	calendar view.Calendar
	listGen  uint64
	allGen   uint64
	err      error
}

// NewSession starts in the all view with today selected.
func NewSession(api API, opts Options) *Session {
	if opts.Today == nil {
		opts.Today = domain.Today
	}
	if opts.Sizer == (view.TextSizer{}) {
		opts.Sizer = view.DefaultTextSizer()
	}
	today := opts.Today()
	s := &Session{
		api:      api,
		today:    opts.Today,
		sizer:    opts.Sizer,
		tieBreak: opts.TieBreak,
		mode:     domain.FilterAll,
		selected: today,
		pager:    view.NewPager(opts.Budget, opts.Sizer.Size),
	}
	s.calendar = view.Summarize(nil, today.MonthOf(), today, today)
	s.rebuildLocked(true)
	return s
}

// Refresh refetches the filtered and full collections concurrently,
// keeping the current page where it still exists.
func (s *Session) Refresh(ctx context.Context) error {
	return s.refresh(ctx, false)
}

func (s *Session) refresh(ctx context.Context, resetPage bool) error {
	var g errgroup.Group
	g.Go(func() error { return s.fetchList(ctx, resetPage) })
	g.Go(func() error { return s.fetchAll(ctx) })
	return g.Wait()
}

func (s *Session) fetchList(ctx context.Context, resetPage bool) error {
	s.mu.Lock()
	s.listGen++
	gen, mode, day := s.listGen, s.mode, s.selected
	s.mu.Unlock()

	tasks, err := s.api.List(ctx, mode, day)
	err = classify(err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.listGen {
		return nil
	}
	if err != nil {
		s.err = err
		if domain.KindOf(err) == domain.KindTransport {
			s.tasks = nil
			s.rebuildLocked(true)
		}
		return err
	}
	s.err = nil
	s.tasks = tasks
	s.rebuildLocked(resetPage)
	return nil
}

func (s *Session) fetchAll(ctx context.Context) error {
	s.mu.Lock()
	s.allGen++
	gen := s.allGen
	s.mu.Unlock()

	tasks, err := s.api.ListAll(ctx)
	err = classify(err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.allGen {
		return nil
	}
	if err != nil {
		if domain.KindOf(err) == domain.KindTransport {
			s.all = nil
			s.summarizeLocked()
		}
		return err
	}
	s.all = tasks
	s.summarizeLocked()
	return nil
}

func (s *Session) rebuildLocked(resetPage bool) {
	prev := s.pager.Page()
	page, err := view.Build(s.tasks, s.mode, s.selected, s.tieBreak, s.pager)
	if err != nil {
		s.err = err
		return
	}
	if !resetPage {
		s.pager.Goto(prev)
		page = view.Current(s.mode, s.selected, page.Total, s.pager)
	}
	s.page = page
}

func (s *Session) summarizeLocked() {
	s.calendar = view.Summarize(s.all, s.calendar.Month, s.today(), s.selected)
}

// SetFilter switches the view mode and refetches from page 1.
func (s *Session) SetFilter(ctx context.Context, mode domain.FilterMode) error {
	if !mode.Valid() {
		return domain.Validation("filter", "unknown filter mode "+string(mode))
	}
	s.mu.Lock()
	prev := s.mode
	s.mode = mode
	s.mu.Unlock()
	return s.keepViewOnFailure(s.fetchList(ctx, true), func() bool {
		if s.mode != mode {
			return false
		}
		s.mode = prev
		return true
	})
}

// SelectDate selects day, shows its month and refetches from page 1.
func (s *Session) SelectDate(ctx context.Context, day domain.Day) error {
	if day.IsZero() {
		return domain.Validation("date", "date is required")
	}
	s.mu.Lock()
	prev, prevMonth := s.selected, s.calendar.Month
	s.selected = day
	s.calendar.Selected = day
	s.calendar.ShowMonth(day.MonthOf())
	s.mu.Unlock()
	return s.keepViewOnFailure(s.fetchList(ctx, true), func() bool {
		if s.selected != day {
			return false
		}
		s.selected = prev
		s.calendar.Selected = prev
		s.calendar.ShowMonth(prevMonth)
		return true
	})
}

// keepViewOnFailure restores the previous filter state when a fetch fails
// without clearing the collection, so the page keeps matching Mode and
// Selected. restore runs under the lock and reports false when a newer
// change already replaced the state.
func (s *Session) keepViewOnFailure(err error, restore func() bool) error {
	if err == nil || domain.KindOf(err) == domain.KindTransport {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if restore() {
		s.rebuildLocked(false)
	}
	return err
}

// ShowMonth displays month in the calendar without refetching.
func (s *Session) ShowMonth(month domain.Month) {
	s.mu.Lock()
	s.calendar.ShowMonth(month)
	s.mu.Unlock()
}

// NextMonth moves the calendar forward without refetching.
func (s *Session) NextMonth() {
	s.mu.Lock()
	s.calendar.NextMonth()
	s.mu.Unlock()
}

// PrevMonth moves the calendar back without refetching.
func (s *Session) PrevMonth() {
	s.mu.Lock()
	s.calendar.PrevMonth()
	s.mu.Unlock()
}

// NextPage advances the pager. It reports false on the last page.
func (s *Session) NextPage() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := s.pager.Next()
	s.page = view.Current(s.mode, s.selected, s.page.Total, s.pager)
	return ok
}

// PrevPage steps the pager back. It reports false on page 1.
func (s *Session) PrevPage() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := s.pager.Prev()
	s.page = view.Current(s.mode, s.selected, s.page.Total, s.pager)
	return ok
}

// GotoPage jumps to page n, clamped.
func (s *Session) GotoPage(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pager.Goto(n)
	s.page = view.Current(s.mode, s.selected, s.page.Total, s.pager)
}

// BeginEdit measures task id as an open editor holding draft.
func (s *Session) BeginEdit(id string, draft domain.TaskPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pager.SetSizer(s.sizer.Editing(id, draft))
	s.page = view.Current(s.mode, s.selected, s.page.Total, s.pager)
}

// EndEdit restores the regular measurement.
func (s *Session) EndEdit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pager.SetSizer(s.sizer.Size)
	s.page = view.Current(s.mode, s.selected, s.page.Total, s.pager)
}

// Create validates in, stores it and refetches from page 1.
func (s *Session) Create(ctx context.Context, in domain.NewTask) (domain.Task, error) {
	if err := in.Validate(); err != nil {
		return domain.Task{}, err
	}
	t, err := s.api.Create(ctx, in, uuid.NewString())
	if err = classify(err); err != nil {
		s.setErr(err)
		return domain.Task{}, err
	}
	return t, s.refresh(ctx, true)
}

// Save replaces the text of task id. A task that no longer exists is
// dropped from the view by a refetch.
func (s *Session) Save(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	if err := patch.Validate(); err != nil {
		return domain.Task{}, err
	}
	t, err := s.api.Update(ctx, id, patch)
	if err = classify(err); err != nil {
		return domain.Task{}, s.afterFailedWrite(ctx, err)
	}
	s.EndEdit()
	return t, s.refresh(ctx, true)
}

// Delete removes task id and refetches from page 1.
func (s *Session) Delete(ctx context.Context, id string) error {
	if err := classify(s.api.Delete(ctx, id)); err != nil {
		return s.afterFailedWrite(ctx, err)
	}
	return s.refresh(ctx, true)
}

// afterFailedWrite records err as the session error. A missing task is
// first dropped from the view by a refetch; the refetch clears s.err on
// success, so err is recorded after it. A failed refetch keeps its own error.
func (s *Session) afterFailedWrite(ctx context.Context, err error) error {
	if domain.KindOf(err) == domain.KindNotFound {
		if rerr := s.refresh(ctx, false); rerr != nil {
			return errors.Join(err, rerr)
		}
	}
	s.setErr(err)
	return err
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Page returns the page to render.
func (s *Session) Page() view.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// Calendar returns a copy of the calendar overlay.
func (s *Session) Calendar() view.Calendar {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.calendar
	c.Cells = append([]view.Cell(nil), s.calendar.Cells...)
	return c
}

// Tasks returns the fetched filtered collection.
func (s *Session) Tasks() []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Task(nil), s.tasks...)
}

// Mode returns the active filter mode.
func (s *Session) Mode() domain.FilterMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Selected returns the selected day.
func (s *Session) Selected() domain.Day {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Err returns the last failure, already classified.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// classify converts any unclassified failure into a transport error.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return domain.Transport(err)
}
