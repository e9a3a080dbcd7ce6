package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskcal/internal/domain"
	"taskcal/internal/storage"
	"taskcal/internal/view"
)

// fakeAPI serves one owner's view of a MemoryStore.
type fakeAPI struct {
	store *storage.MemoryStore
	owner string

	mu          sync.Mutex
	listErr     error
	gates       map[domain.FilterMode]chan struct{}
	entered     chan domain.FilterMode
	createCalls int
	updateCalls int
}

func newFakeAPI(owner string) *fakeAPI {
	return &fakeAPI{store: storage.NewMemoryStore(), owner: owner}
}

func (f *fakeAPI) List(ctx context.Context, mode domain.FilterMode, day domain.Day) ([]domain.Task, error) {
	f.mu.Lock()
	err, gate, entered := f.listErr, f.gates[mode], f.entered
	f.mu.Unlock()
	if entered != nil {
		entered <- mode
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	q, err := storage.BuildQuery(f.owner, mode, day)
	if err != nil {
		return nil, err
	}
	return f.store.List(ctx, q)
}

func (f *fakeAPI) ListAll(ctx context.Context) ([]domain.Task, error) {
	q, err := storage.AllFor(f.owner)
	if err != nil {
		return nil, err
	}
	return f.store.List(ctx, q)
}

func (f *fakeAPI) Create(ctx context.Context, in domain.NewTask, _ string) (domain.Task, error) {
	f.mu.Lock()
	f.createCalls++
	f.mu.Unlock()
	return f.store.Create(ctx, f.owner, in)
}

func (f *fakeAPI) Update(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	f.mu.Lock()
	f.updateCalls++
	f.mu.Unlock()
	return f.store.Update(ctx, f.owner, id, patch)
}

func (f *fakeAPI) Delete(ctx context.Context, id string) error {
	return f.store.Delete(ctx, f.owner, id)
}

func mustDay(t *testing.T, raw string) domain.Day {
	t.Helper()
	d, err := domain.ParseDay(raw)
	require.NoError(t, err)
	return d
}

// tenPerPage sizes every task at 10 units against a budget of 100.
func tenPerPage(t *testing.T, today string) Options {
	d := mustDay(t, today)
	return Options{
		Budget: 100,
		Sizer:  view.TextSizer{Columns: 80, Padding: 10},
		Today:  func() domain.Day { return d },
	}
}

func seed(t *testing.T, f *fakeAPI, owner, date string, n int) []domain.Task {
	t.Helper()
	out := make([]domain.Task, 0, n)
	for i := 0; i < n; i++ {
		task, err := f.store.Create(context.Background(), owner, domain.NewTask{Body: fmt.Sprintf("task %d", i), Date: mustDay(t, date)})
		require.NoError(t, err)
		out = append(out, task)
	}
	return out
}

func TestSessionRefreshBuildsPageAndCalendar(t *testing.T) {
	api := newFakeAPI("alice")
	seed(t, api, "alice", "2024-06-10", 2)
	seed(t, api, "alice", "2024-07-01", 1)
	seed(t, api, "bob", "2024-06-11", 1)

	s := NewSession(api, tenPerPage(t, "2024-06-15"))
	require.NoError(t, s.Refresh(context.Background()))

	page := s.Page()
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 1, page.TotalPages)
	require.Len(t, page.Groups, 2)
	assert.Equal(t, "2024-07-01", page.Groups[0].Key)
	assert.Equal(t, "2024-06-10", page.Groups[1].Key)

	cal := s.Calendar()
	assert.True(t, cal.Has("2024-06-10"))
	assert.True(t, cal.Has("2024-07-01"))
	assert.False(t, cal.Has("2024-06-11"), "foreign tasks must not reach the calendar")
	assert.Equal(t, domain.Month{Year: 2024, Month: time.June}, cal.Month)
}

func TestSessionPagingTwentyFive(t *testing.T) {
	api := newFakeAPI("alice")
	seed(t, api, "alice", "2024-06-10", 25)

	s := NewSession(api, tenPerPage(t, "2024-06-15"))
	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, 3, s.Page().TotalPages)
	assert.Equal(t, 10, s.Page().PageSize)

	assert.True(t, s.NextPage())
	assert.True(t, s.NextPage())
	assert.False(t, s.NextPage())
	page := s.Page()
	assert.Equal(t, 3, page.Number)
	require.Len(t, page.Groups, 1)
	assert.Len(t, page.Groups[0].Tasks, 5)
}

func TestSessionDeleteOnlyTaskOfLastPageClamps(t *testing.T) {
	api := newFakeAPI("alice")
	tasks := seed(t, api, "alice", "2024-06-10", 11)
	ctx := context.Background()

	s := NewSession(api, tenPerPage(t, "2024-06-15"))
	require.NoError(t, s.Refresh(ctx))
	s.GotoPage(2)
	page := s.Page()
	require.Equal(t, 2, page.Number)
	require.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Groups, 1)
	require.Len(t, page.Groups[0].Tasks, 1)

	last := page.Groups[0].Tasks[0]
	assert.Equal(t, tasks[10].ID, last.ID)
	require.NoError(t, s.Delete(ctx, last.ID))

	page = s.Page()
	assert.Equal(t, 1, page.Number)
	assert.Equal(t, 1, page.TotalPages)
	assert.Equal(t, 10, page.Total)
}

func TestSessionRefreshKeepsPageWhenStillValid(t *testing.T) {
	api := newFakeAPI("alice")
	seed(t, api, "alice", "2024-06-10", 25)
	ctx := context.Background()

	s := NewSession(api, tenPerPage(t, "2024-06-15"))
	require.NoError(t, s.Refresh(ctx))
	s.GotoPage(3)
	require.NoError(t, s.Refresh(ctx))
	assert.Equal(t, 3, s.Page().Number)

	require.NoError(t, s.SetFilter(ctx, domain.FilterMonth))
	assert.Equal(t, 1, s.Page().Number, "filter change resets the page")
}

func TestSessionSaveForeignTaskIsNotFound(t *testing.T) {
	api := newFakeAPI("alice")
	mine := seed(t, api, "alice", "2024-06-10", 1)
	theirs := seed(t, api, "bob", "2024-06-10", 1)
	ctx := context.Background()

	s := NewSession(api, tenPerPage(t, "2024-06-15"))
	require.NoError(t, s.Refresh(ctx))
	before := s.Tasks()

	_, err := s.Save(ctx, theirs[0].ID, domain.TaskPatch{Body: "hijacked"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Equal(t, domain.KindNotFound, domain.KindOf(s.Err()))

	q, err := storage.AllFor("bob")
	require.NoError(t, err)
	bobs, err := api.store.List(ctx, q)
	require.NoError(t, err)
	require.Len(t, bobs, 1)
	assert.Equal(t, theirs[0].Body, bobs[0].Body)

	assert.Equal(t, before, s.Tasks())
	assert.Equal(t, mine[0].ID, s.Tasks()[0].ID)
}

func TestSessionValidationSkipsStore(t *testing.T) {
	api := newFakeAPI("alice")
	s := NewSession(api, tenPerPage(t, "2024-06-15"))
	ctx := context.Background()

	_, err := s.Create(ctx, domain.NewTask{Body: "  ", Date: mustDay(t, "2024-06-10")})
	assert.Equal(t, "task", domain.FieldOf(err))
	_, err = s.Create(ctx, domain.NewTask{Body: "x"})
	assert.Equal(t, "date", domain.FieldOf(err))
	_, err = s.Save(ctx, "any", domain.TaskPatch{})
	assert.Equal(t, "task", domain.FieldOf(err))

	assert.Zero(t, api.createCalls)
	assert.Zero(t, api.updateCalls)
}

func TestSessionCreateRefetches(t *testing.T) {
	api := newFakeAPI("alice")
	s := NewSession(api, tenPerPage(t, "2024-06-15"))
	ctx := context.Background()

	created, err := s.Create(ctx, domain.NewTask{Body: "new", Date: mustDay(t, "2024-06-20")})
	require.NoError(t, err)
	require.Len(t, s.Tasks(), 1)
	assert.Equal(t, created.ID, s.Tasks()[0].ID)
	cal := s.Calendar()
	assert.True(t, cal.Has("2024-06-20"))
}

func TestSessionTransportFailureClearsCollection(t *testing.T) {
	api := newFakeAPI("alice")
	seed(t, api, "alice", "2024-06-10", 3)
	ctx := context.Background()

	s := NewSession(api, tenPerPage(t, "2024-06-15"))
	require.NoError(t, s.Refresh(ctx))
	require.Len(t, s.Tasks(), 3)

	api.mu.Lock()
	api.listErr = errors.New("dial tcp: connection refused")
	api.mu.Unlock()

	err := s.Refresh(ctx)
	require.Error(t, err)
	assert.Equal(t, domain.KindTransport, domain.KindOf(err))
	assert.Empty(t, s.Tasks())
	assert.True(t, s.Page().Empty())
	assert.Equal(t, domain.KindTransport, domain.KindOf(s.Err()))
}

func TestSessionIgnoresStaleListResponse(t *testing.T) {
	api := newFakeAPI("alice")
	seed(t, api, "alice", "2024-06-10", 2)
	seed(t, api, "alice", "2024-06-15", 1)
	ctx := context.Background()

	s := NewSession(api, tenPerPage(t, "2024-06-15"))
	require.NoError(t, s.Refresh(ctx))

	gate := make(chan struct{})
	api.mu.Lock()
	api.gates = map[domain.FilterMode]chan struct{}{domain.FilterMonth: gate}
	api.entered = make(chan domain.FilterMode, 2)
	api.mu.Unlock()

	slow := make(chan error, 1)
	go func() { slow <- s.SetFilter(ctx, domain.FilterMonth) }()
	require.Equal(t, domain.FilterMonth, <-api.entered)

	require.NoError(t, s.SetFilter(ctx, domain.FilterToday))
	<-api.entered
	close(gate)
	require.NoError(t, <-slow)

	assert.Equal(t, domain.FilterToday, s.Mode())
	page := s.Page()
	assert.Equal(t, 1, page.Total, "late month response must not overwrite the today view")
	assert.Equal(t, domain.FilterToday, page.Mode)
}

func TestSessionSelectDate(t *testing.T) {
	api := newFakeAPI("alice")
	seed(t, api, "alice", "2024-07-04", 1)
	ctx := context.Background()

	s := NewSession(api, tenPerPage(t, "2024-06-15"))
	require.NoError(t, s.SetFilter(ctx, domain.FilterToday))
	assert.True(t, s.Page().Empty())

	require.NoError(t, s.SelectDate(ctx, mustDay(t, "2024-07-04")))
	assert.Equal(t, 1, s.Page().Total)
	assert.Equal(t, domain.Month{Year: 2024, Month: time.July}, s.Calendar().Month)
	assert.Equal(t, "2024-07-04", s.Calendar().Selected.Key())

	s.PrevMonth()
	assert.Equal(t, time.June, s.Calendar().Month.Month)
	assert.Equal(t, "2024-07-04", s.Selected().Key())

	assert.Equal(t, "filter", domain.FieldOf(s.SetFilter(ctx, "week")))
}

func TestSessionEditModeRemeasures(t *testing.T) {
	api := newFakeAPI("alice")
	tasks := seed(t, api, "alice", "2024-06-10", 10)
	ctx := context.Background()

	opts := tenPerPage(t, "2024-06-15")
	opts.Sizer.EditOverhead = 50
	s := NewSession(api, opts)
	require.NoError(t, s.Refresh(ctx))
	require.Equal(t, 1, s.Page().TotalPages)

	first := s.Page().Groups[0].Tasks[0]
	assert.Equal(t, tasks[0].ID, first.ID)
	s.BeginEdit(first.ID, domain.TaskPatch{Body: "draft"})
	assert.Equal(t, 5, s.Page().PageSize)
	assert.Equal(t, 2, s.Page().TotalPages)

	s.EndEdit()
	assert.Equal(t, 10, s.Page().PageSize)
}

func TestSessionDeleteVanishedTaskKeepsNotFound(t *testing.T) {
	api := newFakeAPI("alice")
	tasks := seed(t, api, "alice", "2024-06-10", 2)
	ctx := context.Background()

	s := NewSession(api, tenPerPage(t, "2024-06-15"))
	require.NoError(t, s.Refresh(ctx))
	require.Len(t, s.Tasks(), 2)

	require.NoError(t, api.store.Delete(ctx, "alice", tasks[0].ID))

	err := s.Delete(ctx, tasks[0].ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Equal(t, domain.KindNotFound, domain.KindOf(s.Err()), "the refetch must not clear the item error")
	require.Len(t, s.Tasks(), 1, "the refetch drops the vanished task")
	assert.Equal(t, tasks[1].ID, s.Tasks()[0].ID)
}

func TestSessionFailedFilterChangeKeepsView(t *testing.T) {
	api := newFakeAPI("alice")
	seed(t, api, "alice", "2024-06-10", 2)
	seed(t, api, "alice", "2024-06-15", 1)
	ctx := context.Background()

	s := NewSession(api, tenPerPage(t, "2024-06-15"))
	require.NoError(t, s.SetFilter(ctx, domain.FilterToday))
	require.Equal(t, 1, s.Page().Total)

	api.mu.Lock()
	api.listErr = domain.Unauthorized(errors.New("token expired"))
	api.mu.Unlock()

	err := s.SetFilter(ctx, domain.FilterMonth)
	assert.Equal(t, domain.KindUnauthorized, domain.KindOf(err))
	assert.Equal(t, domain.FilterToday, s.Mode())
	assert.Equal(t, domain.FilterToday, s.Page().Mode)
	assert.Equal(t, 1, s.Page().Total)

	err = s.SelectDate(ctx, mustDay(t, "2024-07-04"))
	assert.Equal(t, domain.KindUnauthorized, domain.KindOf(err))
	assert.Equal(t, "2024-06-15", s.Selected().Key())
	assert.Equal(t, "2024-06-15", s.Calendar().Selected.Key())
	assert.Equal(t, time.June, s.Calendar().Month.Month)
	assert.Equal(t, 1, s.Page().Total)
}
