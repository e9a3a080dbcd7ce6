package client

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskcal/internal/api"
	"taskcal/internal/domain"
	"taskcal/internal/storage"
)

const testSecret = "client-test-secret"

func token(t *testing.T, sub string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func newTestAPI(t *testing.T) (*httptest.Server, *api.Server) {
	t.Helper()
	logger := log.New()
	logger.SetOutput(io.Discard)

	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	e := echo.New()
	s := &api.Server{
		Store:   storage.NewMemoryStore(),
		Auth:    api.NewLocalAuth([]byte(testSecret)),
		Deduper: api.NewRedisDeduper(rc, time.Minute),
		Broker:  api.NewBroker(),
		Logger:  logger,
	}
	api.Register(e, s)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv, s
}

func TestClientRoundTrip(t *testing.T) {
	srv, _ := newTestAPI(t)
	c := New(srv.URL+"/", token(t, "alice"))
	ctx := context.Background()
	day := mustDay(t, "2024-06-10")

	created, err := c.Create(ctx, domain.NewTask{Body: "buy milk", Title: "errand", Date: day}, "k1")
	require.NoError(t, err)
	assert.Equal(t, "alice", created.OwnerID)
	assert.Equal(t, "2024-06-10", created.Key())

	tasks, err := c.List(ctx, domain.FilterToday, day)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, created.ID, tasks[0].ID)

	updated, err := c.Update(ctx, created.ID, domain.TaskPatch{Body: "buy oat milk"})
	require.NoError(t, err)
	assert.Equal(t, "buy oat milk", updated.Body)

	all, err := c.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "buy oat milk", all[0].Body)

	require.NoError(t, c.Delete(ctx, created.ID))
	all, err = c.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestClientErrorKinds(t *testing.T) {
	srv, _ := newTestAPI(t)
	ctx := context.Background()
	c := New(srv.URL, token(t, "alice"))

	_, err := New(srv.URL, "").ListAll(ctx)
	assert.Equal(t, domain.KindUnauthorized, domain.KindOf(err))

	_, err = c.Create(ctx, domain.NewTask{Body: "x"}, "")
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	assert.Equal(t, "date", domain.FieldOf(err))

	_, err = c.Update(ctx, "missing", domain.TaskPatch{Body: "x"})
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	in := domain.NewTask{Body: "once", Date: mustDay(t, "2024-06-10")}
	_, err = c.Create(ctx, in, "same-key")
	require.NoError(t, err)
	_, err = c.Create(ctx, in, "same-key")
	assert.True(t, errors.Is(err, ErrDuplicate))

	_, err = New("http://127.0.0.1:1", "x").ListAll(ctx)
	assert.Equal(t, domain.KindTransport, domain.KindOf(err))
}

func TestClientWatchReceivesOwnEvents(t *testing.T) {
	srv, s := newTestAPI(t)
	s.Events = api.NewDispatcher(s.Broker, log.New(), api.DispatcherConfig{Workers: 1, Buffer: 8})
	t.Cleanup(s.Events.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var mu sync.Mutex
	var got []domain.TaskEvent
	done := make(chan error, 1)
	watcher := New(srv.URL, token(t, "alice"))
	go func() {
		done <- watcher.Watch(ctx, func(ev domain.TaskEvent) {
			mu.Lock()
			got = append(got, ev)
			mu.Unlock()
			cancel()
		})
	}()

	writer := New(srv.URL, token(t, "alice"))
	require.Eventually(t, func() bool {
		if _, err := writer.Create(context.Background(), domain.NewTask{Body: "ping", Date: mustDay(t, "2024-06-10")}, ""); err != nil {
			return false
		}
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}, 3*time.Second, 50*time.Millisecond)

	<-done
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, domain.TaskCreated, got[0].Type)
	assert.Equal(t, "alice", got[0].UserID)
}

func TestSessionAgainstServer(t *testing.T) {
	srv, _ := newTestAPI(t)
	ctx := context.Background()
	s := NewSession(New(srv.URL, token(t, "alice")), tenPerPage(t, "2024-06-15"))

	for i := 0; i < 12; i++ {
		_, err := s.Create(ctx, domain.NewTask{Body: "t", Date: mustDay(t, "2024-06-15")})
		require.NoError(t, err)
	}
	require.NoError(t, s.SetFilter(ctx, domain.FilterToday))
	page := s.Page()
	assert.Equal(t, 12, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	cal := s.Calendar()
	assert.True(t, cal.Has("2024-06-15"))
}
