package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"taskcal/internal/domain"
)

const streamKeepAlive = 15 * time.Second

// Broker fans task events out to the SSE subscribers of the event's owner.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan domain.TaskEvent]struct{}
}

// NewBroker returns a broker with no subscribers.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[chan domain.TaskEvent]struct{})}
}

func (b *Broker) subscribe(userID string) chan domain.TaskEvent {
	ch := make(chan domain.TaskEvent, 8)
	b.mu.Lock()
	owned, ok := b.subs[userID]
	if !ok {
		owned = make(map[chan domain.TaskEvent]struct{})
		b.subs[userID] = owned
	}
	owned[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) unsubscribe(userID string, ch chan domain.TaskEvent) {
	b.mu.Lock()
	delete(b.subs[userID], ch)
	if len(b.subs[userID]) == 0 {
		delete(b.subs, userID)
	}
	b.mu.Unlock()
}

// Notify delivers ev to its owner's subscribers. Slow subscribers miss
// events rather than block the caller.
func (b *Broker) Notify(ev domain.TaskEvent) {
	b.mu.Lock()
	for ch := range b.subs[ev.UserID] {
		select {
		case ch <- ev:
		default:
		}
	}
	b.mu.Unlock()
}

// Publish implements storage.Publisher for single-instance deployments.
func (b *Broker) Publish(_ context.Context, ev domain.TaskEvent) error {
	b.Notify(ev)
	return nil
}

func (s *Server) streamTasks(c echo.Context) error {
	userID, err := s.Auth.UserIDFromAuthHeader(authHeader(c, true))
	if err != nil {
		return writeError(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return c.String(http.StatusInternalServerError, "stream unsupported")
	}
	c.Response().WriteHeader(http.StatusOK)
	if _, err := c.Response().Write([]byte(": connected\n\n")); err != nil {
		return nil
	}
	flusher.Flush()

	ctx := c.Request().Context()
	ch := s.Broker.subscribe(userID)
	defer s.Broker.unsubscribe(userID, ch)
	ticker := time.NewTicker(streamKeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := c.Response().Write([]byte(": ping\n\n")); err != nil {
				return nil
			}
		case ev := <-ch:
			data, err := sonic.Marshal(ev)
			if err != nil {
				s.Logger.WithError(err).Error("marshal task event")
				continue
			}
			if _, err := c.Response().Write([]byte("data: ")); err != nil {
				return nil
			}
			if _, err := c.Response().Write(data); err != nil {
				return nil
			}
			if _, err := c.Response().Write([]byte("\n\n")); err != nil {
				return nil
			}
		}
		flusher.Flush()
	}
}
