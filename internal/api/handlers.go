// Package api serves the task record store over HTTP: filtered listings,
// create, update and delete scoped to the bearer's user, plus a change
// stream.
package api

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskcal/internal/domain"
	"taskcal/internal/storage"
)

// Server holds the handler dependencies. Deduper, Events and Broker are
// optional.
type Server struct {
	Store   storage.Store
	Auth    Authenticator
	Deduper Deduper
	Events  *Dispatcher
	Broker  *Broker
	Logger  *log.Logger
	// Ping reports backend health for /healthz.
	Ping func(ctx context.Context) error
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, s *Server) {
	if s.Logger == nil {
		panic("Logger is not initialized")
	}
	e.GET("/healthz", s.healthz)
	e.GET("/api/tasks", s.listTasks)
	e.GET("/api/tasks/all", s.listAllTasks)
	if s.Broker != nil {
		e.GET("/api/tasks/stream", s.streamTasks)
	}
	e.POST("/api/tasks", s.createTask)
	e.PUT("/api/tasks/:id", s.updateTask)
	e.DELETE("/api/tasks/:id", s.deleteTask)
}

func (s *Server) healthz(c echo.Context) error {
	if s.Ping != nil {
		if err := s.Ping(c.Request().Context()); err != nil {
			s.Logger.WithError(err).Warn("health check failed")
			return c.NoContent(http.StatusServiceUnavailable)
		}
	}
	return c.NoContent(http.StatusOK)
}

// begin starts request metrics and authenticates the caller. The returned
// error is an unauthorized failure still to be written by the caller.
func (s *Server) begin(c echo.Context, route string) (m *requestMetrics, ctx context.Context, userID string, err error) {
	m, ctx = newRequestMetrics(c.Request().Context(), s.Logger, c.Request().Method, route)
	c.SetRequest(c.Request().WithContext(ctx))

	authStart := time.Now()
	userID, err = s.Auth.UserIDFromAuthHeader(authHeader(c, false))
	m.ObserveAuth(time.Since(authStart))
	if err != nil {
		m.SetErrorStage("auth")
	}
	return m, ctx, userID, err
}

func (s *Server) fail(c echo.Context, m *requestMetrics, stage string, err error) error {
	m.SetErrorStage(stage)
	if statusForError(err) == http.StatusInternalServerError {
		s.Logger.WithError(err).WithField("stage", stage).Error("task request failed")
	}
	return writeError(c, err)
}

func (s *Server) listTasks(c echo.Context) error {
	return s.list(c, "/api/tasks", func(userID string) (storage.Query, error) {
		mode, day, err := parseListParams(c.QueryParam("filter"), c.QueryParam("date"))
		if err != nil {
			return storage.Query{}, err
		}
		return storage.BuildQuery(userID, mode, day)
	})
}

func (s *Server) listAllTasks(c echo.Context) error {
	return s.list(c, "/api/tasks/all", storage.AllFor)
}

func (s *Server) list(c echo.Context, route string, build func(userID string) (storage.Query, error)) (err error) {
	m, ctx, userID, authErr := s.begin(c, route)
	var cause error
	defer func() {
		if cause == nil {
			cause = err
		}
		m.Log(c.Response().Status, cause)
	}()
	if authErr != nil {
		cause = authErr
		return writeError(c, authErr)
	}

	q, qErr := build(userID)
	if qErr != nil {
		cause = qErr
		return s.fail(c, m, "query", qErr)
	}
	m.SetFilter(string(q.Mode))

	storeStart := time.Now()
	tasks, listErr := s.Store.List(ctx, q)
	m.ObserveStore(time.Since(storeStart))
	if listErr != nil {
		cause = listErr
		return s.fail(c, m, "storage", listErr)
	}
	m.SetTasksReturned(len(tasks))

	encodeStart := time.Now()
	err = c.JSON(http.StatusOK, tasks)
	m.ObserveEncode(time.Since(encodeStart))
	if err != nil {
		m.SetErrorStage("encode_response")
	}
	return err
}

// parseListParams resolves the listing parameters. Without an explicit
// filter a date selects its month and no date selects everything.
func parseListParams(rawFilter, rawDate string) (domain.FilterMode, domain.Day, error) {
	var day domain.Day
	if strings.TrimSpace(rawDate) != "" {
		d, err := domain.ParseDay(rawDate)
		if err != nil {
			return "", domain.Day{}, domain.Validation("date", err.Error())
		}
		day = d
	}
	if strings.TrimSpace(rawFilter) == "" {
		if day.IsZero() {
			return domain.FilterAll, day, nil
		}
		return domain.FilterMonth, day, nil
	}
	mode, err := domain.ParseFilterMode(rawFilter)
	return mode, day, err
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, taskBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.Validation("", "invalid body")
	}
	return nil
}

func (s *Server) createTask(c echo.Context) (err error) {
	m, ctx, userID, authErr := s.begin(c, "/api/tasks")
	var cause error
	defer func() {
		if cause == nil {
			cause = err
		}
		m.Log(c.Response().Status, cause)
	}()
	if authErr != nil {
		cause = authErr
		return writeError(c, authErr)
	}

	var req createTaskRequest
	if cause = decodeBody(c, &req); cause != nil {
		return s.fail(c, m, "decode", cause)
	}
	in := domain.NewTask{Title: req.Title, Body: req.Task}
	if strings.TrimSpace(req.Date) != "" {
		d, parseErr := domain.ParseDay(req.Date)
		if parseErr != nil {
			cause = domain.Validation("date", parseErr.Error())
			return s.fail(c, m, "validate", cause)
		}
		in.Date = d
	}
	if cause = in.Validate(); cause != nil {
		return s.fail(c, m, "validate", cause)
	}

	key := strings.TrimSpace(c.Request().Header.Get("Idempotency-Key"))
	if key != "" && s.Deduper != nil {
		added, dedupeErr := s.Deduper.Add(ctx, userID, key)
		if dedupeErr != nil {
			cause = domain.Transport(dedupeErr)
			return s.fail(c, m, "dedupe", cause)
		}
		if !added {
			m.SetErrorStage("duplicate")
			return c.JSON(http.StatusConflict, messageResponse{Message: "duplicate request"})
		}
	}

	storeStart := time.Now()
	task, createErr := s.Store.Create(ctx, userID, in)
	m.ObserveStore(time.Since(storeStart))
	if createErr != nil {
		if key != "" && s.Deduper != nil {
			if rerr := s.Deduper.Remove(context.Background(), userID, key); rerr != nil {
				s.Logger.Errorf("dedupe rollback failed, err: %v, key: %s, user: %s", rerr, key, userID)
			}
		}
		cause = createErr
		return s.fail(c, m, "storage", createErr)
	}
	s.emit(domain.TaskCreated, task)
	return c.JSON(http.StatusCreated, task)
}

func (s *Server) updateTask(c echo.Context) (err error) {
	m, ctx, userID, authErr := s.begin(c, "/api/tasks/:id")
	var cause error
	defer func() {
		if cause == nil {
			cause = err
		}
		m.Log(c.Response().Status, cause)
	}()
	if authErr != nil {
		cause = authErr
		return writeError(c, authErr)
	}

	var req struct {
		updateTaskRequest
		Date *string `json:"date"`
	}
	if cause = decodeBody(c, &req); cause != nil {
		return s.fail(c, m, "decode", cause)
	}
	if req.Date != nil {
		cause = domain.Validation("date", "date cannot be changed")
		return s.fail(c, m, "validate", cause)
	}
	patch := domain.TaskPatch{Title: req.Title, Body: req.Task}
	if cause = patch.Validate(); cause != nil {
		return s.fail(c, m, "validate", cause)
	}

	id := c.Param("id")
	storeStart := time.Now()
	task, updateErr := s.Store.Update(ctx, userID, id, patch)
	m.ObserveStore(time.Since(storeStart))
	if updateErr != nil {
		cause = updateErr
		return s.fail(c, m, "storage", updateErr)
	}
	s.emit(domain.TaskUpdated, task)
	return c.JSON(http.StatusOK, task)
}

func (s *Server) deleteTask(c echo.Context) (err error) {
	m, ctx, userID, authErr := s.begin(c, "/api/tasks/:id")
	var cause error
	defer func() {
		if cause == nil {
			cause = err
		}
		m.Log(c.Response().Status, cause)
	}()
	if authErr != nil {
		cause = authErr
		return writeError(c, authErr)
	}

	id := c.Param("id")
	storeStart := time.Now()
	deleteErr := s.Store.Delete(ctx, userID, id)
	m.ObserveStore(time.Since(storeStart))
	if deleteErr != nil {
		cause = deleteErr
		return s.fail(c, m, "storage", deleteErr)
	}
	s.emit(domain.TaskDeleted, domain.Task{ID: id, OwnerID: userID})
	return c.JSON(http.StatusOK, messageResponse{Message: "Task deleted"})
}

func (s *Server) emit(typ string, t domain.Task) {
	if s.Events == nil {
		return
	}
	s.Events.Dispatch(storage.NewTaskEvent(typ, t))
}
