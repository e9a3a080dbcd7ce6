// Package client talks to the task API and keeps the client-side view
// session the terminal client renders from.
package client

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"

	"taskcal/internal/domain"
)

const errorBodyMaxSize = 64 * 1024

// ErrDuplicate is returned when the API rejects a replayed create.
var ErrDuplicate error = &domain.Error{Kind: domain.KindValidation, Message: "duplicate request"}

// Client wraps http.Client with the task API's routes and error mapping.
type Client struct {
	BaseURL string
	Bearer  string
	HTTP    *http.Client
}

// New creates a new Client.
func New(baseURL, bearer string) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), Bearer: bearer, HTTP: &http.Client{}}
}

type createBody struct {
	Task  string `json:"task"`
	Title string `json:"title,omitempty"`
	Date  string `json:"date"`
}

type updateBody struct {
	Task  string `json:"task"`
	Title string `json:"title,omitempty"`
}

type messageBody struct {
	Message string `json:"message"`
	Field   string `json:"field"`
}

// List fetches the caller's tasks narrowed by mode around day.
func (c *Client) List(ctx context.Context, mode domain.FilterMode, day domain.Day) ([]domain.Task, error) {
	q := url.Values{}
	q.Set("filter", string(mode))
	if !day.IsZero() {
		q.Set("date", day.Key())
	}
	var out []domain.Task
	if err := c.do(ctx, http.MethodGet, "/api/tasks?"+q.Encode(), "", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListAll fetches the caller's whole collection.
func (c *Client) ListAll(ctx context.Context) ([]domain.Task, error) {
	var out []domain.Task
	if err := c.do(ctx, http.MethodGet, "/api/tasks/all", "", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Create stores a new task. A non-empty key is sent as the Idempotency-Key.
func (c *Client) Create(ctx context.Context, in domain.NewTask, key string) (domain.Task, error) {
	var headers http.Header
	if key != "" {
		headers = http.Header{"Idempotency-Key": []string{key}}
	}
	body := createBody{Task: in.Body, Title: in.Title, Date: in.Date.Key()}
	var out domain.Task
	err := c.do(ctx, http.MethodPost, "/api/tasks", "", headers, body, &out)
	return out, err
}

// Update replaces the text of task id.
func (c *Client) Update(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	var out domain.Task
	err := c.do(ctx, http.MethodPut, "/api/tasks/"+url.PathEscape(id), id, nil, updateBody{Task: patch.Body, Title: patch.Title}, &out)
	return out, err
}

// Delete removes task id.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/tasks/"+url.PathEscape(id), id, nil, nil, nil)
}

// Watch follows the change stream until ctx is done or the connection
// drops, calling handle for every event.
func (c *Client) Watch(ctx context.Context, handle func(domain.TaskEvent)) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/tasks/stream", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return domain.Transport(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errorFromResponse(resp, "")
	}

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		payload, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		var ev domain.TaskEvent
		if err := sonic.UnmarshalString(payload, &ev); err != nil {
			return domain.Transport(fmt.Errorf("decode event: %w", err))
		}
		handle(ev)
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		return domain.Transport(err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, domain.Transport(err)
	}
	if c.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.Bearer)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path, id string, headers http.Header, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return domain.Transport(err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return domain.Transport(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromResponse(resp, id)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := sonic.ConfigDefault.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.Transport(fmt.Errorf("decode %s %s: %w", method, path, err))
	}
	return nil
}

// errorFromResponse maps an API status back to its error kind.
func errorFromResponse(resp *http.Response, id string) error {
	var msg messageBody
	_ = sonic.ConfigDefault.NewDecoder(io.LimitReader(resp.Body, errorBodyMaxSize)).Decode(&msg)
	switch resp.StatusCode {
	case http.StatusBadRequest:
		return domain.Validation(msg.Field, msg.Message)
	case http.StatusUnauthorized, http.StatusForbidden:
		if msg.Message == "" {
			msg.Message = http.StatusText(resp.StatusCode)
		}
		return domain.Unauthorized(errors.New(msg.Message))
	case http.StatusNotFound:
		return domain.NotFound(id)
	case http.StatusConflict:
		return ErrDuplicate
	}
	return domain.Transport(fmt.Errorf("unexpected status %d", resp.StatusCode))
}
