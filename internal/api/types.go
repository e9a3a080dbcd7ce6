package api

import (
	"context"
)

const taskBodyMaxSize = 64 * 1024 // 64 KiB

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents processing of duplicate create requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when the create fails.
	Remove(ctx context.Context, userID, key string) error
}

// POST /api/tasks request body
type createTaskRequest struct {
	Task  string `json:"task"`
	Title string `json:"title,omitempty"`
	Date  string `json:"date"`
}

// PUT /api/tasks/{id} request body
type updateTaskRequest struct {
	Task  string `json:"task"`
	Title string `json:"title,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}
