package domain

import (
	"strings"
	"time"
)

// Task is a dated note owned by a single user.
type Task struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	Body      string    `json:"task"`
	Date      Day       `json:"date"`
	OwnerID   string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Key returns the task's date key.
func (t Task) Key() string { return t.Date.Key() }

// NewTask carries the fields accepted on creation.
type NewTask struct {
	Title string
	Body  string
	Date  Day
}

// TaskPatch carries the fields accepted on update. Date and owner are immutable.
type TaskPatch struct {
	Title string
	Body  string
}

// Validate checks a creation request before it reaches any store.
func (n *NewTask) Validate() error {
	n.Title = strings.TrimSpace(n.Title)
	if strings.TrimSpace(n.Body) == "" {
		return Validation("task", "task is required")
	}
	if n.Date.IsZero() {
		return Validation("date", "date is required")
	}
	return nil
}

// Validate checks an update request before it reaches any store.
func (p *TaskPatch) Validate() error {
	p.Title = strings.TrimSpace(p.Title)
	if strings.TrimSpace(p.Body) == "" {
		return Validation("task", "task is required")
	}
	return nil
}
