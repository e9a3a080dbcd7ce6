package domain

// Task change event types.
const (
	TaskCreated = "task-created"
	TaskUpdated = "task-updated"
	TaskDeleted = "task-deleted"
)

// TaskEvent describes a change to a user's tasks. It is published after the
// store accepted the write so subscribers can invalidate and refetch.
type TaskEvent struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	UserID    string `json:"userId"`
	TaskID    string `json:"taskId"`
	Date      string `json:"date,omitempty"`
	Timestamp int64  `json:"timestamp"`
}
