package storage

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"taskcal/internal/domain"
)

var lastTimestamp int64

// nextTimestamp returns a strictly increasing wall-clock time at microsecond
// resolution, the finest precision every backend round-trips.
func nextTimestamp() time.Time {
	for {
		now := time.Now().UnixMicro()
		last := atomic.LoadInt64(&lastTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, now) {
			return time.UnixMicro(now).UTC()
		}
	}
}

func newTaskID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// newTask stamps a validated creation request for owner.
func newTask(ownerID string, in domain.NewTask) domain.Task {
	now := nextTimestamp()
	return domain.Task{
		ID:        newTaskID(),
		Title:     in.Title,
		Body:      in.Body,
		Date:      in.Date,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
