package storage

import (
	"context"
	"sort"
	"sync"

	"taskcal/internal/domain"
)

// Store is the record store behind the task API. Update and Delete are
// scoped to the owner: a task owned by someone else is reported as
// domain.ErrNotFound, indistinguishable from a missing one.
type Store interface {
	List(ctx context.Context, q Query) ([]domain.Task, error)
	Create(ctx context.Context, ownerID string, in domain.NewTask) (domain.Task, error)
	Update(ctx context.Context, ownerID, id string, patch domain.TaskPatch) (domain.Task, error)
	Delete(ctx context.Context, ownerID, id string) error
}

// sortNewestFirst orders a listing by creation time, most recent first.
func sortNewestFirst(tasks []domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
}

// MemoryStore keeps tasks in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]map[string]domain.Task
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]map[string]domain.Task)}
}

func (s *MemoryStore) List(ctx context.Context, q Query) ([]domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Task{}
	for _, t := range s.tasks[q.OwnerID] {
		if q.Match(t) {
			out = append(out, t)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) Create(ctx context.Context, ownerID string, in domain.NewTask) (domain.Task, error) {
	t := newTask(ownerID, in)
	s.mu.Lock()
	defer s.mu.Unlock()
	owned, ok := s.tasks[ownerID]
	if !ok {
		owned = make(map[string]domain.Task)
		s.tasks[ownerID] = owned
	}
	owned[t.ID] = t
	return t, nil
}

func (s *MemoryStore) Update(ctx context.Context, ownerID, id string, patch domain.TaskPatch) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[ownerID][id]
	if !ok {
		return domain.Task{}, domain.NotFound(id)
	}
	t.Title = patch.Title
	t.Body = patch.Body
	t.UpdatedAt = nextTimestamp()
	s.tasks[ownerID][id] = t
	return t, nil
}

func (s *MemoryStore) Delete(ctx context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[ownerID][id]; !ok {
		return domain.NotFound(id)
	}
	delete(s.tasks[ownerID], id)
	return nil
}
