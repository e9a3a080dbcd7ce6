package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"taskcal/internal/domain"
)

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		s, err := OpenSQLite(":memory:")
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func taskIDs(tasks []domain.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func runStoreSuite(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()

	create := func(t *testing.T, s Store, owner, body, date string) domain.Task {
		t.Helper()
		task, err := s.Create(ctx, owner, domain.NewTask{Body: body, Date: mustDay(t, date)})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		return task
	}

	t.Run("create assigns identity", func(t *testing.T) {
		s := open(t)
		a := create(t, s, "u1", "first", "2024-06-01")
		b := create(t, s, "u1", "second", "2024-06-01")
		if a.ID == "" || a.ID == b.ID {
			t.Fatalf("expected distinct ids, got %q and %q", a.ID, b.ID)
		}
		if !b.CreatedAt.After(a.CreatedAt) {
			t.Fatalf("expected increasing createdAt: %v then %v", a.CreatedAt, b.CreatedAt)
		}
		if a.OwnerID != "u1" || a.Key() != "2024-06-01" {
			t.Fatalf("unexpected task: %+v", a)
		}
	})

	t.Run("list honours query and order", func(t *testing.T) {
		s := open(t)
		june1 := create(t, s, "u1", "a", "2024-06-01")
		june1b := create(t, s, "u1", "b", "2024-06-01")
		july := create(t, s, "u1", "c", "2024-07-01")
		lastYear := create(t, s, "u1", "d", "2023-06-01")
		create(t, s, "u2", "foreign", "2024-06-01")

		cases := []struct {
			mode domain.FilterMode
			ref  string
			want []string
		}{
			{domain.FilterAll, "", []string{lastYear.ID, july.ID, june1b.ID, june1.ID}},
			{domain.FilterMonth, "2024-06-20", []string{june1b.ID, june1.ID}},
			{domain.FilterToday, "2024-07-01", []string{july.ID}},
			{domain.FilterToday, "2024-07-02", []string{}},
		}
		for _, c := range cases {
			var ref domain.Day
			if c.ref != "" {
				ref = mustDay(t, c.ref)
			}
			q, err := BuildQuery("u1", c.mode, ref)
			if err != nil {
				t.Fatalf("build query: %v", err)
			}
			got, err := s.List(ctx, q)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if !reflect.DeepEqual(taskIDs(got), c.want) {
				t.Fatalf("%s %s: got %v, want %v", c.mode, c.ref, taskIDs(got), c.want)
			}
		}
	})

	t.Run("update changes only text", func(t *testing.T) {
		s := open(t)
		orig := create(t, s, "u1", "draft", "2024-06-01")
		updated, err := s.Update(ctx, "u1", orig.ID, domain.TaskPatch{Title: "Title", Body: "final"})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if updated.Title != "Title" || updated.Body != "final" {
			t.Fatalf("unexpected update result: %+v", updated)
		}
		if updated.Date != orig.Date || updated.OwnerID != "u1" || !updated.CreatedAt.Equal(orig.CreatedAt) {
			t.Fatalf("immutable fields changed: %+v", updated)
		}
		if !updated.UpdatedAt.After(orig.UpdatedAt) {
			t.Fatalf("expected updatedAt to advance")
		}
	})

	t.Run("foreign owner is not found", func(t *testing.T) {
		s := open(t)
		orig := create(t, s, "u1", "mine", "2024-06-01")
		if _, err := s.Update(ctx, "u2", orig.ID, domain.TaskPatch{Body: "hijack"}); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected not found on foreign update, got %v", err)
		}
		if err := s.Delete(ctx, "u2", orig.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected not found on foreign delete, got %v", err)
		}
		all, _ := AllFor("u1")
		tasks, err := s.List(ctx, all)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(tasks) != 1 || tasks[0].Body != "mine" {
			t.Fatalf("foreign write mutated task: %+v", tasks)
		}
	})

	t.Run("delete", func(t *testing.T) {
		s := open(t)
		orig := create(t, s, "u1", "gone", "2024-06-01")
		if err := s.Delete(ctx, "u1", orig.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if err := s.Delete(ctx, "u1", orig.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected not found on second delete, got %v", err)
		}
		all, _ := AllFor("u1")
		tasks, err := s.List(ctx, all)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(tasks) != 0 {
			t.Fatalf("expected empty listing, got %v", taskIDs(tasks))
		}
	})
}
