package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskcal/internal/domain"
)

const pgTaskColumns = `id, owner_id, title, body, due_on, created_at, updated_at`

// PostgresStore is a PostgreSQL-backed task store. The task date lives in a
// native DATE column.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureTable creates the tasks table if it doesn't exist.
func (s *PostgresStore) EnsureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS tasks (
			id         TEXT PRIMARY KEY,
			owner_id   TEXT NOT NULL,
			title      TEXT NOT NULL DEFAULT '',
			body       TEXT NOT NULL,
			due_on     DATE NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_tasks_owner_due ON tasks(owner_id, due_on)`)
	return err
}

func (s *PostgresStore) List(ctx context.Context, q Query) ([]domain.Task, error) {
	stmt := `SELECT ` + pgTaskColumns + ` FROM tasks WHERE owner_id = $1`
	args := []any{q.OwnerID}
	if q.Ranged() {
		stmt += ` AND due_on BETWEEN $2 AND $3`
		args = append(args, q.From.Time(), q.To.Time())
	}
	stmt += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []domain.Task{}
	for rows.Next() {
		t, err := scanPgTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (s *PostgresStore) Create(ctx context.Context, ownerID string, in domain.NewTask) (domain.Task, error) {
	t := newTask(ownerID, in)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tasks (id, owner_id, title, body, due_on, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.OwnerID, t.Title, t.Body, t.Date.Time(), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return domain.Task{}, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) Update(ctx context.Context, ownerID, id string, patch domain.TaskPatch) (domain.Task, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE tasks SET title = $1, body = $2, updated_at = $3
		WHERE id = $4 AND owner_id = $5
		RETURNING `+pgTaskColumns,
		patch.Title, patch.Body, nextTimestamp(), id, ownerID)
	t, err := scanPgTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Task{}, domain.NotFound(id)
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("update task %s: %w", id, err)
	}
	return t, nil
}

func (s *PostgresStore) Delete(ctx context.Context, ownerID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound(id)
	}
	return nil
}

func scanPgTask(row rowScanner) (domain.Task, error) {
	var (
		t   domain.Task
		due time.Time
	)
	if err := row.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Body, &due, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return domain.Task{}, err
	}
	t.Date = domain.DayOf(due)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}
