package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"taskcal/internal/domain"
)

const taskColumns = `id, owner_id, title, body, year, month, day, created_at, updated_at`

// SQLiteStore persists tasks in a local SQLite database. Dates are stored as
// year/month/day integers plus a yyyymmdd ordinal for range predicates.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database handle.
func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// EnsureSchema creates the tasks table and its owner/date index.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	body TEXT NOT NULL,
	year INTEGER NOT NULL,
	month INTEGER NOT NULL,
	day INTEGER NOT NULL,
	date_ordinal INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_owner_date ON tasks(owner_id, date_ordinal);`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure sqlite schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, q Query) ([]domain.Task, error) {
	stmt := `SELECT ` + taskColumns + ` FROM tasks WHERE owner_id = ?`
	args := []any{q.OwnerID}
	if q.Ranged() {
		stmt += ` AND date_ordinal BETWEEN ? AND ?`
		args = append(args, ordinal(q.From), ordinal(q.To))
	}
	stmt += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []domain.Task{}
	for rows.Next() {
		t, err := scanSQLiteTask(rows)
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

func (s *SQLiteStore) Create(ctx context.Context, ownerID string, in domain.NewTask) (domain.Task, error) {
	t := newTask(ownerID, in)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO tasks (id, owner_id, title, body, year, month, day, date_ordinal, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OwnerID, t.Title, t.Body, t.Date.Year, int(t.Date.Month), t.Date.Day, ordinal(t.Date),
		t.CreatedAt.UnixMicro(), t.UpdatedAt.UnixMicro())
	if err != nil {
		return domain.Task{}, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) Update(ctx context.Context, ownerID, id string, patch domain.TaskPatch) (domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `
UPDATE tasks SET title = ?, body = ?, updated_at = ?
WHERE id = ? AND owner_id = ?
RETURNING `+taskColumns,
		patch.Title, patch.Body, nextTimestamp().UnixMicro(), id, ownerID)
	t, err := scanSQLiteTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, domain.NotFound(id)
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("update task %s: %w", id, err)
	}
	return t, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if n == 0 {
		return domain.NotFound(id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTask(row rowScanner) (domain.Task, error) {
	var (
		t                domain.Task
		year, month, day int
		created, updated int64
	)
	if err := row.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Body, &year, &month, &day, &created, &updated); err != nil {
		return domain.Task{}, err
	}
	t.Date = domain.Day{Year: year, Month: time.Month(month), Day: day}
	t.CreatedAt = time.UnixMicro(created).UTC()
	t.UpdatedAt = time.UnixMicro(updated).UTC()
	return t, nil
}
