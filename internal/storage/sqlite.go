//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"remindd/internal/task"
	logx "remindd/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) RecurringTasks(ctx context.Context) ([]task.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, completed, completed_at, due_at, next_at, recurrence, created_at, updated_at
		FROM tasks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		if t.IsRecurring() {
			out = append(out, t)
		}
	}
	return out, rows.Err()
}

func (s *sqliteStore) GetTask(ctx context.Context, id string) (task.Task, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, completed, completed_at, due_at, next_at, recurrence, created_at, updated_at
		FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return task.Task{}, false, nil
	}
	if err != nil {
		return task.Task{}, false, err
	}
	return t, true, nil
}

func (s *sqliteStore) PutTask(ctx context.Context, t task.Task) error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("task id required")
	}
	rec, err := json.Marshal(t.Recurrence)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, title, completed, completed_at, due_at, next_at, recurrence, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			completed = excluded.completed,
			completed_at = excluded.completed_at,
			due_at = excluded.due_at,
			next_at = excluded.next_at,
			recurrence = excluded.recurrence,
			updated_at = excluded.updated_at`,
		t.ID, t.Title, boolToInt(t.Completed),
		msOrNil(t.CompletedAt), msOrNil(t.DueAt), msOrNil(t.NextAt),
		string(rec), t.CreatedAt.UnixMilli(), t.UpdatedAt.UnixMilli())
	return err
}

func (s *sqliteStore) DeleteTask(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (task.Task, error) {
	var (
		t                          task.Task
		completed                  int
		completedAt, dueAt, nextAt sql.NullInt64
		rec                        string
		createdAt, updatedAt       int64
	)
	if err := r.Scan(&t.ID, &t.Title, &completed, &completedAt, &dueAt, &nextAt, &rec, &createdAt, &updatedAt); err != nil {
		return task.Task{}, err
	}
	t.Completed = completed != 0
	t.CompletedAt = timeOrNil(completedAt)
	t.DueAt = timeOrNil(dueAt)
	t.NextAt = timeOrNil(nextAt)
	t.CreatedAt = time.UnixMilli(createdAt)
	t.UpdatedAt = time.UnixMilli(updatedAt)
	if err := json.Unmarshal([]byte(rec), &t.Recurrence); err != nil {
		return task.Task{}, err
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func msOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func timeOrNil(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}
