package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/rookery/pkg/types"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a single SQLite database file
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		assignment TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_state ON tasks(state);
	`)
	return err
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) FetchActiveTasks(ctx context.Context) ([]*types.TaskRecord, error) {
	active := types.ActiveTaskStates()
	placeholders := make([]string, len(active))
	args := make([]interface{}, len(active))
	for i, state := range active {
		placeholders[i] = "?"
		args[i] = string(state)
	}

	query := `SELECT id, state, assignment, created_at, updated_at FROM tasks
		WHERE state IN (` + strings.Join(placeholders, ",") + `) ORDER BY id`
	return s.query(ctx, query, args...)
}

func (s *SQLiteStore) ListTasks(ctx context.Context) ([]*types.TaskRecord, error) {
	return s.query(ctx, `SELECT id, state, assignment, created_at, updated_at FROM tasks ORDER BY id`)
}

func (s *SQLiteStore) CreateTask(ctx context.Context, task *types.TaskRecord) error {
	if err := validateTask(task); err != nil {
		return err
	}
	stampTask(task)
	assignment, err := encodeAssignment(task.Assignment)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, state, assignment, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		task.ID, string(task.State), assignment, task.CreatedAt.UnixNano(), task.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert task %s: %w", task.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrTaskExists, task.ID)
	}
	return nil
}

func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*types.TaskRecord, error) {
	tasks, err := s.query(ctx, `SELECT id, state, assignment, created_at, updated_at FROM tasks WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return tasks[0], nil
}

func (s *SQLiteStore) UpdateTask(ctx context.Context, task *types.TaskRecord) error {
	if err := validateTask(task); err != nil {
		return err
	}
	stampTask(task)
	assignment, err := encodeAssignment(task.Assignment)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET state = ?, assignment = ?, updated_at = ? WHERE id = ?`,
		string(task.State), assignment, task.UpdatedAt.UnixNano(), task.ID)
	if err != nil {
		return fmt.Errorf("failed to update task %s: %w", task.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, task.ID)
	}
	return nil
}

func (s *SQLiteStore) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...interface{}) ([]*types.TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*types.TaskRecord
	for rows.Next() {
		var (
			task       types.TaskRecord
			state      string
			assignment sql.NullString
			created    int64
			updated    int64
		)
		if err := rows.Scan(&task.ID, &state, &assignment, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		task.State = types.TaskState(state)
		task.CreatedAt = time.Unix(0, created).UTC()
		task.UpdatedAt = time.Unix(0, updated).UTC()
		if assignment.Valid && assignment.String != "" {
			task.Assignment = &types.Assignment{}
			if err := json.Unmarshal([]byte(assignment.String), task.Assignment); err != nil {
				return nil, fmt.Errorf("failed to decode assignment of task %s: %w", task.ID, err)
			}
		}
		tasks = append(tasks, &task)
	}
	return tasks, rows.Err()
}

func encodeAssignment(a *types.Assignment) (sql.NullString, error) {
	if a == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode assignment: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
