package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cuemby/rookery/pkg/types"
)

var (
	// ErrTaskNotFound is returned when a task ID is unknown to the store
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskExists is returned when creating a task whose ID is already taken
	ErrTaskExists = errors.New("task already exists")
)

// Store defines the interface for task record storage
type Store interface {
	// FetchActiveTasks returns a point-in-time snapshot of every task in a
	// non-terminal state
	FetchActiveTasks(ctx context.Context) ([]*types.TaskRecord, error)

	CreateTask(ctx context.Context, task *types.TaskRecord) error
	GetTask(ctx context.Context, id string) (*types.TaskRecord, error)
	ListTasks(ctx context.Context) ([]*types.TaskRecord, error)
	UpdateTask(ctx context.Context, task *types.TaskRecord) error
	DeleteTask(ctx context.Context, id string) error

	Close() error
}

// Driver names accepted by Open
const (
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
)

// Config selects and locates a storage backend
type Config struct {
	Driver  string // "bolt" (default) or "sqlite"
	DataDir string
}

// Open creates the store selected by cfg.Driver inside cfg.DataDir
func Open(cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverBolt:
		return NewBoltStore(cfg.DataDir)
	case DriverSQLite:
		return NewSQLiteStore(filepath.Join(cfg.DataDir, "rookery.sqlite"))
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func validateTask(task *types.TaskRecord) error {
	if task == nil || task.ID == "" {
		return errors.New("task ID is required")
	}
	if !task.State.IsValid() {
		return fmt.Errorf("task %s: invalid state %q", task.ID, task.State)
	}
	return nil
}

func stampTask(task *types.TaskRecord) {
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
}
