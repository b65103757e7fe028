package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/rookery/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var bucketTasks = []byte("tasks")

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bolt.DB
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "rookery.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketTasks); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketTasks, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) FetchActiveTasks(ctx context.Context) ([]*types.TaskRecord, error) {
	return s.scan(ctx, func(t *types.TaskRecord) bool { return t.State.IsActive() })
}

func (s *BoltStore) ListTasks(ctx context.Context) ([]*types.TaskRecord, error) {
	return s.scan(ctx, func(*types.TaskRecord) bool { return true })
}

func (s *BoltStore) CreateTask(ctx context.Context, task *types.TaskRecord) error {
	if err := validateTask(task); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		if b.Get([]byte(task.ID)) != nil {
			return fmt.Errorf("%w: %s", ErrTaskExists, task.ID)
		}
		stampTask(task)
		return putTask(b, task)
	})
}

func (s *BoltStore) GetTask(ctx context.Context, id string) (*types.TaskRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var task types.TaskRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTasks).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		return json.Unmarshal(data, &task)
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *BoltStore) UpdateTask(ctx context.Context, task *types.TaskRecord) error {
	if err := validateTask(task); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		if b.Get([]byte(task.ID)) == nil {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, task.ID)
		}
		stampTask(task)
		return putTask(b, task)
	})
}

func (s *BoltStore) DeleteTask(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		if b.Get([]byte(id)) == nil {
			return ErrTaskNotFound
		}
		return b.Delete([]byte(id))
	})
}

// scan reads every task inside one read transaction, so the result is a
// consistent snapshot
func (s *BoltStore) scan(ctx context.Context, keep func(*types.TaskRecord) bool) ([]*types.TaskRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var tasks []*types.TaskRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTasks).ForEach(func(k, v []byte) error {
			var task types.TaskRecord
			if err := json.Unmarshal(v, &task); err != nil {
				return fmt.Errorf("failed to decode task %s: %w", k, err)
			}
			if keep(&task) {
				tasks = append(tasks, &task)
			}
			return nil
		})
	})
	return tasks, err
}

func putTask(b *bolt.Bucket, task *types.TaskRecord) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return b.Put([]byte(task.ID), data)
}
