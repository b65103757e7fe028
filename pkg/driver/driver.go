package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/rookery/pkg/log"
	"github.com/cuemby/rookery/pkg/types"
)

// Driver sends reconciliation requests to the cluster manager.
//
// An empty statuses slice asks the manager to report every task it knows
// about. Replies arrive asynchronously through the manager's status update
// channel and are not handled here.
type Driver interface {
	ReconcileTasks(ctx context.Context, statuses []types.TaskStatus) error
}

// Config holds the HTTP driver settings
type Config struct {
	MasterURL   string        // e.g. http://mesos-master:5050
	FrameworkID string
	Timeout     time.Duration // Per-call bound, default 10s
	Client      *http.Client  // Optional; a client with Timeout is built when nil
}

// HTTPDriver calls the scheduler HTTP API of the cluster manager
type HTTPDriver struct {
	endpoint    string
	frameworkID string
	client      *http.Client
	logger      zerolog.Logger
}

var _ Driver = (*HTTPDriver)(nil)

// NewHTTPDriver creates a driver posting to <MasterURL>/api/v1/scheduler
func NewHTTPDriver(cfg Config) (*HTTPDriver, error) {
	if cfg.MasterURL == "" {
		return nil, fmt.Errorf("master URL is required")
	}
	if cfg.FrameworkID == "" {
		return nil, fmt.Errorf("framework ID is required")
	}

	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	return &HTTPDriver{
		endpoint:    strings.TrimRight(cfg.MasterURL, "/") + "/api/v1/scheduler",
		frameworkID: cfg.FrameworkID,
		client:      client,
		logger:      log.WithComponent("driver"),
	}, nil
}

type value struct {
	Value string `json:"value"`
}

type reconcileTask struct {
	TaskID value `json:"task_id"`
}

type reconcileCall struct {
	FrameworkID value `json:"framework_id"`
	Type        string `json:"type"`
	Reconcile   struct {
		Tasks []reconcileTask `json:"tasks"`
	} `json:"reconcile"`
}

func (d *HTTPDriver) newCall(statuses []types.TaskStatus) reconcileCall {
	call := reconcileCall{
		FrameworkID: value{Value: d.frameworkID},
		Type:        "RECONCILE",
	}
	// The HTTP API identifies tasks by ID only; the placeholder state carried
	// by each status has no field here.
	call.Reconcile.Tasks = make([]reconcileTask, 0, len(statuses))
	for _, s := range statuses {
		call.Reconcile.Tasks = append(call.Reconcile.Tasks, reconcileTask{TaskID: value{Value: s.TaskID}})
	}
	return call
}

// ReconcileTasks posts one RECONCILE call. Any non-2xx answer is an error.
func (d *HTTPDriver) ReconcileTasks(ctx context.Context, statuses []types.TaskStatus) error {
	body, err := json.Marshal(d.newCall(statuses))
	if err != nil {
		return fmt.Errorf("failed to encode reconcile call: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("reconcile request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	d.logger.Debug().Int("tasks", len(statuses)).Int("status", resp.StatusCode).Msg("Reconcile call accepted")
	return nil
}

// StatusError is returned when the cluster manager rejects a call
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("cluster manager returned HTTP %d", e.Code)
	}
	return fmt.Sprintf("cluster manager returned HTTP %d: %s", e.Code, e.Body)
}

// RecordingDriver keeps every reconcile call in memory instead of sending it
type RecordingDriver struct {
	mu    sync.Mutex
	calls [][]types.TaskStatus
	Err   error // Returned from every call when set
}

var _ Driver = (*RecordingDriver)(nil)

// ReconcileTasks records a copy of statuses
func (d *RecordingDriver) ReconcileTasks(ctx context.Context, statuses []types.TaskStatus) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.calls = append(d.calls, append([]types.TaskStatus{}, statuses...))
	return nil
}

// Calls returns the recorded calls in order
func (d *RecordingDriver) Calls() [][]types.TaskStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]types.TaskStatus{}, d.calls...)
}
