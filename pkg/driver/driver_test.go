package driver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/rookery/pkg/types"
)

func TestNewHTTPDriver_RequiresSettings(t *testing.T) {
	_, err := NewHTTPDriver(Config{FrameworkID: "fw"})
	assert.Error(t, err)

	_, err = NewHTTPDriver(Config{MasterURL: "http://master:5050"})
	assert.Error(t, err)
}

func TestHTTPDriver_ExplicitReconcile(t *testing.T) {
	var got reconcileCall
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/scheduler", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	d, err := NewHTTPDriver(Config{MasterURL: server.URL + "/", FrameworkID: "fw-1"})
	require.NoError(t, err)

	err = d.ReconcileTasks(context.Background(), []types.TaskStatus{
		{TaskID: "task-a", State: types.TaskStateRunning},
		{TaskID: "task-b", State: types.TaskStateRunning},
	})
	require.NoError(t, err)

	assert.Equal(t, "RECONCILE", got.Type)
	assert.Equal(t, "fw-1", got.FrameworkID.Value)
	require.Len(t, got.Reconcile.Tasks, 2)
	assert.Equal(t, "task-a", got.Reconcile.Tasks[0].TaskID.Value)
	assert.Equal(t, "task-b", got.Reconcile.Tasks[1].TaskID.Value)
}

func TestHTTPDriver_ImplicitReconcileSendsEmptyList(t *testing.T) {
	var raw map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	d, err := NewHTTPDriver(Config{MasterURL: server.URL, FrameworkID: "fw-1"})
	require.NoError(t, err)
	require.NoError(t, d.ReconcileTasks(context.Background(), nil))

	reconcile := raw["reconcile"].(map[string]interface{})
	assert.Equal(t, []interface{}{}, reconcile["tasks"])
}

func TestHTTPDriver_RejectedCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "framework not subscribed", http.StatusForbidden)
	}))
	defer server.Close()

	d, err := NewHTTPDriver(Config{MasterURL: server.URL, FrameworkID: "fw-1"})
	require.NoError(t, err)

	err = d.ReconcileTasks(context.Background(), nil)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusForbidden, statusErr.Code)
	assert.Contains(t, err.Error(), "framework not subscribed")
}

func TestHTTPDriver_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	d, err := NewHTTPDriver(Config{MasterURL: server.URL, FrameworkID: "fw-1", Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	assert.Error(t, d.ReconcileTasks(context.Background(), nil))
	assert.Less(t, time.Since(start), time.Second)
}

func TestRecordingDriver(t *testing.T) {
	d := &RecordingDriver{}
	statuses := []types.TaskStatus{{TaskID: "a", State: types.TaskStateRunning}}

	require.NoError(t, d.ReconcileTasks(context.Background(), statuses))
	require.NoError(t, d.ReconcileTasks(context.Background(), nil))

	statuses[0].TaskID = "mutated"
	calls := d.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "a", calls[0][0].TaskID)
	assert.Empty(t, calls[1])

	d.Err = errors.New("down")
	assert.Error(t, d.ReconcileTasks(context.Background(), nil))
	assert.Len(t, d.Calls(), 2)
}
