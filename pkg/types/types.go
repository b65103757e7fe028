package types

import (
	"time"
)

// TaskState represents the lifecycle state of a task
type TaskState string

const (
	TaskStatePending  TaskState = "pending"
	TaskStateAssigned TaskState = "assigned"
	TaskStateStarting TaskState = "starting"
	TaskStateRunning  TaskState = "running"
	TaskStateKilling  TaskState = "killing"
	TaskStateFinished TaskState = "finished"
	TaskStateFailed   TaskState = "failed"
	TaskStateKilled   TaskState = "killed"
	TaskStateLost     TaskState = "lost"
)

// AllTaskStates lists every known state in lifecycle order
var AllTaskStates = []TaskState{
	TaskStatePending,
	TaskStateAssigned,
	TaskStateStarting,
	TaskStateRunning,
	TaskStateKilling,
	TaskStateFinished,
	TaskStateFailed,
	TaskStateKilled,
	TaskStateLost,
}

// IsActive reports whether the state is non-terminal
func (s TaskState) IsActive() bool {
	switch s {
	case TaskStatePending, TaskStateAssigned, TaskStateStarting, TaskStateRunning, TaskStateKilling:
		return true
	default:
		return false
	}
}

// IsValid reports whether s is one of the known states
func (s TaskState) IsValid() bool {
	for _, known := range AllTaskStates {
		if s == known {
			return true
		}
	}
	return false
}

// ActiveTaskStates returns the non-terminal states
func ActiveTaskStates() []TaskState {
	var active []TaskState
	for _, s := range AllTaskStates {
		if s.IsActive() {
			active = append(active, s)
		}
	}
	return active
}

// TaskRecord is the scheduler's authoritative record for one task
type TaskRecord struct {
	ID         string
	State      TaskState
	Assignment *Assignment
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Assignment describes where a task was placed
type Assignment struct {
	NodeID   string
	Host     string
	Endpoint string // Base URL the executor signals on shutdown
	Ports    map[string]int
}

// TaskStatus is the minimal per-task record sent to the cluster manager
// during reconciliation
type TaskStatus struct {
	TaskID string
	State  TaskState
}

// KillCommand describes a single termination request for a task
type KillCommand struct {
	TaskID       string
	Endpoint     string // Cooperative-stop URL
	KillTreePath string // Staged kill-tree procedure
	WorkDir      string // Task root the procedure runs against
}
