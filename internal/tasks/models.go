// Package tasks runs long report jobs in the background with progress tracking,
// best-effort cancellation and at most one running task per type.
package tasks

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTaskConflict is returned by StartTask when a task of the same type is running.
	// The returned task is the running one.
	ErrTaskConflict  = errors.New("a task of this type is already running")
	ErrTaskNotFound  = errors.New("task not found")
	ErrTaskNotActive = errors.New("task is not running")
	ErrDuplicateID   = errors.New("task id already exists")
	ErrShuttingDown  = errors.New("task manager is shutting down")
)

// Status is the lifecycle state of a task. Terminal states are final.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is completed, failed or cancelled.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Progress is the latest progress report of a task.
type Progress struct {
	Percent   int       `json:"percent"`
	Message   string    `json:"message"`
	Stage     string    `json:"stage,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Task is a snapshot of a background task.
type Task struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	Status     Status      `json:"status"`
	Payload    interface{} `json:"payload,omitempty"`
	Progress   Progress    `json:"progress"`
	Result     interface{} `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// ProgressFunc reports progress from inside a task. percent is clamped to [0, 100].
type ProgressFunc func(percent int, message, stage string)

// WorkFunc is the body of a task. Cancellation is cooperative: the context is
// cancelled by CancelTask and the body is expected to check it between steps. A body
// that ignores it runs to completion, but its result is discarded.
type WorkFunc func(ctx context.Context, progress ProgressFunc) (interface{}, error)
