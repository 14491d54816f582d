package scheduler

import "time"

// TaskStatus represents the current state of a task in its lifecycle.
type TaskStatus int

const (
	TaskPending    TaskStatus = iota // Ready or waiting for an agent
	TaskBlocked                      // Waiting on unresolved dependencies
	TaskAssigned                     // Assigned to an agent, work not started
	TaskInProgress                   // Agent is actively working
	TaskCompleted                    // Finished successfully
	TaskFailed                       // Finished with error, retries exhausted
	TaskCancelled                    // Explicitly cancelled
)

// String returns the lowercase name used in logs and the CLI.
func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskBlocked:
		return "blocked"
	case TaskAssigned:
		return "assigned"
	case TaskInProgress:
		return "in_progress"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	case TaskCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// Priority orders tasks in the queue view. Higher values sort first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// String returns the lowercase name used in logs and the CLI.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	}
	return "unknown"
}

// DefaultMaxRetries bounds automatic re-assignment after agent-reported failures.
const DefaultMaxRetries = 3

// Task represents a unit of delegated work.
type Task struct {
	ID              string
	ProjectID       string
	Type            string // Free-form capability tag, matched via the capability map
	Priority        Priority
	DependsOn       []string // Task IDs that must complete before this task may run
	AssignedAgentID string   // Empty while unassigned
	Status          TaskStatus
	Result          string // Opaque payload set by the agent on completion
	ErrorMessage    string // Last failure or cancellation reason
	RetryCount      int
	MaxRetries      int
	CreatedAt       time.Time
	AssignedAt      *time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	Deadline        *time.Time // Advisory, used only for overdue reporting
	Version         int64      // Optimistic concurrency token, owned by the store
}

// Overdue reports whether the task has a deadline in the past and is not terminal.
func (t *Task) Overdue(now time.Time) bool {
	return t.Deadline != nil && t.Deadline.Before(now) && !t.Status.Terminal()
}

// Clone returns a deep copy so callers cannot mutate shared state.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.DependsOn != nil {
		cp.DependsOn = append([]string(nil), t.DependsOn...)
	}
	cp.AssignedAt = cloneTime(t.AssignedAt)
	cp.StartedAt = cloneTime(t.StartedAt)
	cp.CompletedAt = cloneTime(t.CompletedAt)
	cp.Deadline = cloneTime(t.Deadline)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

// TaskSpec is the caller-supplied description of a task to create.
type TaskSpec struct {
	ID         string // Optional, generated when empty
	ProjectID  string
	Type       string
	Priority   Priority
	DependsOn  []string
	Deadline   *time.Time
	MaxRetries int // 0 means DefaultMaxRetries
}
