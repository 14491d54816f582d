package events

import (
	"time"
)

// Event is the base interface for all scheduler events.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicTask  = "task"
	TopicQueue = "queue"
)

// Event type constants
const (
	EventTypeTaskCreated   = "task.created"
	EventTypeTaskAssigned  = "task.assigned"
	EventTypeTaskStarted   = "task.started"
	EventTypeTaskCompleted = "task.completed"
	EventTypeTaskFailed    = "task.failed"
	EventTypeTaskCancelled = "task.cancelled"
	EventTypeTaskUnblocked = "task.unblocked"
	EventTypeTaskOverdue   = "task.overdue"
	EventTypeQueueDepth    = "queue.depth"
)

// TaskCreatedEvent is published when a task is accepted into the queue.
type TaskCreatedEvent struct {
	ID        string
	ProjectID string
	Type      string
	Blocked   bool
	Timestamp time.Time
}

func (e TaskCreatedEvent) EventType() string { return EventTypeTaskCreated }
func (e TaskCreatedEvent) TaskID() string    { return e.ID }

// TaskAssignedEvent is published when a task is assigned to an agent.
type TaskAssignedEvent struct {
	ID        string
	ProjectID string
	AgentID   string
	AgentType string
	Priority  string
	Timestamp time.Time
}

func (e TaskAssignedEvent) EventType() string { return EventTypeTaskAssigned }
func (e TaskAssignedEvent) TaskID() string    { return e.ID }

// TaskStartedEvent is published when an agent begins work on a task.
type TaskStartedEvent struct {
	ID        string
	AgentID   string
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published when a task completes successfully.
type TaskCompletedEvent struct {
	ID        string
	AgentID   string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published on every reported failure, terminal or not.
type TaskFailedEvent struct {
	ID         string
	AgentID    string
	Reason     string
	RetryCount int
	Terminal   bool
	Timestamp  time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// TaskCancelledEvent is published when a task is cancelled, explicitly or by
// dependency cascade.
type TaskCancelledEvent struct {
	ID        string
	Reason    string
	Timestamp time.Time
}

func (e TaskCancelledEvent) EventType() string { return EventTypeTaskCancelled }
func (e TaskCancelledEvent) TaskID() string    { return e.ID }

// TaskUnblockedEvent is published when a blocked task becomes runnable.
type TaskUnblockedEvent struct {
	ID        string
	Timestamp time.Time
}

func (e TaskUnblockedEvent) EventType() string { return EventTypeTaskUnblocked }
func (e TaskUnblockedEvent) TaskID() string    { return e.ID }

// TaskOverdueEvent is published by the watchdog for in-progress tasks past
// their advisory deadline.
type TaskOverdueEvent struct {
	ID        string
	AgentID   string
	Deadline  time.Time
	Timestamp time.Time
}

func (e TaskOverdueEvent) EventType() string { return EventTypeTaskOverdue }
func (e TaskOverdueEvent) TaskID() string    { return e.ID }

// QueueDepthEvent is published when assignment finds no eligible agent.
// Staying pending is not an error; this is the staleness signal operators
// watch instead.
type QueueDepthEvent struct {
	ID        string
	ProjectID string
	Type      string
	Timestamp time.Time
}

func (e QueueDepthEvent) EventType() string { return EventTypeQueueDepth }
func (e QueueDepthEvent) TaskID() string    { return e.ID }
