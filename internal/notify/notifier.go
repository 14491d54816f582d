// Package notify delivers assignment notifications to agent workers. The
// actual transport is pluggable; the scheduler core only publishes events and
// never blocks on delivery.
package notify

import (
	"context"
	"log"
)

// Notification tells an agent worker it has been handed a task.
type Notification struct {
	TaskID    string
	ProjectID string
	AgentID   string
	AgentType string
	Priority  string
}

// Notifier is the delivery transport. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the process log. It is the default
// transport and the fallback when no push channel is configured: agents that
// poll NextTask never miss work, so a lost notification only adds latency.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(_ context.Context, n Notification) error {
	log.Printf("notify agent %s: task %s (%s priority)", n.AgentID, n.TaskID, n.Priority)
	return nil
}
