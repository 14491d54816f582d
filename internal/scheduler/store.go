package scheduler

import "context"

// TaskFilter narrows ListTasks results. Zero values match everything.
type TaskFilter struct {
	Statuses   []TaskStatus
	Priorities []Priority
	AgentID    string
	Type       string
}

// Matches reports whether the task passes every set filter field.
func (f TaskFilter) Matches(t *Task) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if t.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(f.Priorities) > 0 {
		ok := false
		for _, p := range f.Priorities {
			if t.Priority == p {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.AgentID != "" && t.AssignedAgentID != f.AgentID {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	return true
}

// Store is the durable keyed storage for Task and Agent records.
//
// Put operations are conditional writes: they compare the record's stored
// version against expectedVersion and return ErrVersionConflict on mismatch.
// On success the record's Version field is advanced in place. Every
// state-changing scheduler operation is a single read-modify-write through
// this contract; PutTaskAndAgent commits both records in one transaction so
// a task transition and its agent's busy flag can never be observed apart.
type Store interface {
	CreateTask(ctx context.Context, t *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	PutTask(ctx context.Context, t *Task, expectedVersion int64) error
	ListTasks(ctx context.Context, projectID string, filter TaskFilter) ([]*Task, error)

	// Dependents returns the ids of tasks whose DependsOn includes taskID,
	// the maintained inverse of the dependency edges.
	Dependents(ctx context.Context, taskID string) ([]string, error)

	CreateAgent(ctx context.Context, a *Agent) error
	GetAgent(ctx context.Context, id string) (*Agent, error)
	PutAgent(ctx context.Context, a *Agent, expectedVersion int64) error
	ListAgents(ctx context.Context, projectID string) ([]*Agent, error)

	PutTaskAndAgent(ctx context.Context, t *Task, taskVersion int64, a *Agent, agentVersion int64) error

	Close() error
}
