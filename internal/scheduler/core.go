package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Marksio90/narrative-dispatch/internal/events"
)

// CoreConfig tunes the scheduler core.
type CoreConfig struct {
	UnblockConcurrency int // Max concurrent re-assignments after a completion (default 4)
	DefaultMaxRetries  int // Applied when a TaskSpec leaves MaxRetries at 0 (default 3)
}

// Core orchestrates task creation, assignment, state transitions, retry, and
// unblocking. It is the only component that mutates Task and Agent state.
//
// Every state-changing operation is a single read-modify-write against the
// store, guarded by the version token. A lost race is re-read and either
// reported as a benign outcome (ErrAlreadyAssigned) or retried once.
type Core struct {
	store    Store
	resolver *Resolver
	registry *Registry
	bus      *events.Bus // Optional; nil disables event publication
	cfg      CoreConfig
}

// NewCore creates a scheduler core. bus may be nil.
func NewCore(store Store, registry *Registry, bus *events.Bus, cfg CoreConfig) *Core {
	if cfg.UnblockConcurrency <= 0 {
		cfg.UnblockConcurrency = 4
	}
	if cfg.DefaultMaxRetries <= 0 {
		cfg.DefaultMaxRetries = DefaultMaxRetries
	}
	return &Core{
		store:    store,
		resolver: NewResolver(store),
		registry: registry,
		bus:      bus,
		cfg:      cfg,
	}
}

// Resolver exposes the dependency resolver for read-only callers.
func (c *Core) Resolver() *Resolver { return c.resolver }

func (c *Core) publish(topic string, ev events.Event) {
	if c.bus != nil {
		c.bus.Publish(topic, ev)
	}
}

// CreateTask validates the spec, persists the task as pending (or blocked
// when dependencies are open), and, when autoAssign is set and the task is
// immediately runnable, enters the assignment path. A missing eligible agent
// is not an error; the task simply stays pending.
func (c *Core) CreateTask(ctx context.Context, spec TaskSpec, autoAssign bool) (*Task, error) {
	if spec.ProjectID == "" {
		return nil, validationErr("create_task", "project id is required")
	}
	if spec.Type == "" {
		return nil, validationErr("create_task", "task type is required")
	}
	if spec.ID == "" {
		spec.ID = uuid.NewString()
	}
	if spec.MaxRetries <= 0 {
		spec.MaxRetries = c.cfg.DefaultMaxRetries
	}

	if err := c.resolver.ValidateAcyclic(ctx, spec); err != nil {
		return nil, err
	}

	t := &Task{
		ID:         spec.ID,
		ProjectID:  spec.ProjectID,
		Type:       spec.Type,
		Priority:   spec.Priority,
		DependsOn:  append([]string(nil), spec.DependsOn...),
		Status:     TaskPending,
		MaxRetries: spec.MaxRetries,
		CreatedAt:  time.Now(),
		Deadline:   spec.Deadline,
	}

	if len(t.DependsOn) > 0 {
		runnable, err := c.resolver.Runnable(ctx, t)
		if err != nil {
			// A dependency already dead at creation time is a caller mistake.
			var unsat *UnsatisfiableError
			if errors.As(err, &unsat) {
				return nil, validationErr("create_task", "dependency %s is %s", unsat.DependencyID, unsat.Reason)
			}
			return nil, err
		}
		if !runnable {
			t.Status = TaskBlocked
		}
	}

	if err := c.store.CreateTask(ctx, t); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, validationErr("create_task", "task %s already exists", t.ID)
		}
		return nil, fmt.Errorf("persisting task %s: %w", t.ID, err)
	}

	c.publish(events.TopicTask, events.TaskCreatedEvent{
		ID:        t.ID,
		ProjectID: t.ProjectID,
		Type:      t.Type,
		Blocked:   t.Status == TaskBlocked,
		Timestamp: time.Now(),
	})

	if autoAssign && t.Status == TaskPending {
		assigned, err := c.Assign(ctx, t.ID, "")
		if err != nil {
			if errors.Is(err, ErrNoEligibleAgent) || errors.Is(err, ErrAlreadyAssigned) {
				return t, nil
			}
			return t, err
		}
		return assigned, nil
	}
	return t, nil
}

// CreateBatch creates tasks in order, so later specs may depend on earlier
// ones. On error it returns the tasks created so far alongside the error.
func (c *Core) CreateBatch(ctx context.Context, specs []TaskSpec, autoAssign bool) ([]*Task, error) {
	created := make([]*Task, 0, len(specs))
	for i, spec := range specs {
		t, err := c.CreateTask(ctx, spec, autoAssign)
		if err != nil {
			return created, fmt.Errorf("batch entry %d: %w", i, err)
		}
		created = append(created, t)
	}
	return created, nil
}

// Assign moves a pending task to assigned. With an empty agentID the best
// candidate is resolved through the registry; ErrNoEligibleAgent means the
// task stays pending and the caller may retry later. A concurrent assignment
// race is resolved so exactly one caller wins; losers get ErrAlreadyAssigned.
//
// An explicit agentID on an already-assigned task moves the assignment, which
// is allowed until the task starts.
func (c *Core) Assign(ctx context.Context, taskID, agentID string) (*Task, error) {
	for attempt := 0; ; attempt++ {
		t, err := c.getTask(ctx, "assign", taskID)
		if err != nil {
			return nil, err
		}

		switch t.Status {
		case TaskPending:
		case TaskAssigned:
			if agentID == "" {
				// Another caller got there first; benign for auto-assignment.
				return t, ErrAlreadyAssigned
			}
			if agentID == t.AssignedAgentID {
				return t, nil
			}
			// Explicit re-assignment before start moves the task.
		case TaskBlocked:
			if _, err := c.requireRunnable(ctx, "assign", t); err != nil {
				return nil, err
			}
			// Dependencies completed since the task was persisted as blocked.
		default:
			return nil, validationErr("assign", "task %s is %s", taskID, t.Status)
		}

		if t.Status != TaskBlocked && len(t.DependsOn) > 0 {
			if _, err := c.requireRunnable(ctx, "assign", t); err != nil {
				return nil, err
			}
		}

		var agent *Agent
		if agentID == "" {
			agent, err = c.registry.BestAgent(ctx, t, "")
			if err != nil {
				return nil, err
			}
			if agent == nil {
				c.publish(events.TopicQueue, events.QueueDepthEvent{
					ID:        t.ID,
					ProjectID: t.ProjectID,
					Type:      t.Type,
					Timestamp: time.Now(),
				})
				return nil, ErrNoEligibleAgent
			}
		} else {
			agent, err = c.getAgent(ctx, "assign", agentID)
			if err != nil {
				return nil, err
			}
			if !agent.IsActive {
				return nil, validationErr("assign", "agent %s is inactive", agentID)
			}
		}

		now := time.Now()
		t.Status = TaskAssigned
		t.AssignedAgentID = agent.ID
		t.AssignedAt = &now

		if err := c.store.PutTask(ctx, t, t.Version); err != nil {
			if errors.Is(err, ErrVersionConflict) && attempt == 0 {
				continue // Re-read and retry the intended transition once
			}
			return nil, fmt.Errorf("assigning task %s: %w", taskID, err)
		}

		c.publish(events.TopicTask, events.TaskAssignedEvent{
			ID:        t.ID,
			ProjectID: t.ProjectID,
			AgentID:   agent.ID,
			AgentType: agent.Type,
			Priority:  t.Priority.String(),
			Timestamp: now,
		})
		return t, nil
	}
}

// Start moves an assigned task to in-progress and marks its agent busy in the
// same store transaction. Dependencies are re-checked: one could have been
// cancelled between assignment and start.
func (c *Core) Start(ctx context.Context, taskID string) (*Task, error) {
	for attempt := 0; ; attempt++ {
		t, err := c.getTask(ctx, "start", taskID)
		if err != nil {
			return nil, err
		}
		if t.Status != TaskAssigned {
			return nil, validationErr("start", "task %s is %s, want assigned", taskID, t.Status)
		}
		if _, err := c.requireRunnable(ctx, "start", t); err != nil {
			return nil, err
		}

		agent, err := c.getAgent(ctx, "start", t.AssignedAgentID)
		if err != nil {
			return nil, err
		}
		if agent.IsBusy && agent.CurrentTaskID != taskID {
			return nil, validationErr("start", "agent %s is busy with task %s", agent.ID, agent.CurrentTaskID)
		}

		now := time.Now()
		t.Status = TaskInProgress
		t.StartedAt = &now
		agent.IsBusy = true
		agent.CurrentTaskID = taskID

		if err := c.store.PutTaskAndAgent(ctx, t, t.Version, agent, agent.Version); err != nil {
			if errors.Is(err, ErrVersionConflict) && attempt == 0 {
				continue
			}
			return nil, fmt.Errorf("starting task %s: %w", taskID, err)
		}

		c.publish(events.TopicTask, events.TaskStartedEvent{ID: t.ID, AgentID: agent.ID, Timestamp: now})
		return t, nil
	}
}

// Complete finishes an in-progress task, frees its agent, folds the outcome
// into the agent's rolling metrics, and re-enters the assignment path for
// every task the completion unblocked. rating, when in [0,5], feeds the
// agent's satisfaction score; pass a negative rating to skip it.
//
// Completing a task twice is a validation error the second time: the status
// is already terminal and agent counters are not touched again.
func (c *Core) Complete(ctx context.Context, taskID, result string, rating int) (*Task, error) {
	if result == "" {
		return nil, validationErr("complete", "result is required")
	}
	if rating > 5 {
		return nil, validationErr("complete", "rating %d out of range [0,5]", rating)
	}

	var t *Task
	for attempt := 0; ; attempt++ {
		var err error
		t, err = c.getTask(ctx, "complete", taskID)
		if err != nil {
			return nil, err
		}
		if t.Status != TaskInProgress {
			return nil, validationErr("complete", "task %s is %s, want in_progress", taskID, t.Status)
		}

		agent, err := c.getAgent(ctx, "complete", t.AssignedAgentID)
		if err != nil {
			return nil, err
		}

		now := time.Now()
		t.Status = TaskCompleted
		t.CompletedAt = &now
		t.Result = result

		duration := now.Sub(t.CreatedAt)
		if t.StartedAt != nil {
			duration = now.Sub(*t.StartedAt)
		}
		agent.IsBusy = false
		agent.CurrentTaskID = ""
		agent.RecordCompletion(duration, rating)

		if err := c.store.PutTaskAndAgent(ctx, t, t.Version, agent, agent.Version); err != nil {
			if errors.Is(err, ErrVersionConflict) && attempt == 0 {
				continue
			}
			return nil, fmt.Errorf("completing task %s: %w", taskID, err)
		}

		c.publish(events.TopicTask, events.TaskCompletedEvent{
			ID:        t.ID,
			AgentID:   agent.ID,
			Duration:  duration,
			Timestamp: now,
		})
		break
	}

	if err := c.reassignUnblocked(ctx, taskID); err != nil {
		return t, err
	}
	return t, nil
}

// reassignUnblocked fans out over tasks unblocked by a completion. Each
// promotion is itself an atomic per-task transition, so concurrent fan-out
// is safe.
func (c *Core) reassignUnblocked(ctx context.Context, completedTaskID string) error {
	unblocked, err := c.resolver.Unblocked(ctx, completedTaskID)
	if err != nil {
		return fmt.Errorf("resolving unblocked tasks after %s: %w", completedTaskID, err)
	}
	if len(unblocked) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.UnblockConcurrency)
	for _, id := range unblocked {
		id := id
		g.Go(func() error {
			if err := c.promote(gctx, id); err != nil {
				log.Printf("WARNING: failed to promote unblocked task %s: %v", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// promote moves a blocked task to pending and tries auto-assignment. Benign
// outcomes (a racer promoted it first, no agent available) are swallowed.
func (c *Core) promote(ctx context.Context, taskID string) error {
	for attempt := 0; ; attempt++ {
		t, err := c.getTask(ctx, "promote", taskID)
		if err != nil {
			return err
		}
		if t.Status != TaskBlocked {
			return nil
		}
		t.Status = TaskPending
		if err := c.store.PutTask(ctx, t, t.Version); err != nil {
			if errors.Is(err, ErrVersionConflict) && attempt == 0 {
				continue
			}
			return err
		}
		c.publish(events.TopicTask, events.TaskUnblockedEvent{ID: t.ID, Timestamp: time.Now()})
		break
	}

	if _, err := c.Assign(ctx, taskID, ""); err != nil {
		if errors.Is(err, ErrNoEligibleAgent) || errors.Is(err, ErrAlreadyAssigned) {
			return nil
		}
		return err
	}
	return nil
}

// Fail records an agent-reported failure. With autoRetry and budget left the
// task returns to pending and is re-assigned, preferring an agent other than
// the one that just failed; otherwise it lands in terminal failed and its
// dependents are cancelled rather than left blocked forever.
func (c *Core) Fail(ctx context.Context, taskID, errorMessage string, autoRetry bool) (*Task, error) {
	var t *Task
	var prevAgentID string
	var terminal bool

	for attempt := 0; ; attempt++ {
		var err error
		t, err = c.getTask(ctx, "fail", taskID)
		if err != nil {
			return nil, err
		}
		if t.Status != TaskInProgress {
			return nil, validationErr("fail", "task %s is %s, want in_progress", taskID, t.Status)
		}

		agent, err := c.getAgent(ctx, "fail", t.AssignedAgentID)
		if err != nil {
			return nil, err
		}

		prevAgentID = t.AssignedAgentID
		t.ErrorMessage = errorMessage
		terminal = !(autoRetry && t.RetryCount < t.MaxRetries)
		if terminal {
			t.Status = TaskFailed
		} else {
			t.RetryCount++
			t.Status = TaskPending
			t.AssignedAgentID = ""
			t.AssignedAt = nil
			t.StartedAt = nil
		}

		agent.IsBusy = false
		agent.CurrentTaskID = ""
		agent.TasksFailed++

		if err := c.store.PutTaskAndAgent(ctx, t, t.Version, agent, agent.Version); err != nil {
			if errors.Is(err, ErrVersionConflict) && attempt == 0 {
				continue
			}
			return nil, fmt.Errorf("failing task %s: %w", taskID, err)
		}

		c.publish(events.TopicTask, events.TaskFailedEvent{
			ID:         t.ID,
			AgentID:    prevAgentID,
			Reason:     errorMessage,
			RetryCount: t.RetryCount,
			Terminal:   terminal,
			Timestamp:  time.Now(),
		})
		break
	}

	if terminal {
		c.cascadeCancel(ctx, taskID, "failed")
		return t, nil
	}

	// Re-assign, preferring a different agent than the one that failed.
	next, err := c.registry.BestAgent(ctx, t, prevAgentID)
	if err != nil {
		return t, err
	}
	if next == nil {
		c.publish(events.TopicQueue, events.QueueDepthEvent{
			ID:        t.ID,
			ProjectID: t.ProjectID,
			Type:      t.Type,
			Timestamp: time.Now(),
		})
		return t, nil
	}
	assigned, err := c.Assign(ctx, taskID, next.ID)
	if err != nil {
		if errors.Is(err, ErrAlreadyAssigned) {
			return t, nil
		}
		return t, err
	}
	return assigned, nil
}

// Cancel moves a non-terminal task to cancelled and cascades to dependents:
// a task whose dependency will never complete can never run, so it is
// cancelled with a reason naming the dead dependency.
func (c *Core) Cancel(ctx context.Context, taskID, reason string) (*Task, error) {
	if reason == "" {
		reason = "cancelled by caller"
	}

	var t *Task
	for attempt := 0; ; attempt++ {
		var err error
		t, err = c.getTask(ctx, "cancel", taskID)
		if err != nil {
			return nil, err
		}
		if t.Status.Terminal() {
			return nil, validationErr("cancel", "task %s is already %s", taskID, t.Status)
		}

		wasInProgress := t.Status == TaskInProgress
		agentID := t.AssignedAgentID
		t.Status = TaskCancelled
		t.ErrorMessage = reason

		if wasInProgress && agentID != "" {
			agent, err := c.getAgent(ctx, "cancel", agentID)
			if err != nil {
				return nil, err
			}
			if agent.CurrentTaskID == taskID {
				agent.IsBusy = false
				agent.CurrentTaskID = ""
			}
			err = c.store.PutTaskAndAgent(ctx, t, t.Version, agent, agent.Version)
			if err != nil {
				if errors.Is(err, ErrVersionConflict) && attempt == 0 {
					continue
				}
				return nil, fmt.Errorf("cancelling task %s: %w", taskID, err)
			}
		} else {
			if err := c.store.PutTask(ctx, t, t.Version); err != nil {
				if errors.Is(err, ErrVersionConflict) && attempt == 0 {
					continue
				}
				return nil, fmt.Errorf("cancelling task %s: %w", taskID, err)
			}
		}

		c.publish(events.TopicTask, events.TaskCancelledEvent{ID: t.ID, Reason: reason, Timestamp: time.Now()})
		break
	}

	c.cascadeCancel(ctx, taskID, "cancelled")
	return t, nil
}

// cascadeCancel cancels every non-terminal dependent of a task that reached a
// terminal non-completed state. Cancel recurses, so transitive dependents are
// handled within the same scheduling pass.
func (c *Core) cascadeCancel(ctx context.Context, deadTaskID, what string) {
	dependents, err := c.store.Dependents(ctx, deadTaskID)
	if err != nil {
		log.Printf("WARNING: failed to list dependents of %s: %v", deadTaskID, err)
		return
	}
	for _, id := range dependents {
		dep, err := c.store.GetTask(ctx, id)
		if err != nil {
			log.Printf("WARNING: failed to load dependent %s: %v", id, err)
			continue
		}
		if dep.Status.Terminal() {
			continue
		}
		reason := fmt.Sprintf("dependency %s %s", deadTaskID, what)
		if _, err := c.Cancel(ctx, id, reason); err != nil && !IsValidation(err) {
			log.Printf("WARNING: failed to cancel dependent %s: %v", id, err)
		}
	}
}

// Queue returns the project's tasks in presentation order: priority first,
// then earliest deadline (absent deadline sorts last), then creation time.
func (c *Core) Queue(ctx context.Context, projectID string, filter TaskFilter) ([]*Task, error) {
	tasks, err := c.store.ListTasks(ctx, projectID, filter)
	if err != nil {
		return nil, fmt.Errorf("listing queue for project %s: %w", projectID, err)
	}
	SortQueue(tasks)
	return tasks, nil
}

// NextTask returns the highest-priority assigned task for the agent whose
// dependencies remain satisfied, or nil when there is none.
func (c *Core) NextTask(ctx context.Context, agentID string) (*Task, error) {
	if _, err := c.getAgent(ctx, "next_task", agentID); err != nil {
		return nil, err
	}
	tasks, err := c.store.ListTasks(ctx, "", TaskFilter{
		AgentID:  agentID,
		Statuses: []TaskStatus{TaskAssigned},
	})
	if err != nil {
		return nil, fmt.Errorf("listing assigned tasks for agent %s: %w", agentID, err)
	}
	SortQueue(tasks)
	for _, t := range tasks {
		ok, err := c.resolver.Runnable(ctx, t)
		if err != nil {
			var unsat *UnsatisfiableError
			if errors.As(err, &unsat) {
				continue
			}
			return nil, err
		}
		if ok {
			return t, nil
		}
	}
	return nil, nil
}

// requireRunnable checks dependency satisfaction for a transition. A
// permanently unrunnable task is cancelled on the spot (cascading to its own
// dependents) and the unsatisfiable error is returned to the caller.
func (c *Core) requireRunnable(ctx context.Context, op string, t *Task) (bool, error) {
	runnable, err := c.resolver.Runnable(ctx, t)
	if err != nil {
		var unsat *UnsatisfiableError
		if errors.As(err, &unsat) {
			reason := fmt.Sprintf("dependency %s %s", unsat.DependencyID, unsat.Reason)
			if _, cancelErr := c.Cancel(ctx, t.ID, reason); cancelErr != nil && !IsValidation(cancelErr) {
				log.Printf("WARNING: failed to cancel unrunnable task %s: %v", t.ID, cancelErr)
			}
			return false, err
		}
		return false, err
	}
	if !runnable {
		return false, validationErr(op, "task %s has unsatisfied dependencies", t.ID)
	}
	return true, nil
}

func (c *Core) getTask(ctx context.Context, op, id string) (*Task, error) {
	t, err := c.store.GetTask(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, validationErr(op, "unknown task %s", id)
		}
		return nil, fmt.Errorf("loading task %s: %w", id, err)
	}
	return t, nil
}

func (c *Core) getAgent(ctx context.Context, op, id string) (*Agent, error) {
	a, err := c.store.GetAgent(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, validationErr(op, "unknown agent %s", id)
		}
		return nil, fmt.Errorf("loading agent %s: %w", id, err)
	}
	return a, nil
}
