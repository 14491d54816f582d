package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/gammazero/toposort"
)

// Resolver answers dependency questions over the store. It is stateless:
// every call reads current task records, so answers reflect the latest
// committed state.
type Resolver struct {
	store Store
}

// NewResolver creates a Resolver backed by the given store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Runnable reports whether every dependency of the task is completed.
// A task with no dependencies is trivially runnable. A dependency that is
// missing, cancelled, or terminally failed makes the task permanently
// unrunnable, reported as an *UnsatisfiableError so callers surface it
// instead of retrying forever.
func (r *Resolver) Runnable(ctx context.Context, t *Task) (bool, error) {
	for _, depID := range t.DependsOn {
		dep, err := r.store.GetTask(ctx, depID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return false, &UnsatisfiableError{TaskID: t.ID, DependencyID: depID, Reason: "missing"}
			}
			return false, fmt.Errorf("resolving dependency %s: %w", depID, err)
		}
		switch dep.Status {
		case TaskCompleted:
			continue
		case TaskCancelled:
			return false, &UnsatisfiableError{TaskID: t.ID, DependencyID: depID, Reason: "cancelled"}
		case TaskFailed:
			return false, &UnsatisfiableError{TaskID: t.ID, DependencyID: depID, Reason: "failed"}
		default:
			return false, nil
		}
	}
	return true, nil
}

// Unblocked scans blocked dependents of the completed task and returns the
// ids of those that are now runnable. Dependents that became permanently
// unrunnable are not returned; the core handles those on its cancel and
// terminal-fail paths.
func (r *Resolver) Unblocked(ctx context.Context, completedTaskID string) ([]string, error) {
	dependentIDs, err := r.store.Dependents(ctx, completedTaskID)
	if err != nil {
		return nil, fmt.Errorf("listing dependents of %s: %w", completedTaskID, err)
	}

	var runnable []string
	for _, id := range dependentIDs {
		dep, err := r.store.GetTask(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("loading dependent %s: %w", id, err)
		}
		if dep.Status != TaskBlocked {
			continue
		}
		ok, err := r.Runnable(ctx, dep)
		if err != nil {
			// Permanently unrunnable dependents are skipped here, not fatal.
			var unsat *UnsatisfiableError
			if errors.As(err, &unsat) {
				continue
			}
			return nil, err
		}
		if ok {
			runnable = append(runnable, id)
		}
	}
	return runnable, nil
}

// ValidateAcyclic rejects a task whose transitive dependency closure would
// include itself. It collects edges by walking the closure from the new
// task's direct dependencies, then runs a topological sort over them.
// Terminates in O(edges) per call; no cycle detection happens anywhere else.
func (r *Resolver) ValidateAcyclic(ctx context.Context, spec TaskSpec) error {
	if len(spec.DependsOn) == 0 {
		return nil
	}

	var edges []toposort.Edge
	visited := make(map[string]bool)
	var frontier []string
	for _, depID := range spec.DependsOn {
		edges = append(edges, toposort.Edge{depID, spec.ID})
		frontier = append(frontier, depID)
	}

	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		if id == spec.ID {
			// The new task appears in its own dependency closure.
			return validationErr("create_task", "dependency cycle through task %s", spec.ID)
		}
		if visited[id] {
			continue
		}
		visited[id] = true

		dep, err := r.store.GetTask(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return validationErr("create_task", "dependency %s does not exist", id)
			}
			return fmt.Errorf("loading dependency %s: %w", id, err)
		}
		for _, transitive := range dep.DependsOn {
			edges = append(edges, toposort.Edge{transitive, id})
			frontier = append(frontier, transitive)
		}
	}

	if _, err := toposort.Toposort(edges); err != nil {
		return validationErr("create_task", "dependency cycle: %v", err)
	}
	return nil
}
