package scheduler

import (
	"context"
	"fmt"
	"sync"
)

// memStore is an in-memory Store used by the pure-function tests. The scorer
// and resolver are deliberately testable without a database; the SQLite
// implementation has its own tests.
type memStore struct {
	mu     sync.Mutex
	tasks  map[string]*Task
	agents map[string]*Agent
}

func newMemStore() *memStore {
	return &memStore{
		tasks:  make(map[string]*Task),
		agents: make(map[string]*Agent),
	}
}

func (m *memStore) CreateTask(_ context.Context, t *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[t.ID]; ok {
		return fmt.Errorf("task %s: %w", t.ID, ErrAlreadyExists)
	}
	t.Version = 1
	m.tasks[t.ID] = t.Clone()
	return nil
}

func (m *memStore) GetTask(_ context.Context, id string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return t.Clone(), nil
}

func (m *memStore) PutTask(_ context.Context, t *Task, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putTaskLocked(t, expectedVersion)
}

func (m *memStore) putTaskLocked(t *Task, expectedVersion int64) error {
	stored, ok := m.tasks[t.ID]
	if !ok {
		return fmt.Errorf("task %s: %w", t.ID, ErrNotFound)
	}
	if stored.Version != expectedVersion {
		return fmt.Errorf("task %s: %w", t.ID, ErrVersionConflict)
	}
	t.Version = expectedVersion + 1
	m.tasks[t.ID] = t.Clone()
	return nil
}

func (m *memStore) ListTasks(_ context.Context, projectID string, filter TaskFilter) ([]*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Task
	for _, t := range m.tasks {
		if projectID != "" && t.ProjectID != projectID {
			continue
		}
		if !filter.Matches(t) {
			continue
		}
		out = append(out, t.Clone())
	}
	return out, nil
}

func (m *memStore) Dependents(_ context.Context, taskID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, t := range m.tasks {
		for _, dep := range t.DependsOn {
			if dep == taskID {
				out = append(out, t.ID)
				break
			}
		}
	}
	return out, nil
}

func (m *memStore) CreateAgent(_ context.Context, a *Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[a.ID]; ok {
		return fmt.Errorf("agent %s: %w", a.ID, ErrAlreadyExists)
	}
	a.Version = 1
	m.agents[a.ID] = a.Clone()
	return nil
}

func (m *memStore) GetAgent(_ context.Context, id string) (*Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	return a.Clone(), nil
}

func (m *memStore) ListAgents(_ context.Context, projectID string) ([]*Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Agent
	for _, a := range m.agents {
		if projectID != "" && a.ProjectID != projectID {
			continue
		}
		out = append(out, a.Clone())
	}
	return out, nil
}

func (m *memStore) PutAgent(_ context.Context, a *Agent, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putAgentLocked(a, expectedVersion)
}

func (m *memStore) putAgentLocked(a *Agent, expectedVersion int64) error {
	stored, ok := m.agents[a.ID]
	if !ok {
		return fmt.Errorf("agent %s: %w", a.ID, ErrNotFound)
	}
	if stored.Version != expectedVersion {
		return fmt.Errorf("agent %s: %w", a.ID, ErrVersionConflict)
	}
	a.Version = expectedVersion + 1
	m.agents[a.ID] = a.Clone()
	return nil
}

func (m *memStore) PutTaskAndAgent(_ context.Context, t *Task, taskVersion int64, a *Agent, agentVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Check both versions before writing either, so the pair stays atomic.
	if stored, ok := m.tasks[t.ID]; !ok {
		return fmt.Errorf("task %s: %w", t.ID, ErrNotFound)
	} else if stored.Version != taskVersion {
		return fmt.Errorf("task %s: %w", t.ID, ErrVersionConflict)
	}
	if stored, ok := m.agents[a.ID]; !ok {
		return fmt.Errorf("agent %s: %w", a.ID, ErrNotFound)
	} else if stored.Version != agentVersion {
		return fmt.Errorf("agent %s: %w", a.ID, ErrVersionConflict)
	}
	if err := m.putTaskLocked(t, taskVersion); err != nil {
		return err
	}
	return m.putAgentLocked(a, agentVersion)
}

func (m *memStore) Close() error { return nil }
