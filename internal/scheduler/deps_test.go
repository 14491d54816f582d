package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func seedTask(t *testing.T, store *memStore, id string, status TaskStatus, dependsOn ...string) *Task {
	t.Helper()
	task := &Task{
		ID:         id,
		ProjectID:  "p1",
		Type:       "draft",
		Status:     status,
		MaxRetries: DefaultMaxRetries,
		DependsOn:  dependsOn,
		CreatedAt:  time.Now(),
	}
	if err := store.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("seeding task %s: %v", id, err)
	}
	return task
}

// TestRunnable tests dependency resolution across dependency states.
func TestRunnable(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*memStore) *Task
		want       bool
		wantUnsat  bool
		unsatDepID string
	}{
		{
			name: "no dependencies",
			setup: func(s *memStore) *Task {
				return seedTask(t, s, "a", TaskPending)
			},
			want: true,
		},
		{
			name: "all dependencies completed",
			setup: func(s *memStore) *Task {
				seedTask(t, s, "a", TaskCompleted)
				seedTask(t, s, "b", TaskCompleted)
				return seedTask(t, s, "c", TaskBlocked, "a", "b")
			},
			want: true,
		},
		{
			name: "dependency still pending",
			setup: func(s *memStore) *Task {
				seedTask(t, s, "a", TaskPending)
				return seedTask(t, s, "b", TaskBlocked, "a")
			},
			want: false,
		},
		{
			name: "dependency in progress",
			setup: func(s *memStore) *Task {
				seedTask(t, s, "a", TaskInProgress)
				return seedTask(t, s, "b", TaskBlocked, "a")
			},
			want: false,
		},
		{
			name: "dependency cancelled is permanently unrunnable",
			setup: func(s *memStore) *Task {
				seedTask(t, s, "a", TaskCancelled)
				return seedTask(t, s, "b", TaskBlocked, "a")
			},
			wantUnsat:  true,
			unsatDepID: "a",
		},
		{
			name: "dependency failed is permanently unrunnable",
			setup: func(s *memStore) *Task {
				seedTask(t, s, "a", TaskFailed)
				return seedTask(t, s, "b", TaskBlocked, "a")
			},
			wantUnsat:  true,
			unsatDepID: "a",
		},
		{
			name: "missing dependency is permanently unrunnable",
			setup: func(s *memStore) *Task {
				task := &Task{ID: "b", ProjectID: "p1", Type: "draft", Status: TaskBlocked, DependsOn: []string{"ghost"}, CreatedAt: time.Now()}
				if err := s.CreateTask(context.Background(), task); err != nil {
					t.Fatalf("seeding: %v", err)
				}
				return task
			},
			wantUnsat:  true,
			unsatDepID: "ghost",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			task := tt.setup(store)
			resolver := NewResolver(store)

			got, err := resolver.Runnable(context.Background(), task)
			if tt.wantUnsat {
				var unsat *UnsatisfiableError
				if !errors.As(err, &unsat) {
					t.Fatalf("expected UnsatisfiableError, got %v", err)
				}
				if unsat.DependencyID != tt.unsatDepID {
					t.Errorf("expected dependency %s in error, got %s", tt.unsatDepID, unsat.DependencyID)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Runnable() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestUnblocked verifies that completing a task surfaces newly runnable dependents.
func TestUnblocked(t *testing.T) {
	store := newMemStore()
	seedTask(t, store, "a", TaskCompleted)
	seedTask(t, store, "b", TaskBlocked, "a")           // Now runnable
	seedTask(t, store, "x", TaskPending)                // Unrelated
	seedTask(t, store, "c", TaskBlocked, "a", "x")      // Still waiting on x
	seedTask(t, store, "d", TaskCancelled, "a")         // Terminal, ignored
	resolver := NewResolver(store)

	got, err := resolver.Unblocked(context.Background(), "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != "b" {
		t.Errorf("expected [b], got %v", got)
	}
}

// TestUnblockedSkipsDeadDependents verifies dependents made permanently
// unrunnable by another dependency are not surfaced as runnable.
func TestUnblockedSkipsDeadDependents(t *testing.T) {
	store := newMemStore()
	seedTask(t, store, "a", TaskCompleted)
	seedTask(t, store, "dead", TaskCancelled)
	seedTask(t, store, "b", TaskBlocked, "a", "dead")
	resolver := NewResolver(store)

	got, err := resolver.Unblocked(context.Background(), "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no runnable dependents, got %v", got)
	}
}

// TestValidateAcyclic tests cycle rejection at creation time.
func TestValidateAcyclic(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(*memStore)
		spec        TaskSpec
		wantErr     bool
		errContains string
	}{
		{
			name:  "no dependencies",
			setup: func(s *memStore) {},
			spec:  TaskSpec{ID: "a", ProjectID: "p1", Type: "draft"},
		},
		{
			name: "valid chain",
			setup: func(s *memStore) {
				seedTask(t, s, "a", TaskCompleted)
				seedTask(t, s, "b", TaskBlocked, "a")
			},
			spec: TaskSpec{ID: "c", ProjectID: "p1", Type: "draft", DependsOn: []string{"b"}},
		},
		{
			name:        "direct self-reference",
			setup:       func(s *memStore) {},
			spec:        TaskSpec{ID: "a", ProjectID: "p1", Type: "draft", DependsOn: []string{"a"}},
			wantErr:     true,
			errContains: "cycle",
		},
		{
			name: "transitive self-reference",
			setup: func(s *memStore) {
				// b already depends on a; creating a depending on b closes the loop.
				seedTask(t, s, "b", TaskBlocked, "a")
			},
			spec:        TaskSpec{ID: "a", ProjectID: "p1", Type: "draft", DependsOn: []string{"b"}},
			wantErr:     true,
			errContains: "cycle",
		},
		{
			name:        "missing dependency",
			setup:       func(s *memStore) {},
			spec:        TaskSpec{ID: "a", ProjectID: "p1", Type: "draft", DependsOn: []string{"ghost"}},
			wantErr:     true,
			errContains: "does not exist",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			tt.setup(store)
			resolver := NewResolver(store)

			err := resolver.ValidateAcyclic(context.Background(), tt.spec)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !IsValidation(err) {
					t.Errorf("expected validation error, got %T", err)
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("expected error containing %q, got %q", tt.errContains, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
