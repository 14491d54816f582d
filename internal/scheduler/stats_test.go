package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestProjectStats(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	now := time.Now()
	past := now.Add(-time.Hour)
	started := now.Add(-30 * time.Minute)
	doneAt := now.Add(-10 * time.Minute)

	tasks := []*Task{
		{ID: "a", ProjectID: "p1", Type: "draft", Priority: PriorityHigh, Status: TaskCompleted, StartedAt: &started, CompletedAt: &doneAt, CreatedAt: past},
		{ID: "b", ProjectID: "p1", Type: "draft", Priority: PriorityLow, Status: TaskInProgress, Deadline: &past, CreatedAt: past},
		{ID: "c", ProjectID: "p1", Type: "revise", Priority: PriorityLow, Status: TaskPending, CreatedAt: now},
		{ID: "other", ProjectID: "p2", Type: "draft", Status: TaskPending, CreatedAt: now},
	}
	for _, task := range tasks {
		if err := store.CreateTask(ctx, task); err != nil {
			t.Fatalf("seeding %s: %v", task.ID, err)
		}
	}

	stats, err := NewStats(store).Project(ctx, "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("expected 3 tasks, got %d", stats.Total)
	}
	if stats.ByStatus[TaskCompleted] != 1 || stats.ByStatus[TaskInProgress] != 1 || stats.ByStatus[TaskPending] != 1 {
		t.Errorf("bad status counts: %v", stats.ByStatus)
	}
	if stats.ByPriority[PriorityLow] != 2 {
		t.Errorf("expected 2 low-priority tasks, got %d", stats.ByPriority[PriorityLow])
	}
	if stats.Overdue != 1 {
		t.Errorf("expected 1 overdue task, got %d", stats.Overdue)
	}
	if stats.AvgCompletionTime != 20*time.Minute {
		t.Errorf("expected 20m average, got %s", stats.AvgCompletionTime)
	}
}

func TestAgentStats(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	seedAgent(t, store, "w1", "writer", func(a *Agent) {
		a.TasksCompleted = 3
		a.TasksFailed = 1
		a.SatisfactionScore = 0.75
		a.AvgCompletionTime = 10 * time.Minute
	})

	stats, err := NewStats(store).Agent(ctx, "w1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.SuccessRate != 0.75 {
		t.Errorf("expected success rate 0.75, got %v", stats.SuccessRate)
	}
	if stats.AvgCompletionTime != 10*time.Minute {
		t.Errorf("expected 10m average, got %s", stats.AvgCompletionTime)
	}

	if _, err := NewStats(store).Agent(ctx, "ghost"); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
