package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ProjectStats is a read-side rollup over a project's tasks.
type ProjectStats struct {
	ProjectID         string
	Total             int
	ByStatus          map[TaskStatus]int
	ByPriority        map[Priority]int
	Overdue           int // Deadline in the past, status not terminal
	AvgCompletionTime time.Duration
}

// AgentStats is a read-side snapshot of one agent's performance.
type AgentStats struct {
	AgentID           string
	TasksCompleted    int
	TasksFailed       int
	SuccessRate       float64
	AvgCompletionTime time.Duration
	SatisfactionScore float64
	IsBusy            bool
	CurrentTaskID     string
}

// Stats computes rollups on demand from the store. It never mutates state
// and tolerates concurrent mutation: each call is a snapshot read.
type Stats struct {
	store Store
}

// NewStats creates a statistics aggregator over the store.
func NewStats(store Store) *Stats {
	return &Stats{store: store}
}

// Project returns counts by status and priority, the overdue count, and the
// average completion time across completed tasks.
func (s *Stats) Project(ctx context.Context, projectID string) (*ProjectStats, error) {
	tasks, err := s.store.ListTasks(ctx, projectID, TaskFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing tasks for project %s: %w", projectID, err)
	}

	stats := &ProjectStats{
		ProjectID:  projectID,
		Total:      len(tasks),
		ByStatus:   make(map[TaskStatus]int),
		ByPriority: make(map[Priority]int),
	}
	now := time.Now()
	var completed int
	var totalDuration time.Duration
	for _, t := range tasks {
		stats.ByStatus[t.Status]++
		stats.ByPriority[t.Priority]++
		if t.Overdue(now) {
			stats.Overdue++
		}
		if t.Status == TaskCompleted && t.StartedAt != nil && t.CompletedAt != nil {
			completed++
			totalDuration += t.CompletedAt.Sub(*t.StartedAt)
		}
	}
	if completed > 0 {
		stats.AvgCompletionTime = totalDuration / time.Duration(completed)
	}
	return stats, nil
}

// Agent returns the agent's performance snapshot. Success rate is 0 when the
// agent has no history.
func (s *Stats) Agent(ctx context.Context, agentID string) (*AgentStats, error) {
	a, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, validationErr("statistics", "unknown agent %s", agentID)
		}
		return nil, fmt.Errorf("loading agent %s: %w", agentID, err)
	}
	return &AgentStats{
		AgentID:           a.ID,
		TasksCompleted:    a.TasksCompleted,
		TasksFailed:       a.TasksFailed,
		SuccessRate:       a.SuccessRate(),
		AvgCompletionTime: a.AvgCompletionTime,
		SatisfactionScore: a.SatisfactionScore,
		IsBusy:            a.IsBusy,
		CurrentTaskID:     a.CurrentTaskID,
	}, nil
}
