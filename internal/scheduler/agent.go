package scheduler

import "time"

// AgentRole affects assignment tie-breaking, not eligibility.
type AgentRole int

const (
	RoleContributor AgentRole = iota
	RoleLeader
	RoleReviewer
	RoleObserver
)

// String returns the lowercase name used in logs and the CLI.
func (r AgentRole) String() string {
	switch r {
	case RoleContributor:
		return "contributor"
	case RoleLeader:
		return "leader"
	case RoleReviewer:
		return "reviewer"
	case RoleObserver:
		return "observer"
	}
	return "unknown"
}

// Agent is a worker with a capability type. An agent holds at most one
// in-progress task at a time; IsBusy and CurrentTaskID move together.
type Agent struct {
	ID                string
	ProjectID         string
	Type              string // Capability tag matched against mapped task types
	Role              AgentRole
	IsActive          bool // Admin toggle; inactive agents are never candidates
	IsBusy            bool
	CurrentTaskID     string
	TasksCompleted    int
	TasksFailed       int
	AvgCompletionTime time.Duration // Exponential moving average
	SatisfactionScore float64       // EMA of normalized user ratings, in [0,1]
	CreatedAt         time.Time
	Version           int64 // Optimistic concurrency token, owned by the store
}

// emaWeight is the weight given to the newest sample when updating the
// rolling performance metrics.
const emaWeight = 0.2

// RecordCompletion folds a finished task into the agent's rolling metrics.
// A negative rating means the caller supplied none.
func (a *Agent) RecordCompletion(duration time.Duration, rating int) {
	a.TasksCompleted++
	if a.AvgCompletionTime == 0 {
		a.AvgCompletionTime = duration
	} else {
		a.AvgCompletionTime = time.Duration(emaWeight*float64(duration) + (1-emaWeight)*float64(a.AvgCompletionTime))
	}
	if rating >= 0 {
		normalized := float64(rating) / 5.0
		if normalized > 1 {
			normalized = 1
		}
		if a.TasksCompleted == 1 && a.SatisfactionScore == 0 {
			a.SatisfactionScore = normalized
		} else {
			a.SatisfactionScore = emaWeight*normalized + (1-emaWeight)*a.SatisfactionScore
		}
	}
}

// SuccessRate returns completed/(completed+failed), or 0 with no history.
func (a *Agent) SuccessRate() float64 {
	total := a.TasksCompleted + a.TasksFailed
	if total == 0 {
		return 0
	}
	return float64(a.TasksCompleted) / float64(total)
}

// Clone returns a copy so callers cannot mutate shared state.
func (a *Agent) Clone() *Agent {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}
