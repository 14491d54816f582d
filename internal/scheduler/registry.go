package scheduler

import (
	"context"
	"fmt"
	"sort"
)

// ScoringWeights tunes the suitability score. The constants are a tuning
// concern, not a correctness one, but the signs must hold: busy agents score
// lower, higher satisfaction scores higher, lighter workload scores higher
// past the threshold, and leaders get a small edge on critical tasks.
type ScoringWeights struct {
	BusyPenalty         float64
	SatisfactionWeight  float64
	IdleBonus           float64
	LightLoadBonus      float64
	HeavyLoadPenalty    float64
	HeavyLoadThreshold  int
	LeaderCriticalBonus float64
}

// DefaultScoringWeights returns the weights used when no config overrides them.
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		BusyPenalty:         50,
		SatisfactionWeight:  10,
		IdleBonus:           15,
		LightLoadBonus:      5,
		HeavyLoadPenalty:    10,
		HeavyLoadThreshold:  3,
		LeaderCriticalBonus: 8,
	}
}

// Registry selects agents for tasks. Candidate lookup goes through the
// capability map: a task type with a mapped agent type only matches agents of
// that type; unmapped task types match every active agent of the project.
type Registry struct {
	store         Store
	capabilityMap map[string]string
	weights       ScoringWeights
}

// NewRegistry creates a Registry. capabilityMap maps task type to required
// agent type and may be nil.
func NewRegistry(store Store, capabilityMap map[string]string, weights ScoringWeights) *Registry {
	return &Registry{store: store, capabilityMap: capabilityMap, weights: weights}
}

// Candidates returns all active agents of the task's project that match the
// task's capability requirement.
func (r *Registry) Candidates(ctx context.Context, t *Task) ([]*Agent, error) {
	agents, err := r.store.ListAgents(ctx, t.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("listing agents for project %s: %w", t.ProjectID, err)
	}

	requiredType, mapped := r.capabilityMap[t.Type]
	var out []*Agent
	for _, a := range agents {
		if !a.IsActive {
			continue
		}
		if mapped && a.Type != requiredType {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// Score computes the suitability of an agent for a task. activeCount is the
// number of tasks currently assigned to or in progress on the agent.
func (r *Registry) Score(a *Agent, t *Task, activeCount int) float64 {
	var score float64
	if a.IsBusy {
		score -= r.weights.BusyPenalty
	}
	score += r.weights.SatisfactionWeight * a.SatisfactionScore
	switch {
	case activeCount == 0:
		score += r.weights.IdleBonus
	case activeCount < r.weights.HeavyLoadThreshold:
		score += r.weights.LightLoadBonus
	default:
		score -= r.weights.HeavyLoadPenalty
	}
	if t.Priority == PriorityCritical && a.Role == RoleLeader {
		score += r.weights.LeaderCriticalBonus
	}
	return score
}

// BestAgent returns the highest-scoring candidate, or nil when no active
// agent of the required type exists. nil is not an error: the task stays
// pending until an agent becomes available. excludeID, when non-empty, drops
// that agent from consideration unless it is the only candidate.
func (r *Registry) BestAgent(ctx context.Context, t *Task, excludeID string) (*Agent, error) {
	candidates, err := r.Candidates(ctx, t)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	if excludeID != "" {
		filtered := make([]*Agent, 0, len(candidates))
		for _, a := range candidates {
			if a.ID != excludeID {
				filtered = append(filtered, a)
			}
		}
		// Prefer a different agent after a failure, but a repeat beats none.
		if len(filtered) > 0 {
			candidates = filtered
		}
	}

	type scored struct {
		agent  *Agent
		score  float64
		active int
	}
	ranked := make([]scored, 0, len(candidates))
	for _, a := range candidates {
		active, err := r.activeTaskCount(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		ranked = append(ranked, scored{agent: a, score: r.Score(a, t, active), active: active})
	}

	// Highest score wins; ties break to the least-loaded agent, then to the
	// lowest id for determinism.
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		if ranked[i].active != ranked[j].active {
			return ranked[i].active < ranked[j].active
		}
		return ranked[i].agent.ID < ranked[j].agent.ID
	})
	return ranked[0].agent, nil
}

// activeTaskCount counts tasks currently held by the agent (assigned or in
// progress).
func (r *Registry) activeTaskCount(ctx context.Context, agentID string) (int, error) {
	tasks, err := r.store.ListTasks(ctx, "", TaskFilter{
		AgentID:  agentID,
		Statuses: []TaskStatus{TaskAssigned, TaskInProgress},
	})
	if err != nil {
		return 0, fmt.Errorf("counting active tasks for agent %s: %w", agentID, err)
	}
	return len(tasks), nil
}
