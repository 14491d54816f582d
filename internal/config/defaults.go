package config

// DefaultConfig returns the default configuration with the built-in
// capability map and scoring weights.
func DefaultConfig() *DispatchConfig {
	return &DispatchConfig{
		DatabasePath: "dispatch.db",
		CapabilityMap: map[string]string{
			"outline":  "planner",
			"draft":    "writer",
			"revise":   "writer",
			"review":   "reviewer",
			"research": "researcher",
		},
		Scoring: ScoringConfig{
			BusyPenalty:         50,
			SatisfactionWeight:  10,
			IdleBonus:           15,
			LightLoadBonus:      5,
			HeavyLoadPenalty:    10,
			HeavyLoadThreshold:  3,
			LeaderCriticalBonus: 8,
		},
		DefaultMaxRetries:   3,
		UnblockConcurrency:  4,
		WatchdogIntervalSec: 30,
		Notify: NotifyConfig{
			MaxElapsedTimeSec: 120,
			InitialIntervalMS: 100,
			MaxIntervalMS:     10000,
		},
	}
}
