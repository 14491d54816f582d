package config

// ScoringConfig tunes the agent suitability score. Signs are fixed by the
// scheduler; only magnitudes are configurable.
type ScoringConfig struct {
	BusyPenalty         float64 `json:"busy_penalty,omitempty"`
	SatisfactionWeight  float64 `json:"satisfaction_weight,omitempty"`
	IdleBonus           float64 `json:"idle_bonus,omitempty"`
	LightLoadBonus      float64 `json:"light_load_bonus,omitempty"`
	HeavyLoadPenalty    float64 `json:"heavy_load_penalty,omitempty"`
	HeavyLoadThreshold  int     `json:"heavy_load_threshold,omitempty"`
	LeaderCriticalBonus float64 `json:"leader_critical_bonus,omitempty"`
}

// NotifyConfig tunes assignment notification delivery.
type NotifyConfig struct {
	MaxElapsedTimeSec int `json:"max_elapsed_time_sec,omitempty"` // Total retry budget per notification
	InitialIntervalMS int `json:"initial_interval_ms,omitempty"`
	MaxIntervalMS     int `json:"max_interval_ms,omitempty"`
}

// DispatchConfig is the top-level configuration.
type DispatchConfig struct {
	DatabasePath string `json:"database_path,omitempty"`

	// CapabilityMap maps a task type to the agent type required to work on
	// it. Task types absent from the map match any active agent.
	CapabilityMap map[string]string `json:"capability_map,omitempty"`

	Scoring             ScoringConfig `json:"scoring,omitempty"`
	DefaultMaxRetries   int           `json:"default_max_retries,omitempty"`
	UnblockConcurrency  int           `json:"unblock_concurrency,omitempty"`
	WatchdogIntervalSec int           `json:"watchdog_interval_sec,omitempty"`
	Notify              NotifyConfig  `json:"notify,omitempty"`
}
