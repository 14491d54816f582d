package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/kelseyhightower/envconfig"
)

// envOverrides are applied on top of file config, highest precedence.
// Processed with the DISPATCH prefix, e.g. DISPATCH_DATABASE_PATH.
type envOverrides struct {
	DatabasePath        string `envconfig:"DATABASE_PATH"`
	DefaultMaxRetries   int    `envconfig:"DEFAULT_MAX_RETRIES"`
	UnblockConcurrency  int    `envconfig:"UNBLOCK_CONCURRENCY"`
	WatchdogIntervalSec int    `envconfig:"WATCHDOG_INTERVAL_SEC"`
}

// Load reads and merges configuration from global and project paths, then
// applies environment overrides. Order of precedence (highest to lowest):
// environment, project config, global config, defaults. Missing files are
// not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*DispatchConfig, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}
	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	var env envOverrides
	if err := envconfig.Process("DISPATCH", &env); err != nil {
		return nil, fmt.Errorf("reading environment overrides: %w", err)
	}
	if env.DatabasePath != "" {
		cfg.DatabasePath = env.DatabasePath
	}
	if env.DefaultMaxRetries > 0 {
		cfg.DefaultMaxRetries = env.DefaultMaxRetries
	}
	if env.UnblockConcurrency > 0 {
		cfg.UnblockConcurrency = env.UnblockConcurrency
	}
	if env.WatchdogIntervalSec > 0 {
		cfg.WatchdogIntervalSec = env.WatchdogIntervalSec
	}

	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: $XDG_CONFIG_HOME/dispatch/config.json
// Project: .dispatch/config.json (relative to cwd)
func LoadDefault() (*DispatchConfig, error) {
	globalPath := filepath.Join(xdg.ConfigHome, "dispatch", "config.json")
	projectPath := filepath.Join(".dispatch", "config.json")
	return Load(globalPath, projectPath)
}

// mergeConfigFile reads a JSON config file and merges it into the base
// config. Missing files are silently skipped.
func mergeConfigFile(base *DispatchConfig, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded DispatchConfig
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	if loaded.DatabasePath != "" {
		base.DatabasePath = loaded.DatabasePath
	}
	for taskType, agentType := range loaded.CapabilityMap {
		base.CapabilityMap[taskType] = agentType
	}
	mergeScoring(&base.Scoring, loaded.Scoring)
	if loaded.DefaultMaxRetries > 0 {
		base.DefaultMaxRetries = loaded.DefaultMaxRetries
	}
	if loaded.UnblockConcurrency > 0 {
		base.UnblockConcurrency = loaded.UnblockConcurrency
	}
	if loaded.WatchdogIntervalSec > 0 {
		base.WatchdogIntervalSec = loaded.WatchdogIntervalSec
	}
	if loaded.Notify.MaxElapsedTimeSec > 0 {
		base.Notify.MaxElapsedTimeSec = loaded.Notify.MaxElapsedTimeSec
	}
	if loaded.Notify.InitialIntervalMS > 0 {
		base.Notify.InitialIntervalMS = loaded.Notify.InitialIntervalMS
	}
	if loaded.Notify.MaxIntervalMS > 0 {
		base.Notify.MaxIntervalMS = loaded.Notify.MaxIntervalMS
	}
	return nil
}

func mergeScoring(base *ScoringConfig, loaded ScoringConfig) {
	if loaded.BusyPenalty > 0 {
		base.BusyPenalty = loaded.BusyPenalty
	}
	if loaded.SatisfactionWeight > 0 {
		base.SatisfactionWeight = loaded.SatisfactionWeight
	}
	if loaded.IdleBonus > 0 {
		base.IdleBonus = loaded.IdleBonus
	}
	if loaded.LightLoadBonus > 0 {
		base.LightLoadBonus = loaded.LightLoadBonus
	}
	if loaded.HeavyLoadPenalty > 0 {
		base.HeavyLoadPenalty = loaded.HeavyLoadPenalty
	}
	if loaded.HeavyLoadThreshold > 0 {
		base.HeavyLoadThreshold = loaded.HeavyLoadThreshold
	}
	if loaded.LeaderCriticalBonus > 0 {
		base.LeaderCriticalBonus = loaded.LeaderCriticalBonus
	}
}
