package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DatabasePath != "dispatch.db" {
		t.Errorf("expected default database path, got %s", cfg.DatabasePath)
	}
	if cfg.DefaultMaxRetries != 3 {
		t.Errorf("expected 3 default retries, got %d", cfg.DefaultMaxRetries)
	}
	if cfg.CapabilityMap["draft"] != "writer" {
		t.Errorf("expected built-in capability map, got %v", cfg.CapabilityMap)
	}
	if cfg.Scoring.BusyPenalty != 50 {
		t.Errorf("expected default busy penalty 50, got %v", cfg.Scoring.BusyPenalty)
	}
}

func TestLoadMissingFilesAreSkipped(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "nope.json"), filepath.Join(dir, "also-nope.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DatabasePath != "dispatch.db" {
		t.Errorf("expected defaults, got %s", cfg.DatabasePath)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "bad.json", "{not json")
	if _, err := Load(path, ""); err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}

func TestLoadMergePrecedence(t *testing.T) {
	dir := t.TempDir()
	global := writeConfig(t, dir, "global.json", `{
		"database_path": "/var/lib/dispatch/global.db",
		"default_max_retries": 5,
		"capability_map": {"draft": "novelist"}
	}`)
	project := writeConfig(t, dir, "project.json", `{
		"database_path": "project.db",
		"capability_map": {"worldbuild": "researcher"},
		"scoring": {"busy_penalty": 80}
	}`)

	cfg, err := Load(global, project)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DatabasePath != "project.db" {
		t.Errorf("project config should win, got %s", cfg.DatabasePath)
	}
	if cfg.DefaultMaxRetries != 5 {
		t.Errorf("global value should survive when project is silent, got %d", cfg.DefaultMaxRetries)
	}
	if cfg.CapabilityMap["draft"] != "novelist" {
		t.Errorf("global map entry should override the default, got %s", cfg.CapabilityMap["draft"])
	}
	if cfg.CapabilityMap["worldbuild"] != "researcher" {
		t.Errorf("project map entry should be added, got %v", cfg.CapabilityMap)
	}
	if cfg.CapabilityMap["review"] != "reviewer" {
		t.Errorf("untouched default map entries should survive, got %v", cfg.CapabilityMap)
	}
	if cfg.Scoring.BusyPenalty != 80 {
		t.Errorf("project scoring should win, got %v", cfg.Scoring.BusyPenalty)
	}
	if cfg.Scoring.IdleBonus != 15 {
		t.Errorf("unset scoring fields should keep defaults, got %v", cfg.Scoring.IdleBonus)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	global := writeConfig(t, dir, "global.json", `{"database_path": "file.db", "default_max_retries": 5}`)

	t.Setenv("DISPATCH_DATABASE_PATH", "env.db")
	t.Setenv("DISPATCH_WATCHDOG_INTERVAL_SEC", "7")

	cfg, err := Load(global, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DatabasePath != "env.db" {
		t.Errorf("environment should win over files, got %s", cfg.DatabasePath)
	}
	if cfg.WatchdogIntervalSec != 7 {
		t.Errorf("expected watchdog interval 7, got %d", cfg.WatchdogIntervalSec)
	}
	if cfg.DefaultMaxRetries != 5 {
		t.Errorf("file value should survive when env is silent, got %d", cfg.DefaultMaxRetries)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.json")

	cfg := DefaultConfig()
	cfg.DatabasePath = "saved.db"
	cfg.CapabilityMap["worldbuild"] = "researcher"
	if err := Save(cfg, path); err != nil {
		t.Fatalf("saving: %v", err)
	}

	loaded, err := Load(path, "")
	if err != nil {
		t.Fatalf("loading: %v", err)
	}
	if loaded.DatabasePath != "saved.db" {
		t.Errorf("expected saved.db, got %s", loaded.DatabasePath)
	}
	if loaded.CapabilityMap["worldbuild"] != "researcher" {
		t.Errorf("expected saved map entry, got %v", loaded.CapabilityMap)
	}
}
