package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.json")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"node": {"hw_id": "box-1", "device_id": "dev-1"}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Aggregator.FaceCount != 2 {
		t.Errorf("expected default face_count=2, got %d", cfg.Aggregator.FaceCount)
	}
	if cfg.Sync.MaxIterationsPerStage != 100 {
		t.Errorf("expected default max_iterations_per_stage=100, got %d", cfg.Sync.MaxIterationsPerStage)
	}
	if cfg.NodeID.HWID != "box-1" {
		t.Errorf("expected hw_id box-1, got %q", cfg.NodeID.HWID)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"aggregator": {"face_count": 5, "ready_delay_seconds": 10, "clean_delay_seconds": 120},
		"search": {"ignore_dbs": ["blocklist"]}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Aggregator.FaceCount != 5 {
		t.Errorf("expected face_count=5, got %d", cfg.Aggregator.FaceCount)
	}
	if len(cfg.Search.IgnoreDBs) != 1 || cfg.Search.IgnoreDBs[0] != "blocklist" {
		t.Errorf("expected ignore_dbs=[blocklist], got %v", cfg.Search.IgnoreDBs)
	}
}

func TestValidateRejectsBadTimezone(t *testing.T) {
	path := writeConfig(t, `{"node": {"timezone": "Not/A_Zone"}}`)

	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid timezone")
	}
}

func TestValidateRejectsNonPositiveDelays(t *testing.T) {
	path := writeConfig(t, `{"aggregator": {"ready_delay_seconds": 0}}`)

	if _, err := Load(path); err == nil {
		t.Error("expected error for zero ready_delay_seconds")
	}
}
