package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if !cfg.Governance.SingleActiveMOM || !cfg.Governance.ProtectDepartments {
		t.Fatalf("governance defaults should be on: %+v", cfg.Governance)
	}
	if cfg.Tasks.DefaultPriority != "medium" {
		t.Fatalf("expected medium, got %s", cfg.Tasks.DefaultPriority)
	}
}

func TestLoadFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.BasePath != "/v0" {
		t.Fatalf("expected /v0, got %s", cfg.Server.BasePath)
	}
}

func TestLoadPartialOverride(t *testing.T) {
	dir := t.TempDir()
	doc := "governance:\n  single_active_mom: false\n"
	if err := os.WriteFile(filepath.Join(dir, "momtrack.yml"), []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Governance.SingleActiveMOM {
		t.Fatalf("override not applied")
	}
	// Untouched sections keep their defaults.
	if !cfg.Governance.ProtectDepartments || cfg.Tasks.DefaultPriority != "medium" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestFromYAMLRejectsBadPriority(t *testing.T) {
	if _, err := FromYAML([]byte("tasks:\n  default_priority: urgent\n")); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestWriteDefaultRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	if _, err := WriteDefault(dir); err != nil {
		t.Fatalf("write default: %v", err)
	}
	if _, err := WriteDefault(dir); err == nil {
		t.Fatalf("expected overwrite refusal")
	}
}
