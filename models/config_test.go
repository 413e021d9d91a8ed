package models

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.PerPage != DefaultPerPage {
		t.Errorf("PerPage = %d, want %d", cfg.PerPage, DefaultPerPage)
	}
	if cfg.WorkerCount != DefaultWorkerCount {
		t.Errorf("WorkerCount = %d, want %d", cfg.WorkerCount, DefaultWorkerCount)
	}
	if cfg.Timeout() != 30*time.Second {
		t.Errorf("Timeout() = %s, want 30s", cfg.Timeout())
	}
	if cfg.Delay() != 250*time.Millisecond {
		t.Errorf("Delay() = %s, want 250ms", cfg.Delay())
	}
	if cfg.Sink != SinkCSV {
		t.Errorf("Sink = %s, want %s", cfg.Sink, SinkCSV)
	}
}

func TestLoadConfigMissingFileIsFine(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig() on missing file: %v", err)
	}
	if cfg.PerPage != DefaultPerPage {
		t.Errorf("PerPage = %d, want default %d", cfg.PerPage, DefaultPerPage)
	}
}

func TestLoadConfigYAMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("per_page: 500\nworkers: 2\nsink: sqlite\nlocality_region_id: 14\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.PerPage != 500 {
		t.Errorf("PerPage = %d, want 500", cfg.PerPage)
	}
	if cfg.WorkerCount != 2 {
		t.Errorf("WorkerCount = %d, want 2", cfg.WorkerCount)
	}
	if cfg.Sink != SinkSQLite {
		t.Errorf("Sink = %s, want sqlite", cfg.Sink)
	}
	if cfg.RegionID != 14 {
		t.Errorf("RegionID = %d, want 14", cfg.RegionID)
	}
	// Untouched keys keep their defaults.
	if cfg.MaxRetries != DefaultMaxRetries {
		t.Errorf("MaxRetries = %d, want default %d", cfg.MaxRetries, DefaultMaxRetries)
	}
}

func TestPostgresEnvOverrides(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_PORT", "5433")
	t.Setenv("POSTGRES_USER", "harvest")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "estates")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	pg := cfg.Postgres
	if pg.Host != "db.internal" || pg.Port != 5433 {
		t.Errorf("host:port = %s:%d, want db.internal:5433", pg.Host, pg.Port)
	}
	if pg.User != "harvest" || pg.Password != "secret" || pg.Database != "estates" {
		t.Errorf("credentials not picked up from env: %+v", pg)
	}
}
