package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/illarion/keysafe/internal/crypto"
	"github.com/illarion/keysafe/internal/session"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{EnvDB, EnvBackend, EnvIdentity, EnvLogLevel} {
		t.Setenv(name, "")
	}
	t.Setenv("HOME", t.TempDir())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.Backend != BackendBolt {
		t.Errorf("Backend: got %s", cfg.Storage.Backend)
	}
	if !strings.HasSuffix(cfg.Storage.Path, filepath.Join(".keysafe", "vault.db")) {
		t.Errorf("Default path: got %s", cfg.Storage.Path)
	}
	if cfg.Session.Duration != session.DefaultDuration || cfg.Session.Inactivity != session.DefaultInactivity {
		t.Errorf("Unexpected session defaults: %+v", cfg.Session)
	}
	if cfg.KDFIterations != crypto.DefaultIters {
		t.Errorf("KDFIterations: got %d", cfg.KDFIterations)
	}
	if !cfg.Bound() {
		t.Error("Signature binding should be the default")
	}
	if cfg.Level() != zerolog.WarnLevel {
		t.Errorf("Level: got %s", cfg.Level())
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
identity: "0xABC"
storage:
  backend: sqlite
  path: /tmp/keysafe-test/vault.sqlite
session:
  duration: 2h
  inactivity: 15m
  monitor_interval: 10s
signer:
  name: work
  binding: none
kdf_iterations: 300000
log_level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Identity != "0xABC" {
		t.Errorf("Identity: got %s", cfg.Identity)
	}
	if cfg.Storage.Backend != BackendSQLite || cfg.Storage.Path != "/tmp/keysafe-test/vault.sqlite" {
		t.Errorf("Storage: got %+v", cfg.Storage)
	}
	want := session.Config{Duration: 2 * time.Hour, Inactivity: 15 * time.Minute}
	if cfg.Sessions() != want {
		t.Errorf("Sessions: got %+v, want %+v", cfg.Sessions(), want)
	}
	if cfg.Session.MonitorInterval != 10*time.Second {
		t.Errorf("MonitorInterval: got %s", cfg.Session.MonitorInterval)
	}
	if cfg.Signer.Name != "work" || cfg.Bound() {
		t.Errorf("Signer: got %+v", cfg.Signer)
	}
	if cfg.KDFIterations != 300000 {
		t.Errorf("KDFIterations: got %d", cfg.KDFIterations)
	}
	if cfg.Level() != zerolog.DebugLevel {
		t.Errorf("Level: got %s", cfg.Level())
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "storage:\n  path: /from/file.db\nidentity: file-id\n")

	t.Setenv(EnvDB, "/from/env.db")
	t.Setenv(EnvIdentity, "0xenv")
	t.Setenv(EnvLogLevel, "error")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.Path != "/from/env.db" {
		t.Errorf("Path: got %s", cfg.Storage.Path)
	}
	if cfg.Identity != "0xenv" {
		t.Errorf("Identity: got %s", cfg.Identity)
	}
	if cfg.Level() != zerolog.ErrorLevel {
		t.Errorf("Level: got %s", cfg.Level())
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name    string
		content string
	}{
		{"unknown backend", "storage:\n  backend: postgres\n"},
		{"unknown binding", "signer:\n  binding: address\n"},
		{"weak kdf", "kdf_iterations: 1000\n"},
		{"negative duration", "session:\n  duration: -5m\n"},
		{"bad duration", "session:\n  duration: soon\n"},
		{"bad level", "log_level: loud\n"},
		{"bad yaml", "storage: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("Load should fail")
			}
		})
	}
}

func TestSQLiteDefaultPath(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvBackend, "SQLite")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.Backend != BackendSQLite || filepath.Base(cfg.Storage.Path) != "vault.sqlite" {
		t.Errorf("Storage: got %+v", cfg.Storage)
	}
	if err := cfg.EnsureStorageDir(); err != nil {
		t.Fatalf("EnsureStorageDir failed: %v", err)
	}
	info, err := os.Stat(filepath.Dir(cfg.Storage.Path))
	if err != nil || !info.IsDir() {
		t.Errorf("Storage directory not created: %v", err)
	}
}

func TestInactivityCappedByDuration(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(writeConfig(t, "session:\n  duration: 10m\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Session.Inactivity != 10*time.Minute {
		t.Errorf("Inactivity: got %s, want 10m", cfg.Session.Inactivity)
	}
}
