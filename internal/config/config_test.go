package config_test

import (
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/framelens/vigil/internal/config"
	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	t.Parallel()
	cfg := config.Default()

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("LogLevel = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Inference.Provider != "moondream" {
		t.Errorf("Inference.Provider = %q, want moondream", cfg.Inference.Provider)
	}
	if cfg.Source.Kind != config.SourceWebsocket {
		t.Errorf("Source.Kind = %q, want websocket", cfg.Source.Kind)
	}
	if err := config.Validate(cfg); err != nil {
		t.Errorf("Validate(Default()) = %v, want nil", err)
	}
}

func TestLogLevelSlog(t *testing.T) {
	t.Parallel()
	cases := []struct {
		level config.LogLevel
		want  slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{config.LogLevel(""), slog.LevelInfo},
		{config.LogLevel("bananas"), slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := tc.level.Slog(); got != tc.want {
			t.Errorf("LogLevel(%q).Slog() = %v, want %v", tc.level, got, tc.want)
		}
	}
}

func TestDurationUnmarshal(t *testing.T) {
	t.Parallel()
	var d config.Duration
	if err := yaml.Unmarshal([]byte(`250ms`), &d); err != nil {
		t.Fatalf("unmarshal %q: %v", "250ms", err)
	}
	if d.Std() != 250*time.Millisecond {
		t.Errorf("duration = %s, want 250ms", d)
	}

	if err := yaml.Unmarshal([]byte(`1000000000`), &d); err != nil {
		t.Fatalf("unmarshal integer: %v", err)
	}
	if d.Std() != time.Second {
		t.Errorf("duration = %s, want 1s", d)
	}

	if err := yaml.Unmarshal([]byte(`soon`), &d); err == nil {
		t.Error("expected error for invalid duration, got nil")
	}
}

func TestStorePathDefaults(t *testing.T) {
	t.Parallel()

	explicit := config.StorageConfig{Backend: config.StorageFile, Path: "/tmp/triggers.json"}
	if got := explicit.StorePath(); got != "/tmp/triggers.json" {
		t.Errorf("StorePath() = %q, want the explicit path", got)
	}

	file := config.StorageConfig{Backend: config.StorageFile}
	if got := file.StorePath(); filepath.Base(got) != "triggers.json" {
		t.Errorf("file StorePath() = %q, want a triggers.json default", got)
	}

	db := config.StorageConfig{Backend: config.StorageSQLite}
	if got := db.StorePath(); filepath.Base(got) != "triggers.db" {
		t.Errorf("sqlite StorePath() = %q, want a triggers.db default", got)
	}
	if got := db.StorePath(); !strings.Contains(got, "vigil") {
		t.Errorf("sqlite StorePath() = %q, want a path under the vigil data dir", got)
	}
}
