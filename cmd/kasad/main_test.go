package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("KASAD_CONFIG", "")
	os.Unsetenv("KASAD_CONFIG")

	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}
}

func TestGetConfigPath_EnvOverride(t *testing.T) {
	t.Setenv("KASAD_CONFIG", "/custom/path/kasad.yaml")

	if got := getConfigPath(); got != "/custom/path/kasad.yaml" {
		t.Errorf("getConfigPath() = %q, want /custom/path/kasad.yaml", got)
	}
}

func TestRun_InvalidConfigPath(t *testing.T) {
	t.Setenv("KASAD_CONFIG", "/nonexistent/path/kasad.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail when the config file does not exist")
	}
}

func TestRun_StartupAndShutdown(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "kasad.yaml")
	kasaconfPath := filepath.Join(tmpDir, "kasa.json")

	content := `
api:
  host: "127.0.0.1"
  port: 18080
udp:
  listen_addr: "127.0.0.1:0"
  device_port: 9999
kasaconf:
  path: "` + kasaconfPath + `"
  save_check_interval: 50ms
logging:
  level: "error"
  format: "text"
  output: "stdout"
`
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("writing test config: %v", err)
	}
	t.Setenv("KASAD_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Errorf("run() error = %v", err)
	}
}
