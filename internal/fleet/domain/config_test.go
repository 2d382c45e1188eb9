package fleet

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
shuttles:
  shuttle-01:
    host: 10.0.0.1
    command_port: 2100
  shuttle-02:
    host: 10.0.0.2
stock_to_shuttles:
  WH-A: [shuttle-01]
  WH-B: [shuttle-02]
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Shuttles["shuttle-01"].CommandPort != 2100 {
		t.Fatalf("explicit port lost: %d", cfg.Shuttles["shuttle-01"].CommandPort)
	}
	if cfg.Shuttles["shuttle-02"].CommandPort != 2000 {
		t.Fatalf("default port not applied: %d", cfg.Shuttles["shuttle-02"].CommandPort)
	}
	if got := cfg.ShuttlesForStock("WH-A"); len(got) != 1 || got[0] != "shuttle-01" {
		t.Fatalf("unexpected mapping %v", got)
	}
}

func TestLoadConfig_RejectsUnknownShuttleReference(t *testing.T) {
	path := writeConfig(t, `
shuttles:
  shuttle-01:
    host: 10.0.0.1
stock_to_shuttles:
  WH-A: [shuttle-99]
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for unknown shuttle reference")
	}
}

func TestLoadConfig_RequiresHost(t *testing.T) {
	path := writeConfig(t, `
shuttles:
  shuttle-01:
    command_port: 2000
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for missing host")
	}
}

func TestMoveShuttle(t *testing.T) {
	cfg := Config{
		Shuttles: map[string]NetworkConfig{
			"shuttle-01": {Host: "10.0.0.1", CommandPort: 2000},
		},
		StockToShuttles: map[string][]string{
			"WH-A": {"shuttle-01"},
		},
	}
	if err := cfg.MoveShuttle("shuttle-01", "WH-B"); err != nil {
		t.Fatalf("move: %v", err)
	}
	if len(cfg.ShuttlesForStock("WH-A")) != 0 {
		t.Fatal("shuttle should have left WH-A")
	}
	if got := cfg.ShuttlesForStock("WH-B"); len(got) != 1 || got[0] != "shuttle-01" {
		t.Fatalf("shuttle should be in WH-B, got %v", got)
	}
	if err := cfg.MoveShuttle("shuttle-99", "WH-B"); err == nil {
		t.Fatal("expected error for unknown shuttle")
	}
}
