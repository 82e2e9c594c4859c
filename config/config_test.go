package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/user/railpass-blue/logger"
)

func TestDefaults(t *testing.T) {
	cfg, err := resolve(Defaults(), nil, nil)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("Expected 5s poll interval, got %v", cfg.PollInterval)
	}
	if cfg.Placement != "manufacturer" || cfg.Radio != RadioSim {
		t.Errorf("Unexpected defaults %+v", cfg)
	}
	if cfg.Level() != logger.INFO {
		t.Errorf("Expected INFO, got %v", cfg.Level())
	}
}

func TestPriority(t *testing.T) {
	env, err := envLayer([]string{
		"RAILPASS_BACKEND_URL=http://env.example:9000",
		"RAILPASS_POLL_INTERVAL=2s",
		"RAILPASS_PLACEMENT=service",
		"HOME=/root",
		"RAILPASS_LOG_LEVEL=",
	})
	if err != nil {
		t.Fatalf("envLayer failed: %v", err)
	}

	cfg, err := resolve(Defaults(), env, map[string]any{
		"poll_interval": 750 * time.Millisecond,
		"log_level":     "debug",
		"radio":         "",
	})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	if cfg.BackendURL != "http://env.example:9000" {
		t.Errorf("Expected env backend, got %s", cfg.BackendURL)
	}
	if cfg.PollInterval != 750*time.Millisecond {
		t.Errorf("Expected flag to win over env, got %v", cfg.PollInterval)
	}
	if cfg.Placement != "service" {
		t.Errorf("Expected env placement, got %s", cfg.Placement)
	}
	if cfg.Radio != RadioSim {
		t.Errorf("Empty flag should fall through to default, got %q", cfg.Radio)
	}
	if cfg.Level() != logger.DEBUG {
		t.Errorf("Expected DEBUG, got %v", cfg.Level())
	}
}

func TestDataDirEnvAlias(t *testing.T) {
	env, err := envLayer([]string{"RAILPASS_DIR=/tmp/rail"})
	if err != nil {
		t.Fatalf("envLayer failed: %v", err)
	}
	cfg, err := resolve(Defaults(), env, nil)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if cfg.DataDir != "/tmp/rail" || cfg.AirDir() != filepath.Join("/tmp/rail", "air") {
		t.Errorf("Unexpected dirs %s %s", cfg.DataDir, cfg.AirDir())
	}
}

func TestBadDurationInEnv(t *testing.T) {
	if _, err := envLayer([]string{"RAILPASS_POLL_INTERVAL=soon"}); err == nil {
		t.Fatal("Expected error for unparsable duration")
	}
}

func TestValidation(t *testing.T) {
	cases := map[string]map[string]any{
		"backend_url": {"backend_url": "not a url"},
		"placement":   {"placement": "beacon"},
		"radio":       {"radio": "zigbee"},
		"interval":    {"poll_interval": -time.Second},
	}
	for field, overrides := range cases {
		_, err := resolve(Defaults(), nil, overrides)
		if err == nil {
			t.Errorf("%s: expected validation error", field)
			continue
		}
		if !strings.Contains(err.Error(), "config") {
			t.Errorf("%s: unexpected error %v", field, err)
		}
	}
}

func TestLoadUsesEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RAILPASS_DATA_DIR", dir)
	t.Setenv("RAILPASS_RADIO", "bluez")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DataDir != dir || cfg.Radio != RadioBlueZ {
		t.Errorf("Unexpected config %+v", cfg)
	}
}
