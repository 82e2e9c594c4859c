// Package config resolves runtime settings from defaults, RAILPASS_*
// environment variables and command-line overrides, in that priority order.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
	"github.com/user/railpass-blue/broadcast"
	"github.com/user/railpass-blue/logger"
	"github.com/user/railpass-blue/util"
)

// Radio backends
const (
	RadioSim   = "sim"
	RadioBlueZ = "bluez"
)

const envPrefix = "RAILPASS_"

// Config is everything the host processes need
type Config struct {
	BackendURL     string        `koanf:"backend_url" mapstructure:"backend_url"`
	DataDir        string        `koanf:"data_dir" mapstructure:"data_dir"`
	PollInterval   time.Duration `koanf:"poll_interval" mapstructure:"poll_interval"`
	RequestTimeout time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
	Placement      string        `koanf:"placement" mapstructure:"placement"`
	Radio          string        `koanf:"radio" mapstructure:"radio"`
	LogLevel       string        `koanf:"log_level" mapstructure:"log_level"`
}

// Defaults returns the built-in configuration
func Defaults() Config {
	return Config{
		BackendURL:     "http://127.0.0.1:8000",
		DataDir:        util.GetDataDir(),
		PollInterval:   5 * time.Second,
		RequestTimeout: 10 * time.Second,
		Placement:      "manufacturer",
		Radio:          RadioSim,
		LogLevel:       "INFO",
	}
}

// Validate checks a resolved configuration
func (c Config) Validate() error {
	u, err := url.Parse(strings.TrimSpace(c.BackendURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: backend_url must be an absolute URL, got %q", c.BackendURL)
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: data_dir is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: poll_interval must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("config: request_timeout must be positive")
	}
	if _, err := broadcast.PlacementByName(c.Placement); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(c.Radio)) {
	case RadioSim, RadioBlueZ:
	default:
		return fmt.Errorf("config: radio must be %q or %q, got %q", RadioSim, RadioBlueZ, c.Radio)
	}
	return nil
}

// AirDir is where the simulated radio exchanges advertisements
func (c Config) AirDir() string {
	return util.GetAirDir(c.DataDir)
}

// Level returns the parsed log level
func (c Config) Level() logger.LogLevel {
	return logger.ParseLevel(c.LogLevel)
}

// Load merges defaults, environment and overrides. Override keys use the
// koanf names (backend_url, poll_interval, ...); empty strings and zero
// durations in overrides are ignored so unset flags fall through.
func Load(overrides map[string]any) (Config, error) {
	env, err := envLayer(os.Environ())
	if err != nil {
		return Config{}, err
	}
	return resolve(Defaults(), env, overrides)
}

func resolve(defaults Config, env, overrides map[string]any) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			toLayer(defaults),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("env", 10),
			env,
			opts.WithSnapshotID[map[string]any]("env"),
		),
		opts.NewLayer(
			opts.NewScope("flags", 20),
			compact(overrides),
			opts.WithSnapshotID[map[string]any]("flags"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("config: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("config: options merge failed: %w", err)
	}

	cfg, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	cfg.Radio = strings.ToLower(strings.TrimSpace(cfg.Radio))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func toLayer(c Config) map[string]any {
	return map[string]any{
		"backend_url":     c.BackendURL,
		"data_dir":        c.DataDir,
		"poll_interval":   c.PollInterval,
		"request_timeout": c.RequestTimeout,
		"placement":       c.Placement,
		"radio":           c.Radio,
		"log_level":       c.LogLevel,
	}
}

// envLayer reads RAILPASS_<KEY> variables; durations are parsed here so every
// layer carries typed values
func envLayer(environ []string) (map[string]any, error) {
	layer := map[string]any{}
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, envPrefix) || value == "" {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(name, envPrefix))
		switch key {
		case "backend_url", "data_dir", "placement", "radio", "log_level":
			layer[key] = value
		case "poll_interval", "request_timeout":
			d, err := time.ParseDuration(value)
			if err != nil {
				return nil, fmt.Errorf("config: %s: %w", name, err)
			}
			layer[key] = d
		case "dir":
			// RAILPASS_DIR is the data directory variable shared with util
			layer["data_dir"] = value
		}
	}
	return layer, nil
}

func compact(in map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range in {
		switch tv := v.(type) {
		case nil:
			continue
		case string:
			if strings.TrimSpace(tv) == "" {
				continue
			}
		case time.Duration:
			if tv == 0 {
				continue
			}
		}
		out[k] = v
	}
	return out
}
