package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PROBEWIRE_"

// Load reads the YAML file at path (optional when empty), applies
// environment overrides and fills in defaults. A .env file in the working
// directory is loaded first if present.
func Load(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return load(path, nil)
}

func load(path string, environment map[string]string) (*AppConfig, error) {
	var cfg AppConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	opts := env.Options{Prefix: EnvPrefix}
	if environment != nil {
		opts.Environment = environment
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Version == "" {
		cfg.Version = "1"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 10 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.RateLimit > 0 && cfg.HTTP.RateBurst == 0 {
		cfg.HTTP.RateBurst = int(cfg.HTTP.RateLimit)
		if cfg.HTTP.RateBurst < 1 {
			cfg.HTTP.RateBurst = 1
		}
	}
	if cfg.Engine.EventWorkers == 0 {
		cfg.Engine.EventWorkers = 32
	}
	if cfg.Engine.ActionWorkers == 0 {
		cfg.Engine.ActionWorkers = 16
	}
	if cfg.Engine.QueueDepth == 0 {
		cfg.Engine.QueueDepth = 10000
	}
	if cfg.Engine.EventTimeoutMs == 0 {
		cfg.Engine.EventTimeoutMs = 5000
	}
	if cfg.MachineTags.Backend == "" {
		cfg.MachineTags.Backend = "static"
	}
	if cfg.Probes.Source == "" {
		cfg.Probes.Source = "file"
	}
	if cfg.Probes.Source == "file" && cfg.Probes.Path == "" {
		cfg.Probes.Path = "configs/probes.yaml"
	}
	if cfg.Templates.Dir == "" {
		cfg.Templates.Dir = "templates"
	}
	if cfg.Queue.Backend == "" {
		cfg.Queue.Backend = "memory"
	}
	if cfg.Ingest.GroupID == "" {
		cfg.Ingest.GroupID = "probewire"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
}
