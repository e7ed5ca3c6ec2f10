package config

import (
	"fmt"
	"net/url"
	"strings"
)

var (
	logLevels       = []string{"debug", "info", "warn", "error"}
	logFormats      = []string{"text", "json"}
	tagBackends     = []string{"static", "redis"}
	probeSources    = []string{"file", "postgres"}
	queueBackends   = []string{"memory", "kafka", "redis"}
	requiredBrokers = map[string]bool{"kafka": true}
)

// Validate checks the config for:
//   - Unknown enumerated values (log level/format, backends, probe source)
//   - Settings required by the selected backends
//   - Duplicate middleware references
func Validate(cfg *AppConfig) error {
	var errs []string

	if !oneOf(cfg.Log.Level, logLevels) {
		errs = append(errs, fmt.Sprintf("log.level: must be one of %s, got %q", strings.Join(logLevels, ", "), cfg.Log.Level))
	}
	if !oneOf(cfg.Log.Format, logFormats) {
		errs = append(errs, fmt.Sprintf("log.format: must be one of %s, got %q", strings.Join(logFormats, ", "), cfg.Log.Format))
	}
	if cfg.HTTP.RateLimit < 0 {
		errs = append(errs, "http.rate_limit: must not be negative")
	}

	e := cfg.Engine
	if e.EventWorkers < 1 || e.ActionWorkers < 1 || e.QueueDepth < 1 || e.EventTimeoutMs < 1 {
		errs = append(errs, "engine: workers, queue_depth and event_timeout_ms must be positive")
	}

	seen := make(map[string]int, len(cfg.Middlewares))
	for i, ref := range cfg.Middlewares {
		if ref == "" {
			errs = append(errs, fmt.Sprintf("middlewares[%d]: reference is required", i))
			continue
		}
		if prev, ok := seen[ref]; ok {
			errs = append(errs, fmt.Sprintf("duplicate middleware %q (middlewares[%d] and middlewares[%d])", ref, prev, i))
			continue
		}
		seen[ref] = i
	}

	if !oneOf(cfg.MachineTags.Backend, tagBackends) {
		errs = append(errs, fmt.Sprintf("machine_tags.backend: must be one of %s, got %q", strings.Join(tagBackends, ", "), cfg.MachineTags.Backend))
	}

	switch cfg.Probes.Source {
	case "file":
		if cfg.Probes.Path == "" {
			errs = append(errs, "probes.path: required for the file source")
		}
	case "postgres":
		if cfg.Probes.DSN == "" {
			errs = append(errs, "probes.dsn: required for the postgres source")
		}
		if cfg.Probes.Watch {
			errs = append(errs, "probes.watch: only supported for the file source, use probes.poll_interval")
		}
	default:
		errs = append(errs, fmt.Sprintf("probes.source: must be one of %s, got %q", strings.Join(probeSources, ", "), cfg.Probes.Source))
	}
	if cfg.Probes.PollInterval < 0 {
		errs = append(errs, "probes.poll_interval: must not be negative")
	}

	if !oneOf(cfg.Queue.Backend, queueBackends) {
		errs = append(errs, fmt.Sprintf("queue.backend: must be one of %s, got %q", strings.Join(queueBackends, ", "), cfg.Queue.Backend))
	}
	if requiredBrokers[cfg.Queue.Backend] && (cfg.Queue.Brokers == "" || cfg.Queue.Topic == "") {
		errs = append(errs, "queue: brokers and topic are required for the kafka backend")
	}

	if cfg.Ingest.Enabled && (cfg.Ingest.Brokers == "" || cfg.Ingest.Topic == "") {
		errs = append(errs, "ingest: brokers and topic are required when enabled")
	}

	if cfg.Inventory.BaseURL != "" {
		if u, err := url.Parse(cfg.Inventory.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("inventory.base_url: must be an absolute URL, got %q", cfg.Inventory.BaseURL))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
