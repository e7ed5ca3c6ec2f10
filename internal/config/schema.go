package config

import "time"

// AppConfig is the top-level YAML structure. Every field can be overridden
// from the environment with the PROBEWIRE_ prefix, e.g. PROBEWIRE_HTTP_ADDR.
type AppConfig struct {
	Version     string          `yaml:"version" env:"VERSION"`
	Log         LogConf         `yaml:"log" envPrefix:"LOG_"`
	HTTP        HTTPConf        `yaml:"http" envPrefix:"HTTP_"`
	Engine      EngineConf      `yaml:"engine" envPrefix:"ENGINE_"`
	Middlewares []string        `yaml:"middlewares" env:"MIDDLEWARES" envSeparator:","`
	Redactor    RedactorConf    `yaml:"redactor" envPrefix:"REDACTOR_"`
	MachineTags MachineTagsConf `yaml:"machine_tags" envPrefix:"MACHINE_TAGS_"`
	Probes      ProbesConf      `yaml:"probes" envPrefix:"PROBES_"`
	Templates   TemplatesConf   `yaml:"templates" envPrefix:"TEMPLATES_"`
	Queue       QueueConf       `yaml:"queue" envPrefix:"QUEUE_"`
	Ingest      IngestConf      `yaml:"ingest" envPrefix:"INGEST_"`
	Redis       RedisConf       `yaml:"redis" envPrefix:"REDIS_"`
	Inventory   InventoryConf   `yaml:"inventory" envPrefix:"INVENTORY_"`
}

// LogConf selects the slog handler.
type LogConf struct {
	Level  string `yaml:"level" env:"LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" env:"FORMAT"` // text or json
}

// HTTPConf configures the ingestion API.
type HTTPConf struct {
	Addr         string        `yaml:"addr" env:"ADDR"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	RateLimit    float64       `yaml:"rate_limit" env:"RATE_LIMIT"` // events per second, 0 = unlimited
	RateBurst    int           `yaml:"rate_burst" env:"RATE_BURST"`
}

// EngineConf holds tunable concurrency settings.
type EngineConf struct {
	EventWorkers   int `yaml:"event_workers" env:"EVENT_WORKERS"`
	ActionWorkers  int `yaml:"action_workers" env:"ACTION_WORKERS"`
	QueueDepth     int `yaml:"queue_depth" env:"QUEUE_DEPTH"`
	EventTimeoutMs int `yaml:"event_timeout_ms" env:"EVENT_TIMEOUT_MS"`
}

// RedactorConf lists the payload fields replaced by the redactor middleware.
type RedactorConf struct {
	Fields []string `yaml:"fields" env:"FIELDS" envSeparator:","`
}

// MachineTagsConf configures the machine_tags middleware.
type MachineTagsConf struct {
	Backend   string              `yaml:"backend" env:"BACKEND"` // static or redis
	KeyPrefix string              `yaml:"key_prefix" env:"KEY_PREFIX"`
	Static    map[string][]string `yaml:"static"`
}

// ProbesConf selects where probes come from.
type ProbesConf struct {
	Source       string        `yaml:"source" env:"SOURCE"` // file or postgres
	Path         string        `yaml:"path" env:"PATH"`
	DSN          string        `yaml:"dsn" env:"DSN"`
	Watch        bool          `yaml:"watch" env:"WATCH"`
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
}

// TemplatesConf locates the notification templates.
type TemplatesConf struct {
	Dir string `yaml:"dir" env:"DIR"`
}

// QueueConf selects the outbound queue backend.
type QueueConf struct {
	Backend string `yaml:"backend" env:"BACKEND"` // memory, kafka or redis
	Brokers string `yaml:"brokers" env:"BROKERS"`
	Topic   string `yaml:"topic" env:"TOPIC"`
	Stream  string `yaml:"stream" env:"STREAM"`
	MaxLen  int64  `yaml:"max_len" env:"MAX_LEN"` // stream cap for redis, ring size for memory
}

// IngestConf configures the optional Kafka consumer feeding the engine.
type IngestConf struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Brokers string `yaml:"brokers" env:"BROKERS"`
	Topic   string `yaml:"topic" env:"TOPIC"`
	GroupID string `yaml:"group_id" env:"GROUP_ID"`
}

// RedisConf is the connection shared by the Redis backed components.
type RedisConf struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

// InventoryConf configures the machine links in notifications.
type InventoryConf struct {
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
}
