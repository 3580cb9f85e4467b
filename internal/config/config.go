package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Kocoro-lab/repo-research/internal/capabilities"
	"github.com/Kocoro-lab/repo-research/internal/constants"
	"github.com/Kocoro-lab/repo-research/internal/db"
	"github.com/Kocoro-lab/repo-research/internal/delivery"
	"github.com/Kocoro-lab/repo-research/internal/tracing"
)

// DefaultPath is used when CONFIG_PATH is unset
const DefaultPath = "/app/config/research.yaml"

// EnvPrefix scopes environment overrides, e.g. RESEARCH_DATABASE_HOST
const EnvPrefix = "RESEARCH"

type Config struct {
	Service   ServiceConfig                 `mapstructure:"service"`
	Logging   LoggingConfig                 `mapstructure:"logging"`
	Database  db.Config                     `mapstructure:"database"`
	Redis     RedisConfig                   `mapstructure:"redis"`
	Temporal  TemporalConfig                `mapstructure:"temporal"`
	Engine    EngineConfig                  `mapstructure:"engine"`
	Tracker   delivery.TrackerConfig        `mapstructure:"tracker"`
	Providers []capabilities.ProviderConfig `mapstructure:"providers"`
	Tracing   tracing.Config                `mapstructure:"tracing"`
}

type ServiceConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	HealthPort      int           `mapstructure:"health_port"`
	MetricsPort     int           `mapstructure:"metrics_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type RedisConfig struct {
	Addr          string        `mapstructure:"addr"`
	Password      string        `mapstructure:"password"`
	DB            int           `mapstructure:"db"`
	TranscriptTTL time.Duration `mapstructure:"transcript_ttl"` // 0 keeps transcripts forever
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// EngineConfig holds the workflow tunables. They are hot-reloadable and
// captured into each run when it is scheduled.
type EngineConfig struct {
	ReadinessAttempts int           `mapstructure:"readiness_attempts"`
	ReadinessInterval time.Duration `mapstructure:"readiness_interval"`
	CompletionTimeout time.Duration `mapstructure:"completion_timeout"`
	ExploreTimeout    time.Duration `mapstructure:"explore_timeout"`
	TrackerTimeout    time.Duration `mapstructure:"tracker_timeout"`
	MinResultLength   int           `mapstructure:"min_result_length"`
	MaxConcurrency    int           `mapstructure:"max_concurrency"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.http_port", 8080)
	v.SetDefault("service.health_port", 8081)
	v.SetDefault("service.metrics_port", 2112)
	v.SetDefault("service.shutdown_timeout", 15*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	v.SetDefault("database.driver", db.DriverPostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "research")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "research")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "research.db")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.idle_connections", 5)
	v.SetDefault("database.max_lifetime", 5*time.Minute)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.transcript_ttl", time.Duration(0))

	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", constants.DefaultTaskQueue)

	v.SetDefault("engine.readiness_attempts", 30)
	v.SetDefault("engine.readiness_interval", time.Second)
	v.SetDefault("engine.completion_timeout", 2*time.Minute)
	v.SetDefault("engine.explore_timeout", 2*time.Minute)
	v.SetDefault("engine.tracker_timeout", 2*time.Minute)
	v.SetDefault("engine.min_result_length", 50)
	v.SetDefault("engine.max_concurrency", 6)

	tracker := delivery.DefaultTrackerConfig()
	v.SetDefault("tracker.provider", tracker.Provider)
	v.SetDefault("tracker.max_attempts", tracker.MaxAttempts)
	v.SetDefault("tracker.interval", tracker.Interval)
	v.SetDefault("tracker.task_arg", tracker.TaskArg)
	v.SetDefault("tracker.body_arg", tracker.BodyArg)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "repo-research")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")
}

// Path returns CONFIG_PATH or DefaultPath
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// read loads the file (a missing file leaves defaults and env in effect)
// and decodes it into a validated Config.
func read(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	expandSecrets(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// expandSecrets resolves ${VAR} references in provider credentials so
// tokens stay out of the file.
func expandSecrets(cfg *Config) {
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		p.BearerToken = os.ExpandEnv(p.BearerToken)
		for k, val := range p.Headers {
			p.Headers[k] = os.ExpandEnv(val)
		}
		// viper lowercases map keys; environment names are conventionally upper case
		env := make(map[string]string, len(p.Env))
		for k, val := range p.Env {
			env[strings.ToUpper(k)] = os.ExpandEnv(val)
		}
		p.Env = env
	}
}

// Validate rejects configurations the service cannot run with
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case db.DriverPostgres, db.DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("database.driver must be %q or %q, got %q", db.DriverPostgres, db.DriverSQLite, c.Database.Driver))
	}
	if err := c.Engine.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Tracker.MaxAttempts < 0 || c.Tracker.Interval < 0 {
		errs = append(errs, errors.New("tracker.max_attempts and tracker.interval must not be negative"))
	}

	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		switch {
		case p.ID == "":
			errs = append(errs, fmt.Errorf("providers[%d]: id is required", i))
			continue
		case seen[p.ID]:
			errs = append(errs, fmt.Errorf("providers[%d]: duplicate id %q", i, p.ID))
		}
		seen[p.ID] = true

		switch strings.ToLower(p.Transport) {
		case capabilities.TransportStdio:
			if p.Command == "" {
				errs = append(errs, fmt.Errorf("provider %s: command is required for stdio transport", p.ID))
			}
		case capabilities.TransportHTTP, capabilities.TransportStreamableHTTP:
			if p.URL == "" {
				errs = append(errs, fmt.Errorf("provider %s: url is required for http transport", p.ID))
			}
		default:
			errs = append(errs, fmt.Errorf("provider %s: unknown transport %q", p.ID, p.Transport))
		}
		if p.RatePerSecond < 0 {
			errs = append(errs, fmt.Errorf("provider %s: rate_per_second must not be negative", p.ID))
		}
	}
	return errors.Join(errs...)
}

func (e EngineConfig) Validate() error {
	if e.ReadinessAttempts < 0 || e.MinResultLength < 0 || e.MaxConcurrency < 0 {
		return errors.New("engine counts must not be negative")
	}
	if e.ReadinessInterval < 0 || e.CompletionTimeout < 0 || e.ExploreTimeout < 0 || e.TrackerTimeout < 0 {
		return errors.New("engine durations must not be negative")
	}
	return nil
}
