package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	QueueMemory = "memory"
	QueueRedis  = "redis"

	// EngineSimulated ticks tasks forward on a timer with synthetic leads.
	EngineSimulated = "simulated"
	// EngineBrowser runs the pipeline with headless Chrome extraction and
	// HTTP enrichment.
	EngineBrowser = "browser"
	// EnginePipelineSimulated runs the pipeline with synthetic engines.
	EnginePipelineSimulated = "pipeline-simulated"
)

// Config holds the application configuration.
type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`

	StoreDriver      string `mapstructure:"STORE_DRIVER"`
	PostgresHost     string `mapstructure:"POSTGRES_HOST"`
	PostgresPort     string `mapstructure:"POSTGRES_PORT"`
	PostgresUser     string `mapstructure:"POSTGRES_USER"`
	PostgresPassword string `mapstructure:"POSTGRES_PASSWORD"`
	PostgresDB       string `mapstructure:"POSTGRES_DB"`

	QueueDriver      string        `mapstructure:"QUEUE_DRIVER"`
	RedisAddr        string        `mapstructure:"REDIS_ADDR"`
	RedisPassword    string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB          int           `mapstructure:"REDIS_DB"`
	SnapshotCacheTTL time.Duration `mapstructure:"SNAPSHOT_CACHE_TTL"`

	EngineMode      string        `mapstructure:"ENGINE_MODE"`
	Workers         int           `mapstructure:"WORKERS"`
	IdleWait        time.Duration `mapstructure:"IDLE_WAIT"`
	PageLoadTimeout time.Duration `mapstructure:"PAGE_LOAD_TIMEOUT"`
	UserAgent       string        `mapstructure:"USER_AGENT"`

	SimulationTick time.Duration `mapstructure:"SIMULATION_TICK"`
	SimulationStep int           `mapstructure:"SIMULATION_STEP"`

	EnrichConcurrency int           `mapstructure:"ENRICH_CONCURRENCY"`
	EnrichRPS         float64       `mapstructure:"ENRICH_RPS"`
	EnrichBurst       int           `mapstructure:"ENRICH_BURST"`
	EnrichTimeout     time.Duration `mapstructure:"ENRICH_TIMEOUT"`

	ExportDir     string `mapstructure:"EXPORT_DIR"`
	ExportBaseURL string `mapstructure:"EXPORT_BASE_URL"`
}

// Load reads configuration from an optional .env file and the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// A missing .env is fine; production configures through the environment.
	_ = v.ReadInConfig()

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("STORE_DRIVER", StoreMemory)
	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", "5432")
	v.SetDefault("POSTGRES_USER", "user")
	v.SetDefault("POSTGRES_PASSWORD", "password")
	v.SetDefault("POSTGRES_DB", "leadflow")

	v.SetDefault("QUEUE_DRIVER", QueueMemory)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("SNAPSHOT_CACHE_TTL", 24*time.Hour)

	v.SetDefault("ENGINE_MODE", EngineSimulated)
	v.SetDefault("WORKERS", 4)
	v.SetDefault("IDLE_WAIT", time.Second)
	v.SetDefault("PAGE_LOAD_TIMEOUT", 60*time.Second)
	v.SetDefault("USER_AGENT", "LeadFlowBot/1.0")

	v.SetDefault("SIMULATION_TICK", 3*time.Second)
	v.SetDefault("SIMULATION_STEP", 5)

	v.SetDefault("ENRICH_CONCURRENCY", 8)
	v.SetDefault("ENRICH_RPS", 5.0)
	v.SetDefault("ENRICH_BURST", 5)
	v.SetDefault("ENRICH_TIMEOUT", 10*time.Second)

	v.SetDefault("EXPORT_DIR", "results")
	v.SetDefault("EXPORT_BASE_URL", "/download")
}

// Validate rejects unknown drivers and non-positive sizes.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.QueueDriver {
	case QueueMemory, QueueRedis:
	default:
		return fmt.Errorf("unsupported QUEUE_DRIVER %q", c.QueueDriver)
	}
	switch c.EngineMode {
	case EngineSimulated, EngineBrowser, EnginePipelineSimulated:
	default:
		return fmt.Errorf("unsupported ENGINE_MODE %q", c.EngineMode)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("WORKERS must be positive, got %d", c.Workers)
	}
	if c.SimulationTick <= 0 {
		return fmt.Errorf("SIMULATION_TICK must be positive, got %s", c.SimulationTick)
	}
	if c.EnrichConcurrency <= 0 {
		return fmt.Errorf("ENRICH_CONCURRENCY must be positive, got %d", c.EnrichConcurrency)
	}
	return nil
}

// PostgresURL builds the connection string for pgxpool.
func (c *Config) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.PostgresUser, c.PostgresPassword, c.PostgresHost, c.PostgresPort, c.PostgresDB)
}

// UsesRedis reports whether any component needs a Redis client.
func (c *Config) UsesRedis() bool {
	return c.QueueDriver == QueueRedis
}
