package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Provider   ProviderConfig   `mapstructure:"provider"`
	KeyPool    KeyPoolConfig    `mapstructure:"keypool"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Generation GenerationConfig `mapstructure:"generation"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
	// MetricsPort is where the worker serves /metrics and /health.
	MetricsPort int        `mapstructure:"metrics_port"`
	CORS        CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

// DatabaseConfig selects the record store. Driver is "postgres" or "sqlite".
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	Path            string        `mapstructure:"path"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	LogLevel        string        `mapstructure:"log_level"`
}

// DSN returns the driver-specific connection string.
// For postgres an explicit URL wins over the discrete fields.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		if c.URL != "" {
			return c.URL
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	}
	return c.Path
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// ProviderConfig points at an OpenAI-compatible chat completions API.
type ProviderConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Model      string        `mapstructure:"model"`
	ProbeModel string        `mapstructure:"probe_model"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type KeyPoolConfig struct {
	// CalibrateCron is a robfig/cron spec for the periodic re-probe. Empty disables it.
	CalibrateCron string `mapstructure:"calibrate_cron"`
	// DefaultWait is how far out the next available time lands when no credential is active.
	DefaultWait time.Duration `mapstructure:"default_wait"`
	// MinDelay bounds how soon an exhausted job is retried.
	MinDelay time.Duration `mapstructure:"min_delay"`
}

type QueueConfig struct {
	Concurrency     int           `mapstructure:"concurrency"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	Lease           time.Duration `mapstructure:"lease"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	Backoff         time.Duration `mapstructure:"backoff"`
	KeepFailed      int           `mapstructure:"keep_failed"`
	KeepCompleted   int           `mapstructure:"keep_completed"`
	PromoteInterval time.Duration `mapstructure:"promote_interval"`
}

type GenerationConfig struct {
	TokensPerBlog int `mapstructure:"tokens_per_blog"`
	RecentTitles  int `mapstructure:"recent_titles"`
	// MaxSlotsPerBand caps how many placements one backlink row may request per DR band.
	MaxSlotsPerBand int `mapstructure:"max_slots_per_band"`
}

type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Type      string `mapstructure:"type"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Prefix    string `mapstructure:"prefix"`
}

// Load reads configuration from configPath (or ./configs/config.yaml), a .env
// file and the environment, in increasing order of precedence.
func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	_ = v.BindEnv("database.url", "DATABASE_DSN")
	_ = v.BindEnv("database.password", "DATABASE_PASSWORD")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("provider.base_url", "OPENAI_BASE_URL")
	_ = v.BindEnv("archive.access_key", "S3_ACCESS_KEY")
	_ = v.BindEnv("archive.secret_key", "S3_SECRET_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/linkweaver.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "linkweaver")

	v.SetDefault("provider.base_url", "https://api.openai.com/v1")
	v.SetDefault("provider.model", "gpt-4o-mini")
	v.SetDefault("provider.probe_model", "gpt-4o-mini")
	v.SetDefault("provider.timeout", 120*time.Second)

	v.SetDefault("keypool.calibrate_cron", "@every 30m")
	v.SetDefault("keypool.default_wait", time.Hour)
	v.SetDefault("keypool.min_delay", 30*time.Second)

	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.poll_interval", time.Second)
	v.SetDefault("queue.lease", 5*time.Minute)
	v.SetDefault("queue.max_attempts", 1)
	v.SetDefault("queue.backoff", 30*time.Second)
	v.SetDefault("queue.keep_failed", 3)
	v.SetDefault("queue.keep_completed", 100)
	v.SetDefault("queue.promote_interval", 5*time.Second)

	v.SetDefault("generation.tokens_per_blog", 2000)
	v.SetDefault("generation.recent_titles", 5)
	v.SetDefault("generation.max_slots_per_band", 100)

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.type", "s3")
	v.SetDefault("archive.region", "us-east-1")
	v.SetDefault("archive.bucket", "linkweaver-blogs")
	v.SetDefault("archive.use_ssl", true)
}

// Validate rejects configurations the services cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver))
	}
	if c.Database.DSN() == "" {
		errs = append(errs, errors.New("database connection is not configured"))
	}
	if c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required"))
	}
	if c.Provider.BaseURL == "" {
		errs = append(errs, errors.New("provider.base_url is required"))
	}
	if c.Queue.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("queue.concurrency must be >= 1, got %d", c.Queue.Concurrency))
	}
	if c.Queue.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("queue.max_attempts must be >= 1, got %d", c.Queue.MaxAttempts))
	}
	if c.Queue.Lease <= 0 || c.Queue.PollInterval <= 0 {
		errs = append(errs, errors.New("queue.lease and queue.poll_interval must be positive"))
	}
	if c.Generation.TokensPerBlog < 1 {
		errs = append(errs, fmt.Errorf("generation.tokens_per_blog must be >= 1, got %d", c.Generation.TokensPerBlog))
	}
	if c.Generation.MaxSlotsPerBand < 1 {
		errs = append(errs, fmt.Errorf("generation.max_slots_per_band must be >= 1, got %d", c.Generation.MaxSlotsPerBand))
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		errs = append(errs, errors.New("archive.bucket is required when archive is enabled"))
	}
	return errors.Join(errs...)
}
