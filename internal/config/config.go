// Package config provides configuration management for Harmonium.
// Configuration can be loaded from YAML files and environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Mirror      MirrorConfig      `mapstructure:"mirror"`
	ObjectStore ObjectStoreConfig `mapstructure:"object_store"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	GC          GCConfig          `mapstructure:"gc"`
	Cascade     CascadeConfig     `mapstructure:"cascade"`
	Upload      UploadConfig      `mapstructure:"upload"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`

	// PublicBaseURL is the externally reachable base URL, used when
	// building stream URLs handed to mirrors.
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// DatabaseConfig holds PostgreSQL connection settings for the canonical tier.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// MirrorConfig holds settings for the client-side offline mirror.
type MirrorConfig struct {
	// Path is the SQLite database file for the mirror catalog.
	Path string `mapstructure:"path"`

	// CacheDir is the directory holding downloaded audio binaries.
	CacheDir string `mapstructure:"cache_dir"`

	// JournalMode sets the SQLite journal mode (WAL recommended).
	JournalMode string `mapstructure:"journal_mode"`

	// BusyTimeout sets the SQLite busy timeout in milliseconds.
	BusyTimeout int `mapstructure:"busy_timeout"`

	// CacheSize sets the SQLite page cache size (negative = KB).
	CacheSize int `mapstructure:"cache_size"`

	// SynchronousMode sets the SQLite synchronous mode (NORMAL, FULL, OFF).
	SynchronousMode string `mapstructure:"synchronous_mode"`
}

// ObjectStoreConfig holds audio binary storage settings.
type ObjectStoreConfig struct {
	// Backend selects the blob backend: "s3" or "memory".
	Backend string `mapstructure:"backend"`

	S3 S3Config `mapstructure:"s3"`
}

// S3Config holds S3-compatible object storage settings.
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// RedisConfig holds Redis connection settings for distributed locking.
type RedisConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Enabled     bool          `mapstructure:"enabled"`
}

// Addr returns the Redis address in host:port format.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	// Enabled determines if metrics collection is active.
	Enabled bool `mapstructure:"enabled"`

	// Path is the URL path for the metrics endpoint.
	Path string `mapstructure:"path"`
}

// GCConfig holds orphan file sweep settings.
type GCConfig struct {
	// Enabled determines if the automatic sweep runs.
	Enabled bool `mapstructure:"enabled"`

	// Interval is how often to run the sweep.
	Interval time.Duration `mapstructure:"interval"`

	// GracePeriod is how long an orphan must sit at ref_count zero
	// before its binary and record are purged.
	GracePeriod time.Duration `mapstructure:"grace_period"`

	// BatchSize is the maximum number of files to process per run.
	BatchSize int `mapstructure:"batch_size"`

	// DryRun logs what would be deleted without actually deleting.
	DryRun bool `mapstructure:"dry_run"`
}

// CascadeConfig holds library deletion cascade settings.
type CascadeConfig struct {
	// Mode controls how per-song failures affect the cascade:
	//   "best_effort" - keep going, report failures, still delete the library
	//   "strict"      - stop at the first failure and keep the library row
	Mode string `mapstructure:"mode"`
}

// Strict reports whether the cascade aborts on the first per-song failure.
func (c CascadeConfig) Strict() bool {
	return c.Mode == "strict"
}

// UploadConfig holds upload handling settings.
type UploadConfig struct {
	// MaxFileSize is the largest accepted audio file in bytes.
	MaxFileSize int64 `mapstructure:"max_file_size"`

	// LockTTL bounds how long an upload may hold its per-hash lock.
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

// Load reads configuration from the specified file and environment variables.
// Environment variables take precedence over file values.
// Environment variables are prefixed with HARMONIUM_ and use _ as separator.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Environment variable configuration
	v.SetEnvPrefix("HARMONIUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file configuration
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/harmonium")
	}

	// Read config file (optional - environment variables can be used instead)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is acceptable - use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.max_body_size", 1024*1024*1024) // 1GB
	v.SetDefault("server.public_base_url", "http://localhost:8080")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "harmonium")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "harmonium")
	v.SetDefault("database.ssl_mode", "prefer")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.conn_max_idle_time", 5*time.Minute)

	// Mirror defaults
	v.SetDefault("mirror.path", "./data/mirror.db")
	v.SetDefault("mirror.cache_dir", "./data/cache")
	v.SetDefault("mirror.journal_mode", "WAL")
	v.SetDefault("mirror.busy_timeout", 5000)
	v.SetDefault("mirror.cache_size", -2000)
	v.SetDefault("mirror.synchronous_mode", "NORMAL")

	// Object store defaults
	v.SetDefault("object_store.backend", "s3")
	v.SetDefault("object_store.s3.region", "us-east-1")
	v.SetDefault("object_store.s3.bucket", "harmonium-audio")
	v.SetDefault("object_store.s3.use_path_style", false)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.enabled", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Garbage collection defaults
	v.SetDefault("gc.enabled", true)
	v.SetDefault("gc.interval", 1*time.Hour)
	v.SetDefault("gc.grace_period", 24*time.Hour)
	v.SetDefault("gc.batch_size", 1000)
	v.SetDefault("gc.dry_run", false)

	// Cascade defaults
	v.SetDefault("cascade.mode", "best_effort")

	// Upload defaults
	v.SetDefault("upload.max_file_size", 512*1024*1024) // 512MB
	v.SetDefault("upload.lock_ttl", 2*time.Minute)
}

// Validate checks the configuration for required values and valid ranges.
func (c *Config) Validate() error {
	// Validate server configuration
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	// Validate database configuration
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database.database is required")
	}

	// Validate mirror configuration
	if c.Mirror.Path == "" {
		return fmt.Errorf("mirror.path is required")
	}

	// Validate object store configuration
	validBackends := map[string]bool{"s3": true, "memory": true}
	if !validBackends[c.ObjectStore.Backend] {
		return fmt.Errorf("object_store.backend must be 's3' or 'memory'")
	}
	if c.ObjectStore.Backend == "s3" && c.ObjectStore.S3.Bucket == "" {
		return fmt.Errorf("object_store.s3.bucket is required for s3 backend")
	}

	// Validate cascade configuration
	validModes := map[string]bool{"best_effort": true, "strict": true}
	if !validModes[c.Cascade.Mode] {
		return fmt.Errorf("cascade.mode must be 'best_effort' or 'strict'")
	}

	// Validate logging configuration
	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error, fatal, panic")
	}

	return nil
}

// MustLoad loads configuration or panics on error.
// Useful for main function initialization.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
