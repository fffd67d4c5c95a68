package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Rule-set sources.
const (
	SourceEmbedded = "embedded"
	SourceDir      = "dir"
	SourcePostgres = "postgres"
	SourceS3       = "s3"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig
	DB      DBConfig
	S3      S3Config
	Log     LogConfig
	CORS    CORSConfig
	Engine  EngineConfig
	RuleSet RuleSetConfig
}

// CORSConfig holds CORS settings. An empty list or "*" allows any origin.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port          string        `mapstructure:"port"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	Environment   string        `mapstructure:"environment"`
	MaxUploadMB   int64         `mapstructure:"max_upload_mb"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

// MaxUploadBytes returns the upload limit in bytes.
func (s *ServerConfig) MaxUploadBytes() int64 {
	return s.MaxUploadMB * 1024 * 1024
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxOpen  int    `mapstructure:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

// DSN returns the PostgreSQL connection string.
func (d *DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// S3Config holds AWS S3 settings.
type S3Config struct {
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EngineConfig holds validation limits.
type EngineConfig struct {
	MaxDocumentBytes int64         `mapstructure:"max_document_bytes"`
	MaxDepth         int           `mapstructure:"max_depth"`
	Timeout          time.Duration `mapstructure:"timeout"`
	RuleParallelism  int           `mapstructure:"rule_parallelism"`
	ParallelChecks   bool          `mapstructure:"parallel_checks"`
}

// RuleSetConfig selects where rule sets come from.
type RuleSetConfig struct {
	Source    string        `mapstructure:"source"`
	Dir       string        `mapstructure:"dir"`
	Active    string        `mapstructure:"active"`
	CacheSize int           `mapstructure:"cache_size"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	// Watch reloads a dir source when its files change.
	Watch bool `mapstructure:"watch"`
	// RefreshSchedule is a cron spec (e.g. "@every 5m") for reloading the
	// active rule set. Empty disables it.
	RefreshSchedule string `mapstructure:"refresh_schedule"`
}

// Load reads configuration from environment variables with the INVOICECHECK_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INVOICECHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.max_upload_mb", 10)
	v.SetDefault("server.shutdown_grace", "10s")

	// DB defaults
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "invoicecheck")
	v.SetDefault("db.password", "invoicecheck_secret")
	v.SetDefault("db.name", "invoicecheck_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open", 10)
	v.SetDefault("db.max_idle", 5)

	// S3 defaults
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "invoicecheck-rulesets")
	v.SetDefault("s3.prefix", "rulesets")
	v.SetDefault("s3.endpoint", "")

	// Log defaults
	v.SetDefault("log.level", "debug")
	v.SetDefault("log.format", "console")

	// CORS defaults (any host)
	v.SetDefault("cors.allowed_origins", "*")

	// Engine defaults
	v.SetDefault("engine.max_document_bytes", 10*1024*1024)
	v.SetDefault("engine.max_depth", 64)
	v.SetDefault("engine.timeout", "10s")
	v.SetDefault("engine.rule_parallelism", 8)
	v.SetDefault("engine.parallel_checks", true)

	// Rule-set defaults
	v.SetDefault("ruleset.source", SourceEmbedded)
	v.SetDefault("ruleset.dir", "rulesets")
	v.SetDefault("ruleset.active", "")
	v.SetDefault("ruleset.cache_size", 16)
	v.SetDefault("ruleset.cache_ttl", "0s")
	v.SetDefault("ruleset.watch", false)
	v.SetDefault("ruleset.refresh_schedule", "")

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"server.port":               "INVOICECHECK_SERVER_PORT",
		"server.read_timeout":       "INVOICECHECK_SERVER_READ_TIMEOUT",
		"server.write_timeout":      "INVOICECHECK_SERVER_WRITE_TIMEOUT",
		"server.environment":        "INVOICECHECK_SERVER_ENVIRONMENT",
		"server.max_upload_mb":      "INVOICECHECK_SERVER_MAX_UPLOAD_MB",
		"server.shutdown_grace":     "INVOICECHECK_SERVER_SHUTDOWN_GRACE",
		"db.host":                   "INVOICECHECK_DB_HOST",
		"db.port":                   "INVOICECHECK_DB_PORT",
		"db.user":                   "INVOICECHECK_DB_USER",
		"db.password":               "INVOICECHECK_DB_PASSWORD",
		"db.name":                   "INVOICECHECK_DB_NAME",
		"db.sslmode":                "INVOICECHECK_DB_SSLMODE",
		"db.max_open":               "INVOICECHECK_DB_MAX_OPEN",
		"db.max_idle":               "INVOICECHECK_DB_MAX_IDLE",
		"s3.region":                 "INVOICECHECK_S3_REGION",
		"s3.bucket":                 "INVOICECHECK_S3_BUCKET",
		"s3.prefix":                 "INVOICECHECK_S3_PREFIX",
		"s3.endpoint":               "INVOICECHECK_S3_ENDPOINT",
		"s3.access_key":             "INVOICECHECK_S3_ACCESS_KEY",
		"s3.secret_key":             "INVOICECHECK_S3_SECRET_KEY",
		"log.level":                 "INVOICECHECK_LOG_LEVEL",
		"log.format":                "INVOICECHECK_LOG_FORMAT",
		"cors.allowed_origins":      "INVOICECHECK_CORS_ALLOWED_ORIGINS",
		"engine.max_document_bytes": "INVOICECHECK_ENGINE_MAX_DOCUMENT_BYTES",
		"engine.max_depth":          "INVOICECHECK_ENGINE_MAX_DEPTH",
		"engine.timeout":            "INVOICECHECK_ENGINE_TIMEOUT",
		"engine.rule_parallelism":   "INVOICECHECK_ENGINE_RULE_PARALLELISM",
		"engine.parallel_checks":    "INVOICECHECK_ENGINE_PARALLEL_CHECKS",
		"ruleset.source":            "INVOICECHECK_RULESET_SOURCE",
		"ruleset.dir":               "INVOICECHECK_RULESET_DIR",
		"ruleset.active":            "INVOICECHECK_RULESET_ACTIVE",
		"ruleset.cache_size":        "INVOICECHECK_RULESET_CACHE_SIZE",
		"ruleset.cache_ttl":         "INVOICECHECK_RULESET_CACHE_TTL",
		"ruleset.watch":             "INVOICECHECK_RULESET_WATCH",
		"ruleset.refresh_schedule":  "INVOICECHECK_RULESET_REFRESH_SCHEDULE",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}

	// Railway/Heroku/Render set a PORT env var. Use it if INVOICECHECK_SERVER_PORT is not explicitly set.
	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("INVOICECHECK_SERVER_PORT") == "" {
		serverPort = ":" + port
	}

	cfg.Server = ServerConfig{
		Port:          serverPort,
		ReadTimeout:   v.GetDuration("server.read_timeout"),
		WriteTimeout:  v.GetDuration("server.write_timeout"),
		Environment:   v.GetString("server.environment"),
		MaxUploadMB:   v.GetInt64("server.max_upload_mb"),
		ShutdownGrace: v.GetDuration("server.shutdown_grace"),
	}
	cfg.DB = DBConfig{
		Host:     v.GetString("db.host"),
		Port:     v.GetInt("db.port"),
		User:     v.GetString("db.user"),
		Password: v.GetString("db.password"),
		Name:     v.GetString("db.name"),
		SSLMode:  v.GetString("db.sslmode"),
		MaxOpen:  v.GetInt("db.max_open"),
		MaxIdle:  v.GetInt("db.max_idle"),
	}
	cfg.S3 = S3Config{
		Region:    v.GetString("s3.region"),
		Bucket:    v.GetString("s3.bucket"),
		Prefix:    v.GetString("s3.prefix"),
		Endpoint:  v.GetString("s3.endpoint"),
		AccessKey: v.GetString("s3.access_key"),
		SecretKey: v.GetString("s3.secret_key"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}
	// Parse CORS allowed origins from comma-separated string
	var corsOrigins []string
	for _, o := range strings.Split(v.GetString("cors.allowed_origins"), ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			corsOrigins = append(corsOrigins, o)
		}
	}
	cfg.CORS = CORSConfig{
		AllowedOrigins: corsOrigins,
	}
	cfg.Engine = EngineConfig{
		MaxDocumentBytes: v.GetInt64("engine.max_document_bytes"),
		MaxDepth:         v.GetInt("engine.max_depth"),
		Timeout:          v.GetDuration("engine.timeout"),
		RuleParallelism:  v.GetInt("engine.rule_parallelism"),
		ParallelChecks:   v.GetBool("engine.parallel_checks"),
	}
	cfg.RuleSet = RuleSetConfig{
		Source:    strings.ToLower(v.GetString("ruleset.source")),
		Dir:       v.GetString("ruleset.dir"),
		Active:    v.GetString("ruleset.active"),
		CacheSize: v.GetInt("ruleset.cache_size"),
		CacheTTL:  v.GetDuration("ruleset.cache_ttl"),

		Watch:           v.GetBool("ruleset.watch"),
		RefreshSchedule: v.GetString("ruleset.refresh_schedule"),
	}

	switch cfg.RuleSet.Source {
	case SourceEmbedded, SourceDir, SourcePostgres, SourceS3:
	default:
		return nil, fmt.Errorf("config: unknown rule-set source %q", cfg.RuleSet.Source)
	}

	return cfg, nil
}
