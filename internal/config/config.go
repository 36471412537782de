package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/nrjais/emquery/pkg/typeconfig"
)

const (
	SourceMemory   = "memory"
	SourceSQLite   = "sqlite"
	SourcePostgres = "postgres"
	SourceMongo    = "mongo"
)

type Config struct {
	HTTPPort    string            `mapstructure:"http_port" validate:"required"`
	GRPCPort    string            `mapstructure:"grpc_port" validate:"required"`
	LogLevel    string            `mapstructure:"log_level" validate:"required,uppercase,oneof=DEBUG INFO WARN ERROR"`
	Source      SourceConfig      `mapstructure:"source" validate:"required"`
	Query       QueryConfig       `mapstructure:"query" validate:"required"`
	Compression CompressionConfig `mapstructure:"compression"`
}

type SourceConfig struct {
	Kind          string `mapstructure:"kind" validate:"required,oneof=memory sqlite postgres mongo"`
	SQLitePath    string `mapstructure:"sqlite_path" validate:"required_if=Kind sqlite"`
	PostgresURL   string `mapstructure:"postgres_url" validate:"required_if=Kind postgres"`
	MongoURL      string `mapstructure:"mongo_url" validate:"required_if=Kind mongo"`
	MongoDatabase string `mapstructure:"mongo_database" validate:"required_if=Kind mongo"`
}

// QueryConfig carries the type configuration model next to the engine
// settings, so policies can be declared in the config file.
type QueryConfig struct {
	typeconfig.Model `mapstructure:",squash"`
	ParseCacheSize   int `mapstructure:"parse_cache_size" validate:"min=1"`
}

type CompressionConfig struct {
	MinBytes int `mapstructure:"min_bytes" validate:"min=0"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_port", ":8080")
	v.SetDefault("grpc_port", ":50051")
	v.SetDefault("log_level", "INFO")
	v.SetDefault("source.kind", SourceMemory)
	v.SetDefault("source.sqlite_path", "")
	v.SetDefault("source.postgres_url", "")
	v.SetDefault("source.mongo_url", "")
	v.SetDefault("source.mongo_database", "emquery")
	v.SetDefault("query.default_max_page_size", 0)
	v.SetDefault("query.parse_cache_size", 1024)
	v.SetDefault("compression.min_bytes", 1024)
}

// New returns a viper instance with defaults and environment binding set up,
// reading the config file from EMQUERY_CONFIG_PATH or the default paths.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("EMQUERY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	configFile := os.Getenv("EMQUERY_CONFIG_PATH")
	if configFile != "" {
		v.SetConfigFile(configFile)
		slog.Info("Loading configuration from specified file", "path", configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/emquery/")
		slog.Info("Config path not set, using default paths",
			"paths", []string{".", "./config", "/etc/emquery/"},
			"filename", "config.yaml")
	}
	return v
}

// Load reads and validates the process configuration, exiting on failure.
func Load() *Config {
	cfg, err := LoadFrom(New())
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logConfig(cfg)
	return cfg
}

func LoadFrom(v *viper.Viper) (*Config, error) {
	err := v.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		slog.Warn("Config file not found, using defaults and environment variables")
	} else {
		slog.Info("Configuration loaded", "file", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	validator := validator.New()

	if err := validator.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	slog.Info("Configuration validated successfully")
	return nil
}

// Level maps the configured log level to a slog level.
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func logConfig(cfg *Config) {
	slog.Info("Final Configuration",
		"http_port", cfg.HTTPPort,
		"grpc_port", cfg.GRPCPort,
		"log_level", cfg.LogLevel,
		"source_kind", cfg.Source.Kind,
		"sqlite_path", cfg.Source.SQLitePath,
		"mongo_database", cfg.Source.MongoDatabase,
		"default_max_page_size", cfg.Query.DefaultMaxPageSize,
		"parse_cache_size", cfg.Query.ParseCacheSize,
		"base_configurations", len(cfg.Query.BaseConfigurations),
		"type_configurations", len(cfg.Query.TypeConfigurations),
		"compression_min_bytes", cfg.Compression.MinBytes)
}
