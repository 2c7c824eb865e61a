// Package config provides configuration for the docbench fill and benchmark commands.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	dberrors "github.com/AvishaiDotan/mongodb-functions/internal/errors"
)

// StoreType selects the document store backend.
type StoreType string

const (
	StoreMongo  StoreType = "mongo"
	StoreSQLite StoreType = "sqlite"
	StoreMemory StoreType = "memory"
)

// EnvPrefix prefixes every docbench environment variable.
const EnvPrefix = "DOCBENCH_"

// Config holds the configuration shared by all commands.
type Config struct {
	// Store selects and locates the document store
	Store StoreConfig `json:"store" yaml:"store"`

	// Mongo holds the connection settings used when Store.Type is mongo
	Mongo MongoConfig `json:"mongo" yaml:"mongo"`

	// Fill configures the bulk fill driver
	Fill FillConfig `json:"fill" yaml:"fill"`

	// Bench configures the benchmark suite
	Bench BenchConfig `json:"bench" yaml:"bench"`

	// Archive configures where run reports are written
	Archive ArchiveConfig `json:"archive" yaml:"archive"`

	// Logging configures the zerolog output
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// StoreConfig holds backend selection.
type StoreConfig struct {
	// Type is the backend: mongo, sqlite, memory
	Type StoreType `json:"type" yaml:"type"`

	// Path is the database file (for sqlite type)
	Path string `json:"path" yaml:"path"`
}

// MongoConfig holds MongoDB connection settings.
type MongoConfig struct {
	// URI overrides every other field when set
	URI string `json:"uri" yaml:"uri"`

	Host       string `json:"host" yaml:"host"`
	Port       int    `json:"port" yaml:"port"`
	Username   string `json:"username" yaml:"username"`
	Password   string `json:"password" yaml:"password"`
	Database   string `json:"database" yaml:"database"`
	AuthSource string `json:"auth_source" yaml:"auth_source"`

	// ConnectTimeout bounds dialing and server selection
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
}

// FillConfig holds bulk fill settings.
type FillConfig struct {
	// Total is the number of users to generate and persist
	Total int `json:"total" yaml:"total"`

	// BatchSize is the number of users generated per batch
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// ProgressInterval is the number of users between progress reports
	ProgressInterval int `json:"progress_interval" yaml:"progress_interval"`
}

// BenchConfig holds benchmark suite settings.
type BenchConfig struct {
	// Samples is the minimum number of samples per operation
	Samples int `json:"samples" yaml:"samples"`

	// MaxSamples caps samples per operation; 0 means no cap
	MaxSamples int `json:"max_samples" yaml:"max_samples"`

	// MaxTime is the time budget per operation once Samples is reached
	MaxTime time.Duration `json:"max_time" yaml:"max_time"`

	// TargetRME stops sampling once the relative margin of error (percent) drops below it
	TargetRME float64 `json:"target_rme" yaml:"target_rme"`

	// Operations lists the operations to run, by name, in order
	Operations []string `json:"operations" yaml:"operations"`
}

// ArchiveConfig holds results archive settings.
type ArchiveConfig struct {
	// Enabled turns report archiving on
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Type is the archive type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local archive directory (for local type)
	Path string `json:"path" yaml:"path"`

	// Prefix is prepended to every archive key
	Prefix string `json:"prefix" yaml:"prefix"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 archive configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	// Level is a zerolog level name
	Level string `json:"level" yaml:"level"`

	// Format is console or json
	Format string `json:"format" yaml:"format"`
}

// DefaultOperations are the benchmark operations run when none are configured.
var DefaultOperations = []string{
	"Find tables with name containing 'ie' with index",
	"Find tables with name containing 'ie' without index",
}

// DefaultConfig returns the default configuration for a local MongoDB.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Type: StoreMongo,
			Path: "./data/docbench.db",
		},
		Mongo: MongoConfig{
			Host:           "localhost",
			Port:           27017,
			Database:       "docbench",
			AuthSource:     "admin",
			ConnectTimeout: 10 * time.Second,
		},
		Fill: FillConfig{
			Total:            1_000_000,
			BatchSize:        1000,
			ProgressInterval: 1_000_000,
		},
		Bench: BenchConfig{
			Samples:    100,
			MaxTime:    5 * time.Second,
			TargetRME:  1,
			Operations: append([]string(nil), DefaultOperations...),
		},
		Archive: ArchiveConfig{
			Enabled: false,
			Type:    "local",
			Path:    "./data/reports",
			Prefix:  "docbench",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// MongoURI returns Mongo.URI when set. Otherwise it builds a URI from the
// individual fields, with credentials only when a username is configured.
func (c *Config) MongoURI() string {
	if c.Mongo.URI != "" {
		return c.Mongo.URI
	}
	u := url.URL{
		Scheme: "mongodb",
		Host:   c.Mongo.Host + ":" + strconv.Itoa(c.Mongo.Port),
		Path:   "/" + c.Mongo.Database,
	}
	if c.Mongo.Username != "" {
		u.User = url.UserPassword(c.Mongo.Username, c.Mongo.Password)
	}
	if c.Mongo.AuthSource != "" {
		u.RawQuery = url.Values{"authSource": {c.Mongo.AuthSource}}.Encode()
	}
	return u.String()
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Store.Type {
	case StoreMongo:
		if c.Mongo.URI == "" && (c.Mongo.Host == "" || c.Mongo.Port <= 0) {
			return dberrors.NewConfigError("mongo.host and mongo.port are required when mongo.uri is empty")
		}
	case StoreSQLite:
		if c.Store.Path == "" {
			return dberrors.NewConfigError("store.path is required when store type is sqlite")
		}
	case StoreMemory:
	default:
		return dberrors.NewConfigError(fmt.Sprintf("invalid store type: %s (must be mongo, sqlite, or memory)", c.Store.Type))
	}

	if c.Mongo.Database == "" {
		return dberrors.NewConfigError("mongo.database is required")
	}

	if c.Fill.Total <= 0 {
		return dberrors.NewConfigError(fmt.Sprintf("fill.total must be positive, got %d", c.Fill.Total))
	}
	if c.Fill.BatchSize <= 0 {
		return dberrors.NewConfigError(fmt.Sprintf("fill.batch_size must be positive, got %d", c.Fill.BatchSize))
	}

	if c.Bench.Samples < 1 {
		return dberrors.NewConfigError(fmt.Sprintf("bench.samples must be at least 1, got %d", c.Bench.Samples))
	}
	if c.Bench.MaxSamples < 0 {
		return dberrors.NewConfigError(fmt.Sprintf("bench.max_samples must not be negative, got %d", c.Bench.MaxSamples))
	}
	if c.Bench.TargetRME < 0 {
		return dberrors.NewConfigError("bench.target_rme must not be negative")
	}

	if c.Archive.Enabled {
		if c.Archive.Type != "local" && c.Archive.Type != "s3" {
			return dberrors.NewConfigError(fmt.Sprintf("invalid archive type: %s (must be local or s3)", c.Archive.Type))
		}
		if c.Archive.Type == "local" && c.Archive.Path == "" {
			return dberrors.NewConfigError("archive.path is required when archive type is local")
		}
		if c.Archive.Type == "s3" && c.Archive.S3.Bucket == "" {
			return dberrors.NewConfigError("archive.s3.bucket is required when archive type is s3")
		}
	}

	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return dberrors.NewConfigError(fmt.Sprintf("invalid logging format: %s (must be console or json)", c.Logging.Format))
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadDotEnv loads the given .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// LoadFromEnv applies environment overrides. The MONGO_INITDB_* variables of
// the official Mongo image supply credentials and database; DOCBENCH_ variables
// take precedence over them.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("MONGO_INITDB_ROOT_USERNAME"); v != "" {
		cfg.Mongo.Username = v
	}
	if v := os.Getenv("MONGO_INITDB_ROOT_PASSWORD"); v != "" {
		cfg.Mongo.Password = v
	}
	if v := os.Getenv("MONGO_INITDB_DATABASE"); v != "" {
		cfg.Mongo.Database = v
	}

	// Store configuration
	if v := os.Getenv(EnvPrefix + "STORE_TYPE"); v != "" {
		cfg.Store.Type = StoreType(v)
	}
	if v := os.Getenv(EnvPrefix + "STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}

	// Mongo configuration
	if v := os.Getenv(EnvPrefix + "MONGO_URI"); v != "" {
		cfg.Mongo.URI = v
	}
	if v := os.Getenv(EnvPrefix + "MONGO_HOST"); v != "" {
		cfg.Mongo.Host = v
	}
	if v := os.Getenv(EnvPrefix + "MONGO_PORT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Mongo.Port)
	}
	if v := os.Getenv(EnvPrefix + "MONGO_DATABASE"); v != "" {
		cfg.Mongo.Database = v
	}
	if v := os.Getenv(EnvPrefix + "MONGO_CONNECT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Mongo.ConnectTimeout = d
		}
	}

	// Fill configuration
	if v := os.Getenv(EnvPrefix + "FILL_TOTAL"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Fill.Total)
	}
	if v := os.Getenv(EnvPrefix + "FILL_BATCH_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Fill.BatchSize)
	}
	if v := os.Getenv(EnvPrefix + "FILL_PROGRESS_INTERVAL"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Fill.ProgressInterval)
	}

	// Bench configuration
	if v := os.Getenv(EnvPrefix + "BENCH_SAMPLES"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Bench.Samples)
	}
	if v := os.Getenv(EnvPrefix + "BENCH_MAX_TIME"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Bench.MaxTime = d
		}
	}
	if v := os.Getenv(EnvPrefix + "BENCH_TARGET_RME"); v != "" {
		fmt.Sscanf(v, "%g", &cfg.Bench.TargetRME)
	}

	// Archive configuration
	if v := os.Getenv(EnvPrefix + "ARCHIVE_ENABLED"); v != "" {
		cfg.Archive.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv(EnvPrefix + "ARCHIVE_TYPE"); v != "" {
		cfg.Archive.Type = v
	}
	if v := os.Getenv(EnvPrefix + "ARCHIVE_PATH"); v != "" {
		cfg.Archive.Path = v
	}
	if v := os.Getenv(EnvPrefix + "S3_BUCKET"); v != "" {
		cfg.Archive.S3.Bucket = v
	}
	if v := os.Getenv(EnvPrefix + "S3_REGION"); v != "" {
		cfg.Archive.S3.Region = v
	}
	if v := os.Getenv(EnvPrefix + "S3_ENDPOINT"); v != "" {
		cfg.Archive.S3.Endpoint = v
	}

	// Logging configuration
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// Load builds the configuration: defaults or path, then .env files, then the
// environment, then overrides in order. The result is validated.
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}
	LoadFromEnv(cfg)
	for _, o := range overrides {
		o(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EnsureDirectories creates the local directories the configuration points at.
func (c *Config) EnsureDirectories() error {
	var dirs []string
	if c.Store.Type == StoreSQLite {
		dirs = append(dirs, filepath.Dir(c.Store.Path))
	}
	if c.Archive.Enabled && c.Archive.Type == "local" {
		dirs = append(dirs, c.Archive.Path)
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
