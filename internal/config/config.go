// Package config loads indexsync configuration from defaults, a YAML file
// and INDEXSYNC_* environment variables, in increasing precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	serrors "github.com/Aman-CERP/indexsync/internal/errors"
)

// DefaultFileName is looked up in the working directory when no explicit
// config path is given.
const DefaultFileName = "indexsync.yaml"

// Config represents the complete indexsync configuration.
type Config struct {
	Queue   QueueConfig   `yaml:"queue" json:"queue"`
	Indexer IndexerConfig `yaml:"indexer" json:"indexer"`
	Sync    SyncConfig    `yaml:"sync" json:"sync"`
	Store   StoreConfig   `yaml:"store" json:"store"`
	Search  SearchConfig  `yaml:"search" json:"search"`
	Source  SourceConfig  `yaml:"source" json:"source"`
	Daemon  DaemonConfig  `yaml:"daemon" json:"daemon"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// QueueConfig configures the work queue and its consumer loop.
type QueueConfig struct {
	// Name is the logical queue name; the four list keys derive from it.
	Name           string        `yaml:"name" json:"name"`
	DequeueTimeout time.Duration `yaml:"dequeue_timeout" json:"dequeue_timeout"`
	// ErrorBackoff is the pause after an infrastructure error in the consume loop.
	ErrorBackoff time.Duration `yaml:"error_backoff" json:"error_backoff"`
}

// IndexerConfig configures batch accumulation.
type IndexerConfig struct {
	BatchSize    int           `yaml:"batch_size" json:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout" json:"batch_timeout"`
}

// SyncConfig configures reindexing and the periodic incremental sync.
// It is the runtime-mutable part of the configuration.
type SyncConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// BatchSize is the page size used when scanning the source for a full reindex.
	BatchSize  int           `yaml:"batch_size" json:"batch_size"`
	Interval   time.Duration `yaml:"interval" json:"interval"`
	MaxRetries int           `yaml:"max_retries" json:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
}

// StoreConfig selects the durable list store backing the queue.
type StoreConfig struct {
	Backend string `yaml:"backend" json:"backend"` // sqlite | memory
	Path    string `yaml:"path" json:"path"`
}

// SearchConfig selects and tunes the search engine gateway.
type SearchConfig struct {
	Backend string `yaml:"backend" json:"backend"` // bleve | memory
	Path    string `yaml:"path" json:"path"`
	// CacheSize is the number of query results kept in the LRU cache (0 disables).
	CacheSize       int           `yaml:"cache_size" json:"cache_size"`
	BreakerFailures int           `yaml:"breaker_failures" json:"breaker_failures"`
	BreakerReset    time.Duration `yaml:"breaker_reset" json:"breaker_reset"`
}

// SourceConfig configures the change source.
type SourceConfig struct {
	// Database is the SQLite system-of-record scanned for full reindexes.
	// Empty disables the scanner.
	Database string `yaml:"database" json:"database"`
	// Tables maps entity names to source table names.
	Tables map[string]string `yaml:"tables" json:"tables"`
	// NATSURL enables the change feed subscriber when set.
	NATSURL string `yaml:"nats_url" json:"nats_url"`
	Subject string `yaml:"subject" json:"subject"`
}

// DaemonConfig configures the control socket.
type DaemonConfig struct {
	SocketPath string        `yaml:"socket_path" json:"socket_path"`
	PIDPath    string        `yaml:"pid_path" json:"pid_path"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	dataDir := DataDir()
	return &Config{
		Queue: QueueConfig{
			Name:           "search-sync",
			DequeueTimeout: time.Second,
			ErrorBackoff:   5 * time.Second,
		},
		Indexer: IndexerConfig{
			BatchSize:    50,
			BatchTimeout: 500 * time.Millisecond,
		},
		Sync: SyncConfig{
			Enabled:    true,
			BatchSize:  100,
			Interval:   5 * time.Minute,
			MaxRetries: 3,
			RetryDelay: 5 * time.Second,
		},
		Store: StoreConfig{
			Backend: "sqlite",
			Path:    filepath.Join(dataDir, "queue.db"),
		},
		Search: SearchConfig{
			Backend:         "bleve",
			Path:            filepath.Join(dataDir, "index.bleve"),
			CacheSize:       256,
			BreakerFailures: 5,
			BreakerReset:    30 * time.Second,
		},
		Source: SourceConfig{
			Tables: map[string]string{
				"listing":  "listings",
				"profile":  "profiles",
				"category": "categories",
			},
			Subject: "indexsync.changes",
		},
		Daemon: DaemonConfig{
			SocketPath: filepath.Join(dataDir, "indexsync.sock"),
			PIDPath:    filepath.Join(dataDir, "indexsync.pid"),
			Timeout:    30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// DataDir returns ~/.indexsync, falling back to the temp directory.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".indexsync")
	}
	return filepath.Join(home, ".indexsync")
}

// GetUserConfigPath returns the path to the user configuration file,
// following the XDG Base Directory layout.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "indexsync", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "indexsync", "config.yaml")
	}
	return filepath.Join(home, ".config", "indexsync", "config.yaml")
}

// ResolvePath picks the config file to use: the explicit path, else
// ./indexsync.yaml, else the user config. The result may not exist.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if fileExists(DefaultFileName) {
		return DefaultFileName
	}
	return GetUserConfigPath()
}

// Load loads configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. The YAML file at path (see ResolvePath); a missing file is fine
//     unless it was named explicitly
//  3. Environment variables (INDEXSYNC_*)
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	resolved := ResolvePath(path)
	if fileExists(resolved) {
		if err := cfg.loadYAML(resolved); err != nil {
			return nil, err
		}
	} else if path != "" {
		return nil, serrors.New(serrors.ErrCodeConfigNotFound,
			fmt.Sprintf("config file not found: %s", path), nil).
			WithSuggestion("run `indexsync config init` to create one")
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, serrors.ConfigError("invalid configuration", err)
	}

	return cfg, nil
}

// loadYAML decodes the file over the current values, so keys absent from
// the file keep their defaults.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return serrors.ConfigError(fmt.Sprintf("failed to read config file %s", path), err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return serrors.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err)
	}
	return nil
}

// applyEnvOverrides applies INDEXSYNC_* environment variable overrides.
// Unparseable values are ignored.
func (c *Config) applyEnvOverrides() {
	envString("INDEXSYNC_QUEUE_NAME", &c.Queue.Name)
	envInt("INDEXSYNC_BATCH_SIZE", &c.Indexer.BatchSize)
	envDuration("INDEXSYNC_BATCH_TIMEOUT", &c.Indexer.BatchTimeout)

	if v := os.Getenv("INDEXSYNC_SYNC_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Sync.Enabled = b
		}
	}
	envDuration("INDEXSYNC_SYNC_INTERVAL", &c.Sync.Interval)
	envInt("INDEXSYNC_MAX_RETRIES", &c.Sync.MaxRetries)
	envDuration("INDEXSYNC_RETRY_DELAY", &c.Sync.RetryDelay)

	envString("INDEXSYNC_STORE_BACKEND", &c.Store.Backend)
	envString("INDEXSYNC_STORE_PATH", &c.Store.Path)
	envString("INDEXSYNC_SEARCH_BACKEND", &c.Search.Backend)
	envString("INDEXSYNC_SEARCH_PATH", &c.Search.Path)
	envString("INDEXSYNC_SOURCE_DATABASE", &c.Source.Database)
	envString("INDEXSYNC_NATS_URL", &c.Source.NATSURL)
	envString("INDEXSYNC_NATS_SUBJECT", &c.Source.Subject)
	envString("INDEXSYNC_SOCKET", &c.Daemon.SocketPath)
	envString("INDEXSYNC_LOG_LEVEL", &c.Logging.Level)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
			*dst = n
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil && d > 0 {
			*dst = d
		}
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Queue.Name == "" {
		return fmt.Errorf("queue.name must not be empty")
	}
	if c.Queue.DequeueTimeout <= 0 {
		return fmt.Errorf("queue.dequeue_timeout must be positive, got %s", c.Queue.DequeueTimeout)
	}
	if c.Indexer.BatchSize < 1 {
		return fmt.Errorf("indexer.batch_size must be at least 1, got %d", c.Indexer.BatchSize)
	}
	if c.Indexer.BatchTimeout <= 0 {
		return fmt.Errorf("indexer.batch_timeout must be positive, got %s", c.Indexer.BatchTimeout)
	}
	if err := c.Sync.Validate(); err != nil {
		return err
	}

	switch c.Store.Backend {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("store.backend must be 'sqlite' or 'memory', got %s", c.Store.Backend)
	}

	switch c.Search.Backend {
	case "memory":
	case "bleve":
		if c.Search.Path == "" {
			return fmt.Errorf("search.path is required for the bleve backend")
		}
	default:
		return fmt.Errorf("search.backend must be 'bleve' or 'memory', got %s", c.Search.Backend)
	}
	if c.Search.CacheSize < 0 {
		return fmt.Errorf("search.cache_size must be non-negative, got %d", c.Search.CacheSize)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// Validate checks the runtime-mutable sync settings.
func (s SyncConfig) Validate() error {
	if s.BatchSize < 1 {
		return fmt.Errorf("sync.batch_size must be at least 1, got %d", s.BatchSize)
	}
	if s.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive, got %s", s.Interval)
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("sync.max_retries must be non-negative, got %d", s.MaxRetries)
	}
	if s.RetryDelay < 0 {
		return fmt.Errorf("sync.retry_delay must be non-negative, got %s", s.RetryDelay)
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
