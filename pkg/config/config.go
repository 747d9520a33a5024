// Package config loads and validates node configuration from YAML files with
// environment-variable overrides. Every subsystem (HTTP server, cluster
// membership, document store, cache, analyzer, telemetry) gets a typed struct.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level node configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Node      NodeConfig      `yaml:"node"`
	Cluster   ClusterConfig   `yaml:"cluster"`
	Store     StoreConfig     `yaml:"store"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Cache     CacheConfig     `yaml:"cache"`
	Analyzer  AnalyzerConfig  `yaml:"analyzer"`
	Search    SearchConfig    `yaml:"search"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// NodeConfig identifies this process inside the cluster.
type NodeConfig struct {
	ID string `yaml:"id"`
}

// PeerConfig is one statically configured cluster member.
type PeerConfig struct {
	ID   string `yaml:"id"`
	Addr string `yaml:"addr"`
}

// ClusterConfig lists the peers every local write is broadcast to and bounds
// the background delivery machinery.
type ClusterConfig struct {
	Peers              []PeerConfig  `yaml:"peers"`
	ReplicationTimeout time.Duration `yaml:"replicationTimeout"`
	Workers            int           `yaml:"workers"`
	QueueSize          int           `yaml:"queueSize"`
	BreakerFailures    int           `yaml:"breakerFailures"`
	BreakerReset       time.Duration `yaml:"breakerReset"`
}

// StoreConfig selects the document store implementation.
type StoreConfig struct {
	Driver   string `yaml:"driver"`
	SeedFile string `yaml:"seedFile"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// CacheConfig controls the search result cache.
type CacheConfig struct {
	Backend    string        `yaml:"backend"`
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"maxEntries"`
}

// AnalyzerConfig controls tokenization at index and query time.
type AnalyzerConfig struct {
	Mode           string   `yaml:"mode"`
	StopWords      []string `yaml:"stopWords"`
	FoldDiacritics bool     `yaml:"foldDiacritics"`
}

// SearchConfig controls query limits and result formatting.
type SearchConfig struct {
	DefaultLimit  int    `yaml:"defaultLimit"`
	MaxResults    int    `yaml:"maxResults"`
	MaxFuzzy      int    `yaml:"maxFuzzy"`
	HighlightPre  string `yaml:"highlightPre"`
	HighlightPost string `yaml:"highlightPost"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers        []string `yaml:"brokers"`
	ConsumerGroup  string   `yaml:"consumerGroup"`
	TelemetryTopic string   `yaml:"telemetryTopic"`
}

// TelemetryConfig toggles query telemetry publishing and aggregation.
type TelemetryConfig struct {
	Enabled    bool `yaml:"enabled"`
	Aggregate  bool `yaml:"aggregate"`
	BufferSize int  `yaml:"bufferSize"`
}

// RateLimitConfig bounds public API traffic per client address.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config suitable for a single local node.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Node: NodeConfig{ID: "node-1"},
		Cluster: ClusterConfig{
			ReplicationTimeout: 3 * time.Second,
			Workers:            4,
			QueueSize:          1024,
			BreakerFailures:    5,
			BreakerReset:       30 * time.Second,
		},
		Store: StoreConfig{Driver: "memory"},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "peersearch",
			User:            "peersearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Cache: CacheConfig{
			Backend:    "memory",
			TTL:        60 * time.Second,
			MaxEntries: 10000,
		},
		Analyzer: AnalyzerConfig{
			Mode:           "whole",
			FoldDiacritics: true,
		},
		Search: SearchConfig{
			DefaultLimit:  10,
			MaxResults:    100,
			MaxFuzzy:      2,
			HighlightPre:  "<mark>",
			HighlightPost: "</mark>",
		},
		Kafka: KafkaConfig{
			Brokers:        []string{"localhost:9092"},
			ConsumerGroup:  "peersearch-telemetry",
			TelemetryTopic: "search-telemetry",
		},
		Telemetry: TelemetryConfig{
			BufferSize: 10000,
		},
		RateLimit: RateLimitConfig{
			RPS:   50,
			Burst: 100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate reports configuration that would make the node misbehave at
// runtime rather than fail fast.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Node.ID) == "" {
		errs = append(errs, errors.New("node.id is required"))
	}
	seen := make(map[string]struct{}, len(c.Cluster.Peers))
	for _, p := range c.Cluster.Peers {
		if p.ID == "" || p.Addr == "" {
			errs = append(errs, fmt.Errorf("cluster peer %q: id and addr are required", p.ID))
			continue
		}
		if _, dup := seen[p.ID]; dup {
			errs = append(errs, fmt.Errorf("cluster peer %q listed twice", p.ID))
		}
		seen[p.ID] = struct{}{}
	}
	if c.Cluster.ReplicationTimeout <= 0 {
		errs = append(errs, errors.New("cluster.replicationTimeout must be positive"))
	}
	switch c.Analyzer.Mode {
	case "whole", "prefix":
	default:
		errs = append(errs, fmt.Errorf("analyzer.mode %q must be whole or prefix", c.Analyzer.Mode))
	}
	switch c.Store.Driver {
	case "memory", "postgres":
	default:
		errs = append(errs, fmt.Errorf("store.driver %q must be memory or postgres", c.Store.Driver))
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q must be memory or redis", c.Cache.Backend))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive"))
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxResults < c.Search.DefaultLimit {
		errs = append(errs, errors.New("search.defaultLimit must be positive and not exceed search.maxResults"))
	}
	if c.Search.MaxFuzzy < 0 {
		errs = append(errs, errors.New("search.maxFuzzy must not be negative"))
	}
	return errors.Join(errs...)
}

// applyEnvOverrides reads PS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("PS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PS_NODE_ID"); v != "" {
		cfg.Node.ID = v
	}
	if v := os.Getenv("PS_CLUSTER_PEERS"); v != "" {
		peers, err := ParsePeers(v)
		if err != nil {
			return fmt.Errorf("PS_CLUSTER_PEERS: %w", err)
		}
		cfg.Cluster.Peers = peers
	}
	if v := os.Getenv("PS_CLUSTER_REPLICATION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cluster.ReplicationTimeout = d
		}
	}
	if v := os.Getenv("PS_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("PS_STORE_SEED_FILE"); v != "" {
		cfg.Store.SeedFile = v
	}
	if v := os.Getenv("PS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("PS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("PS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("PS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("PS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("PS_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("PS_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}
	if v := os.Getenv("PS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("PS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("PS_ANALYZER_MODE"); v != "" {
		cfg.Analyzer.Mode = v
	}
	if v := os.Getenv("PS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("PS_TELEMETRY_ENABLED"); v != "" {
		cfg.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("PS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	return nil
}

// ParsePeers parses "id=addr,id=addr" into peer entries.
func ParsePeers(s string) ([]PeerConfig, error) {
	parts := strings.Split(s, ",")
	peers := make([]PeerConfig, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, addr, ok := strings.Cut(part, "=")
		if !ok || id == "" || addr == "" {
			return nil, fmt.Errorf("malformed peer entry %q, want id=addr", part)
		}
		peers = append(peers, PeerConfig{ID: strings.TrimSpace(id), Addr: strings.TrimSpace(addr)})
	}
	return peers, nil
}
