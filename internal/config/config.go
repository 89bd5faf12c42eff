package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Bancho   BanchoConfig   `yaml:"bancho"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Cache    CacheConfig    `yaml:"cache"`
	Replays  ReplayConfig   `yaml:"replays"`
	Beatmaps BeatmapConfig  `yaml:"beatmaps"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Sync     SyncConfig     `yaml:"sync"`
	Ranking  RankingConfig  `yaml:"ranking"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// BanchoConfig holds protocol and session settings
type BanchoConfig struct {
	NodeID          string        `yaml:"node_id"`
	ProtocolVersion int32         `yaml:"protocol_version"`
	PublicHost      string        `yaml:"public_host"`
	BeatmapURL      string        `yaml:"beatmap_url"`
	UserURL         string        `yaml:"user_url"`
	AnnounceChannel string        `yaml:"announce_channel"`
	BotName         string        `yaml:"bot_name"`
	BotID           int32         `yaml:"bot_id"`
	Channels        []string      `yaml:"channels"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ReapInterval    time.Duration `yaml:"reap_interval"`
	PublishTimeout  time.Duration `yaml:"publish_timeout"`
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Driver string `yaml:"driver"` // postgres or memory
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// CacheConfig selects the TTL cache backend
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // redis or memory
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// ReplayConfig selects where replay files are stored
type ReplayConfig struct {
	Driver string `yaml:"driver"` // fs or s3
	Dir    string `yaml:"dir"`
	Bucket string `yaml:"bucket"`
	Region string `yaml:"region"`
	Prefix string `yaml:"prefix"`
}

// BeatmapConfig holds the beatmap mirror settings
type BeatmapConfig struct {
	MirrorURL string        `yaml:"mirror_url"`
	Timeout   time.Duration `yaml:"timeout"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// KafkaConfig holds Kafka connection configuration
type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"`
	Topic         string        `yaml:"topic"`
	GroupID       string        `yaml:"group_id"`
	Enabled       bool          `yaml:"enabled"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// SyncConfig holds synchronization worker configuration
type SyncConfig struct {
	Interval time.Duration `yaml:"interval"`
	Enabled  bool          `yaml:"enabled"`
}

// RankingConfig holds ranking listing limits and the in-game scoreboard settings
type RankingConfig struct {
	DefaultLimit   int           `yaml:"default_limit"`
	MaxLimit       int           `yaml:"max_limit"`
	ScoreboardSize int           `yaml:"scoreboard_size"`
	ScoreboardTTL  time.Duration `yaml:"scoreboard_ttl"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}

	// Bancho defaults
	if c.Bancho.NodeID == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "bancho"
		}
		c.Bancho.NodeID = host
	}
	if c.Bancho.ProtocolVersion == 0 {
		c.Bancho.ProtocolVersion = 19
	}
	if c.Bancho.PublicHost == "" {
		c.Bancho.PublicHost = "localhost"
	}
	if c.Bancho.BeatmapURL == "" {
		c.Bancho.BeatmapURL = "https://osu.ppy.sh/b/"
	}
	if c.Bancho.UserURL == "" {
		c.Bancho.UserURL = "https://osu.ppy.sh/u/"
	}
	if c.Bancho.AnnounceChannel == "" {
		c.Bancho.AnnounceChannel = "#announce"
	}
	if c.Bancho.BotName == "" {
		c.Bancho.BotName = "BanchoBot"
	}
	if c.Bancho.BotID == 0 {
		c.Bancho.BotID = 1
	}
	if len(c.Bancho.Channels) == 0 {
		c.Bancho.Channels = []string{"#osu", c.Bancho.AnnounceChannel}
	}
	if c.Bancho.IdleTimeout == 0 {
		c.Bancho.IdleTimeout = 90 * time.Second
	}
	if c.Bancho.ReapInterval == 0 {
		c.Bancho.ReapInterval = 15 * time.Second
	}
	if c.Bancho.PublishTimeout == 0 {
		c.Bancho.PublishTimeout = 5 * time.Second
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "postgres"
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 100
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 10
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}

	// PostgreSQL defaults
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.MaxConnections == 0 {
		c.Postgres.MaxConnections = 50
	}
	if c.Postgres.MinConnections == 0 {
		c.Postgres.MinConnections = 5
	}
	if c.Postgres.MaxConnLifetime == 0 {
		c.Postgres.MaxConnLifetime = 1 * time.Hour
	}
	if c.Postgres.MaxConnIdleTime == 0 {
		c.Postgres.MaxConnIdleTime = 30 * time.Minute
	}

	// Cache defaults
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Cache.DefaultTTL == 0 {
		c.Cache.DefaultTTL = 10 * time.Minute
	}

	// Replay defaults
	if c.Replays.Driver == "" {
		c.Replays.Driver = "fs"
	}
	if c.Replays.Dir == "" {
		c.Replays.Dir = "data/replays"
	}
	if c.Replays.Region == "" {
		c.Replays.Region = "us-east-1"
	}

	// Beatmap mirror defaults
	if c.Beatmaps.MirrorURL == "" {
		c.Beatmaps.MirrorURL = "https://storage.ripple.moe/api"
	}
	if c.Beatmaps.Timeout == 0 {
		c.Beatmaps.Timeout = 10 * time.Second
	}
	if c.Beatmaps.CacheTTL == 0 {
		c.Beatmaps.CacheTTL = 30 * time.Minute
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "bancho-scores"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "bancho-feed-" + c.Bancho.NodeID
	}
	if c.Kafka.RetryAttempts == 0 {
		c.Kafka.RetryAttempts = 3
	}
	if c.Kafka.RetryDelay == 0 {
		c.Kafka.RetryDelay = 1 * time.Second
	}

	// Sync defaults
	if c.Sync.Interval == 0 {
		c.Sync.Interval = 30 * time.Minute
	}

	// Ranking defaults
	if c.Ranking.DefaultLimit == 0 {
		c.Ranking.DefaultLimit = 50
	}
	if c.Ranking.MaxLimit == 0 {
		c.Ranking.MaxLimit = 500
	}
	if c.Ranking.ScoreboardSize == 0 {
		c.Ranking.ScoreboardSize = 50
	}
	if c.Ranking.ScoreboardTTL == 0 {
		c.Ranking.ScoreboardTTL = 30 * time.Second
	}
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Sync.Enabled = true
	return cfg
}
