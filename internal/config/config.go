// Package config defines the indexer configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration. Fields come from a TOML file and are
// then overridden by OMEN_* environment variables.
type Config struct {
	Chain     ChainConfig     `toml:"chain"`
	Contracts ContractsConfig `toml:"contracts"`
	Indexer   IndexerConfig   `toml:"indexer"`
	Feed      FeedConfig      `toml:"feed"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Archive   ArchiveConfig   `toml:"archive"`
	NATS      NATSConfig      `toml:"nats"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Mode      string          `toml:"mode"`
	Store     string          `toml:"store"`
	LogLevel  string          `toml:"log_level"`
}

// ChainConfig holds the JSON-RPC endpoint.
type ChainConfig struct {
	RPCURL  string `toml:"rpc_url"`
	ChainID int64  `toml:"chain_id"`
	// RPCRateLimit caps contract view calls per second across all indexer
	// processes sharing the Redis instance. Zero disables throttling.
	RPCRateLimit int `toml:"rpc_rate_limit"`
}

// ContractsConfig lists the followed contracts and the pricing tokens.
type ContractsConfig struct {
	ConditionalTokens     string   `toml:"conditional_tokens"`
	FPMMFactories         []string `toml:"fpmm_factories"`
	Realitio              string   `toml:"realitio"`
	ScalarAdapters        []string `toml:"scalar_adapters"`
	TokenRegistry         string   `toml:"token_registry"`
	GTCR                  string   `toml:"gtcr"`
	UniswapFactory        string   `toml:"uniswap_factory"`
	StakingRewardsFactory string   `toml:"staking_rewards_factory"`
	GelatoCore            string   `toml:"gelato_core"`
	WETH                  string   `toml:"weth"`
	Stablecoins           []string `toml:"stablecoins"`
}

// IndexerConfig tunes event handling and the single-writer lease.
type IndexerConfig struct {
	CheckpointName          string   `toml:"checkpoint_name"`
	FanOutCap               int      `toml:"fan_out_cap"`
	CurationListID          int64    `toml:"curation_list_id"`
	NuancedBinaryTemplateID int64    `toml:"nuanced_binary_template_id"`
	LeaseKey                string   `toml:"lease_key"`
	LeaseTTL                duration `toml:"lease_ttl"`
	// EntityCacheTTL enables the Redis write-through entity cache when
	// positive.
	EntityCacheTTL duration `toml:"entity_cache_ttl"`
}

// FeedConfig selects and tunes the event source.
type FeedConfig struct {
	Source        string   `toml:"source"` // ethlogs, redis, jetstream
	StartBlock    uint64   `toml:"start_block"`
	EndBlock      uint64   `toml:"end_block"`
	ChunkSize     uint64   `toml:"chunk_size"`
	Confirmations uint64   `toml:"confirmations"`
	PollInterval  duration `toml:"poll_interval"`
	RedisStream   string   `toml:"redis_stream"`
	RedisBatch    int      `toml:"redis_batch"`
	RedisIdle     duration `toml:"redis_idle"`
	// RelayStream, when set, receives every committed event so that
	// follower indexers can run with source = "redis".
	RelayStream string `toml:"relay_stream"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls the S3 event log and snapshots.
type ArchiveConfig struct {
	Enabled          bool     `toml:"enabled"`
	FlushInterval    duration `toml:"flush_interval"`
	SnapshotCron     string   `toml:"snapshot_cron"`
	SnapshotPartSize int64    `toml:"snapshot_part_size_mb"`
	// ReplayFromBlock skips archived events below this block in replay mode.
	ReplayFromBlock uint64 `toml:"replay_from_block"`
}

// NATSConfig holds the JetStream feed parameters.
type NATSConfig struct {
	URL      string   `toml:"url"`
	Stream   string   `toml:"stream"`
	Subjects []string `toml:"subjects"`
	Durable  string   `toml:"durable"`
	AckWait  duration `toml:"ack_wait"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds alert channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// MetricsConfig exposes Prometheus metrics. When the API server is
// disabled, metrics get their own listener on Port.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// duration decodes TOML strings such as "5m" or "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config for Ethereum mainnet with local infrastructure.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:       "http://localhost:8545",
			ChainID:      1,
			RPCRateLimit: 25,
		},
		Contracts: ContractsConfig{
			ConditionalTokens: "0xC59b0e4De5F1248C1140964E0fF287B192407E0C",
			FPMMFactories:     []string{"0x89023DEb1d9a9a62fF3A5ca8F23Be8d87A576220"},
			Realitio:          "0x325a2e0F3CCA2ddbaeBB4DfC38Df8D19ca165b47",
			UniswapFactory:    "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f",
			WETH:              "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
			Stablecoins: []string{
				"0x6B175474E89094C44Da98b954EedeAC495271d0F", // DAI
				"0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", // USDC
				"0xdAC17F958D2ee523a2206206994597C13D831ec7", // USDT
			},
		},
		Indexer: IndexerConfig{
			CheckpointName:          "omen",
			FanOutCap:               100,
			CurationListID:          4,
			NuancedBinaryTemplateID: 6,
			LeaseKey:                "omen:indexer",
			LeaseTTL:                duration{30 * time.Second},
		},
		Feed: FeedConfig{
			Source:        "ethlogs",
			ChunkSize:     2000,
			Confirmations: 12,
			PollInterval:  duration{12 * time.Second},
			RedisStream:   "omen:events",
			RedisBatch:    100,
			RedisIdle:     duration{5 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "omen",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "omen-index",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:          false,
			FlushInterval:    duration{time.Minute},
			SnapshotCron:     "0 4 * * *",
			SnapshotPartSize: 16,
		},
		NATS: NATSConfig{
			URL:      "nats://localhost:4222",
			Stream:   "OMEN_EVENTS",
			Subjects: []string{"omen.events.>"},
			Durable:  "omen-indexer",
			AckWait:  duration{30 * time.Second},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"indexer_halted", "lease_lost", "archive_failed"},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9100,
		},
		Mode:     "full",
		Store:    "postgres",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"index":  true,
	"replay": true,
	"server": true,
	"full":   true,
}

var validStores = map[string]bool{"postgres": true, "memory": true}

var validSources = map[string]bool{"ethlogs": true, "redis": true, "jetstream": true}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Indexes reports whether the mode runs the event processor.
func (c *Config) Indexes() bool {
	return c.Mode == "index" || c.Mode == "replay" || c.Mode == "full"
}

// Serves reports whether the mode runs the query API.
func (c *Config) Serves() bool {
	return c.Server.Enabled && (c.Mode == "server" || c.Mode == "full")
}

// Validate returns one error listing every problem found.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	if !validModes[c.Mode] {
		add("unknown mode %q (valid: index, replay, server, full)", c.Mode)
	}
	if !validStores[c.Store] {
		add("unknown store %q (valid: postgres, memory)", c.Store)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}
	if c.Store == "memory" && c.Mode == "server" {
		add("store: memory cannot serve a separate indexer's data in server mode")
	}

	if c.Indexes() {
		if c.Chain.RPCURL == "" {
			add("chain: rpc_url must be set")
		}
		if c.Mode != "replay" && !validSources[c.Feed.Source] {
			add("feed: unknown source %q (valid: ethlogs, redis, jetstream)", c.Feed.Source)
		}
		if c.Mode == "replay" && !c.Archive.Enabled {
			add("archive: replay mode reads the archive; set archive.enabled")
		}
		if c.Feed.EndBlock != 0 && c.Feed.EndBlock < c.Feed.StartBlock {
			add("feed: end_block %d is before start_block %d", c.Feed.EndBlock, c.Feed.StartBlock)
		}
		if c.Feed.RelayStream != "" && c.Mode != "replay" && c.Feed.Source == "redis" && c.Feed.RelayStream == c.Feed.RedisStream {
			add("feed: relay_stream %q must differ from the redis_stream it reads", c.Feed.RelayStream)
		}
		if c.Feed.Source == "jetstream" && (c.NATS.URL == "" || c.NATS.Stream == "" || c.NATS.Durable == "") {
			add("nats: url, stream and durable are required for the jetstream feed")
		}
		if c.Indexer.CheckpointName == "" {
			add("indexer: checkpoint_name must not be empty")
		}
		if c.Indexer.LeaseKey == "" || c.Indexer.LeaseTTL.Duration < 3*time.Second {
			add("indexer: lease_key must be set and lease_ttl at least 3s")
		}
		c.validateContracts(add)
	}

	if c.Store == "postgres" && strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			add("postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			add("postgres: port must be 1-65535, got %d", c.Postgres.Port)
		}
		if c.Postgres.Database == "" {
			add("postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		add("postgres: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Addr == "" {
		add("redis: addr must not be empty")
	}
	if c.Archive.Enabled && c.S3.Bucket == "" {
		add("s3: bucket must be set when the archive is enabled")
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		add("server: port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		add("metrics: port must be 1-65535, got %d", c.Metrics.Port)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c *Config) validateContracts(add func(string, ...any)) {
	check := func(name, addr string, required bool) {
		switch {
		case addr == "" && required:
			add("contracts: %s must be set", name)
		case addr != "" && !common.IsHexAddress(addr):
			add("contracts: %s %q is not an address", name, addr)
		}
	}
	check("conditional_tokens", c.Contracts.ConditionalTokens, true)
	check("uniswap_factory", c.Contracts.UniswapFactory, true)
	check("weth", c.Contracts.WETH, true)
	check("realitio", c.Contracts.Realitio, false)
	check("token_registry", c.Contracts.TokenRegistry, false)
	check("gtcr", c.Contracts.GTCR, false)
	check("staking_rewards_factory", c.Contracts.StakingRewardsFactory, false)
	check("gelato_core", c.Contracts.GelatoCore, false)
	if len(c.Contracts.FPMMFactories) == 0 {
		add("contracts: at least one fpmm factory is required")
	}
	for _, a := range c.Contracts.FPMMFactories {
		check("fpmm_factories", a, true)
	}
	for _, a := range c.Contracts.ScalarAdapters {
		check("scalar_adapters", a, true)
	}
	for _, a := range c.Contracts.Stablecoins {
		check("stablecoins", a, true)
	}
}
