package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path over Defaults, then applies OMEN_*
// environment overrides, including any from a .env file in the working
// directory. An empty path skips the file. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides lets operators inject endpoints and secrets at deploy
// time without editing the TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Chain.RPCURL, "OMEN_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "OMEN_CHAIN_ID")
	setInt(&cfg.Chain.RPCRateLimit, "OMEN_CHAIN_RPC_RATE_LIMIT")

	setStr(&cfg.Contracts.ConditionalTokens, "OMEN_CONTRACTS_CONDITIONAL_TOKENS")
	setStringSlice(&cfg.Contracts.FPMMFactories, "OMEN_CONTRACTS_FPMM_FACTORIES")
	setStr(&cfg.Contracts.Realitio, "OMEN_CONTRACTS_REALITIO")
	setStringSlice(&cfg.Contracts.ScalarAdapters, "OMEN_CONTRACTS_SCALAR_ADAPTERS")
	setStr(&cfg.Contracts.TokenRegistry, "OMEN_CONTRACTS_TOKEN_REGISTRY")
	setStr(&cfg.Contracts.GTCR, "OMEN_CONTRACTS_GTCR")
	setStr(&cfg.Contracts.UniswapFactory, "OMEN_CONTRACTS_UNISWAP_FACTORY")
	setStr(&cfg.Contracts.StakingRewardsFactory, "OMEN_CONTRACTS_STAKING_REWARDS_FACTORY")
	setStr(&cfg.Contracts.GelatoCore, "OMEN_CONTRACTS_GELATO_CORE")
	setStr(&cfg.Contracts.WETH, "OMEN_CONTRACTS_WETH")
	setStringSlice(&cfg.Contracts.Stablecoins, "OMEN_CONTRACTS_STABLECOINS")

	setStr(&cfg.Indexer.CheckpointName, "OMEN_INDEXER_CHECKPOINT_NAME")
	setInt(&cfg.Indexer.FanOutCap, "OMEN_INDEXER_FAN_OUT_CAP")
	setInt64(&cfg.Indexer.CurationListID, "OMEN_INDEXER_CURATION_LIST_ID")
	setInt64(&cfg.Indexer.NuancedBinaryTemplateID, "OMEN_INDEXER_NUANCED_BINARY_TEMPLATE_ID")
	setStr(&cfg.Indexer.LeaseKey, "OMEN_INDEXER_LEASE_KEY")
	setDuration(&cfg.Indexer.LeaseTTL, "OMEN_INDEXER_LEASE_TTL")
	setDuration(&cfg.Indexer.EntityCacheTTL, "OMEN_INDEXER_ENTITY_CACHE_TTL")

	setStr(&cfg.Feed.Source, "OMEN_FEED_SOURCE")
	setUint64(&cfg.Feed.StartBlock, "OMEN_FEED_START_BLOCK")
	setUint64(&cfg.Feed.EndBlock, "OMEN_FEED_END_BLOCK")
	setUint64(&cfg.Feed.ChunkSize, "OMEN_FEED_CHUNK_SIZE")
	setUint64(&cfg.Feed.Confirmations, "OMEN_FEED_CONFIRMATIONS")
	setDuration(&cfg.Feed.PollInterval, "OMEN_FEED_POLL_INTERVAL")
	setStr(&cfg.Feed.RedisStream, "OMEN_FEED_REDIS_STREAM")
	setStr(&cfg.Feed.RelayStream, "OMEN_FEED_RELAY_STREAM")

	setStr(&cfg.Postgres.DSN, "OMEN_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "OMEN_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "OMEN_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "OMEN_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "OMEN_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "OMEN_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "OMEN_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "OMEN_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "OMEN_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "OMEN_POSTGRES_RUN_MIGRATIONS")

	setStr(&cfg.Redis.Addr, "OMEN_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "OMEN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "OMEN_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "OMEN_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "OMEN_REDIS_TLS_ENABLED")

	setStr(&cfg.S3.Endpoint, "OMEN_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "OMEN_S3_REGION")
	setStr(&cfg.S3.Bucket, "OMEN_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "OMEN_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "OMEN_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "OMEN_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "OMEN_S3_FORCE_PATH_STYLE")

	setBool(&cfg.Archive.Enabled, "OMEN_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.FlushInterval, "OMEN_ARCHIVE_FLUSH_INTERVAL")
	setStr(&cfg.Archive.SnapshotCron, "OMEN_ARCHIVE_SNAPSHOT_CRON")
	setUint64(&cfg.Archive.ReplayFromBlock, "OMEN_ARCHIVE_REPLAY_FROM_BLOCK")

	setStr(&cfg.NATS.URL, "OMEN_NATS_URL")
	setStr(&cfg.NATS.Stream, "OMEN_NATS_STREAM")
	setStringSlice(&cfg.NATS.Subjects, "OMEN_NATS_SUBJECTS")
	setStr(&cfg.NATS.Durable, "OMEN_NATS_DURABLE")

	setBool(&cfg.Server.Enabled, "OMEN_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "OMEN_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "OMEN_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "OMEN_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "OMEN_SERVER_RATE_LIMIT")

	setStr(&cfg.Notify.TelegramToken, "OMEN_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "OMEN_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "OMEN_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "OMEN_NOTIFY_EVENTS")

	setBool(&cfg.Metrics.Enabled, "OMEN_METRICS_ENABLED")
	setInt(&cfg.Metrics.Port, "OMEN_METRICS_PORT")

	setStr(&cfg.Mode, "OMEN_MODE")
	setStr(&cfg.Store, "OMEN_STORE")
	setStr(&cfg.LogLevel, "OMEN_LOG_LEVEL")
}

// Typed setters. Each leaves the target alone when the variable is unset,
// empty or unparsable.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}
