package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	s3blob "github.com/alanyoungcy/omenindexer/internal/blob/s3"
	"github.com/alanyoungcy/omenindexer/internal/cache/redis"
	"github.com/alanyoungcy/omenindexer/internal/config"
	"github.com/alanyoungcy/omenindexer/internal/domain"
	"github.com/alanyoungcy/omenindexer/internal/metrics"
	"github.com/alanyoungcy/omenindexer/internal/notify"
	"github.com/alanyoungcy/omenindexer/internal/server/handler"
	"github.com/alanyoungcy/omenindexer/internal/store/memory"
	"github.com/alanyoungcy/omenindexer/internal/store/postgres"
)

// Dependencies bundles the infrastructure the modes run on. It is built by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Store       domain.EntityStore
	Redis       *redis.Client
	Bus         *redis.EventBus
	LockManager domain.LockManager
	RPCLimiter  domain.RateLimiter
	HTTPLimiter domain.RateLimiter

	// Eth is nil unless the mode reads the chain.
	Eth *ethclient.Client

	// Blob storage; nil unless the archive is enabled or the mode replays.
	S3         *s3blob.Client
	BlobReader domain.BlobReader
	BlobWriter domain.BlobWriter

	Metrics  *metrics.Metrics
	Notifier *notify.Notifier

	// Checks feed the health endpoint.
	Checks map[string]handler.Check
}

// needsChain reports whether the mode makes contract calls.
func needsChain(cfg *config.Config) bool {
	return cfg.Indexes()
}

// needsS3 reports whether the mode touches object storage.
func needsS3(cfg *config.Config) bool {
	return cfg.Mode == "replay" || (cfg.Archive.Enabled && cfg.Indexes())
}

// Wire constructs the concrete dependencies for cfg and returns them with a
// cleanup function to call on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{Checks: make(map[string]handler.Check)}
	if cfg.Metrics.Enabled {
		deps.Metrics = metrics.New()
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		return fail("redis", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	deps.Redis = redisClient
	deps.Bus = redis.NewEventBus(redisClient, 10000)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.HTTPLimiter = redis.NewRateLimiter(redisClient, cfg.Server.RateLimit, cfg.Server.RateWindow.Duration)
	if cfg.Chain.RPCRateLimit > 0 {
		deps.RPCLimiter = redis.NewRateLimiter(redisClient, cfg.Chain.RPCRateLimit, time.Second)
	}
	deps.Checks["redis"] = redisClient.Ping

	// --- Entity store ---
	var store domain.EntityStore
	switch cfg.Store {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)
		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}
		store = postgres.NewEntityStore(pgClient.Pool())
		deps.Checks["postgres"] = pgClient.Health
	default:
		logger.Warn("using the in-memory store; state is lost on exit")
		store = memory.New()
	}
	if ttl := cfg.Indexer.EntityCacheTTL.Duration; ttl > 0 {
		store = redis.NewEntityCache(redisClient, store, ttl, logger)
	}
	deps.Store = store

	// --- Ethereum node ---
	if needsChain(cfg) {
		eth, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
		if err != nil {
			return fail("ethereum", err)
		}
		closers = append(closers, eth.Close)
		deps.Eth = eth
		deps.Checks["ethereum"] = func(ctx context.Context) error {
			_, err := eth.BlockNumber(ctx)
			return err
		}
	}

	// --- S3 blob storage ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		deps.S3 = s3Client
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender("", cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
