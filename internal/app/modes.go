package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/alanyoungcy/omenindexer/internal/blob/s3"
	"github.com/alanyoungcy/omenindexer/internal/chain"
	"github.com/alanyoungcy/omenindexer/internal/domain"
	"github.com/alanyoungcy/omenindexer/internal/feed"
	"github.com/alanyoungcy/omenindexer/internal/indexer"
	"github.com/alanyoungcy/omenindexer/internal/pipeline"
	"github.com/alanyoungcy/omenindexer/internal/server"
	"github.com/alanyoungcy/omenindexer/internal/server/handler"
	"github.com/alanyoungcy/omenindexer/internal/server/ws"
)

// IndexMode follows the configured feed and applies events to the store.
func (a *App) IndexMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting index mode", slog.String("feed", a.cfg.Feed.Source))

	return a.indexOnly(ctx, deps, false)
}

// ReplayMode rebuilds the store from the archived event log. The lease still
// guards against a live indexer writing concurrently.
func (a *App) ReplayMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting replay mode",
		slog.Uint64("from_block", a.cfg.Archive.ReplayFromBlock),
	)

	return a.indexOnly(ctx, deps, true)
}

// indexOnly runs the indexer with the standalone metrics listener. The
// listener stops with the indexer once a bounded source is drained.
func (a *App) indexOnly(ctx context.Context, deps *Dependencies, replay bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return a.runIndexer(ctx, deps, replay)
	})
	a.runMetricsListener(ctx, g, deps)
	return g.Wait()
}

// ServerMode serves the query API over an existing store.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode", slog.Int("port", a.cfg.Server.Port))

	g, ctx := errgroup.WithContext(ctx)
	a.runServer(ctx, g, deps)
	return g.Wait()
}

// FullMode indexes and serves from one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode",
		slog.String("feed", a.cfg.Feed.Source),
		slog.Int("port", a.cfg.Server.Port),
	)

	if !a.cfg.Serves() {
		return a.indexOnly(ctx, deps, false)
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.runIndexer(ctx, deps, false) })
	a.runServer(ctx, g, deps)
	return g.Wait()
}

// runIndexer takes the writer lease, builds the processor and runs the
// orchestrator until the source ends or fails.
func (a *App) runIndexer(ctx context.Context, deps *Dependencies, replay bool) error {
	lease, err := deps.LockManager.Acquire(ctx, a.cfg.Indexer.LeaseKey, a.cfg.Indexer.LeaseTTL.Duration)
	if err != nil {
		return fmt.Errorf("indexer: acquire lease %s: %w", a.cfg.Indexer.LeaseKey, err)
	}
	defer lease.Release()

	reader := chain.NewReader(deps.Eth, deps.RPCLimiter)
	contracts := a.cfg.Contracts
	router := chain.NewRouter(chain.Addresses{
		FPMMFactories:         contracts.FPMMFactories,
		ConditionalTokens:     contracts.ConditionalTokens,
		Realitio:              contracts.Realitio,
		ScalarAdapters:        contracts.ScalarAdapters,
		TokenRegistry:         contracts.TokenRegistry,
		GTCR:                  contracts.GTCR,
		UniswapFactory:        contracts.UniswapFactory,
		StakingRewardsFactory: contracts.StakingRewardsFactory,
		GelatoCore:            contracts.GelatoCore,
	})
	dispatcher := indexer.New(indexer.Config{
		ConditionalTokens:       contracts.ConditionalTokens,
		UniswapFactory:          contracts.UniswapFactory,
		StakingRewardsFactory:   contracts.StakingRewardsFactory,
		WETH:                    contracts.WETH,
		Stablecoins:             contracts.Stablecoins,
		FanOutCap:               a.cfg.Indexer.FanOutCap,
		CurationListID:          a.cfg.Indexer.CurationListID,
		NuancedBinaryTemplateID: a.cfg.Indexer.NuancedBinaryTemplateID,
	}, reader, a.logger)

	opts := pipeline.ProcessorOptions{Publisher: deps.Bus, Metrics: deps.Metrics}
	if stream := a.cfg.Feed.RelayStream; stream != "" {
		opts.Relay, opts.RelayStream = deps.Bus, stream
	}
	var archiver *pipeline.Archiver
	if a.cfg.Archive.Enabled && !replay {
		events := s3blob.NewEventArchive(deps.BlobWriter)
		opts.Archive = events
		archiver = pipeline.NewArchiver(pipeline.ArchiverOptions{
			Events:     events,
			Snapshots:  s3blob.NewSnapshotter(deps.BlobWriter, a.cfg.Archive.SnapshotPartSize<<20),
			Store:      deps.Store,
			Kinds:      domain.AllKinds,
			Checkpoint: a.cfg.Indexer.CheckpointName,
			Metrics:    deps.Metrics,
			Alerter:    deps.Notifier,
		}, a.logger)
	}
	processor := pipeline.NewProcessor(deps.Store, router, dispatcher, a.cfg.Indexer.CheckpointName, opts, a.logger)

	source, closeSource, err := a.buildSource(ctx, deps, replay)
	if err != nil {
		return err
	}
	defer closeSource()

	orch := pipeline.NewOrchestrator(source, processor, lease, archiver, deps.Notifier, pipeline.OrchestratorConfig{
		LeaseTTL:      a.cfg.Indexer.LeaseTTL.Duration,
		FlushInterval: a.cfg.Archive.FlushInterval.Duration,
		SnapshotCron:  a.cfg.Archive.SnapshotCron,
	}, a.logger)
	return orch.Run(ctx)
}

// buildSource selects the event source. The returned func releases it.
func (a *App) buildSource(ctx context.Context, deps *Dependencies, replay bool) (feed.Source, func(), error) {
	noop := func() {}
	if replay {
		return feed.NewArchive(deps.BlobReader, a.cfg.Archive.ReplayFromBlock, a.logger), noop, nil
	}

	fc := a.cfg.Feed
	switch fc.Source {
	case "redis":
		return feed.NewRedisStream(deps.Bus, fc.RedisStream, "0", fc.RedisBatch, fc.RedisIdle.Duration, a.logger), noop, nil

	case "jetstream":
		nc, js, err := feed.ConnectNATS(a.cfg.NATS.URL, a.logger)
		if err != nil {
			return nil, nil, err
		}
		src := feed.NewJetStream(js, feed.JetStreamConfig{
			Stream:   a.cfg.NATS.Stream,
			Subjects: a.cfg.NATS.Subjects,
			Durable:  a.cfg.NATS.Durable,
			AckWait:  a.cfg.NATS.AckWait.Duration,
		}, a.logger)
		if err := src.EnsureStream(ctx); err != nil {
			nc.Close()
			return nil, nil, err
		}
		return src, func() { _ = nc.Drain() }, nil

	default:
		// Restart from the committed block; events at or before the
		// checkpoint are dropped by the processor.
		start := fc.StartBlock
		cp, err := deps.Store.Checkpoint(ctx, a.cfg.Indexer.CheckpointName)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, nil, fmt.Errorf("indexer: load checkpoint: %w", err)
		}
		if cp.BlockNumber > start {
			start = cp.BlockNumber
		}
		return feed.NewEthLogs(deps.Eth, chain.NewDecoder(), feed.EthLogsConfig{
			StartBlock:    start,
			EndBlock:      fc.EndBlock,
			ChunkSize:     fc.ChunkSize,
			Confirmations: fc.Confirmations,
			PollInterval:  fc.PollInterval.Duration,
		}, a.logger), noop, nil
	}
}

// runServer adds the API server and the websocket hub to g.
func (a *App) runServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.Bus, ws.Config{
		Pattern: pipeline.ChangeChannelPrefix + "*",
		Mode:    a.cfg.Mode,
		Metrics: deps.Metrics,
	}, a.logger)

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:   handler.NewHealthHandler(deps.Checks, a.logger),
		Status:   handler.NewStatusHandler(deps.Store, a.cfg.Indexer.CheckpointName, a.cfg.Mode, a.logger),
		Entities: handler.NewEntityHandler(deps.Store, a.logger),
	}, server.Options{
		Hub:     hub,
		Metrics: deps.Metrics,
		Limiter: deps.HTTPLimiter,
	}, a.logger)

	g.Go(func() error { return ignoreCanceled(ctx, hub.Run(ctx)) })
	g.Go(func() error { return srv.Run(ctx) })
}

// runMetricsListener exposes /metrics on its own port when the API server
// is not running.
func (a *App) runMetricsListener(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Metrics == nil || a.cfg.Metrics.Port == 0 {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", deps.Metrics.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Metrics.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		a.logger.Info("metrics listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics: listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// ignoreCanceled maps a shutdown-induced error to nil.
func ignoreCanceled(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
