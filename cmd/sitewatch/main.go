// Package main wires together the sitewatch service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sitewatch/sitewatch/internal/api"
	"github.com/sitewatch/sitewatch/internal/blob"
	"github.com/sitewatch/sitewatch/internal/bus"
	"github.com/sitewatch/sitewatch/internal/changefeed"
	"github.com/sitewatch/sitewatch/internal/changelog"
	"github.com/sitewatch/sitewatch/internal/config"
	"github.com/sitewatch/sitewatch/internal/crawl"
	"github.com/sitewatch/sitewatch/internal/keyphrase"
	"github.com/sitewatch/sitewatch/internal/logging"
	"github.com/sitewatch/sitewatch/internal/metrics"
	"github.com/sitewatch/sitewatch/internal/notify"
	"github.com/sitewatch/sitewatch/internal/store"
	"github.com/sitewatch/sitewatch/internal/store/memory"
	"github.com/sitewatch/sitewatch/internal/store/postgres"
)

// siteStore is the full store surface the service wires together.
type siteStore interface {
	store.Store
	store.OccurrenceStore
}

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("service failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	// Outbound bus for validated discovery events.
	var publisher bus.Publisher
	if cfg.PubSub.ProjectID != "" {
		p, err := bus.NewPubSubPublisher(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName, logger.Named("bus"))
		if err != nil {
			return fmt.Errorf("init pubsub publisher: %w", err)
		}
		publisher = p
	} else {
		logger.Info("pubsub disabled, discovery events will not be published")
		publisher = &bus.NoOpPublisher{}
	}
	defer publisher.Close() //nolint:errcheck // closing on the way out

	// Live subscriber registry and fan-out notifier.
	registry, err := notify.NewRegistry(cfg.Notify.ListeningKeyPattern)
	if err != nil {
		return fmt.Errorf("init registry: %w", err)
	}
	sockets := notify.NewWebSocketPusher()
	notifier, err := notify.NewNotifier(registry, sockets, logger.Named("notify"))
	if err != nil {
		return fmt.Errorf("init notifier: %w", err)
	}

	// The change log feeds both downstream consumers of store mutations.
	adapter := changefeed.New(publisher, logger.Named("changefeed"))
	log := changelog.NewLog(changelog.Config{
		BufferSize:      cfg.Changelog.BufferSize,
		MaxBatchRecords: cfg.Changelog.MaxBatchRecords,
		MaxBatchWait:    cfg.BatchWait(),
		MaxRedeliveries: cfg.Changelog.MaxRedeliveries,
		BaseContext:     ctx,
		Logger:          logger.Named("changelog"),
	}, adapter, notifier)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := log.Close(closeCtx); err != nil {
			logger.Error("changelog close failed", zap.Error(err))
		}
	}()

	var st siteStore
	switch cfg.Store.Backend {
	case "postgres":
		pgStore, err := postgres.NewStore(ctx, postgres.Config{
			DSN:             cfg.DB.DSN,
			Table:           cfg.DB.Table,
			MaxConns:        int32(cfg.DB.MaxConns),
			MinConns:        int32(cfg.DB.MinConns),
			MaxConnLifetime: cfg.ConnLifetime(),
		}, log)
		if err != nil {
			return fmt.Errorf("init postgres store: %w", err)
		}
		defer pgStore.Close()
		st = pgStore
	default:
		st = memory.NewStore(memory.WithChangeLog(log))
	}

	var archive blob.Archive
	if cfg.Archive.GCSBucket != "" {
		gcs, err := blob.NewGCSArchive(ctx, cfg.Archive.GCSBucket, logger.Named("blob"))
		if err != nil {
			return fmt.Errorf("init gcs archive: %w", err)
		}
		defer gcs.Close() //nolint:errcheck // closing on the way out
		archive = gcs
	}

	fetcher, err := crawl.NewCollyFetcher(crawl.CollyConfig{
		UserAgent:      cfg.Crawler.UserAgent,
		Concurrency:    cfg.Crawler.Concurrency,
		RequestTimeout: cfg.CrawlTimeout(),
	})
	if err != nil {
		return fmt.Errorf("init fetcher: %w", err)
	}

	controller, err := crawl.NewController(st, fetcher, archive, crawl.Config{
		MaxDepth:            cfg.Crawler.MaxDepth,
		MaxRequestsPerCrawl: cfg.Crawler.MaxRequestsPerCrawl,
	}, logger.Named("crawl"))
	if err != nil {
		return fmt.Errorf("init crawl controller: %w", err)
	}

	freshness, err := crawl.NewRecencyChecker(st, cfg.RecrawlMaxAge())
	if err != nil {
		return fmt.Errorf("init freshness checker: %w", err)
	}

	textSource, err := keyphrase.NewPageTextSource(fetcher)
	if err != nil {
		return fmt.Errorf("init text source: %w", err)
	}
	aggregator, err := keyphrase.NewAggregator(st, textSource, logger.Named("keyphrase"))
	if err != nil {
		return fmt.Errorf("init aggregator: %w", err)
	}

	apiServer, err := api.NewServer(api.Deps{
		Store:       st,
		Occurrences: st,
		Crawler:     controller,
		Freshness:   freshness,
		Counter:     aggregator,
		Registry:    registry,
		Sockets:     sockets,
	}, cfg, logger.Named("api"))
	if err != nil {
		return fmt.Errorf("init api server: %w", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
