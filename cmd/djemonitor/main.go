// Package main wires together the monitor service binary.
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

	gcpubsub "cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/lexwatch/dje-monitor/internal/api"
	"github.com/lexwatch/dje-monitor/internal/clock/system"
	"github.com/lexwatch/dje-monitor/internal/config"
	"github.com/lexwatch/dje-monitor/internal/dispatcher"
	"github.com/lexwatch/dje-monitor/internal/feed/djen"
	"github.com/lexwatch/dje-monitor/internal/fingerprint"
	"github.com/lexwatch/dje-monitor/internal/id/uuid"
	"github.com/lexwatch/dje-monitor/internal/indexer"
	gcsindexer "github.com/lexwatch/dje-monitor/internal/indexer/gcs"
	memoryindexer "github.com/lexwatch/dje-monitor/internal/indexer/memory"
	pubsubindexer "github.com/lexwatch/dje-monitor/internal/indexer/pubsub"
	"github.com/lexwatch/dje-monitor/internal/logging"
	"github.com/lexwatch/dje-monitor/internal/metrics"
	"github.com/lexwatch/dje-monitor/internal/monitor"
	queuememory "github.com/lexwatch/dje-monitor/internal/queue/memory"
	"github.com/lexwatch/dje-monitor/internal/ratelimit"
	"github.com/lexwatch/dje-monitor/internal/scanner"
	storememory "github.com/lexwatch/dje-monitor/internal/store/memory"
	storepostgres "github.com/lexwatch/dje-monitor/internal/store/postgres"
	"github.com/lexwatch/dje-monitor/internal/worker"
)

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
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	idGen := uuid.New()
	clock := system.New()
	hasher := fingerprint.New()

	var (
		subjects     monitor.SubjectStore
		publications monitor.PublicationStore
		alerts       monitor.AlertStore
		stats        monitor.StatsStore
	)
	if cfg.DB.DSN != "" {
		pool, err := storepostgres.NewPool(ctx, storepostgres.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			logger.Fatal("postgres init failed", zap.Error(err))
		}
		defer pool.Close()
		if err := storepostgres.EnsureSchema(ctx, pool); err != nil {
			logger.Fatal("schema init failed", zap.Error(err))
		}
		subjectStore, err := storepostgres.NewSubjectStore(pool, idGen)
		if err != nil {
			logger.Fatal("subject store init failed", zap.Error(err))
		}
		publicationStore, err := storepostgres.NewPublicationStore(pool)
		if err != nil {
			logger.Fatal("publication store init failed", zap.Error(err))
		}
		alertStore, err := storepostgres.NewAlertStore(pool)
		if err != nil {
			logger.Fatal("alert store init failed", zap.Error(err))
		}
		statsStore, err := storepostgres.NewStatsStore(pool)
		if err != nil {
			logger.Fatal("stats store init failed", zap.Error(err))
		}
		subjects, publications, alerts, stats = subjectStore, publicationStore, alertStore, statsStore
		logger.Info("using postgres stores")
	} else {
		mem := storememory.New(idGen)
		subjects, publications, alerts, stats = mem, mem, mem.Alerts(), mem
		logger.Warn("db.dsn is empty, using in-memory stores")
	}

	var sinks []monitor.Indexer
	if cfg.PubSub.Enabled {
		client, err := gcpubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("pubsub client init failed", zap.Error(err))
		}
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				logger.Error("pubsub client close failed", zap.Error(closeErr))
			}
		}()
		topic := client.Topic(cfg.PubSub.TopicName)
		defer topic.Stop()
		sinks = append(sinks, pubsubindexer.New(topic))
		logger.Info("indexing hook publishing to pubsub", zap.String("topic", cfg.PubSub.TopicName))
	}
	if cfg.Archive.Bucket != "" {
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			logger.Fatal("storage client init failed", zap.Error(err))
		}
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				logger.Error("storage client close failed", zap.Error(closeErr))
			}
		}()
		archive, err := gcsindexer.New(client, gcsindexer.Config{
			Bucket: cfg.Archive.Bucket,
			Prefix: cfg.Archive.Prefix,
		})
		if err != nil {
			logger.Fatal("archive init failed", zap.Error(err))
		}
		sinks = append(sinks, archive)
		logger.Info("archiving publications to gcs", zap.String("bucket", cfg.Archive.Bucket))
	}
	var index monitor.Indexer
	switch len(sinks) {
	case 0:
		index = memoryindexer.New()
	case 1:
		index = sinks[0]
	default:
		index = indexer.NewFanout(sinks...)
	}

	feed := djen.New(djen.Config{
		BaseURL:  cfg.Feed.BaseURL,
		Timeout:  cfg.FeedTimeout(),
		PageSize: cfg.Feed.PageSize,
	})
	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.Monitor.RateLimitPerSecond,
		Burst:             1,
	})
	queue := queuememory.NewQueue(cfg.Monitor.QueueDepth)
	retry := monitor.NewRetryPolicy(cfg.Retry.MaxAttempts, cfg.BackoffMin(), cfg.BackoffMax())
	scan := scanner.New(publications, alerts, clock, idGen, scanner.Config{
		Lookback:   cfg.ScanLookback(),
		BatchLimit: cfg.Scanner.BatchLimit,
	}, logger.Named("scanner"))

	workerCfg := worker.Config{
		MaxPages:         cfg.Monitor.MaxPagesPerSubject,
		EligibilityBatch: cfg.Monitor.EligibilityBatchLimit,
		ClaimLease:       cfg.ClaimLease(),
	}
	var workers []*worker.Worker
	for i := 0; i < cfg.Monitor.WorkerConcurrency; i++ {
		workers = append(workers, worker.New(
			queue,
			subjects,
			publications,
			alerts,
			feed,
			limiter,
			hasher,
			index,
			scan,
			clock,
			idGen,
			retry,
			workerCfg,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, workers, clock, idGen, dispatcher.Config{
		CyclePeriod: cfg.CyclePeriod(),
	}, logger.Named("dispatcher"))

	apiServer := api.NewServer(subjects, publications, alerts, stats, queue, dispatch, clock, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started",
			zap.Duration("cycle_period", cfg.CyclePeriod()),
			zap.Int("workers", cfg.Monitor.WorkerConcurrency),
		)
		dispatch.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	queue.Close()
	logger.Info("shutdown complete")
}
