package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/timmy/linkweaver/internal/config"
	"github.com/timmy/linkweaver/internal/generator"
	"github.com/timmy/linkweaver/internal/keypool"
	"github.com/timmy/linkweaver/internal/logger"
	"github.com/timmy/linkweaver/internal/matcher"
	"github.com/timmy/linkweaver/internal/provider"
	"github.com/timmy/linkweaver/internal/queue"
	"github.com/timmy/linkweaver/internal/repository"
	"github.com/timmy/linkweaver/internal/service"
	"github.com/timmy/linkweaver/internal/storage"
)

func main() {
	appLogger := logger.NewDefault("linkweaver-worker")
	logger.SetDefaultLogger(appLogger)
	defer func() { _ = logger.Sync() }()

	configPath := flag.String("config", "", "Path to config file")
	concurrency := flag.Int("concurrency", 0, "Override queue.concurrency")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if *concurrency > 0 {
		cfg.Queue.Concurrency = *concurrency
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	store := repository.NewStore(db)

	rdb, err := queue.Connect(ctx, &cfg.Redis)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer func() { _ = rdb.Close() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	client := provider.NewClient(&provider.Config{
		BaseURL:    cfg.Provider.BaseURL,
		Model:      cfg.Provider.Model,
		ProbeModel: cfg.Provider.ProbeModel,
		Timeout:    cfg.Provider.Timeout,
	})
	keys := keypool.NewManager(store.Credentials, client, keypool.Config{
		DefaultWait: cfg.KeyPool.DefaultWait,
	}, keypool.NewMetrics(reg))

	var archiver *service.Archiver
	if cfg.Archive.Enabled {
		objectStorage, err := storage.NewStorage(&cfg.Archive)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize archive storage")
		}
		if err := objectStorage.EnsureBucket(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure archive bucket")
		}
		archiver = service.NewArchiver(objectStorage, cfg.Archive.Prefix)
	}

	jobs := queue.New(rdb, queue.OptionsFrom(cfg.Redis.Prefix, &cfg.Queue))
	handlers := service.NewJobHandlers(service.HandlerDeps{
		Store:     store,
		Queue:     jobs,
		Matcher:   matcher.New(store.Sites),
		Generator: generator.New(keys, client),
		Pool:      keys,
		Titles:    service.NewRecentTitles(rdb, cfg.Redis.Prefix, cfg.Generation.RecentTitles),
		Archiver:  archiver,
	}, service.HandlerConfig{
		TokensPerBlog: cfg.Generation.TokensPerBlog,
		MinDelay:      cfg.KeyPool.MinDelay,
	})
	pool := queue.NewPool(jobs, handlers, queue.PoolConfig{
		Concurrency:     cfg.Queue.Concurrency,
		PollInterval:    cfg.Queue.PollInterval,
		PromoteInterval: cfg.Queue.PromoteInterval,
	}, queue.NewMetrics(reg))

	if cfg.KeyPool.CalibrateCron != "" {
		calibrator, err := keypool.NewCalibrator(ctx, keys, cfg.KeyPool.CalibrateCron)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to schedule recalibration")
		}
		calibrator.Start()
		defer calibrator.Stop()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := rdb.Ping(r.Context()).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Error("Metrics server stopped")
		}
	}()

	appLogger.WithFields(logger.Fields{
		"concurrency":  cfg.Queue.Concurrency,
		"metrics_port": cfg.Server.MetricsPort,
		"archive":      cfg.Archive.Enabled,
	}).Info("Starting worker")

	if err := pool.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.WithError(err).Error("Worker pool stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	appLogger.Info("Worker exited")
}
