package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/timmy/linkweaver/internal/api"
	"github.com/timmy/linkweaver/internal/api/handler"
	"github.com/timmy/linkweaver/internal/config"
	"github.com/timmy/linkweaver/internal/keypool"
	"github.com/timmy/linkweaver/internal/logger"
	"github.com/timmy/linkweaver/internal/provider"
	"github.com/timmy/linkweaver/internal/queue"
	"github.com/timmy/linkweaver/internal/repository"
	"github.com/timmy/linkweaver/internal/service"
)

func main() {
	appLogger := logger.NewDefault("linkweaver-api")
	logger.SetDefaultLogger(appLogger)
	defer func() { _ = logger.Sync() }()

	// CONFIG_PATH overrides the config file location in deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	ctx := context.Background()

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

	jobs := queue.New(rdb, queue.OptionsFrom(cfg.Redis.Prefix, &cfg.Queue))
	client := provider.NewClient(&provider.Config{
		BaseURL:    cfg.Provider.BaseURL,
		Model:      cfg.Provider.Model,
		ProbeModel: cfg.Provider.ProbeModel,
		Timeout:    cfg.Provider.Timeout,
	})
	keys := keypool.NewManager(store.Credentials, client, keypool.Config{
		DefaultWait: cfg.KeyPool.DefaultWait,
	}, keypool.NewMetrics(reg))

	router := api.SetupRouter(&cfg.Server, api.Dependencies{
		Projects: service.NewOrchestrator(store, jobs, service.OrchestratorConfig{
			MaxSlotsPerBand: cfg.Generation.MaxSlotsPerBand,
		}),
		Keys:     keys,
		Queue:    jobs,
		Health: map[string]handler.HealthCheck{
			"database": func(ctx context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
			"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
		Gatherer:   reg,
		Registerer: reg,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
