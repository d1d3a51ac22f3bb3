package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/steg2011/netvault/internal/api"
	"github.com/steg2011/netvault/internal/api/handlers"
	"github.com/steg2011/netvault/internal/creds"
	"github.com/steg2011/netvault/internal/engine"
	"github.com/steg2011/netvault/internal/gitea"
	"github.com/steg2011/netvault/internal/progress"
	"github.com/steg2011/netvault/internal/queue/tasks"
	"github.com/steg2011/netvault/internal/repository"
	"github.com/steg2011/netvault/internal/services"
	transportapi "github.com/steg2011/netvault/internal/transport/api"
	transportcli "github.com/steg2011/netvault/internal/transport/cli"
	"github.com/steg2011/netvault/pkg/config"
	"github.com/steg2011/netvault/pkg/database"
	"github.com/steg2011/netvault/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.MustLoad()

	// Initialize logger
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	log.Info("Starting NetVault",
		zap.String("env", cfg.AppEnv),
		zap.String("addr", cfg.HTTPAddr),
	)

	// Connect to database
	ctx := context.Background()
	db, err := database.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connected successfully")

	// Redis backs the job dispatch queue
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}

	// Initialize repositories
	siteRepo := repository.NewSiteRepository(db)
	deviceRepo := repository.NewDeviceRepository(db)
	credentialRepo := repository.NewCredentialRepository(db)
	jobRepo := repository.NewJobRepository(db)
	resultRepo := repository.NewResultRepository(db)

	// Credential envelope
	resolver, err := creds.NewResolver(cfg.FernetKey, cfg.NetUserGlobal, cfg.NetPassGlobal)
	if err != nil {
		log.Fatal("invalid fernet key", zap.Error(err))
	}

	// Repository service, transport pools, progress bus
	giteaClient := gitea.NewClient(cfg.GiteaURL, cfg.GiteaToken, cfg.GiteaOrg)
	cliPool := transportcli.NewPool(transportcli.NewSSHFetcher(), cfg.CLIWorkers, cfg.CLITimeout)
	apiPool := transportapi.NewPool(cfg.APIWorkers, cfg.APITimeout, cfg.APITLSVerify)
	bus := progress.NewBus(progress.DefaultGrace)

	eng := engine.New(deviceRepo, jobRepo, resultRepo, resolver, cliPool, apiPool, giteaClient, bus)

	// Job dispatch: the asynq server is embedded in this process so the
	// progress bus is visible to WebSocket subscribers.
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer asynqClient.Close()

	asynqServer := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		},
		asynq.Config{
			Concurrency: 1, // one job at a time; device concurrency lives in the pools
		},
	)
	mux := asynq.NewServeMux()
	mux.HandleFunc(services.TaskTypeBackupRun, tasks.NewBackupTaskHandler(eng).HandleBackupRun)

	// Services and handlers
	backupSvc := services.NewBackupService(jobRepo, resultRepo, deviceRepo, giteaClient, asynqClient)
	inventorySvc := services.NewInventoryService(siteRepo, deviceRepo, credentialRepo, resolver)

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal("db handle unavailable", zap.Error(err))
	}
	healthHandler := handlers.NewHealthHandler(map[string]handlers.ReadyCheck{
		"database": func(ctx context.Context) error { return sqlDB.PingContext(ctx) },
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})

	router := api.NewRouter(api.Dependencies{
		HealthHandler:    healthHandler,
		BackupsHandler:   handlers.NewBackupsHandler(backupSvc),
		InventoryHandler: handlers.NewInventoryHandler(inventorySvc),
		WSHandler:        handlers.NewWSHandler(bus),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("backup worker starting", zap.Int("cli_workers", cfg.CLIWorkers), zap.Int("api_workers", cfg.APIWorkers))
		if err := asynqServer.Run(mux); err != nil {
			errCh <- err
		}
	}()
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	asynqServer.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	} else {
		log.Info("server exited gracefully")
	}
}
