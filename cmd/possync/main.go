package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"possync/internal/api"
	"possync/internal/config"
	"possync/internal/credentials"
	"possync/internal/database"
	"possync/internal/domain"
	"possync/internal/events"
	"possync/internal/logging"
	"possync/internal/metrics"
	"possync/internal/models"
	"possync/internal/notify"
	"possync/internal/repository"
	"possync/internal/service"
	possync "possync/internal/sync"
	"possync/internal/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	db, err := database.New(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка инициализации базы данных")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, stateRepo := initStateRepo(ctx, cfg, &logger)
	defer func() { _ = repository.Close(redisClient) }()

	eventBus := events.NewEventBus()

	creds := initCredentials(&logger)

	notifier, err := notify.NewTelegramNotifier(cfg.Notify, &logger)
	if err != nil {
		logger.Warn().Err(err).Msg("Telegram notifier unavailable")
	}
	notifier.Attach(eventBus)

	bookingService := service.NewBookingService(db, eventBus, &logger)
	engine := possync.NewEngine(db, creds, stateRepo, eventBus, cfg.Sync, &logger)

	syncWorker := worker.NewSyncWorker(engine, cfg.Sync, worker.RetryPolicy{}, &logger)
	if cfg.Sync.Enabled {
		go syncWorker.Start(ctx)
	}

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
		go backupService.Start(ctx)
	}

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	ipcServer := api.NewHTTPServer(cfg.IPC, db, bookingService, engine, syncWorker, creds, stateRepo, &logger)
	if cfg.IPC.Enabled {
		go func() {
			if err := ipcServer.Start(); err != nil {
				logger.Error().Err(err).Msg("IPC server error")
			}
		}()
	}

	logger.Info().Str("api_base", cfg.Sync.APIBase).Msg("Запущено")
	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = ipcServer.Shutdown(shutdownCtx)

	logger.Info().Msg("Shutdown complete.")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}
	logger := baseLogger.With().Str("component", "possync-main").Logger()

	return cfg, logger, closer, nil
}

func initStateRepo(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, domain.StateRepository) {
	var redisClient *redis.Client
	if cfg.Redis.Address != "" {
		redisClient = repository.NewRedisClient(cfg.Redis)
		if errPing := repository.Ping(ctx, redisClient); errPing != nil {
			logger.Warn().Err(errPing).Msg("Redis unavailable")
		}
	}

	ttl := time.Duration(models.DiscoveryCacheTTL) * time.Second
	primaryRepo := repository.NewRedisStateRepository(redisClient, ttl)
	fallbackRepo := repository.NewMemoryStateRepository(ttl)
	return redisClient, repository.NewFailoverStateRepository(primaryRepo, fallbackRepo, logger)
}

func initCredentials(logger *zerolog.Logger) *credentials.Manager {
	store := credentials.NewKeychainStore(logger)
	creds := credentials.NewManager(store, logger)

	if token := creds.LoadRefreshToken(); token != "" {
		logger.Info().Msg("Refresh token found in secure storage")
	} else {
		logger.Info().Msg("No stored refresh token, operator sign-in required")
	}
	return creds
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
