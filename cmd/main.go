package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/Dosada05/track-bracket/brackets"
	"github.com/Dosada05/track-bracket/catalog"
	"github.com/Dosada05/track-bracket/config"
	"github.com/Dosada05/track-bracket/db"
	"github.com/Dosada05/track-bracket/handlers"
	"github.com/Dosada05/track-bracket/metrics"
	"github.com/Dosada05/track-bracket/middleware"
	"github.com/Dosada05/track-bracket/repositories"
	api "github.com/Dosada05/track-bracket/routes"
	"github.com/Dosada05/track-bracket/services"
	"github.com/Dosada05/track-bracket/storage"
)

const shutdownTimeout = 15 * time.Second

type stores struct {
	games        repositories.GameRepository
	votes        repositories.VoteRepository
	participants repositories.ParticipantRepository
	close        func() error
}

func main() {
	envFile := pflag.String("env-file", "", "path to a .env file (default: ./.env if present)")
	storageDriver := pflag.String("storage", "", "storage driver: postgres or memory (overrides STORAGE_DRIVER)")
	port := pflag.Int("port", 0, "HTTP port (overrides SERVER_PORT)")
	debug := pflag.Bool("debug", false, "enable debug logging")
	pflag.Parse()

	// Настройка логгера
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(logger, *envFile, *storageDriver, *port); err != nil {
		logger.Error("application failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("application exited")
}

func run(logger *slog.Logger, envFile, storageDriver string, port int) error {
	// Загрузка конфигурации
	cfg, err := config.LoadWithOverrides(envFile, config.Overrides{
		StorageDriver: storageDriver,
		ServerPort:    port,
	})
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Info("configuration loaded",
		slog.Int("port", cfg.ServerPort),
		slog.String("storage", cfg.StorageDriver),
		slog.Bool("archive", cfg.Archive.Enabled()))

	ctx := context.Background()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.close(); err != nil {
			logger.Error("failed to close storage", slog.Any("error", err))
		} else {
			logger.Info("storage closed")
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := metrics.NewPrometheusRecorder(registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	catalogClient, err := catalog.NewSpotifyClient(catalog.Config{
		BaseURL:   cfg.CatalogBaseURL,
		RateLimit: cfg.CatalogRateLimit,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create catalog client: %w", err)
	}

	deps := services.GameServiceDeps{
		Games:        st.games,
		Votes:        st.votes,
		Participants: st.participants,
		Generator:    brackets.NewSingleEliminationGenerator(nil),
		Advancer:     brackets.NewAdvancer(nil),
		Catalog:      catalogClient,
		Metrics:      recorder,
		Logger:       logger,
	}

	// Инициализация архива результатов (Cloudflare R2)
	if cfg.Archive.Enabled() {
		uploader, err := storage.NewCloudflareR2Uploader(ctx, storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.Archive.AccountID,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
			BucketName:      cfg.Archive.BucketName,
			PublicBaseURL:   cfg.Archive.PublicBaseURL,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize Cloudflare R2 uploader: %w", err)
		}
		deps.Archiver = storage.NewResultArchiver(uploader)
		logger.Info("Cloudflare R2 result archive initialized")
	}

	gameService := services.NewGameService(deps)
	catalogService := services.NewCatalogService(catalogClient, logger)

	router := chi.NewRouter()
	api.SetupRoutes(
		router,
		api.Options{
			AllowedOrigins:    cfg.AllowedOrigins,
			TrustProxyHeaders: cfg.TrustProxyHeaders,
			VoteLimiter:       middleware.NewIPRateLimiter(rate.Limit(cfg.VoteRateLimit), cfg.VoteRateBurst),
			Metrics:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
			Logger:            logger,
		},
		handlers.NewGameHandler(gameService),
		handlers.NewCatalogHandler(catalogService),
	)
	logger.Info("routes configured")

	// Настройка и запуск HTTP-сервера
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 40 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		logger.Info("server shutdown complete")
	}
	return nil
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	codes := repositories.NewCodeGenerator()

	if cfg.StorageDriver == config.StorageDriverMemory {
		mem := repositories.NewMemoryStore(codes)
		logger.Warn("using in-memory storage, games are lost on restart")
		return &stores{games: mem, votes: mem, participants: mem, close: func() error { return nil }}, nil
	}

	// Подключение к базе данных
	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.Migrate(migrateCtx, dbConn); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	logger.Info("database connection established")

	return &stores{
		games:        repositories.NewPostgresGameRepository(dbConn, codes, cfg.LockTimeout),
		votes:        repositories.NewPostgresVoteRepository(dbConn),
		participants: repositories.NewPostgresParticipantRepository(dbConn),
		close:        dbConn.Close,
	}, nil
}
