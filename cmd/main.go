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
	_ "github.com/lib/pq"

	"github.com/pongarena/backend/config"
	"github.com/pongarena/backend/db"
	"github.com/pongarena/backend/game"
	"github.com/pongarena/backend/handlers"
	"github.com/pongarena/backend/ledger"
	"github.com/pongarena/backend/middleware"
	"github.com/pongarena/backend/realtime"
	"github.com/pongarena/backend/repositories"
	api "github.com/pongarena/backend/routes"
	"github.com/pongarena/backend/services"
	"github.com/pongarena/backend/storage"
)

func main() {
	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	// Подключение к базе данных
	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	logger.Info("database connection established")

	// Инициализация репозиториев
	userRepo := repositories.NewPostgresUserRepository(dbConn)
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	inviteRepo := repositories.NewPostgresInviteRepository(dbConn)
	logger.Info("repositories initialized")

	// Инициализация realtime-инфраструктуры
	hub := realtime.NewHub(logger)
	registry := game.NewRegistry(cfg.JoinGraceWindow, logger)

	// Инициализация сервисов
	matchStore := services.NewMatchStore(matchRepo, userRepo)
	tournamentService := services.NewTournamentService(dbConn, tournamentRepo, matchRepo, hub, logger)
	inviteService := services.NewInviteService(inviteRepo, matchRepo, dbConn, hub)
	logger.Info("services initialized")

	// Зеркалирование завершённых матчей во внешний реестр
	var mirror *ledger.Mirror
	if cfg.LedgerEnabled() {
		var archiver storage.Archiver
		if cfg.ArchiveEnabled() {
			archiver, err = storage.NewCloudflareR2Archiver(storage.CloudflareR2Config{
				AccountID:       cfg.R2AccountID,
				AccessKeyID:     cfg.R2AccessKeyID,
				SecretAccessKey: cfg.R2SecretAccessKey,
				BucketName:      cfg.R2BucketName,
				PublicBaseURL:   cfg.R2PublicBaseURL,
			})
			if err != nil {
				logger.Error("failed to initialize Cloudflare R2 archiver", slog.Any("error", err))
				os.Exit(1)
			}
			logger.Info("Cloudflare R2 archiver initialized")
		}

		mirror = ledger.NewMirror(
			matchRepo,
			ledger.NewHTTPRecorder(cfg.LedgerEndpoint),
			archiver,
			cfg.LedgerMirrorInterval,
			logger,
		)
		if err := mirror.Start(); err != nil {
			logger.Error("failed to start ledger mirror", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := mirror.Shutdown(); err != nil {
				logger.Error("failed to stop ledger mirror", slog.Any("error", err))
			}
		}()
	} else {
		logger.Info("ledger mirror disabled, LEDGER_ENDPOINT not set")
	}

	// Инициализация обработчиков HTTP
	authenticator := middleware.NewAuthenticator(cfg.JWTSecretKey)
	tournamentHandler := handlers.NewTournamentHandler(tournamentService)
	inviteHandler := handlers.NewInviteHandler(inviteService)
	webSocketHandler := handlers.NewWebSocketHandler(hub, registry, matchStore, tournamentService, authenticator, logger)
	logger.Info("HTTP handlers initialized")

	// Настройка маршрутизатора
	router := chi.NewRouter()
	api.SetupRoutes(router, authenticator, tournamentHandler, inviteHandler, webSocketHandler)
	logger.Info("routes configured")

	// Настройка и запуск HTTP-сервера. WriteTimeout не задаётся:
	// долгоживущие websocket-соединения живут дольше любого таймаута.
	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
		ErrorLog:    slog.NewLogLogger(logger.Handler(), slog.LevelError),
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
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
		logger.Info("server shutdown complete")
	}
	logger.Info("application exited")
}
