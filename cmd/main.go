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

	"github.com/courtside/schedule-engine/config"
	"github.com/courtside/schedule-engine/db"
	"github.com/courtside/schedule-engine/events"
	"github.com/courtside/schedule-engine/handlers"
	"github.com/courtside/schedule-engine/repositories"
	api "github.com/courtside/schedule-engine/routes"
	"github.com/courtside/schedule-engine/services"
	"github.com/courtside/schedule-engine/storage"
	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

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

	if err := db.RunMigrations(dbConn, logger); err != nil {
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	// The archiver stays a nil interface when R2 is not configured; the
	// policy service treats that as "archiving off".
	var archiver services.RunArchiver
	if cfg.R2Configured() {
		uploader, err := storage.NewCloudflareR2Uploader(storage.CloudflareR2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		archiver = storage.NewSnapshotArchiver(uploader)
		logger.Info("run snapshot archiving enabled", slog.String("bucket", cfg.R2BucketName))
	} else {
		logger.Info("run snapshot archiving disabled, R2 not configured")
	}

	hub := events.NewHub(logger)
	go hub.Run()
	logger.Info("event hub started")

	versionRepo := repositories.NewPostgresScheduleVersionRepository(dbConn)
	slotRepo := repositories.NewPostgresSlotRepository(dbConn)
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	assignmentRepo := repositories.NewPostgresAssignmentRepository(dbConn)
	lockRepo := repositories.NewPostgresLockRepository(dbConn)
	policyRunRepo := repositories.NewPostgresPolicyRunRepository(dbConn)
	logger.Info("repositories initialized")

	versionLocks := services.NewVersionLocks()

	versionService := services.NewVersionService(
		dbConn,
		versionRepo,
		slotRepo,
		matchRepo,
		assignmentRepo,
		lockRepo,
		versionLocks,
		hub,
		logger,
	)
	assignmentService := services.NewAssignmentService(
		dbConn,
		versionRepo,
		slotRepo,
		matchRepo,
		assignmentRepo,
		lockRepo,
		versionLocks,
		cfg.PlacementDefaults(),
		hub,
		logger,
	)
	lockService := services.NewLockService(
		dbConn,
		versionRepo,
		slotRepo,
		matchRepo,
		assignmentRepo,
		lockRepo,
		versionLocks,
		hub,
		logger,
	)
	autoAssignService := services.NewAutoAssignService(
		dbConn,
		versionRepo,
		slotRepo,
		matchRepo,
		assignmentRepo,
		lockRepo,
		versionLocks,
		hub,
		logger,
	)
	policyService := services.NewPolicyService(
		dbConn,
		versionRepo,
		slotRepo,
		matchRepo,
		assignmentRepo,
		lockRepo,
		policyRunRepo,
		versionLocks,
		[]byte(cfg.RunSigningKey),
		archiver,
		hub,
		logger,
	)
	reportService := services.NewReportService(
		dbConn,
		versionRepo,
		slotRepo,
		matchRepo,
		assignmentRepo,
		lockRepo,
		logger,
	)
	logger.Info("services initialized")

	versionHandler := handlers.NewVersionHandler(versionService)
	assignmentHandler := handlers.NewAssignmentHandler(assignmentService)
	lockHandler := handlers.NewLockHandler(lockService)
	autoAssignHandler := handlers.NewAutoAssignHandler(autoAssignService, cfg.PlacementDefaults())
	policyHandler := handlers.NewPolicyHandler(policyService, cfg.PolicyDefaults())
	reportHandler := handlers.NewReportHandler(reportService, cfg.QualityDefaults())
	webSocketHandler := handlers.NewWebSocketHandler(hub, versionService)
	logger.Info("HTTP handlers initialized")

	router := chi.NewRouter()
	api.SetupRoutes(
		router,
		versionHandler,
		assignmentHandler,
		lockHandler,
		autoAssignHandler,
		policyHandler,
		reportHandler,
		webSocketHandler,
	)
	logger.Info("routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		} else {
			logger.Info("server stopped gracefully")
		}
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", 15*time.Second))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		} else {
			logger.Info("server shutdown complete")
		}
	}
	logger.Info("application exited")
}
