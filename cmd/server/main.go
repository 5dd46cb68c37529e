package main

import (
	"alcyxob/fight-gateway/internal/analysis"
	"alcyxob/fight-gateway/internal/api"
	"alcyxob/fight-gateway/internal/config"
	"alcyxob/fight-gateway/internal/gateway"
	"alcyxob/fight-gateway/internal/logger"
	"alcyxob/fight-gateway/internal/repository/mongo"
	"alcyxob/fight-gateway/internal/service"
	"alcyxob/fight-gateway/internal/storage"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
)

// @title Fight Footage Upload API
// @version 1.0
// @description Validates and stages fight footage before it is handed to the analysis pipeline.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("FATAL: Could not load config: %v", err)
	}

	appLog := logger.NewLogger(cfg.Log.Mode, cfg.Log.Level)
	defer appLog.Sync()
	appLog.Info("Starting upload gateway", "address", cfg.Server.Address, "stagingBackend", cfg.Upload.StagingBackend)

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	// --- Database Connection ---
	dbClient, err := mongo.ConnectDB(rootCtx, cfg.Database.URI)
	if err != nil {
		appLog.Error("Could not connect to MongoDB", "error", err)
		os.Exit(1)
	}
	defer func() {
		appLog.Info("Disconnecting MongoDB...")
		if err := mongo.DisconnectDB(dbClient); err != nil {
			appLog.Error("Failed to disconnect MongoDB", "error", err)
		}
	}()
	appDB := dbClient.Database(cfg.Database.Name)

	// --- Ensure Indexes ---
	go func() { // Run index creation in background
		ctx, cancel := context.WithTimeout(rootCtx, 1*time.Minute)
		defer cancel()
		if err := mongo.EnsureUploadIndexes(ctx, appDB.Collection("uploads")); err != nil {
			appLog.Warn("Index creation failed", "error", err)
			return
		}
		appLog.Info("Index creation process completed.")
	}()

	// --- Initialize Storage ---
	var fileStorage storage.FileStorage
	if cfg.S3.Enabled() {
		fileStorage, err = storage.NewS3Storage(rootCtx, cfg.S3, appLog)
		if err != nil {
			appLog.Error("Failed to initialize S3 storage", "error", err)
			os.Exit(1)
		}
	} else {
		appLog.Warn("S3 not configured; direct uploads are disabled")
	}

	// --- Gateway ---
	stager, err := newStager(cfg.Upload, fileStorage)
	if err != nil {
		appLog.Error("Failed to initialize staging", "error", err)
		os.Exit(1)
	}
	policy := gateway.Policy{
		MaxBytes:          cfg.Upload.MaxBytes,
		AllowedTypes:      cfg.Upload.AllowedTypes,
		AllowedExtensions: cfg.Upload.AllowedExtensions,
	}
	gw := gateway.New(policy, stager, appLog)
	sessions := gateway.NewManager(gw, cfg.Upload.SessionIdleTimeout)
	go sessions.Run(rootCtx)

	// --- Initialize Services ---
	uploadRepo := mongo.NewMongoUploadRepository(appDB)
	uploadService := service.NewUploadService(sessions, uploadRepo, fileStorage, analysis.Unconfigured{}, cfg.S3.PresignExpiry, appLog)

	// --- Initialize Gin Engine ---
	if cfg.Log.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default() // Includes Logger and Recovery middleware
	// Parts above this stay on disk instead of memory while being parsed.
	router.MaxMultipartMemory = 32 << 20

	api.SetupRoutes(router, cfg.JWT.Secret, uploadService, appLog)

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// --- Graceful Shutdown ---
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("ListenAndServe error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		appLog.Error("Server forced to shutdown", "error", err)
	}

	// Staged files must not outlive the process.
	stop()
	sessions.CloseAll(ctxShutdown)

	appLog.Info("Server exiting.")
}

func newStager(cfg config.UploadConfig, fileStorage storage.FileStorage) (gateway.Stager, error) {
	switch cfg.StagingBackend {
	case config.StagingBackendDisk:
		return gateway.NewFSStager(afero.NewOsFs(), cfg.StagingDir, config.StagingBackendDisk)
	case config.StagingBackendMemory:
		return gateway.NewFSStager(afero.NewMemMapFs(), cfg.StagingDir, config.StagingBackendMemory)
	case config.StagingBackendS3:
		if fileStorage == nil {
			return nil, errors.New("s3 staging requires S3 storage")
		}
		return gateway.NewObjectStager(fileStorage, ""), nil
	}
	return nil, fmt.Errorf("unknown staging backend %q", cfg.StagingBackend)
}
