package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/relaychat/appcore/internal/api"
	"github.com/relaychat/appcore/internal/auth"
	"github.com/relaychat/appcore/internal/boot"
	"github.com/relaychat/appcore/internal/flow"
	"github.com/relaychat/appcore/internal/metrics"
	"github.com/relaychat/appcore/internal/services"
	"github.com/relaychat/appcore/internal/storage"
	"github.com/relaychat/appcore/internal/syncqueue"
	"github.com/sirupsen/logrus"
)

// version is set at build time via -ldflags.
var version = "dev"

// runHistory adapts the storage layer to the queue's history interface.
type runHistory struct {
	store *storage.Store
}

func (h *runHistory) SaveRun(ctx context.Context, record *syncqueue.RunRecord) error {
	return h.store.SaveRun(ctx, &storage.RunRecord{
		ID:           record.ID,
		JobType:      record.JobType,
		State:        record.State,
		ErrorMessage: record.ErrorMessage,
		StartedAt:    record.StartedAt,
		CompletedAt:  record.CompletedAt,
	})
}

func main() {
	// Load configuration from environment
	listen := os.Getenv("APPCORE_LISTEN")
	if listen == "" {
		// Loopback only: the daemon serves the local presentation shell,
		// never the network.
		listen = "127.0.0.1:7411"
	}

	dbPath := os.Getenv("APPCORE_DB")
	if dbPath == "" {
		dbPath = "appcore.db"
	}

	if level, err := logrus.ParseLevel(os.Getenv("APPCORE_LOG_LEVEL")); err == nil {
		logrus.SetLevel(level)
	}

	bootCfg := boot.DefaultConfig()
	if timeout, err := time.ParseDuration(os.Getenv("APPCORE_STEP_TIMEOUT")); err == nil && timeout > 0 {
		bootCfg.StepTimeout = timeout
	}

	// Step definitions are static; a registry that drifts from the
	// canonical order is a build defect, caught here before serving.
	if err := flow.ValidateFlows(); err != nil {
		logrus.WithError(err).Fatal("Invalid onboarding flow registry")
	}

	// Initialize components
	store, err := storage.Open(dbPath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open core database")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close core database")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Runs still marked running belong to a process that exited mid-sync.
	if err := store.MarkInterruptedRuns(ctx); err != nil {
		logrus.WithError(err).Warn("Failed to mark interrupted sync runs")
	}

	authValidator, err := auth.NewValidator()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize auth validator")
	}

	m := metrics.New()
	machine := boot.NewMachine(m.BootObserver())
	orchestrator := boot.NewOrchestrator(
		machine,
		services.NewLocalCredentialStore(store),
		services.NewLocalAuthService(store),
		services.NewLocalUserDataService(store),
		store,
		store,
		bootCfg,
	)
	queue := syncqueue.New(&runHistory{store: store}, m.JobObserver())

	go func() {
		if err := orchestrator.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logrus.WithError(err).Error("Bootstrap aborted")
		}
	}()

	// Initialize Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	apiHandler := api.NewHandler(orchestrator, queue, version)
	api.SetupRoutes(router, apiHandler, authValidator.Middleware(), m.Handler())

	srv := &http.Server{
		Addr:              listen,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logrus.WithFields(logrus.Fields{
			"listen":  listen,
			"version": version,
		}).Info("Starting appcore daemon")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down daemon")

	// Stop the boot loop before refusing new requests.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Fatal("Server forced to shutdown")
	}

	logrus.Info("Daemon exited")
}
