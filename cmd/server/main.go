package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"order-ingest/config"
	"order-ingest/internal/api"
	"order-ingest/internal/app"
	"order-ingest/internal/broker"
	"order-ingest/internal/util"
	"order-ingest/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting order ingest service")

	if cfg.Observ.TracingEnabled {
		tp, err := util.InitTracer("order-ingest", cfg.Observ.JaegerEndpoint)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Error("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	a, err := app.New(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer a.Close()

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var ingestWorker *worker.IngestWorker
	if cfg.Kafka.Enabled {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicIngestRequests, cfg.Kafka.ConsumerGroup)
		ingestWorker = worker.NewIngestWorker(consumer, a.Ingest)
		go func() {
			if err := ingestWorker.Start(workerCtx); err != nil && err != context.Canceled {
				logger.Error("Ingest worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Server.CronSecret == "" {
		logger.Warn("CRON_SECRET is not set, ingest endpoints will reject every request")
	}

	router := gin.New()
	handler := api.NewHandler(a.Ingest, a.Pool, a.Store, cfg.Server.CronSecret)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if ingestWorker != nil {
		if err := ingestWorker.Stop(); err != nil {
			logger.Error("Failed to stop ingest worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}
