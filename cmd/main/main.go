package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/config"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/healthcheck"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/httpapi"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/jetstream"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/observer"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/storage"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/usecase"
	"gitlab.com/timkado/api/lead-pipeline-core/pkg/logger"
	"gitlab.com/timkado/api/lead-pipeline-core/pkg/utils"
)

const shutdownTimeout = 30 * time.Second

func main() {
	time.Local = time.UTC

	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	observer.InitMetrics(cfg.Metrics.Enabled)

	logger.Log.Info("Starting Lead Pipeline Core",
		zap.String("environment", cfg.Environment),
		zap.String("ingestion_owner", cfg.Ingestion.OwnerID),
		zap.String("nats_url", cfg.NATS.URL),
	)

	postgresRepo, err := initPostgresRepo(cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize Postgres repository", zap.Error(err))
	}

	service := usecase.NewLeadService(postgresRepo)

	// The consumer is optional: without NATS or an ingestion owner the
	// service still serves the HTTP API and the webhook route.
	var (
		jsClient  *jetstream.Client
		processor *usecase.Processor
	)
	if cfg.NATS.URL != "" && cfg.Ingestion.OwnerID != "" {
		jsClient, err = jetstream.NewClient(cfg.NATS.URL, "lead-pipeline-core")
		if err != nil {
			logger.Log.Fatal("Failed to initialize JetStream client", zap.Error(err))
		}
		processor = usecase.NewProcessor(service, jsClient, cfg)
		if err := processor.Setup(); err != nil {
			logger.Log.Fatal("Failed to set up processor", zap.Error(err))
		}
	} else {
		logger.Log.Warn("Inbound consumer disabled",
			zap.Bool("nats_configured", cfg.NATS.URL != ""),
			zap.Bool("owner_configured", cfg.Ingestion.OwnerID != ""),
		)
	}

	healthServer := healthcheck.NewServer(strconv.Itoa(cfg.Server.Port), logger.Log)
	healthServer.RegisterCheck("postgres", postgresRepo.Ping)
	if jsClient != nil {
		healthServer.RegisterCheck("nats", func(ctx context.Context) error {
			if !jsClient.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		})
	}
	if observer.Enabled() {
		healthServer.RegisterMetricsHandler(promhttp.Handler())
		logger.Log.Info("Metrics endpoint enabled", zap.String("path", "/metrics"), zap.Int("port", cfg.Server.Port))
	}
	healthServer.Start()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	apiServer := httpapi.NewServer(service, cfg.HTTP, cfg.Ingestion, logger.Log)
	apiServer.Start()

	logger.Log.Info("Endpoints available",
		zap.String("api", fmt.Sprintf("http://localhost:%d/api", cfg.HTTP.Port)),
		zap.String("health", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("readiness", fmt.Sprintf("http://localhost:%d/ready", cfg.Server.Port)),
	)

	if processor != nil {
		if err := processor.Start(); err != nil {
			logger.Log.Fatal("Failed to start processor", zap.Error(err))
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	logger.Log.Info("Starting graceful shutdown", zap.Duration("timeout", shutdownTimeout))

	var wg sync.WaitGroup

	// Stop intake first so in-flight messages finish before the pool closes.
	stopComponent(&wg, "HTTP API", func() error { return apiServer.Stop(shutdownCtx) })
	if processor != nil {
		stopComponent(&wg, "inbound processor", func() error {
			processor.Stop()
			return nil
		})
	}
	stopComponent(&wg, "health check server", func() error { return healthServer.Stop(shutdownCtx) })

	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Log.Info("[shutdown] Intake stopped")
	case <-shutdownCtx.Done():
		logger.Log.Warn("[shutdown] Graceful shutdown timed out, forcing exit")
	}

	logger.Log.Info("[shutdown] Closing PostgreSQL connection")
	if err := postgresRepo.Close(shutdownCtx); err != nil {
		logger.Log.Error("[shutdown] Failed to close PostgreSQL connection", zap.Error(err))
	}
	if jsClient != nil {
		logger.Log.Info("[shutdown] Closing JetStream connection")
		jsClient.Close()
	}

	logger.Log.Info("Lead Pipeline Core shutdown complete")
}

// stopComponent runs stop in a recovered goroutine tracked by wg.
func stopComponent(wg *sync.WaitGroup, name string, stop func() error) {
	wg.Add(1)
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping " + name)
		start := time.Now()
		if err := stop(); err != nil {
			logger.Log.Error("[shutdown] Error stopping "+name, zap.Error(err))
			return
		}
		logger.Log.Info("[shutdown] Stopped "+name, zap.Duration("duration", time.Since(start)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping "+name,
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
	})
}

func initPostgresRepo(cfg *config.Config) (*storage.PostgresRepo, error) {
	if cfg.Database.PostgresDSN == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	repo, err := storage.NewPostgresRepo(storage.Options{
		DSN:             cfg.Database.PostgresDSN,
		Schema:          cfg.Database.Schema,
		AutoMigrate:     cfg.Database.PostgresAutoMigrate,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres repository: %w", err)
	}

	logger.Log.Info("Initialized PostgreSQL repository")
	return repo, nil
}
