package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/queue-service/internal/api/http"
	"github.com/spec-kit/queue-service/internal/api/http/handlers"
	"github.com/spec-kit/queue-service/internal/archive"
	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/bootstrap"
	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/display"
	"github.com/spec-kit/queue-service/internal/engine"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/observability"
	"github.com/spec-kit/queue-service/internal/service"
	"github.com/spec-kit/queue-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App.Env)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backends, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open backends", zap.Error(err))
	}
	defer backends.Close()

	store, err := backends.NewStateStore(ctx)
	if err != nil {
		logger.Fatal("failed to build state store", zap.String("backend", cfg.Store.Backend), zap.Error(err))
	}
	archiver, err := archive.New(ctx, cfg.Archive)
	if err != nil {
		logger.Fatal("failed to build archiver", zap.String("driver", cfg.Archive.Driver), zap.Error(err))
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	operators := backends.OperatorRepository()

	authService := service.NewAuthService(*cfg, service.AuthDependencies{OperatorRepo: operators, Logger: logger})
	if err := authService.SeedOperators(ctx, cfg.Auth.Seeds); err != nil {
		logger.Fatal("failed to seed operators", zap.Error(err))
	}
	queueService := service.NewQueueService(service.QueueDependencies{
		Store:        store,
		Engine:       engine.New(engine.WithCallHistorySize(cfg.Queue.CallHistorySize)),
		Dispatcher:   dispatcher,
		Archiver:     archiver,
		Metrics:      metrics,
		Logger:       logger,
		WriteRetries: cfg.Queue.WriteRetries,
	})
	announcements := service.NewAnnouncementService(dispatcher, logger, cfg.Announce)
	worker.StartAnnouncementWorker(announcements)

	hub := display.NewHub(logger)
	go hub.Run(ctx)
	feedStore, err := backends.NewStateStore(ctx)
	if err != nil {
		logger.Fatal("failed to build display store handle", zap.Error(err))
	}
	if err := worker.NewDisplayFeed(feedStore, hub, logger).Start(ctx); err != nil {
		logger.Fatal("failed to start display feed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, store, backends.Postgres, backends.Redis),
		Auth:           handlers.NewAuthHandler(authService),
		Queue:          handlers.NewQueueHandler(queueService),
		Modules:        handlers.NewModulesHandler(queueService),
		Admin:          handlers.NewAdminHandler(queueService, authService),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), operators),
		Metrics:        metrics,
	})

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	displayServer := &http.Server{Addr: cfg.Display.Addr(), Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()
	go func() {
		logger.Info("display feed listening", zap.String("addr", displayServer.Addr))
		if err := displayServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("display listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	_ = displayServer.Shutdown(shutdownCtx)
	_ = app.ShutdownWithContext(shutdownCtx)
	announcements.Wait()
	cancel()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
