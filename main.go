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

	"go.uber.org/zap"

	"comment-moderator/audit"
	"comment-moderator/cache"
	"comment-moderator/config"
	"comment-moderator/db"
	"comment-moderator/logx"
	"comment-moderator/pkg/graph"
	"comment-moderator/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ configuration: %v", err)
	}

	logger, err := logx.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("❌ logger: %v", err)
	}
	defer logger.Sync()
	defer zap.ReplaceGlobals(logger)()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("🚀 Starting comment moderator...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.Database.URL, logger.Named("db"))
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		return err
	}

	redisClient := cache.Connect(ctx, cfg.Redis, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	rulesCache := cache.NewRuleCache(redisClient, database, cfg.Redis.CacheTTL, logger.Named("cache"))

	sink, closeSink, err := audit.NewFromConfig(cfg.Audit, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeSink(); err != nil {
			logger.Warn("audit sinks did not close cleanly", zap.Error(err))
		}
	}()

	graphOpts := graph.OptionsFromConfig(cfg.Graph, logger.Named("graph"))
	platforms := func(token string) webhook.Platform {
		return graph.NewClient(token, graphOpts)
	}

	var opts []webhook.Option
	if redisClient != nil {
		opts = append(opts, webhook.WithDeduper(cache.NewDeduper(redisClient, cfg.Redis.DedupTTL)))
	}
	dispatcher := webhook.NewDispatcher(rulesCache, platforms, sink, logger.Named("dispatcher"), opts...)
	handler := webhook.NewHandler(cfg.Webhook, dispatcher, logger.Named("webhook"))

	if cfg.Webhook.AppSecret == "" {
		logger.Warn("FACEBOOK_APP_SECRET not set, webhook signatures are not checked")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           webhook.NewRouter(handler, database.DB.PingContext, logger),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Webhook.Timeout + 5*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("🌐 Server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
