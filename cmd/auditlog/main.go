// auditlog consumes the audit topic and writes the daily audit files on a
// host that does not run the webhook server.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"comment-moderator/audit"
	"comment-moderator/config"
	"comment-moderator/logx"
)

const pruneInterval = time.Hour

var errNoBrokers = errors.New("AUDIT_KAFKA_BROKERS is not set")

func main() {
	cfg, err := config.LoadForTools()
	if err != nil {
		log.Fatalf("❌ configuration: %v", err)
	}

	logger, err := logx.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("❌ logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg.Audit, logger); err != nil {
		logger.Fatal("audit logger stopped", zap.Error(err))
	}
}

func run(cfg config.AuditConfig, logger *zap.Logger) error {
	if len(cfg.KafkaBrokers) == 0 {
		return errNoBrokers
	}
	minLevel, err := audit.ParseLevel(cfg.MinLevel)
	if err != nil {
		return err
	}
	sink, err := audit.NewFileSink(cfg.Dir, minLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopic,
		GroupID: cfg.KafkaGroup,
	})
	defer reader.Close()

	go pruneLoop(ctx, sink, cfg.Retention, logger)

	logger.Info("📥 consuming audit records",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("topic", cfg.KafkaTopic),
		zap.String("group", cfg.KafkaGroup),
		zap.String("dir", cfg.Dir),
	)
	return audit.Consume(ctx, reader, sink, logger)
}

func pruneLoop(ctx context.Context, sink *audit.FileSink, retention time.Duration, logger *zap.Logger) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		if n, err := sink.Prune(retention); err != nil {
			logger.Warn("pruning audit files failed", zap.Error(err))
		} else if n > 0 {
			logger.Info("pruned audit files", zap.Int("removed", n))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
