package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageReader is the part of *kafka.Reader Consume needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Consume copies records published by KafkaSink into sink until ctx ends.
// A message that does not decode is logged and committed. A record the sink
// rejects is retried in place: committing a later offset would commit it
// too, so nothing after it is read until it is written.
func Consume(ctx context.Context, r MessageReader, sink Sink, logger *zap.Logger) error {
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("kafka read failed", zap.Error(err))
			if !sleepCtx(ctx, time.Second) {
				return nil
			}
			continue
		}

		var rec Record
		if err := json.Unmarshal(msg.Value, &rec); err != nil {
			logger.Warn("undecodable audit message",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		} else if !appendWithRetry(ctx, sink, rec, msg.Offset, logger) {
			return nil
		}

		if err := r.CommitMessages(ctx, msg); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("kafka commit failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

const (
	minAppendBackoff = 100 * time.Millisecond
	maxAppendBackoff = 30 * time.Second
)

// appendWithRetry reports false if ctx ended before rec was written.
func appendWithRetry(ctx context.Context, sink Sink, rec Record, offset int64, logger *zap.Logger) bool {
	backoff := minAppendBackoff
	for {
		err := sink.Append(ctx, rec)
		if err == nil {
			return true
		}
		logger.Error("audit record not written, retrying",
			zap.String("comment_id", rec.CommentID),
			zap.Int64("offset", offset),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		if !sleepCtx(ctx, backoff) {
			return false
		}
		backoff = min(backoff*2, maxAppendBackoff)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
