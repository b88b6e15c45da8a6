package audit

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"comment-moderator/config"
)

// NewFromConfig builds the sink the webhook server writes to: always the
// daily file, plus Kafka and RabbitMQ when configured. A broker that cannot
// be reached at startup is logged and left out. The returned func closes
// every broker connection.
func NewFromConfig(cfg config.AuditConfig, logger *zap.Logger) (Sink, func() error, error) {
	minLevel, err := ParseLevel(cfg.MinLevel)
	if err != nil {
		return nil, nil, err
	}
	file, err := NewFileSink(cfg.Dir, minLevel)
	if err != nil {
		return nil, nil, err
	}

	sinks := MultiSink{file}
	var closers []func() error

	if len(cfg.KafkaBrokers) > 0 {
		k := NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		sinks = append(sinks, k)
		closers = append(closers, k.Close)
		logger.Info("audit records mirrored to kafka",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic),
		)
	}

	if cfg.AMQPURL != "" {
		a, err := DialAMQP(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("rabbitmq audit sink disabled", zap.Error(err))
		} else {
			sinks = append(sinks, a)
			closers = append(closers, a.Close)
			logger.Info("audit records mirrored to rabbitmq", zap.String("queue", cfg.AMQPQueue))
		}
	}

	closeAll := func() error {
		var errs []error
		for _, c := range closers {
			if err := c(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := errors.Join(errs...); err != nil {
			return fmt.Errorf("close audit sinks: %w", err)
		}
		return nil
	}

	if len(sinks) == 1 {
		return file, closeAll, nil
	}
	return sinks, closeAll, nil
}
