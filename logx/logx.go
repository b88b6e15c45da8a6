package logx

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"comment-moderator/config"
)

// NewLogger builds the operational logger. Console output follows
// cfg.Pretty; the rotated file (skipped when cfg.File is empty) is always
// JSON so it can be shipped and grepped. An unknown level means info.
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if l, err := zapcore.ParseLevel(cfg.Level); err == nil {
		level.SetLevel(l)
	}

	cores := []zapcore.Core{consoleCore(cfg, level)}
	if cfg.File != "" {
		cores = append(cores, fileCore(cfg, level))
	}

	return zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.DPanicLevel),
	), nil
}

func encoderConfig() zapcore.EncoderConfig {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	return enc
}

func consoleCore(cfg config.LogConfig, level zapcore.LevelEnabler) zapcore.Core {
	out := zapcore.Lock(os.Stdout)
	if cfg.Stderr {
		out = zapcore.Lock(os.Stderr)
	}

	if !cfg.Pretty {
		return zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), out, level)
	}
	enc := encoderConfig()
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	return zapcore.NewCore(zapcore.NewConsoleEncoder(enc), out, level)
}

func fileCore(cfg config.LogConfig, level zapcore.LevelEnabler) zapcore.Core {
	rotated := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	return zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(rotated), level)
}
