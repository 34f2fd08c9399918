package main

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/arloliu/go-coincounter/logger"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newLogger builds the logger selected by cfg. The returned closer flushes and
// closes the log output.
func newLogger(cfg LoggingConfig, stderr io.Writer) (logger.Logger, io.Closer, error) {
	level, ok := logger.ParseLevel(cfg.Level)
	if !ok {
		return nil, nil, fmt.Errorf("unknown log level %q", cfg.Level)
	}

	if cfg.Output != "" && cfg.Output != "stderr" {
		l, closer := logger.NewRotatingSlog(logger.RotateConfig{
			Filename:   cfg.Output,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}, level, false)

		return l, closer, nil
	}

	switch cfg.Format {
	case "zap":
		z, err := zap.NewProduction()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create zap logger: %w", err)
		}

		return logger.NewZap(z, level), zapSyncer{z}, nil
	case "json":
		return logger.NewSlogWithWriter(stderr, level, false), nopCloser{}, nil
	default:
		return logger.NewConsoleSlog(stderr, level), nopCloser{}, nil
	}
}

type zapSyncer struct{ z *zap.Logger }

func (s zapSyncer) Close() error {
	// syncing stderr fails on some terminals
	_ = s.z.Sync()
	return nil
}

var _ io.Closer = zapSyncer{}
