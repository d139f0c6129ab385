// Package logging provides zap logger helpers.
package logging

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls logger construction.
type Options struct {
	// Development enables the human-readable console encoder.
	Development bool

	// Quiet raises the minimum level to warn.
	Quiet bool

	// Async buffers log writes instead of flushing on every entry. The
	// returned flush function must be called before process exit.
	Async bool
}

// New builds a zap.Logger from the given options. It returns the logger and a
// flush function that syncs any buffered output.
func New(opts Options) (*zap.Logger, func()) {
	var encoder zapcore.Encoder
	if opts.Development {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.TimeKey = "ts"
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(cfg)
	} else {
		cfg := zap.NewProductionEncoderConfig()
		cfg.TimeKey = "ts"
		encoder = zapcore.NewJSONEncoder(cfg)
	}

	level := zapcore.InfoLevel
	if opts.Quiet {
		level = zapcore.WarnLevel
	}

	var ws zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	if opts.Async {
		ws = &zapcore.BufferedWriteSyncer{
			WS:            ws,
			FlushInterval: time.Second,
		}
	}

	logger := zap.New(zapcore.NewCore(encoder, ws, level))
	flush := func() {
		_ = logger.Sync()
	}
	return logger, flush
}

// Timed logs the elapsed time of a step. Call it at the top of the step and
// invoke the returned function when the step finishes:
//
//	defer logging.Timed(log, "parse_feed")()
func Timed(log *zap.Logger, step string) func() {
	start := time.Now()
	return func() {
		log.Info("step finished",
			zap.String("step", step),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}
