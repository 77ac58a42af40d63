package common

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

// LoggerOrGlobal returns l, or the global logger when l is nil.
func LoggerOrGlobal(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.L()
	}
	return l
}

// LoggerFromContext decorates base with the request and user ids carried by ctx.
func LoggerFromContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	l := LoggerOrGlobal(base)
	if rid := RequestIDFromContext(ctx); rid != "" {
		l = l.With(zap.String("req_id", rid))
	}
	if uid := UserIDFromContext(ctx); uid != "" {
		l = l.With(zap.String("user_id", uid))
	}
	return l
}
