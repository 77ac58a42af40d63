package main

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/keiba-tracker/internal/core"
	"github.com/joseph-ayodele/keiba-tracker/internal/core/pipeline"
	"github.com/joseph-ayodele/keiba-tracker/internal/llm"
	"github.com/joseph-ayodele/keiba-tracker/internal/llm/provider"
	"github.com/joseph-ayodele/keiba-tracker/internal/metrics"
	"github.com/joseph-ayodele/keiba-tracker/internal/ocr"
	"github.com/joseph-ayodele/keiba-tracker/internal/quota"
	"github.com/joseph-ayodele/keiba-tracker/internal/repository"
	"github.com/joseph-ayodele/keiba-tracker/internal/storage"
)

type envOptions struct {
	database bool
	ocr      bool
	// ocrOptional logs an OCR init failure instead of returning it.
	ocrOptional bool
	storage     bool
	quota       bool
}

// env holds the wired collaborators shared by the commands.
type env struct {
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Pool      *pgxpool.Pool
	Redis     *redis.Client
	OCR       ocr.TextSource
	AI        llm.Provider
	Pipeline  *pipeline.Pipeline
	Usage     *quota.Service
	Images    *storage.ImageStore
	Processor *core.Processor

	closers []func() error
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			e.Logger.Warn("env.close.failed", zap.Error(err))
		}
	}
}

// initEnv builds what a command needs. OCR is optional for serve, so an
// engine that fails to initialize there leaves the OCR routes unavailable.
func initEnv(ctx context.Context, opts envOptions) (*env, error) {
	logger := zap.L()
	e := &env{Logger: logger, Metrics: metrics.New(true)}

	ai, err := provider.New(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	e.AI = ai
	if ai != nil {
		logger.Info("env.llm.ready", zap.String("provider", ai.Name()))
	}
	var extractor llm.TicketExtractor
	if ai != nil {
		extractor = ai
	}
	e.Pipeline = pipeline.New(logger, extractor, pipeline.WithObserver(e.Metrics))

	if opts.database {
		if err := cfg.RequireDatabase(); err != nil {
			return nil, err
		}
		pool, err := repository.Open(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		e.Pool = pool
		e.closers = append(e.closers, func() error { pool.Close(); return nil })
	}

	if opts.ocr {
		src, closeFn, err := ocr.New(ctx, cfg.OCR, logger, e.Metrics)
		switch {
		case err == nil:
			e.OCR = src
			e.closers = append(e.closers, closeFn)
		case opts.ocrOptional:
			logger.Warn("env.ocr.unavailable", zap.String("engine", cfg.OCR.Engine), zap.Error(err))
		default:
			e.Close()
			return nil, err
		}
	}

	if opts.quota {
		counter, err := e.usageCounter()
		if err != nil {
			e.Close()
			return nil, err
		}
		e.Usage = quota.NewService(counter)
	}

	if opts.storage && cfg.Storage.Enabled() {
		store, err := storage.New(ctx, cfg.Storage, logger)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.Images = store
	}

	var images core.ImageStore
	if e.Images != nil {
		images = e.Images
	}
	var consumer core.QuotaConsumer
	if e.Usage != nil {
		consumer = e.Usage
	}
	e.Processor = core.NewProcessor(logger, e.OCR, e.Pipeline, consumer, images)
	return e, nil
}

func (e *env) usageCounter() (quota.Counter, error) {
	switch cfg.Quota.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		e.Redis = rdb
		e.closers = append(e.closers, rdb.Close)
		return quota.NewRedisCounter(rdb), nil
	case "postgres":
		if e.Pool == nil {
			return nil, eris.New("quota backend postgres needs a database")
		}
		return repository.NewUsageCounter(e.Pool), nil
	case "none":
		return nil, nil
	}
	return nil, errors.New("unknown quota backend " + cfg.Quota.Backend)
}
