package ocr

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/keiba-tracker/internal/common"
)

const cacheMigration = `
CREATE TABLE IF NOT EXISTS ocr_cache (
	hash       TEXT NOT NULL,
	engine     TEXT NOT NULL,
	text       TEXT NOT NULL,
	confidence REAL NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (hash, engine)
);
`

// Cache stores OCR text keyed by image hash and engine.
type Cache struct {
	db *sql.DB
}

// OpenCache opens (and migrates) a SQLite cache at path. ":memory:" works for tests.
func OpenCache(ctx context.Context, path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "ocr cache: open")
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "ocr cache: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, cacheMigration); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "ocr cache: migrate")
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached result and whether one existed.
func (c *Cache) Get(ctx context.Context, hash, engine string) (Result, bool, error) {
	var res Result
	err := c.db.QueryRowContext(ctx,
		`SELECT text, confidence FROM ocr_cache WHERE hash = ? AND engine = ?`,
		hash, engine,
	).Scan(&res.Text, &res.Confidence)
	if errors.Is(err, sql.ErrNoRows) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, eris.Wrap(err, "ocr cache: get")
	}
	res.Engine = engine
	res.Cached = true
	return res, true, nil
}

func (c *Cache) Put(ctx context.Context, hash string, res Result) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO ocr_cache (hash, engine, text, confidence, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (hash, engine) DO UPDATE SET text = excluded.text, confidence = excluded.confidence`,
		hash, res.Engine, res.Text, res.Confidence, time.Now().UTC(),
	)
	return eris.Wrap(err, "ocr cache: put")
}

// Cached consults the cache before calling the wrapped engine. Cache errors
// are logged and never fail the read.
type Cached struct {
	next   TextSource
	cache  *Cache
	logger *zap.Logger
}

func NewCached(next TextSource, cache *Cache, logger *zap.Logger) *Cached {
	return &Cached{next: next, cache: cache, logger: common.LoggerOrGlobal(logger)}
}

func (c *Cached) Name() string { return c.next.Name() }

func (c *Cached) ExtractText(ctx context.Context, img Image) (Result, error) {
	log := common.LoggerFromContext(ctx, c.logger)
	hash := ContentHash(img.Data)

	if res, ok, err := c.cache.Get(ctx, hash, c.next.Name()); err != nil {
		log.Warn("ocr.cache.get_failed", zap.Error(err))
	} else if ok {
		log.Debug("ocr.cache.hit", zap.String("hash", hash))
		return res, nil
	}

	res, err := c.next.ExtractText(ctx, img)
	if err != nil {
		return res, err
	}
	if res.Engine == "" {
		res.Engine = c.next.Name()
	}
	if res.Text != "" {
		if err := c.cache.Put(ctx, hash, res); err != nil {
			log.Warn("ocr.cache.put_failed", zap.Error(err))
		}
	}
	return res, nil
}
