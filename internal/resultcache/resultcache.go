// dbgrid: distributed SQL coordinator over a partitioned columnar dataset.
// SPDX-License-Identifier: MIT
//
// Result Cache: content-addresses a query by its normalized SQL, reads
// through a columnar file keyed by that address, and admits a write only
// when the query was expensive enough to be worth persisting (spec §4.6).
// The cache never fails a request: every error here is logged and treated
// as a miss or a swallowed write failure.

package resultcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"dbgrid/internal/sqlengine"
)

const defaultAdmissionThreshold = 500 * time.Millisecond

// Cache reads and writes the content-addressed parquet cache through the
// shared executor, which is the only component that knows how to talk to
// the cache's storage backend (local disk or an object-storage URI).
type Cache struct {
	executor           *sqlengine.Executor
	logger             *zap.Logger
	root               string
	ttl                time.Duration
	admissionThreshold time.Duration
}

func New(executor *sqlengine.Executor, logger *zap.Logger, root string, ttl time.Duration, admissionThreshold time.Duration) *Cache {
	if admissionThreshold <= 0 {
		admissionThreshold = defaultAdmissionThreshold
	}
	return &Cache{executor: executor, logger: logger, root: root, ttl: ttl, admissionThreshold: admissionThreshold}
}

// Key returns the content address for sql: sha256 of its normalized form.
func Key(sql string) string {
	normalized := strings.TrimRight(strings.TrimSpace(sql), ";")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// path returns the cache file location for today's UTC date partition.
func (c *Cache) path(key string) string {
	date := time.Now().UTC().Format("2006-01-02")
	return fmt.Sprintf("%s/cached_date=%s/db_cache_%s.parquet", strings.TrimRight(c.root, "/"), date, key)
}

// isRemotePath reports whether path names an object-storage URI rather than
// a local filesystem path. Remote stores manage their own "directories";
// only a local root needs its parent directory created before COPY.
func isRemotePath(path string) bool {
	return strings.Contains(path, "://")
}

// Execute runs sql through the cache: a read-through hit returns immediately;
// a miss executes req against the executor, then conditionally persists the
// result for next time. Cache errors are logged and never surfaced to the
// caller — they simply fall through to direct execution.
func (c *Cache) Execute(ctx context.Context, req sqlengine.Request, forceRefresh bool) (*sqlengine.Response, error) {
	key := Key(req.SQL)
	path := c.path(key)

	if !forceRefresh {
		if resp, ok := c.readThrough(ctx, path); ok {
			return resp, nil
		}
	}

	start := time.Now()
	resp, err := c.executor.Query(ctx, req)
	if err != nil {
		return nil, err
	}
	duration := time.Since(start)

	if duration > c.admissionThreshold {
		c.writeAsync(path, req.SQL, resp)
	}
	return resp, nil
}

func (c *Cache) readThrough(ctx context.Context, path string) (*sqlengine.Response, bool) {
	minutes := int(c.ttl.Minutes())
	if minutes <= 0 {
		minutes = 60
	}
	sql := fmt.Sprintf(
		"SELECT * EXCLUDE (cached_at, cached_date) FROM read_parquet('%s') WHERE cached_at >= NOW() - INTERVAL '%d minutes'",
		path, minutes,
	)
	resp, err := c.executor.Query(ctx, sqlengine.Request{SQL: sql, NumThreads: sqlengine.AutoThreads})
	if err != nil {
		c.logger.Debug("resultcache.read_miss", zap.String("path", path), zap.Error(err))
		return nil, false
	}
	if len(resp.Rows) == 0 {
		return nil, false
	}
	return resp, true
}

// writeAsync persists resp to path without blocking the caller's response;
// a failure is logged and otherwise has no effect (spec §4.6, §7).
func (c *Cache) writeAsync(path, originalSQL string, resp *sqlengine.Response) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if !isRemotePath(path) {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				c.logger.Warn("resultcache.mkdir_failed", zap.String("path", path), zap.Error(err))
				return
			}
		}

		copySQL := fmt.Sprintf(
			"COPY (SELECT *, NOW() AS cached_at FROM (%s)) TO '%s' (FORMAT PARQUET, OVERWRITE_OR_IGNORE TRUE)",
			strings.TrimRight(strings.TrimSpace(originalSQL), ";"), path,
		)
		if _, err := c.executor.Query(ctx, sqlengine.Request{SQL: copySQL, NumThreads: sqlengine.AutoThreads}); err != nil {
			c.logger.Warn("resultcache.write_failed", zap.String("path", path), zap.Error(err))
		}
	}()
}
