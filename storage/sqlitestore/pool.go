// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitestore

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// pool is a fixed-size pool of SQLite connections with the pragmas a
// single-writer, many-reader corestore backend needs: WAL mode so a
// long-running audit doesn't block concurrent Get calls, and a busy
// timeout so a writer briefly holding the write lock doesn't surface
// as a hard error to a reader.
type pool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string
}

func openPool(path string, logger *slog.Logger) (*pool, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlitestore: path is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	poolSize := runtime.NumCPU()
	if poolSize < 4 {
		poolSize = 4
	}
	if path == ":memory:" {
		// Each in-memory connection is an independent database; a
		// pool of more than one would silently fragment the data.
		poolSize = 1
	}

	inner, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: opening %s: %w", path, err)
	}

	logger.Info("sqlite pool opened", "path", path, "pool_size", poolSize)

	return &pool{inner: inner, logger: logger, path: path}, nil
}

func (p *pool) take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: take: %w", err)
	}
	return conn, nil
}

func (p *pool) put(conn *sqlite.Conn) {
	p.inner.Put(conn)
}

func (p *pool) close() error {
	if err := p.inner.Close(); err != nil {
		p.logger.Error("sqlite pool close error", "path", p.path, "error", err)
		return fmt.Errorf("sqlitestore: closing %s: %w", p.path, err)
	}
	p.logger.Info("sqlite pool closed", "path", p.path)
	return nil
}

func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=OFF",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlitestore: %s: %w", pragma, err)
		}
	}
	return applySchema(conn)
}
