// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitestore is the durable storage.Storage backend: a
// SQLite database holding the master seed slot, the discovery-key
// existence index, the name→discovery-key alias table, and
// per-discovery-key auth records. It does not persist block data, the
// Merkle tree, or the bitfield — those belong to the CoreEngine.
package sqlitestore

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"iter"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/corestore-go/corestore/engine"
	"github.com/corestore-go/corestore/internal/codec"
	"github.com/corestore-go/corestore/storage"
)

// Config holds the parameters for opening a sqlitestore.Store.
type Config struct {
	// Path is the filesystem path to the database file, or ":memory:"
	// for an ephemeral in-process database. The parent directory must
	// exist.
	Path string

	// Logger receives operational messages. Defaults to a discard
	// handler if nil.
	Logger *slog.Logger
}

// Store is a storage.Storage backed by a pooled SQLite connection.
type Store struct {
	pool   *pool
	logger *slog.Logger
}

// Open creates or opens a sqlitestore database at cfg.Path, applying
// schema migrations on first use.
func Open(cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	p, err := openPool(cfg.Path, logger)
	if err != nil {
		return nil, err
	}

	return &Store{pool: p, logger: logger}, nil
}

var _ storage.Storage = (*Store)(nil)

func (s *Store) GetSeed(ctx context.Context) ([32]byte, bool, error) {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return [32]byte{}, false, err
	}
	defer s.pool.put(conn)

	var seed [32]byte
	var found bool
	err = sqlitex.Execute(conn, `SELECT value FROM seed WHERE id = 0`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			if stmt.ColumnLen(0) != 32 {
				return fmt.Errorf("sqlitestore: stored seed has length %d, want 32", stmt.ColumnLen(0))
			}
			stmt.ColumnBytes(0, seed[:])
			found = true
			return nil
		},
	})
	if err != nil {
		return [32]byte{}, false, fmt.Errorf("sqlitestore: get seed: %w", err)
	}
	return seed, found, nil
}

// SetSeed persists seed only if no seed row exists yet, then returns
// whichever seed now occupies the slot. The insert and the
// read-back happen inside one transaction so two processes racing to
// create the seed can never both believe they won.
func (s *Store) SetSeed(ctx context.Context, seed [32]byte) ([32]byte, error) {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return [32]byte{}, err
	}
	defer s.pool.put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return [32]byte{}, fmt.Errorf("sqlitestore: set seed: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	if execErr := sqlitex.Execute(conn, `INSERT OR IGNORE INTO seed (id, value) VALUES (0, ?)`, &sqlitex.ExecOptions{
		Args: []any{seed[:]},
	}); execErr != nil {
		err = fmt.Errorf("sqlitestore: set seed: %w", execErr)
		return [32]byte{}, err
	}

	var persisted [32]byte
	if execErr := sqlitex.Execute(conn, `SELECT value FROM seed WHERE id = 0`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			stmt.ColumnBytes(0, persisted[:])
			return nil
		},
	}); execErr != nil {
		err = fmt.Errorf("sqlitestore: set seed: reading back: %w", execErr)
		return [32]byte{}, err
	}

	return persisted, nil
}

func (s *Store) Has(ctx context.Context, discoveryKey [engine.KeySize]byte) (bool, error) {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return false, err
	}
	defer s.pool.put(conn)

	var found bool
	err = sqlitex.Execute(conn, `SELECT 1 FROM cores WHERE discovery_key = ?`, &sqlitex.ExecOptions{
		Args: []any{discoveryKey[:]},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			found = true
			return nil
		},
	})
	if err != nil {
		return false, fmt.Errorf("sqlitestore: has: %w", err)
	}
	return found, nil
}

func (s *Store) GetAlias(ctx context.Context, namespace [engine.KeySize]byte, name string) ([engine.KeySize]byte, bool, error) {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return [engine.KeySize]byte{}, false, err
	}
	defer s.pool.put(conn)

	var discoveryKey [engine.KeySize]byte
	var found bool
	err = sqlitex.Execute(conn, `SELECT discovery_key FROM aliases WHERE namespace = ? AND name = ?`, &sqlitex.ExecOptions{
		Args: []any{namespace[:], name},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			if stmt.ColumnLen(0) != engine.KeySize {
				return fmt.Errorf("sqlitestore: stored discovery key has length %d, want %d", stmt.ColumnLen(0), engine.KeySize)
			}
			stmt.ColumnBytes(0, discoveryKey[:])
			found = true
			return nil
		},
	})
	if err != nil {
		return [engine.KeySize]byte{}, false, fmt.Errorf("sqlitestore: get alias: %w", err)
	}
	return discoveryKey, found, nil
}

func (s *Store) SetAlias(ctx context.Context, namespace [engine.KeySize]byte, name string, discoveryKey [engine.KeySize]byte) error {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.put(conn)

	err = sqlitex.Execute(conn, `INSERT OR REPLACE INTO aliases (namespace, name, discovery_key) VALUES (?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{namespace[:], name, discoveryKey[:]},
	})
	if err != nil {
		return fmt.Errorf("sqlitestore: set alias: %w", err)
	}
	return nil
}

// authRecordWire is the CBOR-encoded shape of storage.AuthRecord.
// ed25519 keys are plain byte slices so they marshal without a custom
// codec; the manifest and key pair are optional because a core opened
// from a bare key or discovery key has neither.
type authRecordWire struct {
	Key             [engine.KeySize]byte `cbor:"1,keyasint"`
	ManifestVersion *int                 `cbor:"2,keyasint,omitempty"`
	Signers         [][]byte             `cbor:"3,keyasint,omitempty"`
	PublicKey       []byte               `cbor:"4,keyasint,omitempty"`
	PrivateKey      []byte               `cbor:"5,keyasint,omitempty"`
}

func encodeAuthRecord(record storage.AuthRecord) ([]byte, error) {
	wire := authRecordWire{Key: record.Key}
	if record.Manifest != nil {
		version := record.Manifest.Version
		wire.ManifestVersion = &version
		for _, signer := range record.Manifest.Signers {
			wire.Signers = append(wire.Signers, []byte(signer.PublicKey))
		}
	}
	if record.KeyPair != nil {
		wire.PublicKey = []byte(record.KeyPair.PublicKey)
		wire.PrivateKey = []byte(record.KeyPair.PrivateKey)
	}
	return codec.Marshal(wire)
}

func decodeAuthRecord(data []byte) (storage.AuthRecord, error) {
	var wire authRecordWire
	if err := codec.Unmarshal(data, &wire); err != nil {
		return storage.AuthRecord{}, err
	}

	record := storage.AuthRecord{Key: wire.Key}
	if wire.ManifestVersion != nil {
		manifest := engine.Manifest{Version: *wire.ManifestVersion}
		for _, signer := range wire.Signers {
			manifest.Signers = append(manifest.Signers, engine.Signer{PublicKey: ed25519.PublicKey(signer)})
		}
		record.Manifest = &manifest
	}
	if wire.PrivateKey != nil {
		record.KeyPair = &engine.KeyPair{
			PublicKey:  ed25519.PublicKey(wire.PublicKey),
			PrivateKey: ed25519.PrivateKey(wire.PrivateKey),
		}
	}
	return record, nil
}

func (s *Store) GetAuth(ctx context.Context, discoveryKey [engine.KeySize]byte) (storage.AuthRecord, bool, error) {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return storage.AuthRecord{}, false, err
	}
	defer s.pool.put(conn)

	var record storage.AuthRecord
	var found bool
	var decodeErr error
	err = sqlitex.Execute(conn, `SELECT record FROM auth WHERE discovery_key = ?`, &sqlitex.ExecOptions{
		Args: []any{discoveryKey[:]},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			data := make([]byte, stmt.ColumnLen(0))
			stmt.ColumnBytes(0, data)
			record, decodeErr = decodeAuthRecord(data)
			found = decodeErr == nil
			return decodeErr
		},
	})
	if err != nil {
		return storage.AuthRecord{}, false, fmt.Errorf("sqlitestore: get auth: %w", err)
	}
	return record, found, nil
}

func (s *Store) SetAuth(ctx context.Context, discoveryKey [engine.KeySize]byte, record storage.AuthRecord) error {
	data, err := encodeAuthRecord(record)
	if err != nil {
		return fmt.Errorf("sqlitestore: set auth: encoding record: %w", err)
	}

	conn, err := s.pool.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("sqlitestore: set auth: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	if execErr := sqlitex.Execute(conn, `INSERT OR REPLACE INTO auth (discovery_key, record) VALUES (?, ?)`, &sqlitex.ExecOptions{
		Args: []any{discoveryKey[:], data},
	}); execErr != nil {
		err = fmt.Errorf("sqlitestore: set auth: %w", execErr)
		return err
	}

	version := 1
	if record.Manifest != nil {
		version = record.Manifest.Version
	}
	if execErr := sqlitex.Execute(conn, `INSERT OR REPLACE INTO cores (discovery_key, version, created_at) VALUES (?, ?, unixepoch())`, &sqlitex.ExecOptions{
		Args: []any{discoveryKey[:], version},
	}); execErr != nil {
		err = fmt.Errorf("sqlitestore: set auth: recording core: %w", execErr)
		return err
	}

	return nil
}

func (s *Store) GetUserData(ctx context.Context, discoveryKey [engine.KeySize]byte, key string) ([]byte, bool, error) {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return nil, false, err
	}
	defer s.pool.put(conn)

	var value []byte
	var found bool
	err = sqlitex.Execute(conn, `SELECT value FROM user_data WHERE discovery_key = ? AND key = ?`, &sqlitex.ExecOptions{
		Args: []any{discoveryKey[:], key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			value = make([]byte, stmt.ColumnLen(0))
			stmt.ColumnBytes(0, value)
			found = true
			return nil
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("sqlitestore: get user data: %w", err)
	}
	return value, found, nil
}

func (s *Store) SetUserData(ctx context.Context, discoveryKey [engine.KeySize]byte, key string, value []byte) error {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.put(conn)

	err = sqlitex.Execute(conn, `INSERT OR REPLACE INTO user_data (discovery_key, key, value) VALUES (?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{discoveryKey[:], key, value},
	})
	if err != nil {
		return fmt.Errorf("sqlitestore: set user data: %w", err)
	}
	return nil
}

func (s *Store) CreateCoreStream(ctx context.Context) iter.Seq2[storage.CoreEntry, error] {
	return func(yield func(storage.CoreEntry, error) bool) {
		conn, err := s.pool.take(ctx)
		if err != nil {
			yield(storage.CoreEntry{}, err)
			return
		}
		defer s.pool.put(conn)

		var stopped bool
		err = sqlitex.Execute(conn, `SELECT discovery_key, version FROM cores`, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				if stopped {
					return nil
				}
				var entry storage.CoreEntry
				stmt.ColumnBytes(0, entry.DiscoveryKey[:])
				entry.Version = stmt.ColumnInt(1)
				if !yield(entry, nil) {
					stopped = true
				}
				return nil
			},
		})
		if err != nil && !stopped {
			yield(storage.CoreEntry{}, fmt.Errorf("sqlitestore: create core stream: %w", err))
		}
	}
}

func (s *Store) CreateDiscoveryKeyStream(ctx context.Context, namespace *[engine.KeySize]byte) iter.Seq2[[engine.KeySize]byte, error] {
	return func(yield func([engine.KeySize]byte, error) bool) {
		conn, err := s.pool.take(ctx)
		if err != nil {
			yield([engine.KeySize]byte{}, err)
			return
		}
		defer s.pool.put(conn)

		query := `SELECT discovery_key FROM aliases`
		var args []any
		if namespace != nil {
			query += ` WHERE namespace = ?`
			args = []any{namespace[:]}
		}

		var stopped bool
		err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				if stopped {
					return nil
				}
				var key [engine.KeySize]byte
				stmt.ColumnBytes(0, key[:])
				if !yield(key, nil) {
					stopped = true
				}
				return nil
			},
		})
		if err != nil && !stopped {
			yield([engine.KeySize]byte{}, fmt.Errorf("sqlitestore: create discovery key stream: %w", err))
		}
	}
}

func (s *Store) Close() error {
	return s.pool.close()
}

func (s *Store) Flush(ctx context.Context) error {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.put(conn)

	if err := sqlitex.ExecuteTransient(conn, `PRAGMA wal_checkpoint(PASSIVE)`, nil); err != nil {
		return fmt.Errorf("sqlitestore: flush: %w", err)
	}
	return nil
}

// Suspend and Resume are no-ops for sqlitestore: the connection pool
// holds no external resources that benefit from being torn down and
// rebuilt across a suspend/resume cycle, unlike a replication
// transport's network sockets.
func (s *Store) Suspend(ctx context.Context) error {
	return nil
}

func (s *Store) Resume(ctx context.Context) error {
	return nil
}
