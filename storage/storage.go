// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package storage declares the persistence contract corestore.md §6
// describes as consumed, not implemented in full generality — a slot
// for the master seed, an existence/audit index of every core the
// store has ever created, a name→discovery-key alias table, and a
// per-discovery-key auth record used to answer on-demand opens.
//
// Two implementations ship in subpackages: storage/sqlitestore, a
// durable backend built on zombiezen.com/go/sqlite, and
// storage/memstore, an in-memory backend for tests and ephemeral
// stores.
package storage

import (
	"context"
	"iter"

	"github.com/corestore-go/corestore/engine"
)

// AuthRecord is the persisted form of the identity a core was created
// with — enough to reconstruct the same Auth resolution the caller
// used originally, so an on-demand open triggered by a peer's
// discovery key (spec.md §4.6.5) can find the manifest and, if this
// process created the core, its key pair.
type AuthRecord struct {
	Key      [engine.KeySize]byte
	Manifest *engine.Manifest
	KeyPair  *engine.KeyPair
}

// CoreEntry is one row of the existence/audit index: every discovery
// key this store has ever created, and the manifest version it was
// created under.
type CoreEntry struct {
	DiscoveryKey [engine.KeySize]byte
	Version      int
}

// Storage is the persistence contract a Store is built on. All
// methods must be safe for concurrent use.
type Storage interface {
	// GetSeed returns the persisted master seed, or ok=false if none
	// has been written yet.
	GetSeed(ctx context.Context) (seed [32]byte, ok bool, err error)

	// SetSeed persists seed if no seed has been written yet ("create
	// once" semantics, spec.md §4.6.2) and returns whichever seed is
	// now persisted — the caller's, if this call won the race, or the
	// one already there otherwise. Callers use the returned value to
	// detect a conflicting externally-supplied primary key.
	SetSeed(ctx context.Context, seed [32]byte) (persisted [32]byte, err error)

	// Has reports whether a core with the given discovery key has
	// ever been created in this storage.
	Has(ctx context.Context, discoveryKey [engine.KeySize]byte) (bool, error)

	// GetAlias resolves a (namespace, name) pair to the discovery key
	// it was registered under, if any.
	GetAlias(ctx context.Context, namespace [engine.KeySize]byte, name string) (discoveryKey [engine.KeySize]byte, ok bool, err error)

	// SetAlias registers the reverse mapping from (namespace, name) to
	// discoveryKey. Called once, when a core opened by name is first
	// created.
	SetAlias(ctx context.Context, namespace [engine.KeySize]byte, name string, discoveryKey [engine.KeySize]byte) error

	// GetAuth returns the auth record persisted for discoveryKey, if
	// any.
	GetAuth(ctx context.Context, discoveryKey [engine.KeySize]byte) (AuthRecord, bool, error)

	// SetAuth persists the auth record a core was created with, and
	// records the core in the existence/audit index.
	SetAuth(ctx context.Context, discoveryKey [engine.KeySize]byte, record AuthRecord) error

	// GetUserData and SetUserData persist the per-core user-data keys
	// every core carries alongside its block data: corestore/name
	// (UTF-8 bytes) and corestore/namespace (32 bytes), plus whatever
	// else a caller's create request asks to set. This makes every
	// Storage implementation also an engine.EngineStorage: a
	// CoreEngine that wants a durable place to keep these two keys can
	// use the same Storage a Store was built on rather than requiring
	// its own separate store.
	GetUserData(ctx context.Context, discoveryKey [engine.KeySize]byte, key string) ([]byte, bool, error)
	SetUserData(ctx context.Context, discoveryKey [engine.KeySize]byte, key string, value []byte) error

	// CreateCoreStream returns a lazy, single-pass sequence over every
	// core this storage has ever created (spec.md §4.7's audit
	// adaptor drives its iteration from this).
	CreateCoreStream(ctx context.Context) iter.Seq2[CoreEntry, error]

	// CreateDiscoveryKeyStream returns a lazy, single-pass sequence of
	// discovery keys, optionally restricted to cores created under
	// the given namespace (spec.md §4.6.7's list()).
	CreateDiscoveryKeyStream(ctx context.Context, namespace *[engine.KeySize]byte) iter.Seq2[[engine.KeySize]byte, error]

	Close() error
	Flush(ctx context.Context) error
	Suspend(ctx context.Context) error
	Resume(ctx context.Context) error
}
