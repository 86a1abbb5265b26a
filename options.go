// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package corestore

import (
	"log/slog"
	"time"

	"github.com/corestore-go/corestore/engine"
	"github.com/corestore-go/corestore/internal/clock"
	"github.com/corestore-go/corestore/internal/secret"
	"github.com/corestore-go/corestore/storage"
)

// Options configures a root Store (spec.md §4.6.1).
type Options struct {
	// Storage is the persistence backend. Required unless the store is
	// built with NewOnDisk, which constructs a storage/sqlitestore.Store
	// from a path.
	Storage storage.Storage

	// Engine drives every core this store creates. Required.
	Engine engine.CoreEngine

	// PrimaryKey seeds the store with a caller-supplied 32-byte master
	// key instead of generating one. If storage already has a
	// different persisted seed, Ready fails with ErrConflictingSeed.
	PrimaryKey *[32]byte

	// GlobalCache is opaque application state threaded through to every
	// Session; corestore never reads or writes it.
	GlobalCache any

	// ManifestVersion is the default manifest version new cores are
	// created under. Zero means 1.
	ManifestVersion int

	// Writable is the default writability new sessions inherit unless
	// a SessionConfig overrides it. Nil means true.
	Writable *bool

	// Passive stores never auto-attach their cores to replication
	// streams, regardless of a core's Downloading flag.
	Passive bool

	Clock  clock.Clock
	Logger *slog.Logger
}

// SessionOptions configures a child store produced by Session
// (spec.md §4.6.1's child construction).
type SessionOptions struct {
	// Namespace overrides the child's namespace. Nil inherits the
	// parent's.
	Namespace *[engine.KeySize]byte

	// Writable overrides the child's default writability. Nil inherits
	// the parent's.
	Writable *bool

	// Passive overrides whether the child auto-attaches its cores to
	// streams. Nil inherits the parent's.
	Passive *bool

	// ManifestVersion overrides the child's default manifest version.
	// Zero inherits the parent's.
	ManifestVersion int
}

// SessionConfig configures a single Get call (spec.md §4.6.4).
// Exactly one identity field should be set; internal/auth enforces
// precedence and rejects conflicting combinations.
type SessionConfig struct {
	Name         *string
	KeyPair      *engine.KeyPair
	Manifest     *engine.Manifest
	Key          *[engine.KeySize]byte
	DiscoveryKey *[engine.KeySize]byte

	// Active, if false, means this session never triggers
	// download-driven replication attachment. Nil means true.
	Active *bool

	// Writable overrides the owning store's default. Nil inherits it.
	Writable *bool

	// Exclusive, combined with an effective Writable of true, acquires
	// a per-discovery-key write lock for the lifetime of the session.
	Exclusive bool

	// Wait, if false, read operations do not wait for network. Nil
	// means true. Pass-through to the engine.
	Wait *bool

	// Timeout is a per-read timeout; zero disables it. Pass-through.
	Timeout time.Duration

	// Draft marks an engine-level append-without-persist session.
	// Pass-through only; corestore does not interpret it.
	Draft bool

	// Encryption, EncryptionKey, and IsBlockKey are opaque
	// block-encryption parameters passed straight through to the
	// engine. See package blockcrypt for one way to give
	// EncryptionKey concrete meaning.
	Encryption    string
	EncryptionKey *secret.Buffer
	IsBlockKey    bool

	// CreateIfMissing, if false, requires the core already exist in
	// storage; Get fails with ErrStorageEmpty otherwise. Nil means
	// true.
	CreateIfMissing *bool

	// OnWait, if set, is called once per read that has to wait for
	// network. Pass-through only.
	OnWait func()

	// ValueEncoding names the engine-level codec for block values.
	// Pass-through only.
	ValueEncoding string
}
