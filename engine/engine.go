// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"crypto/ed25519"
)

// EngineStorage is the slice of the Storage contract (spec.md §6) a
// CoreEngine needs to create and open a core: raw per-core byte
// storage plus the two user-data keys corestore writes on every core
// it creates (corestore/name, corestore/namespace). Corestore's own
// Storage interface is a superset of this; engines never see the seed
// slot, the alias table, or the discovery-key stream.
type EngineStorage interface {
	GetUserData(ctx context.Context, discoveryKey [KeySize]byte, key string) ([]byte, bool, error)
	SetUserData(ctx context.Context, discoveryKey [KeySize]byte, key string, value []byte) error
}

// CreateOptions carries every field spec.md §6's create() accepts.
// Key, KeyPair, and Manifest carry whatever identity material Auth
// resolution (internal/auth) produced before CoreEngine.Create is
// called: a name open sets both KeyPair and Manifest, a key open sets
// only Key, and a discovery-key-only open may set any of them from a
// persisted auth record, or none.
type CreateOptions struct {
	DiscoveryKey [KeySize]byte

	Key      *[KeySize]byte
	KeyPair  *KeyPair
	Manifest *Manifest

	Overwrite       bool
	Force           bool
	CreateIfMissing bool

	Alias *Alias

	UserData map[string][]byte
}

// KeyPair is an Ed25519 signing keypair, either derived by keyderive or
// supplied directly by the caller (spec.md §4.1's key_pair get-option).
type KeyPair struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// Alias is the (name, namespace) pair a core is registered under in
// the storage backend's alias table (spec.md §6's on-disk layout).
type Alias struct {
	Name      string
	Namespace [KeySize]byte
}

// AuditOptions controls Core.Audit (spec.md §4.7): DryRun reports
// corruption without mutating tree nodes, blocks, or bitfield bits.
type AuditOptions struct {
	DryRun bool
}

// AuditResult summarizes what Core.Audit found and (if not a dry run)
// repaired.
type AuditResult struct {
	Corrupted      bool
	BlocksDropped  int
	NodesDropped   int
	BitfieldRepairs int
}

// Replicator is the subset of a Core's replication state Corestore
// reads and drives directly (spec.md §6): whether the core wants to be
// attached to every live stream, and the attach/detach operations
// against a single peer's Muxer.
type Replicator interface {
	// Downloading reports whether this core should be attached to
	// every live, non-passive stream (spec.md §4.4). CreateOptions does
	// not carry corestore's per-session active flag, so this reports
	// the engine's own state however the session was opened.
	Downloading() bool

	// Attached reports whether this core is already attached to the
	// given muxer, so StreamTracker.AttachAll can skip redundant work.
	Attached(muxer Muxer) bool

	// AttachTo attaches this core to the given peer's muxer so its
	// blocks participate in that peer's traffic.
	AttachTo(muxer Muxer) error
}

// Muxer is the multiplexing object attached to one peer stream; cores
// are attached to a muxer to participate in that peer's traffic
// (spec.md's Glossary). Corestore never inspects a Muxer's contents —
// it is an opaque handle threaded from ProtocolStream through to
// Replicator.AttachTo.
type Muxer interface {
	// StreamID identifies which ProtocolStream owns this muxer, so
	// StreamTracker can look up its tracking entry.
	StreamID() string
}

// Core is the append-log handle a CoreEngine hands back from Create.
// Corestore drives its lifecycle (Ready, Close), its replication
// attachment (via Replicator), and its audit — it never reaches past
// Core into block storage, the Merkle tree, or the bitfield.
type Core interface {
	Ready(ctx context.Context) error
	Close() error

	// SetKeyPair installs a signing keypair on a core that was opened
	// without one (spec.md's set_key_pair) — used when a reader-only
	// core later gains write access.
	SetKeyPair(keyPair KeyPair) error

	Key() [KeySize]byte
	DiscoveryKey() [KeySize]byte
	KeyPair() (KeyPair, bool)

	Replicator() Replicator

	// OnDownloading installs the callback fired whenever this core's
	// Replicator.Downloading transitions, so corestore can attach it to
	// live streams when it starts downloading. Corestore does not detach
	// a core when downloading stops.
	OnDownloading(fn func(downloading bool))

	// OnIdle installs the callback the engine fires when this core has
	// no open sessions (spec.md §4.2); the registry uses it to start
	// its idle-GC grace window.
	OnIdle(fn func())

	Audit(ctx context.Context, opts AuditOptions) (AuditResult, error)

	GetUserData(ctx context.Context, key string) ([]byte, bool, error)
	SetUserData(ctx context.Context, key string, value []byte) error
}

// CoreEngine is the append-log implementation Corestore drives but
// does not itself implement (spec.md §6). Corestore calls Create only
// from the get() that wins the registry's Open reservation for a
// discovery key, so at most one Core is registered per discovery key at
// a time; a core evicted by idle GC is created again on its next get().
type CoreEngine interface {
	Create(ctx context.Context, storage EngineStorage, opts CreateOptions) (Core, error)

	// Key and DiscoveryKey are also exposed as free functions in this
	// package (Key, DiscoveryKey) using corestore's own BLAKE3-based
	// derivation; an engine implementation is free to delegate to
	// them, as engine/memcore does, or to use its own.
	Key(manifest Manifest) ([KeySize]byte, error)
	DiscoveryKey(key [KeySize]byte) [KeySize]byte
}
