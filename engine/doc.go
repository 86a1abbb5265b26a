// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine declares the CoreEngine contract spec.md §6 describes:
// the append-log implementation Corestore drives but does not itself
// implement. Corestore's job is to route, register, derive, and attach
// (spec.md §1); the engine's job is block append, the Merkle tree, block
// I/O, audit, and the on-disk format.
//
// Two things live here that are NOT engine-internal state, and so are
// implemented (not just declared) in this package: Manifest and the
// Key/DiscoveryKey derivation spec.md §3 assigns to "the engine" — these
// are pure functions of a manifest's content, independent of any
// particular engine's storage layout, and every corestore implementation
// needs the same answer for "what is this manifest's key" regardless of
// which engine ultimately opens the resulting core.
//
// engine/memcore provides a minimal, in-memory CoreEngine used by this
// module's own tests. It is not a production hypercore engine — it has
// no Merkle tree, no bitfield, and no on-disk format — but it does real
// Ed25519 append-signature verification, which is enough to exercise
// every corestore operation spec.md §8 describes end-to-end.
package engine
