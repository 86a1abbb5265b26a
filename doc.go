// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package corestore is a factory and lifecycle manager for append-only
// cryptographic logs. A Store derives per-core Ed25519 keypairs from a
// single master seed, interns opened cores in a process-wide registry
// keyed by discovery key, hands out reference-counted Session handles,
// and drives replication attachment across peer streams.
//
// A Store is either the root of a hierarchy or a child "store session"
// produced by Namespace, NamespaceFromCore, or Session. Every store in
// a hierarchy shares one Storage backend, one CoreEngine, one core
// registry, and one set of live replication streams; a child differs
// from its root only in namespace, default writability, and default
// manifest version.
//
// corestore never implements the append-log itself — appending,
// reading, the Merkle tree, and the bitfield all live behind the
// caller-supplied engine.CoreEngine. This package only ever drives a
// Core's lifecycle (Ready, Close), its replication attachment, and its
// audit.
package corestore
