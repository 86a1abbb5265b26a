// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package keyderive implements the pure, I/O-free key derivation
// corestore.md §4.1 specifies: namespace chaining, per-core seed
// derivation from the master seed, and Ed25519 keypair generation from
// that seed.
//
// All three operations are deterministic functions of their inputs.
// Given the same primary key, namespace, and name, two independent
// processes derive byte-identical keypairs — this is what lets a
// closed-and-reopened store recover the same signing key for a core
// opened by name (spec.md §8's round-trip property), and what lets a
// child store rooted at a different namespace derive an unrelated
// keypair for the same name (spec.md §8 scenario 3).
//
// Domain separation follows the pattern in the teacher's
// lib/artifactstore/encrypt.go: every derivation keys a BLAKE3 hash and
// mixes in a fixed domain tag so that no two derivation paths can ever
// collide, even if they happen to share input bytes.
package keyderive
