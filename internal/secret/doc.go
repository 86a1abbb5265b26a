// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides a memory-safe buffer for the one class of
// long-lived sensitive value corestore handles directly: the 32-byte
// master seed (spec.md's "primary_key") and, when seed escrow is in use,
// the age private key that decrypts a backed-up seed.
//
// [Buffer] allocates memory outside the Go heap via mmap(MAP_ANONYMOUS),
// locks it into physical RAM via mlock (preventing swap), and marks it
// excluded from core dumps via madvise(MADV_DONTDUMP). On Close, the
// memory is zeroed, unlocked, and unmapped. Because the memory lives
// outside the Go heap, the garbage collector cannot copy or relocate
// it, guaranteeing secret material does not persist after release.
//
// Per-core signing keys derived from the seed (crypto/ed25519.PrivateKey
// values) are deliberately NOT guarded this way: they are short-lived,
// derived on demand from the guarded seed, and handed to the CoreEngine
// contract as plain bytes, matching how the source ecosystem treats
// derived, cheaply-recomputable key material.
package secret
