// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package blockcrypt gives a session-level encryption_key concrete
// meaning: HKDF-derived per-block keys, XChaCha20-Poly1305 sealing,
// and BLAKE3-keyed reference obscuring for any block identifier a
// caller exposes to external storage.
//
// A Session's EncryptionKey option is passed through to the engine
// uninterpreted — corestore itself never encrypts block bytes. This
// package exists for callers who would rather encrypt plaintext
// themselves before it reaches the engine than trust the engine's own
// encryption, the same way lib/artifactstore's encryption layer sits
// above (not inside) blob storage.
package blockcrypt
