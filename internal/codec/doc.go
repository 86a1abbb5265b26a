// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the canonical binary encoding corestore uses
// wherever bytes must hash or compare identically across processes:
// manifests (hashed to derive a core's key, spec.md §3), and the
// per-discovery-key auth records a Storage backend persists (spec.md §6).
//
// Core Deterministic Encoding (RFC 8949 §4.2) guarantees the same
// logical value always produces the same bytes — required for
// Key(manifest) to be a pure function of the manifest's content rather
// than of field-ordering happenstance.
package codec
