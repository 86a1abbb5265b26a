// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package seedescrow encrypts and decrypts a corestore master seed for
// off-site disaster-recovery backup. It wraps filippo.io/age: seal the
// 32-byte seed to one or more operator public keys before writing it
// somewhere durable outside the store's own on-disk root, and open it
// back into a secret.Buffer during recovery, before passing the bytes
// to corestore.New as Options.PrimaryKey.
//
// This package has no dependency on Storage or Store — it operates on
// raw seed bytes and exists independently of any open store, the same
// way a standalone backup tool would.
package seedescrow
