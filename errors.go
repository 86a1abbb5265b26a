// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package corestore

import (
	"errors"

	"github.com/corestore-go/corestore/internal/auth"
)

// Sentinel errors matching spec.md §7's error kinds. The identity
// errors (missing-identity, conflicting-identity, storage-empty) are
// resolved deeper in internal/auth; they're re-exported here so
// callers never need to import that package just to errors.Is against
// them.
var (
	ErrMissingIdentity     = auth.ErrMissingIdentity
	ErrConflictingIdentity = auth.ErrConflictingIdentity
	ErrStorageEmpty        = auth.ErrStorageEmpty

	// ErrStoreClosed is returned by any operation attempted on a store
	// that is closing or already closed.
	ErrStoreClosed = errors.New("corestore: store is closed")

	// ErrConflictingSeed is returned when a caller-supplied primary key
	// does not match the one already persisted in storage.
	ErrConflictingSeed = errors.New("corestore: supplied primary key conflicts with the persisted one")

	// ErrStoredKeyMismatch is returned when a core opened by name
	// resolves to a discovery key that disagrees with the alias table's
	// persisted record for that name.
	ErrStoredKeyMismatch = errors.New("corestore: stored key for this name does not match the derived key")

	// ErrExclusiveWaitCancelled is returned when a caller waiting to
	// acquire an exclusive session lock has its context cancelled, or
	// the store closes, before the lock becomes available.
	ErrExclusiveWaitCancelled = errors.New("corestore: exclusive open cancelled while waiting for the lock")

	// ErrEngineFailure wraps an error returned by the caller-supplied
	// CoreEngine; kept as a distinct sentinel so callers can tell engine
	// failures apart from corestore's own validation and storage
	// errors.
	ErrEngineFailure = errors.New("corestore: engine failure")
)
