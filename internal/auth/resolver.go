// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/corestore-go/corestore/engine"
	"github.com/corestore-go/corestore/internal/keyderive"
	"github.com/corestore-go/corestore/storage"
)

// Sentinel errors matching spec.md §7's error kinds.
var (
	// ErrMissingIdentity is returned when none of name, key pair,
	// manifest, key, or discovery key is supplied.
	ErrMissingIdentity = errors.New("auth: missing identity: one of name, key pair, manifest, key, or discovery key is required")

	// ErrConflictingIdentity is returned when a name or manifest is
	// combined with a caller-supplied key pair.
	ErrConflictingIdentity = errors.New("auth: name or manifest may not be combined with a caller-supplied key pair")

	// ErrStorageEmpty is returned when a discovery-key-only open finds
	// no existing core in storage and createIfMissing is false.
	ErrStorageEmpty = errors.New("auth: storage empty: no core exists for this discovery key")
)

// Options carries the identity fields of a get() request. Exactly one
// resolution path is taken, in precedence order: Name, then KeyPair,
// then Manifest, then Key, then DiscoveryKey.
type Options struct {
	// Name, if non-nil, derives a key pair from PrimaryKey and
	// Namespace. A zero-length name is legal; the pointer distinguishes
	// "no name given" from "name given as the empty string".
	Name *string

	KeyPair      *engine.KeyPair
	Manifest     *engine.Manifest
	Key          *[engine.KeySize]byte
	DiscoveryKey *[engine.KeySize]byte

	PrimaryKey      [engine.KeySize]byte
	Namespace       [engine.KeySize]byte
	ManifestVersion int

	// CreateIfMissing controls the discovery-key-only path: if false,
	// Resolve checks storage for an existing core and fails with
	// ErrStorageEmpty if none exists.
	CreateIfMissing bool
}

// Resolved is the complete identity a core is opened with.
type Resolved struct {
	KeyPair      *engine.KeyPair
	Key          [engine.KeySize]byte
	DiscoveryKey [engine.KeySize]byte
	Manifest     *engine.Manifest
}

// Resolve implements spec.md §4.5's precedence rules.
func Resolve(ctx context.Context, eng engine.CoreEngine, store storage.Storage, opts Options) (Resolved, error) {
	if opts.Name != nil && opts.KeyPair != nil {
		return Resolved{}, ErrConflictingIdentity
	}
	if opts.Manifest != nil && opts.KeyPair != nil {
		return Resolved{}, ErrConflictingIdentity
	}

	manifestVersion := opts.ManifestVersion
	if manifestVersion == 0 {
		manifestVersion = 1
	}

	switch {
	case opts.Name != nil:
		publicKey, privateKey := keyderive.CreateKeyPair(opts.PrimaryKey, opts.Namespace, []byte(*opts.Name))
		manifest := engine.SingleSignerManifest(manifestVersion, publicKey)
		key, err := eng.Key(manifest)
		if err != nil {
			return Resolved{}, fmt.Errorf("auth: deriving key from name: %w", err)
		}
		return Resolved{
			KeyPair:      &engine.KeyPair{PublicKey: publicKey, PrivateKey: privateKey},
			Key:          key,
			DiscoveryKey: eng.DiscoveryKey(key),
			Manifest:     &manifest,
		}, nil

	case opts.KeyPair != nil:
		manifest := engine.SingleSignerManifest(manifestVersion, opts.KeyPair.PublicKey)
		key, err := eng.Key(manifest)
		if err != nil {
			return Resolved{}, fmt.Errorf("auth: deriving key from key pair: %w", err)
		}
		return Resolved{
			KeyPair:      opts.KeyPair,
			Key:          key,
			DiscoveryKey: eng.DiscoveryKey(key),
			Manifest:     &manifest,
		}, nil

	case opts.Manifest != nil:
		key, err := eng.Key(*opts.Manifest)
		if err != nil {
			return Resolved{}, fmt.Errorf("auth: deriving key from manifest: %w", err)
		}
		return Resolved{
			Key:          key,
			DiscoveryKey: eng.DiscoveryKey(key),
			Manifest:     opts.Manifest,
		}, nil

	case opts.Key != nil:
		return Resolved{
			Key:          *opts.Key,
			DiscoveryKey: eng.DiscoveryKey(*opts.Key),
		}, nil

	case opts.DiscoveryKey != nil:
		if !opts.CreateIfMissing {
			exists, err := store.Has(ctx, *opts.DiscoveryKey)
			if err != nil {
				return Resolved{}, fmt.Errorf("auth: checking storage: %w", err)
			}
			if !exists {
				return Resolved{}, ErrStorageEmpty
			}
		}
		return Resolved{DiscoveryKey: *opts.DiscoveryKey}, nil

	default:
		return Resolved{}, ErrMissingIdentity
	}
}
