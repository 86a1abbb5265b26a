// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package corestore

import (
	"context"

	"github.com/corestore-go/corestore/engine"
	"github.com/corestore-go/corestore/internal/keyderive"
)

// CreateKeyPair derives the signing keypair a core named name would
// get under namespace, without opening or creating that core (spec.md
// §4.6.8). A nil namespace uses the store's own namespace.
func (s *Store) CreateKeyPair(ctx context.Context, name string, namespace *[engine.KeySize]byte) (engine.KeyPair, error) {
	if err := s.ensureReady(ctx); err != nil {
		return engine.KeyPair{}, err
	}
	ns := s.ns
	if namespace != nil {
		ns = *namespace
	}
	pub, priv := keyderive.CreateKeyPair(s.primaryKeyArray(), ns, []byte(name))
	return engine.KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

// CreateToken generates a fresh random invite token, independent of
// any store (spec.md §4.6.8's static factory method).
func CreateToken() ([32]byte, error) {
	return keyderive.CreateToken()
}
