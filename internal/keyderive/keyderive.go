// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keyderive

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
)

// Size is the byte length of every hash, key, and seed this package
// produces: primary keys, namespaces, seeds, and Ed25519 public keys.
const Size = 32

// domainTag is the fixed 32-byte constant NS from spec.md §3: the
// BLAKE3 digest of the ASCII string "corestore". Mixed into every
// derivation so that a primary key shared with another application
// (or another derivation path within this one) can never collide.
var domainTag = blake3.Sum256([]byte("corestore"))

// DefaultNamespace is the all-zero namespace a fresh root Store starts
// from (spec.md §3).
var DefaultNamespace [Size]byte

// DeriveNamespace derives a child namespace from a parent namespace and
// a name. Namespaces compose by hashing: each call to Store.Namespace
// walks one level deeper by keying a BLAKE3 hash with the parent
// namespace and hashing the domain tag together with the name.
//
// Keying on the parent namespace (rather than concatenating it into the
// hashed data) is what gives namespace chaining its tree structure: two
// different parents can never produce the same child namespace for the
// same name, because they hash under different keys entirely, not just
// different input bytes.
func DeriveNamespace(parentNamespace [Size]byte, name []byte) [Size]byte {
	hasher, err := blake3.NewKeyed(parentNamespace[:])
	if err != nil {
		// NewKeyed only fails for a key of the wrong length; parentNamespace
		// is a fixed-size array and can never be anything but 32 bytes.
		panic("keyderive: BLAKE3 keyed hash rejected a 32-byte key: " + err.Error())
	}
	hasher.Write(domainTag[:])
	hasher.Write(name)

	var result [Size]byte
	copy(result[:], hasher.Sum(nil))
	return result
}

// DeriveSeed derives the 32-byte Ed25519 seed for a given namespace and
// name, keyed by the store's primary key (spec.md §3:
// seed = H_keyed(NS || ns || name; key = primary_key)).
//
// The primary key never appears as hashed data, only as the hash key —
// an attacker who observes many (ns, name, seed) triples learns nothing
// about the primary key itself, only about the BLAKE3 keyed-hash output
// for those particular inputs.
func DeriveSeed(primaryKey, namespace [Size]byte, name []byte) [Size]byte {
	hasher, err := blake3.NewKeyed(primaryKey[:])
	if err != nil {
		panic("keyderive: BLAKE3 keyed hash rejected a 32-byte key: " + err.Error())
	}
	hasher.Write(domainTag[:])
	hasher.Write(namespace[:])
	hasher.Write(name)

	var result [Size]byte
	copy(result[:], hasher.Sum(nil))
	return result
}

// CreateKeyPair derives an Ed25519 keypair from the primary key,
// namespace, and name (spec.md §4.1). Deterministic: the same three
// inputs always yield the same keypair, on any process, any time.
func CreateKeyPair(primaryKey, namespace [Size]byte, name []byte) (ed25519.PublicKey, ed25519.PrivateKey) {
	seed := DeriveSeed(primaryKey, namespace, name)
	private := ed25519.NewKeyFromSeed(seed[:])
	public := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(public, private[ed25519.SeedSize:])
	return public, private
}

// CreateToken returns 32 bytes of cryptographically random data
// (spec.md §4.1's create_token). Used wherever the caller needs an
// opaque, unguessable identifier unrelated to any derived key —
// for example, a client-generated request correlation id.
func CreateToken() ([Size]byte, error) {
	var token [Size]byte
	if _, err := io.ReadFull(rand.Reader, token[:]); err != nil {
		return token, fmt.Errorf("keyderive: generating random token: %w", err)
	}
	return token, nil
}

// GeneratePrimaryKey returns a fresh, random 32-byte master seed. Called
// exactly once, the first time a Store opens against storage with no
// persisted seed (spec.md §4.6.2).
func GeneratePrimaryKey() ([Size]byte, error) {
	var key [Size]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return key, fmt.Errorf("keyderive: generating primary key: %w", err)
	}
	return key, nil
}
