// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"crypto/ed25519"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/corestore-go/corestore/internal/codec"
)

// KeySize is the byte length of a core's key and discovery key.
const KeySize = 32

// Signer is one entry in a Manifest's signer list. Corestore only ever
// constructs single-signer manifests (spec.md §3's default manifest),
// but the shape allows an engine to support multi-signer manifests
// without a wire-format change.
type Signer struct {
	PublicKey ed25519.PublicKey `cbor:"1,keyasint"`
}

// Manifest describes a core's authorization: which signer(s) may append
// to it, under which manifest version. spec.md §3's default manifest is
// {version: 1, signers: [{public_key}]}.
type Manifest struct {
	Version int      `cbor:"1,keyasint"`
	Signers []Signer `cbor:"2,keyasint"`
}

// manifestDomainTag keys the BLAKE3 hash used to derive a manifest's
// key, keeping manifest-key derivation in its own domain separate from
// keyderive's namespace/seed derivations and from DiscoveryKey below.
var manifestDomainTag = blake3.Sum256([]byte("corestore-manifest"))

// discoveryKeyDomain is the ASCII string hashed to produce a
// discovery key, per spec.md §3: discovery_key = H_keyed("hypercore", key).
const discoveryKeyDomain = "hypercore"

// Key derives a core's key deterministically from its manifest
// (spec.md §3: "key(manifest) is defined by the engine"). The manifest
// is encoded with corestore's canonical CBOR encoding first so that
// two manifests with identical content always hash identically
// regardless of construction order.
func Key(manifest Manifest) ([KeySize]byte, error) {
	if len(manifest.Signers) == 0 {
		return [KeySize]byte{}, fmt.Errorf("engine: manifest has no signers")
	}

	encoded, err := codec.Marshal(manifest)
	if err != nil {
		return [KeySize]byte{}, fmt.Errorf("engine: encoding manifest: %w", err)
	}

	hasher, err := blake3.NewKeyed(manifestDomainTag[:])
	if err != nil {
		panic("engine: BLAKE3 keyed hash rejected a 32-byte key: " + err.Error())
	}
	hasher.Write(encoded)

	var key [KeySize]byte
	copy(key[:], hasher.Sum(nil))
	return key, nil
}

// DiscoveryKey derives a core's discovery key from its key (spec.md §3).
// The discovery key is the opaque, public identifier advertised on the
// wire; it reveals nothing about the underlying verifier key beyond
// what a keyed hash inherently leaks (nothing, absent the key).
func DiscoveryKey(key [KeySize]byte) [KeySize]byte {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("engine: BLAKE3 keyed hash rejected a 32-byte key: " + err.Error())
	}
	hasher.Write([]byte(discoveryKeyDomain))

	var discoveryKey [KeySize]byte
	copy(discoveryKey[:], hasher.Sum(nil))
	return discoveryKey
}

// SingleSignerManifest builds the default manifest shape spec.md §3
// describes for a core opened by name or by keypair: one signer, at the
// given manifest version.
func SingleSignerManifest(version int, publicKey ed25519.PublicKey) Manifest {
	return Manifest{
		Version: version,
		Signers: []Signer{{PublicKey: publicKey}},
	}
}
