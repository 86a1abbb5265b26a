// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"crypto/ed25519"
	"testing"
)

func mustKeyPair(t *testing.T) ed25519.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("ed25519.GenerateKey: %v", err)
	}
	return pub
}

func TestKeyIsDeterministic(t *testing.T) {
	manifest := SingleSignerManifest(1, mustKeyPair(t))

	a, err := Key(manifest)
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	b, err := Key(manifest)
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	if a != b {
		t.Fatalf("Key is not deterministic: %x != %x", a, b)
	}
}

func TestKeyDiffersBySigner(t *testing.T) {
	manifestA := SingleSignerManifest(1, mustKeyPair(t))
	manifestB := SingleSignerManifest(1, mustKeyPair(t))

	keyA, err := Key(manifestA)
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	keyB, err := Key(manifestB)
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	if keyA == keyB {
		t.Fatal("distinct signers produced the same manifest key")
	}
}

func TestKeyRejectsEmptyManifest(t *testing.T) {
	if _, err := Key(Manifest{Version: 1}); err == nil {
		t.Fatal("expected an error for a manifest with no signers")
	}
}

func TestDiscoveryKeyIsDeterministic(t *testing.T) {
	manifest := SingleSignerManifest(1, mustKeyPair(t))
	key, err := Key(manifest)
	if err != nil {
		t.Fatalf("Key: %v", err)
	}

	a := DiscoveryKey(key)
	b := DiscoveryKey(key)
	if a != b {
		t.Fatalf("DiscoveryKey is not deterministic: %x != %x", a, b)
	}
	if a == key {
		t.Fatal("discovery key must not equal the core key")
	}
}

func TestDiscoveryKeyDiffersByKey(t *testing.T) {
	manifestA := SingleSignerManifest(1, mustKeyPair(t))
	manifestB := SingleSignerManifest(1, mustKeyPair(t))

	keyA, err := Key(manifestA)
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	keyB, err := Key(manifestB)
	if err != nil {
		t.Fatalf("Key: %v", err)
	}

	if DiscoveryKey(keyA) == DiscoveryKey(keyB) {
		t.Fatal("distinct keys produced the same discovery key")
	}
}
