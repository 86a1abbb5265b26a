// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitestore

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"testing"

	"github.com/corestore-go/corestore/engine"
	"github.com/corestore-go/corestore/storage"
)

func mustOpen(t *testing.T) *Store {
	t.Helper()
	store, err := Open(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSeedCreateOnce(t *testing.T) {
	store := mustOpen(t)
	ctx := context.Background()

	if _, ok, err := store.GetSeed(ctx); err != nil || ok {
		t.Fatalf("GetSeed on empty store: ok=%v err=%v", ok, err)
	}

	first := [32]byte{1, 2, 3}
	persisted, err := store.SetSeed(ctx, first)
	if err != nil {
		t.Fatalf("SetSeed: %v", err)
	}
	if persisted != first {
		t.Fatalf("SetSeed = %x, want %x", persisted, first)
	}

	second := [32]byte{9, 9, 9}
	persisted, err = store.SetSeed(ctx, second)
	if err != nil {
		t.Fatalf("SetSeed: %v", err)
	}
	if persisted != first {
		t.Fatalf("second SetSeed returned %x, want the original %x", persisted, first)
	}
}

func TestAliasAndAuthRoundTrip(t *testing.T) {
	store := mustOpen(t)
	ctx := context.Background()

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("ed25519.GenerateKey: %v", err)
	}
	manifest := engine.SingleSignerManifest(1, pub)
	key, err := engine.Key(manifest)
	if err != nil {
		t.Fatalf("engine.Key: %v", err)
	}
	discoveryKey := engine.DiscoveryKey(key)

	var namespace [engine.KeySize]byte
	namespace[0] = 42

	if err := store.SetAlias(ctx, namespace, "main", discoveryKey); err != nil {
		t.Fatalf("SetAlias: %v", err)
	}
	got, ok, err := store.GetAlias(ctx, namespace, "main")
	if err != nil || !ok {
		t.Fatalf("GetAlias: ok=%v err=%v", ok, err)
	}
	if got != discoveryKey {
		t.Fatalf("GetAlias = %x, want %x", got, discoveryKey)
	}

	record := storage.AuthRecord{
		Key:      key,
		Manifest: &manifest,
		KeyPair:  &engine.KeyPair{PublicKey: pub, PrivateKey: priv},
	}
	if err := store.SetAuth(ctx, discoveryKey, record); err != nil {
		t.Fatalf("SetAuth: %v", err)
	}

	has, err := store.Has(ctx, discoveryKey)
	if err != nil || !has {
		t.Fatalf("Has: has=%v err=%v", has, err)
	}

	gotRecord, ok, err := store.GetAuth(ctx, discoveryKey)
	if err != nil || !ok {
		t.Fatalf("GetAuth: ok=%v err=%v", ok, err)
	}
	if gotRecord.Key != key {
		t.Fatalf("GetAuth key = %x, want %x", gotRecord.Key, key)
	}
	if gotRecord.Manifest == nil || gotRecord.Manifest.Version != 1 {
		t.Fatalf("GetAuth manifest = %+v, want version 1", gotRecord.Manifest)
	}
	if gotRecord.KeyPair == nil || !ed25519.PublicKey(gotRecord.KeyPair.PublicKey).Equal(pub) {
		t.Fatalf("GetAuth key pair public key mismatch")
	}
}

func TestCoreStreamAndDiscoveryKeyStream(t *testing.T) {
	store := mustOpen(t)
	ctx := context.Background()

	var namespace [engine.KeySize]byte
	namespace[0] = 7

	for i := 0; i < 3; i++ {
		pub, _, err := ed25519.GenerateKey(nil)
		if err != nil {
			t.Fatalf("ed25519.GenerateKey: %v", err)
		}
		manifest := engine.SingleSignerManifest(1, pub)
		key, err := engine.Key(manifest)
		if err != nil {
			t.Fatalf("engine.Key: %v", err)
		}
		discoveryKey := engine.DiscoveryKey(key)

		if err := store.SetAuth(ctx, discoveryKey, storage.AuthRecord{Key: key, Manifest: &manifest}); err != nil {
			t.Fatalf("SetAuth: %v", err)
		}
		if err := store.SetAlias(ctx, namespace, fmt.Sprintf("core-%d", i), discoveryKey); err != nil {
			t.Fatalf("SetAlias: %v", err)
		}
	}

	var coreCount int
	for entry, err := range store.CreateCoreStream(ctx) {
		if err != nil {
			t.Fatalf("CreateCoreStream: %v", err)
		}
		if entry.Version != 1 {
			t.Fatalf("entry version = %d, want 1", entry.Version)
		}
		coreCount++
	}
	if coreCount != 3 {
		t.Fatalf("core stream yielded %d entries, want 3", coreCount)
	}

	var keyCount int
	for _, err := range store.CreateDiscoveryKeyStream(ctx, &namespace) {
		if err != nil {
			t.Fatalf("CreateDiscoveryKeyStream: %v", err)
		}
		keyCount++
	}
	if keyCount != 3 {
		t.Fatalf("discovery key stream yielded %d entries, want 3", keyCount)
	}
}

func TestUserDataRoundTrip(t *testing.T) {
	store := mustOpen(t)
	ctx := context.Background()
	var discoveryKey [engine.KeySize]byte
	discoveryKey[0] = 9

	if _, ok, err := store.GetUserData(ctx, discoveryKey, "corestore/namespace"); err != nil || ok {
		t.Fatalf("GetUserData before SetUserData: ok=%v err=%v", ok, err)
	}

	var namespace [engine.KeySize]byte
	namespace[0] = 11
	if err := store.SetUserData(ctx, discoveryKey, "corestore/namespace", namespace[:]); err != nil {
		t.Fatalf("SetUserData: %v", err)
	}

	got, ok, err := store.GetUserData(ctx, discoveryKey, "corestore/namespace")
	if err != nil || !ok {
		t.Fatalf("GetUserData after SetUserData: ok=%v err=%v", ok, err)
	}
	if len(got) != engine.KeySize || got[0] != 11 {
		t.Fatalf("GetUserData = %x, want namespace with first byte 11", got)
	}
}
