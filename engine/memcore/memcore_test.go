// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package memcore

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/corestore-go/corestore/engine"
)

type nullStorage struct{}

func (nullStorage) GetUserData(ctx context.Context, discoveryKey [engine.KeySize]byte, key string) ([]byte, bool, error) {
	return nil, false, nil
}

func (nullStorage) SetUserData(ctx context.Context, discoveryKey [engine.KeySize]byte, key string, value []byte) error {
	return nil
}

func mustCore(t *testing.T) *Core {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("ed25519.GenerateKey: %v", err)
	}
	manifest := engine.SingleSignerManifest(1, pub)
	key, err := engine.Key(manifest)
	if err != nil {
		t.Fatalf("engine.Key: %v", err)
	}

	eng := New()
	core, err := eng.Create(context.Background(), nullStorage{}, engine.CreateOptions{
		DiscoveryKey: engine.DiscoveryKey(key),
		KeyPair:      &engine.KeyPair{PublicKey: pub, PrivateKey: priv},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return core.(*Core)
}

func TestAppendAndGet(t *testing.T) {
	core := mustCore(t)

	if err := core.Append([]byte("hello")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := core.Append([]byte("world")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if got := core.Length(); got != 2 {
		t.Fatalf("Length() = %d, want 2", got)
	}

	block, err := core.Get(0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(block) != "hello" {
		t.Fatalf("Get(0) = %q, want %q", block, "hello")
	}
}

func TestGetOutOfRange(t *testing.T) {
	core := mustCore(t)
	if _, err := core.Get(0); err == nil {
		t.Fatal("expected an error reading from an empty core")
	}
}

func TestAuditPassesForUnmodifiedBlocks(t *testing.T) {
	core := mustCore(t)
	if err := core.Append([]byte("block-1")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	result, err := core.Audit(context.Background(), engine.AuditOptions{})
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if result.Corrupted {
		t.Fatal("Audit reported corruption on unmodified blocks")
	}
	if core.Length() != 1 {
		t.Fatalf("Audit dropped a valid block: Length() = %d", core.Length())
	}
}

func TestAuditDropsForgedBlock(t *testing.T) {
	core := mustCore(t)
	if err := core.Append([]byte("legit")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// Simulate tampering: replace the signature on the one block with
	// another valid-looking but mismatched signature.
	_, otherPriv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("ed25519.GenerateKey: %v", err)
	}
	core.signatures[0] = ed25519.Sign(otherPriv, core.blocks[0])

	result, err := core.Audit(context.Background(), engine.AuditOptions{})
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if !result.Corrupted {
		t.Fatal("Audit did not detect a forged signature")
	}
	if result.BlocksDropped != 1 {
		t.Fatalf("BlocksDropped = %d, want 1", result.BlocksDropped)
	}
	if core.Length() != 0 {
		t.Fatalf("Length() after audit = %d, want 0", core.Length())
	}
}

func TestAuditDryRunDoesNotMutate(t *testing.T) {
	core := mustCore(t)
	if err := core.Append([]byte("legit")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	_, otherPriv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("ed25519.GenerateKey: %v", err)
	}
	core.signatures[0] = ed25519.Sign(otherPriv, core.blocks[0])

	result, err := core.Audit(context.Background(), engine.AuditOptions{DryRun: true})
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if !result.Corrupted {
		t.Fatal("Audit did not detect a forged signature")
	}
	if core.Length() != 1 {
		t.Fatalf("dry-run Audit mutated the core: Length() = %d, want 1", core.Length())
	}
}

func TestOnIdleFiresOnClose(t *testing.T) {
	core := mustCore(t)
	fired := false
	core.OnIdle(func() { fired = true })

	if err := core.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !fired {
		t.Fatal("OnIdle callback did not fire on Close")
	}
}

type fakeMuxer string

func (m fakeMuxer) StreamID() string { return string(m) }

func TestReplicatorAttach(t *testing.T) {
	core := mustCore(t)
	replicator := core.Replicator()
	muxer := fakeMuxer("stream-1")

	if replicator.Attached(muxer) {
		t.Fatal("core reported attached before AttachTo was called")
	}
	if err := replicator.AttachTo(muxer); err != nil {
		t.Fatalf("AttachTo: %v", err)
	}
	if !replicator.Attached(muxer) {
		t.Fatal("core did not report attached after AttachTo")
	}
}

func TestSetDownloadingFiresCallback(t *testing.T) {
	core := mustCore(t)
	var got bool
	var calls int
	core.OnDownloading(func(downloading bool) {
		calls++
		got = downloading
	})

	core.SetDownloading(true)
	if calls != 1 || !got {
		t.Fatalf("calls=%d got=%v, want 1/true", calls, got)
	}

	// No-op transition should not re-fire the callback.
	core.SetDownloading(true)
	if calls != 1 {
		t.Fatalf("calls=%d after no-op transition, want 1", calls)
	}

	core.SetDownloading(false)
	if calls != 2 || got {
		t.Fatalf("calls=%d got=%v, want 2/false", calls, got)
	}
}

func TestUserData(t *testing.T) {
	core := mustCore(t)

	if _, ok, err := core.GetUserData(context.Background(), "missing"); err != nil || ok {
		t.Fatalf("GetUserData on unset key: ok=%v err=%v", ok, err)
	}

	if err := core.SetUserData(context.Background(), "corestore/name", []byte("main")); err != nil {
		t.Fatalf("SetUserData: %v", err)
	}
	value, ok, err := core.GetUserData(context.Background(), "corestore/name")
	if err != nil || !ok {
		t.Fatalf("GetUserData: ok=%v err=%v", ok, err)
	}
	if string(value) != "main" {
		t.Fatalf("GetUserData = %q, want %q", value, "main")
	}
}
