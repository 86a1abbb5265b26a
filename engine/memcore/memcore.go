// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package memcore is a minimal, in-memory engine.CoreEngine used by
// this module's own tests. It keeps blocks in a slice, verifies every
// append against the core's Ed25519 keypair, and fires the idle and
// downloading callbacks corestore's registry and stream tracker rely
// on — enough surface to exercise get/session/replicate/audit
// end-to-end without a real Merkle tree or on-disk format.
package memcore

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"

	"github.com/corestore-go/corestore/engine"
)

// Engine is a stateless engine.CoreEngine; all state lives on the
// Core values it creates.
type Engine struct{}

// New returns a fresh in-memory engine.
func New() *Engine {
	return &Engine{}
}

func (e *Engine) Key(manifest engine.Manifest) ([engine.KeySize]byte, error) {
	return engine.Key(manifest)
}

func (e *Engine) DiscoveryKey(key [engine.KeySize]byte) [engine.KeySize]byte {
	return engine.DiscoveryKey(key)
}

// Create opens (creating if necessary) an in-memory core. memcore
// keeps no persistent state across process restarts: CreateIfMissing
// is treated as always true, and Overwrite always starts a fresh,
// empty block log.
func (e *Engine) Create(ctx context.Context, storage engine.EngineStorage, opts engine.CreateOptions) (engine.Core, error) {
	var manifest engine.Manifest
	var key [engine.KeySize]byte

	switch {
	case opts.Manifest != nil:
		manifest = *opts.Manifest
		derived, err := engine.Key(manifest)
		if err != nil {
			return nil, fmt.Errorf("memcore: deriving key from manifest: %w", err)
		}
		key = derived
	case opts.KeyPair != nil:
		manifest = engine.SingleSignerManifest(1, opts.KeyPair.PublicKey)
		derived, err := engine.Key(manifest)
		if err != nil {
			return nil, fmt.Errorf("memcore: deriving key from keypair: %w", err)
		}
		key = derived
	case opts.Key != nil:
		key = *opts.Key
	default:
		return nil, fmt.Errorf("memcore: create requires a key, key pair, or manifest")
	}

	core := &Core{
		storage:      storage,
		discoveryKey: opts.DiscoveryKey,
		key:          key,
		manifest:     manifest,
	}
	if opts.KeyPair != nil {
		core.keyPair = &engine.KeyPair{
			PublicKey:  opts.KeyPair.PublicKey,
			PrivateKey: opts.KeyPair.PrivateKey,
		}
	}

	for k, v := range opts.UserData {
		if err := core.SetUserData(ctx, k, v); err != nil {
			return nil, err
		}
	}

	return core, nil
}

// Core is memcore's engine.Core implementation: a slice of signed
// blocks guarded by a mutex, with the callback and attachment
// bookkeeping corestore drives directly.
type Core struct {
	mu sync.Mutex

	storage      engine.EngineStorage
	discoveryKey [engine.KeySize]byte
	key          [engine.KeySize]byte
	manifest     engine.Manifest
	keyPair      *engine.KeyPair

	blocks     [][]byte
	signatures [][]byte

	closed bool

	downloading    bool
	attachedMuxers map[string]engine.Muxer

	onDownloading func(bool)
	onIdle        func()

	userData map[string][]byte
}

func (c *Core) Ready(ctx context.Context) error {
	return nil
}

func (c *Core) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.onIdle != nil {
		c.onIdle()
	}
	return nil
}

func (c *Core) SetKeyPair(keyPair engine.KeyPair) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keyPair = &engine.KeyPair{PublicKey: keyPair.PublicKey, PrivateKey: keyPair.PrivateKey}
	return nil
}

func (c *Core) Key() [engine.KeySize]byte {
	return c.key
}

func (c *Core) DiscoveryKey() [engine.KeySize]byte {
	return c.discoveryKey
}

func (c *Core) KeyPair() (engine.KeyPair, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keyPair == nil {
		return engine.KeyPair{}, false
	}
	return *c.keyPair, true
}

func (c *Core) Replicator() engine.Replicator {
	return (*replicator)(c)
}

func (c *Core) OnDownloading(fn func(bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDownloading = fn
}

func (c *Core) OnIdle(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onIdle = fn
}

// Audit walks every block and confirms its signature still verifies
// under the core's public key. memcore has no Merkle tree or bitfield
// to corrupt, so a positive result here only ever means "a signature
// no longer verifies" — which cannot happen without direct tampering
// with the in-memory slice, but the method exists so corestore's
// audit path has something real to call.
func (c *Core) Audit(ctx context.Context, opts engine.AuditOptions) (engine.AuditResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.manifest.Signers) == 0 {
		return engine.AuditResult{}, fmt.Errorf("memcore: audit: core has no signer")
	}
	publicKey := c.manifest.Signers[0].PublicKey

	var result engine.AuditResult
	kept := make([][]byte, 0, len(c.blocks))
	keptSigs := make([][]byte, 0, len(c.signatures))
	for i, block := range c.blocks {
		if !ed25519.Verify(publicKey, block, c.signatures[i]) {
			result.Corrupted = true
			result.BlocksDropped++
			continue
		}
		kept = append(kept, block)
		keptSigs = append(keptSigs, c.signatures[i])
	}
	if !opts.DryRun {
		c.blocks = kept
		c.signatures = keptSigs
	}
	return result, nil
}

func (c *Core) GetUserData(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.userData[key]
	return value, ok, nil
}

func (c *Core) SetUserData(ctx context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.userData == nil {
		c.userData = make(map[string][]byte)
	}
	c.userData[key] = value
	return nil
}

// Append signs data with the core's private key and adds it as the
// next block. It is not part of engine.Core — real hypercore engines
// expose a much richer append/get/tree surface that spec.md
// deliberately leaves out of the CoreEngine contract corestore
// depends on — but tests need some way to put data in a core.
func (c *Core) Append(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keyPair == nil {
		return fmt.Errorf("memcore: append: core has no key pair")
	}
	signature := ed25519.Sign(c.keyPair.PrivateKey, data)
	c.blocks = append(c.blocks, append([]byte(nil), data...))
	c.signatures = append(c.signatures, signature)
	return nil
}

// Length returns the number of blocks appended so far.
func (c *Core) Length() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.blocks)
}

// Get returns the block at the given index.
func (c *Core) Get(index int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.blocks) {
		return nil, fmt.Errorf("memcore: get: index %d out of range [0, %d)", index, len(c.blocks))
	}
	return c.blocks[index], nil
}

// SetDownloading flips the replicator's downloading flag and fires the
// onDownloading callback, simulating what a real engine does when a
// core transitions between wanting and not wanting live replication.
func (c *Core) SetDownloading(downloading bool) {
	c.mu.Lock()
	changed := c.downloading != downloading
	c.downloading = downloading
	cb := c.onDownloading
	c.mu.Unlock()

	if changed && cb != nil {
		cb(downloading)
	}
}

type replicator Core

func (r *replicator) Downloading() bool {
	c := (*Core)(r)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.downloading
}

func (r *replicator) Attached(muxer engine.Muxer) bool {
	c := (*Core)(r)
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.attachedMuxers[muxer.StreamID()]
	return ok
}

func (r *replicator) AttachTo(muxer engine.Muxer) error {
	c := (*Core)(r)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attachedMuxers == nil {
		c.attachedMuxers = make(map[string]engine.Muxer)
	}
	c.attachedMuxers[muxer.StreamID()] = muxer
	return nil
}
