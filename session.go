// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package corestore

import (
	"sync"
	"time"

	"github.com/corestore-go/corestore/engine"
	"github.com/corestore-go/corestore/internal/auth"
	"github.com/corestore-go/corestore/internal/secret"
)

// Session is a user-visible handle returned by Get (spec.md §4.1).
// Multiple sessions may coexist for the same underlying Core; the last
// one to close is what actually closes the Core.
type Session struct {
	store *Store
	id    string
	core  engine.Core

	resolved auth.Resolved

	active   bool
	writable bool

	timeout       time.Duration
	wait          bool
	draft         bool
	encryption    string
	encryptionKey *secret.Buffer
	isBlockKey    bool
	onWait        func()
	valueEncoding string

	mu               sync.Mutex
	closed           bool
	closeErr         error
	releaseExclusive func()

	findingPeersMu    sync.Mutex
	findingPeersToken bool
}

// Core returns the engine.Core this session is a handle to. Reading
// and appending blocks happens through it; corestore itself only
// drives its lifecycle and replication attachment.
func (sess *Session) Core() engine.Core { return sess.core }

// Key returns the core's verifier key. Zero if the session was opened
// by discovery key alone and the key hasn't been learned yet.
func (sess *Session) Key() [engine.KeySize]byte { return sess.resolved.Key }

// DiscoveryKey returns the core's discovery key.
func (sess *Session) DiscoveryKey() [engine.KeySize]byte { return sess.resolved.DiscoveryKey }

// KeyPair returns the session's signing keypair, if it has one.
func (sess *Session) KeyPair() (engine.KeyPair, bool) {
	if sess.resolved.KeyPair == nil {
		return engine.KeyPair{}, false
	}
	return *sess.resolved.KeyPair, true
}

// Manifest returns the core's manifest, if known to this session.
func (sess *Session) Manifest() (engine.Manifest, bool) {
	if sess.resolved.Manifest == nil {
		return engine.Manifest{}, false
	}
	return *sess.resolved.Manifest, true
}

// Writable reports whether this session may append.
func (sess *Session) Writable() bool { return sess.writable }

// Active reports whether this session participates in
// download-driven replication attachment.
func (sess *Session) Active() bool { return sess.active }

// HasFindingPeersToken reports whether this session is currently
// holding a finding-peers grace token (spec.md §4.6.10). An engine
// that wants to honor the grace period consults this before deciding
// a read has found no peers.
func (sess *Session) HasFindingPeersToken() bool {
	sess.findingPeersMu.Lock()
	defer sess.findingPeersMu.Unlock()
	return sess.findingPeersToken
}

func (sess *Session) acquireFindingPeersToken() {
	sess.findingPeersMu.Lock()
	sess.findingPeersToken = true
	sess.findingPeersMu.Unlock()
}

func (sess *Session) releaseFindingPeersToken() {
	sess.findingPeersMu.Lock()
	sess.findingPeersToken = false
	sess.findingPeersMu.Unlock()
}

// Closed reports whether Close has already run for this session.
func (sess *Session) Closed() bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.closed
}

// Close releases this session. If it was the last outstanding session
// for its discovery key, the underlying Core is closed too (spec.md
// §4.2: "idle when all sessions closed"). Idempotent.
func (sess *Session) Close() error {
	sess.mu.Lock()
	if sess.closed {
		err := sess.closeErr
		sess.mu.Unlock()
		return err
	}
	sess.closed = true
	release := sess.releaseExclusive
	sess.releaseExclusive = nil
	sess.mu.Unlock()

	sess.store.sessions.Remove(sess.id, func(other *Session) bool { return other == sess })

	sh := sess.store.shared
	sh.mu.Lock()
	sh.refcounts[sess.id]--
	last := sh.refcounts[sess.id] <= 0
	if last {
		delete(sh.refcounts, sess.id)
	}
	sh.mu.Unlock()

	if release != nil {
		release()
	}

	var err error
	if last {
		err = sess.core.Close()
	}

	sess.mu.Lock()
	sess.closeErr = err
	sess.mu.Unlock()
	return err
}
