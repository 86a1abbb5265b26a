// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package corestore_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/corestore-go/corestore"
	"github.com/corestore-go/corestore/engine"
	"github.com/corestore-go/corestore/engine/memcore"
	"github.com/corestore-go/corestore/replication"
	"github.com/corestore-go/corestore/storage/memstore"
)

// waitUntil polls cond until it reports true or the deadline passes.
func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition never became true")
		}
		time.Sleep(time.Millisecond)
	}
}

// closeCountingEngine wraps memcore.New() so tests can observe how many
// times the engine's Close is actually called on a core, something
// memcore.Core itself keeps unexported.
type closeCountingEngine struct {
	*memcore.Engine
	closes *atomic.Int32
}

func (e *closeCountingEngine) Create(ctx context.Context, storage engine.EngineStorage, opts engine.CreateOptions) (engine.Core, error) {
	core, err := e.Engine.Create(ctx, storage, opts)
	if err != nil {
		return nil, err
	}
	return &closeCountingCore{Core: core.(*memcore.Core), closes: e.closes}, nil
}

type closeCountingCore struct {
	*memcore.Core
	closes *atomic.Int32
}

func (c *closeCountingCore) Close() error {
	c.closes.Add(1)
	return c.Core.Close()
}

// TestReplicateAttachesDownloadingCore is spec.md §8 scenario 4: two
// stores connected over a real TCP transport, one side already holding
// a downloading core, must attach it to the peer stream Replicate
// wires up.
func TestReplicateAttachesDownloadingCore(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverTransport, err := replication.NewTCPTransport(":0", "server", nil)
	if err != nil {
		t.Fatalf("NewTCPTransport server: %v", err)
	}
	defer serverTransport.Close()
	clientTransport, err := replication.NewTCPTransport(":0", "client", nil)
	if err != nil {
		t.Fatalf("NewTCPTransport client: %v", err)
	}
	defer clientTransport.Close()

	server := newTestStore(t)
	client := newTestStore(t)

	name := "hello-world"
	sess, err := server.Get(ctx, corestore.SessionConfig{Name: &name})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer sess.Close()

	core, ok := sess.Core().(*memcore.Core)
	if !ok {
		t.Fatalf("expected *memcore.Core, got %T", sess.Core())
	}
	core.SetDownloading(true)

	type acceptResult struct {
		ps  *replication.ProtocolStream
		err error
	}
	accepted := make(chan acceptResult, 1)
	go func() {
		ps, err := server.Replicate(ctx, corestore.ReplicateOptions{Accepter: serverTransport})
		accepted <- acceptResult{ps, err}
	}()

	clientStream, err := client.Replicate(ctx, corestore.ReplicateOptions{
		Dialer: clientTransport,
		Target: serverTransport.Address(),
	})
	if err != nil {
		t.Fatalf("client Replicate: %v", err)
	}
	defer clientStream.Destroy()

	var serverStream *replication.ProtocolStream
	select {
	case r := <-accepted:
		if r.err != nil {
			t.Fatalf("server Replicate: %v", r.err)
		}
		serverStream = r.ps
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted the connection")
	}
	defer serverStream.Destroy()

	waitUntil(t, func() bool { return core.Replicator().Attached(serverStream.Muxer()) })
}

// TestOnDemandOpenKeepsCoreAliveWhileAttached is spec.md §8 scenario 5:
// a peer advertises a discovery key this store has seen before but
// currently has no session for. HandlePeerDiscoveryKey must open and
// attach it without immediately closing the very core it just wired
// up (the bug a bare `defer sess.Close()` produces, since corestore's
// own refcount would otherwise hit zero on the spot).
func TestOnDemandOpenKeepsCoreAliveWhileAttached(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	backend := memstore.New()
	name := "ondemand"

	// A first store, standing in for a prior process, creates the core
	// so the backend has a persisted auth record for it, then goes
	// away entirely.
	seeder, err := corestore.New(corestore.Options{Storage: backend, Engine: memcore.New()})
	if err != nil {
		t.Fatalf("New seeder: %v", err)
	}
	seedSess, err := seeder.Get(ctx, corestore.SessionConfig{Name: &name})
	if err != nil {
		t.Fatalf("Get seed: %v", err)
	}
	discoveryKey := seedSess.DiscoveryKey()
	seedSess.Close()
	seeder.Close()

	var closes atomic.Int32
	store, err := corestore.New(corestore.Options{
		Storage: backend,
		Engine:  &closeCountingEngine{Engine: memcore.New(), closes: &closes},
	})
	if err != nil {
		t.Fatalf("New store: %v", err)
	}
	defer store.Close()

	serverTransport, err := replication.NewTCPTransport(":0", "server", nil)
	if err != nil {
		t.Fatalf("NewTCPTransport server: %v", err)
	}
	defer serverTransport.Close()
	peerTransport, err := replication.NewTCPTransport(":0", "peer", nil)
	if err != nil {
		t.Fatalf("NewTCPTransport peer: %v", err)
	}
	defer peerTransport.Close()

	type acceptResult struct {
		ps  *replication.ProtocolStream
		err error
	}
	accepted := make(chan acceptResult, 1)
	go func() {
		ps, err := store.Replicate(ctx, corestore.ReplicateOptions{Accepter: serverTransport})
		accepted <- acceptResult{ps, err}
	}()

	peerStream, err := peerTransport.Dial(ctx, serverTransport.Address(), replication.StreamOptions{})
	if err != nil {
		t.Fatalf("peer Dial: %v", err)
	}
	defer peerStream.Destroy()
	if err := peerStream.Uncork(); err != nil {
		t.Fatalf("Uncork: %v", err)
	}

	var serverStream *replication.ProtocolStream
	select {
	case r := <-accepted:
		if r.err != nil {
			t.Fatalf("store Replicate: %v", r.err)
		}
		serverStream = r.ps
	case <-time.After(2 * time.Second):
		t.Fatal("store never accepted the connection")
	}
	defer serverStream.Destroy()

	if err := peerStream.AdvertiseDiscoveryKey(discoveryKey); err != nil {
		t.Fatalf("AdvertiseDiscoveryKey: %v", err)
	}

	waitUntil(t, func() bool { return serverStream.Muxer() != nil && attachedTo(store, discoveryKey, serverStream.Muxer()) })

	time.Sleep(20 * time.Millisecond)
	if got := closes.Load(); got != 0 {
		t.Fatalf("on-demand-opened core was closed %d time(s) while still attached, want 0", got)
	}

	// The peer reports it has detached the core; the store must release
	// the replicator-held session, which is now the last reference and
	// closes the underlying core.
	if err := peerStream.Close(discoveryKey); err != nil {
		t.Fatalf("reporting detach: %v", err)
	}
	waitUntil(t, func() bool { return closes.Load() == 1 })
}

// TestPassiveStoreReplicateDoesNotAttach is spec.md §3/§4.6.5's passive
// invariant: a passive store's Replicate must not attach its
// downloading cores to the stream, neither in the initial burst nor
// for cores registered afterward.
func TestPassiveStoreReplicateDoesNotAttach(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverTransport, err := replication.NewTCPTransport(":0", "server", nil)
	if err != nil {
		t.Fatalf("NewTCPTransport server: %v", err)
	}
	defer serverTransport.Close()
	clientTransport, err := replication.NewTCPTransport(":0", "client", nil)
	if err != nil {
		t.Fatalf("NewTCPTransport client: %v", err)
	}
	defer clientTransport.Close()

	server, err := corestore.New(corestore.Options{
		Storage: memstore.New(),
		Engine:  memcore.New(),
		Passive: true,
	})
	if err != nil {
		t.Fatalf("New passive server: %v", err)
	}
	defer server.Close()

	name := "already-downloading"
	sess, err := server.Get(ctx, corestore.SessionConfig{Name: &name})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer sess.Close()
	core := sess.Core().(*memcore.Core)
	core.SetDownloading(true)

	type acceptResult struct {
		ps  *replication.ProtocolStream
		err error
	}
	accepted := make(chan acceptResult, 1)
	go func() {
		ps, err := server.Replicate(ctx, corestore.ReplicateOptions{Accepter: serverTransport})
		accepted <- acceptResult{ps, err}
	}()

	clientStream, err := clientTransport.Dial(ctx, serverTransport.Address(), replication.StreamOptions{})
	if err != nil {
		t.Fatalf("client Dial: %v", err)
	}
	defer clientStream.Destroy()
	if err := clientStream.Uncork(); err != nil {
		t.Fatalf("Uncork: %v", err)
	}

	var serverStream *replication.ProtocolStream
	select {
	case r := <-accepted:
		if r.err != nil {
			t.Fatalf("server Replicate: %v", r.err)
		}
		serverStream = r.ps
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted the connection")
	}
	defer serverStream.Destroy()

	// Give a core registered after the stream exists a chance to attach
	// were the registry.Watch callback not passive-gated.
	name2 := "downloading-after-connect"
	sess2, err := server.Get(ctx, corestore.SessionConfig{Name: &name2})
	if err != nil {
		t.Fatalf("Get second: %v", err)
	}
	defer sess2.Close()
	core2 := sess2.Core().(*memcore.Core)
	core2.SetDownloading(true)

	time.Sleep(50 * time.Millisecond)
	if core.Replicator().Attached(serverStream.Muxer()) {
		t.Fatal("passive store attached a pre-existing downloading core to the stream")
	}
	if core2.Replicator().Attached(serverStream.Muxer()) {
		t.Fatal("passive store attached a newly registered downloading core to the stream")
	}
}

// attachedTo looks the core up through the store's own registry by
// opening (and immediately releasing) a passive, non-creating session,
// since the test has no direct handle on the session
// HandlePeerDiscoveryKey opened internally.
func attachedTo(store *corestore.Store, discoveryKey [engine.KeySize]byte, muxer engine.Muxer) bool {
	ctx := context.Background()
	active := false
	createIfMissing := false
	sess, err := store.Get(ctx, corestore.SessionConfig{
		DiscoveryKey:    &discoveryKey,
		Active:          &active,
		CreateIfMissing: &createIfMissing,
	})
	if err != nil {
		return false
	}
	defer sess.Close()
	return sess.Core().Replicator().Attached(muxer)
}

// TestExclusiveLockOrdersWaiters is spec.md §8 scenario 6: concurrent
// exclusive-writable Get calls for the same discovery key are
// serialized and granted in the order they queued.
func TestExclusiveLockOrdersWaiters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	name := "exclusive-target"

	type result struct {
		index int
		err   error
	}

	const n = 4
	results := make(chan result, n)

	first, err := s.Get(ctx, corestore.SessionConfig{Name: &name, Writable: boolPtr(true), Exclusive: true})
	if err != nil {
		t.Fatalf("Get first: %v", err)
	}
	results <- result{index: 0}

	for i := 1; i < n; i++ {
		go func(i int) {
			sess, err := s.Get(ctx, corestore.SessionConfig{
				Name:      &name,
				Writable:  boolPtr(true),
				Exclusive: true,
			})
			if err != nil {
				results <- result{index: i, err: err}
				return
			}
			results <- result{index: i}
			sess.Close()
		}(i)
		// Give goroutine i a chance to enqueue as a waiter before the
		// next one starts racing for the same lock, so launch order and
		// queue order match.
		time.Sleep(20 * time.Millisecond)
	}

	first.Close()

	var order []int
	for i := 0; i < n; i++ {
		r := <-results
		if r.err != nil {
			t.Fatalf("goroutine %d: %v", r.index, r.err)
		}
		order = append(order, r.index)
	}

	for i, got := range order {
		if got != i {
			t.Fatalf("acquisition order = %v, want FIFO 0..%d", order, n-1)
		}
	}
}

func boolPtr(b bool) *bool { return &b }

// failingEngine wraps memcore.New() so Create always fails, simulating
// a core that exists in storage but rejects on open (a corrupt auth
// record, a manifest the engine refuses).
type failingEngine struct {
	*memcore.Engine
	creates *atomic.Int32
}

func (e *failingEngine) Create(ctx context.Context, storage engine.EngineStorage, opts engine.CreateOptions) (engine.Core, error) {
	e.creates.Add(1)
	return nil, fmt.Errorf("failingEngine: refused to open")
}

// stubMuxer is a bare engine.Muxer for tests that never reach an
// AttachTo call.
type stubMuxer struct{ id string }

func (m stubMuxer) StreamID() string { return m.id }

// TestFailedOpenMarksKnownMissing is spec.md §4.6.12/§7's negative-cache
// requirement: a core present in storage that fails to open must be
// recorded as known-missing, so a peer repeatedly re-advertising the
// same discovery key doesn't retry the engine open every time.
func TestFailedOpenMarksKnownMissing(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()
	name := "corrupt-on-open"

	seeder, err := corestore.New(corestore.Options{Storage: backend, Engine: memcore.New()})
	if err != nil {
		t.Fatalf("New seeder: %v", err)
	}
	seedSess, err := seeder.Get(ctx, corestore.SessionConfig{Name: &name})
	if err != nil {
		t.Fatalf("Get seed: %v", err)
	}
	discoveryKey := seedSess.DiscoveryKey()
	seedSess.Close()
	seeder.Close()

	var creates atomic.Int32
	store, err := corestore.New(corestore.Options{
		Storage: backend,
		Engine:  &failingEngine{Engine: memcore.New(), creates: &creates},
	})
	if err != nil {
		t.Fatalf("New store: %v", err)
	}
	defer store.Close()

	muxer := stubMuxer{id: "peer-1"}
	store.HandlePeerDiscoveryKey(ctx, discoveryKey, muxer)
	store.HandlePeerDiscoveryKey(ctx, discoveryKey, muxer)

	if got := creates.Load(); got != 1 {
		t.Fatalf("engine.Create called %d times, want 1 (second advertisement should short-circuit via the known-missing cache)", got)
	}
}

// TestNamespaceFromCoreBootstrapRoundtrip is spec.md §4.6.6's bootstrap
// case: a child store recovers its namespace from a core's persisted
// corestore/namespace user data rather than by hashing a name, and
// resolves the same namespace a name-derived child would have.
func TestNamespaceFromCoreBootstrapRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	named := s.Namespace("tenant-bootstrap")
	name := "anchor"
	anchorSess, err := named.Get(ctx, corestore.SessionConfig{Name: &name})
	if err != nil {
		t.Fatalf("Get anchor: %v", err)
	}
	defer anchorSess.Close()

	bootstrapped := s.NamespaceFromCore(anchorSess.Core())

	sameName := "shared-under-namespace"
	viaNamed, err := named.Get(ctx, corestore.SessionConfig{Name: &sameName})
	if err != nil {
		t.Fatalf("Get via named: %v", err)
	}
	defer viaNamed.Close()

	viaBootstrap, err := bootstrapped.Get(ctx, corestore.SessionConfig{Name: &sameName})
	if err != nil {
		t.Fatalf("Get via bootstrapped: %v", err)
	}
	defer viaBootstrap.Close()

	if viaNamed.DiscoveryKey() != viaBootstrap.DiscoveryKey() {
		t.Fatalf("bootstrapped namespace disagrees with the name-derived one: %x vs %x",
			viaBootstrap.DiscoveryKey(), viaNamed.DiscoveryKey())
	}
}
