// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package corestore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/corestore-go/corestore/engine"
	"github.com/corestore-go/corestore/internal/clock"
	"github.com/corestore-go/corestore/internal/keyderive"
	"github.com/corestore-go/corestore/internal/registry"
	"github.com/corestore-go/corestore/internal/secret"
	"github.com/corestore-go/corestore/internal/sessiontracker"
	"github.com/corestore-go/corestore/internal/streamtracker"
	"github.com/corestore-go/corestore/replication"
	"github.com/corestore-go/corestore/storage"
	"github.com/corestore-go/corestore/storage/sqlitestore"
)

type storeState int

const (
	stateOpening storeState = iota
	stateOpened
	stateClosing
	stateClosed
)

// shared holds everything every Store in a hierarchy has in common:
// one storage backend, one engine, one core registry, one set of live
// replication streams, and the master seed once it's known (spec.md
// §4.6.1: a child "inherits storage, cores, stream_tracker, ...").
type shared struct {
	storage storage.Storage
	engine  engine.CoreEngine

	registry *registry.Registry
	streams  *streamtracker.Tracker[*replication.ProtocolStream]
	locks    *exclusiveLocks

	// closing is closed once the root store begins Close, so any Get
	// call blocked waiting on the registry's dedup protocol or an
	// exclusive lock (spec.md §5: "close() races with any outstanding
	// get") wakes up and fails with ErrStoreClosed instead of blocking
	// until whatever it was waiting for happens to resolve on its own.
	closing chan struct{}

	knownMissing *knownMissingCache

	clk    clock.Clock
	logger *slog.Logger

	globalCache     any
	manifestVersion int

	mu                sync.Mutex
	suppliedPrimary   *[32]byte
	primaryKey        *secret.Buffer
	refcounts         map[string]int
	findingPeersCount int

	// replMu and replSessions back the on-demand open path in
	// replicate.go: a session opened purely to attach a core to a
	// peer's stream (spec.md §4.6.5) must stay open for as long as that
	// attachment lasts, keyed by (stream id, discovery key), so closing
	// it doesn't drop corestore's refcount to zero and tear the core
	// down out from under the attachment that just wired it up.
	replMu       sync.Mutex
	replSessions map[string]map[string]*Session

	childrenMu sync.Mutex
	root       *Store
	children   []*Store
}

// allStores returns every Store node in the hierarchy: the root plus
// every child ever derived from it, regardless of depth (children is
// flat because newChild always appends to the shared children list rather
// than to its immediate parent's own list).
func (sh *shared) allStores() []*Store {
	sh.childrenMu.Lock()
	defer sh.childrenMu.Unlock()
	out := make([]*Store, 0, len(sh.children)+1)
	out = append(out, sh.root)
	out = append(out, sh.children...)
	return out
}

// Store is one node in a corestore hierarchy: either the root, or a
// child "store session" produced by Namespace, NamespaceFromCore, or
// Session (spec.md §4.6).
type Store struct {
	shared *shared
	parent *Store

	// Identity this store resolves lazily during ensureReady.
	ns             [engine.KeySize]byte
	namespaceName  *string
	namespaceFixed *[engine.KeySize]byte
	bootstrapCore  engine.Core

	writableDefault bool
	passive         bool
	manifestVersion int

	sessions *sessiontracker.Tracker[*Session]

	mu           sync.Mutex
	st           storeState
	openStarted  bool
	openDone     chan struct{}
	openErr      error
	closeStarted bool
	closeDone    chan struct{}
	closeErr     error
}

// New constructs a root Store. The store does no I/O until Ready (or
// any operation that calls it implicitly) runs.
func New(opts Options) (*Store, error) {
	if opts.Storage == nil {
		return nil, fmt.Errorf("corestore: New: Storage is required")
	}
	if opts.Engine == nil {
		return nil, fmt.Errorf("corestore: New: Engine is required")
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	manifestVersion := opts.ManifestVersion
	if manifestVersion == 0 {
		manifestVersion = 1
	}
	writable := true
	if opts.Writable != nil {
		writable = *opts.Writable
	}

	sh := &shared{
		storage:         opts.Storage,
		engine:          opts.Engine,
		registry:        registry.New(clk, logger),
		streams:         streamtracker.New[*replication.ProtocolStream](),
		locks:           newExclusiveLocks(),
		closing:         make(chan struct{}),
		knownMissing:    newKnownMissingCache(knownMissingCapacity),
		clk:             clk,
		logger:          logger,
		globalCache:     opts.GlobalCache,
		manifestVersion: manifestVersion,
		suppliedPrimary: opts.PrimaryKey,
		refcounts:       make(map[string]int),
		replSessions:    make(map[string]map[string]*Session),
	}

	root := &Store{
		shared:          sh,
		writableDefault: writable,
		passive:         opts.Passive,
		manifestVersion: manifestVersion,
		sessions:        sessiontracker.New[*Session](),
		openDone:        make(chan struct{}),
	}
	sh.root = root
	return root, nil
}

// NewOnDisk builds a root Store backed by a storage/sqlitestore.Store
// at path. Passing ":memory:" gives an ephemeral in-process database.
func NewOnDisk(path string, opts Options) (*Store, error) {
	store, err := sqlitestore.Open(sqlitestore.Config{Path: path})
	if err != nil {
		return nil, fmt.Errorf("corestore: NewOnDisk: opening storage: %w", err)
	}
	opts.Storage = store
	root, err := New(opts)
	if err != nil {
		store.Close()
		return nil, err
	}
	return root, nil
}

// newChild allocates a child Store sharing s's shared state, defaulting
// every override field to s's own.
func (s *Store) newChild() *Store {
	child := &Store{
		shared:          s.shared,
		parent:          s,
		writableDefault: s.writableDefault,
		passive:         s.passive,
		manifestVersion: s.manifestVersion,
		sessions:        sessiontracker.New[*Session](),
		openDone:        make(chan struct{}),
	}
	s.shared.childrenMu.Lock()
	s.shared.children = append(s.shared.children, child)
	s.shared.childrenMu.Unlock()
	return child
}

// Namespace derives a child store whose namespace is name hashed
// against s's own namespace (spec.md §4.6.6). Namespaces chain: calling
// Namespace twice walks two levels deep.
func (s *Store) Namespace(name string) *Store {
	child := s.newChild()
	child.namespaceName = &name
	return child
}

// NamespaceFromCore derives a child store that recovers its namespace
// from core's persisted "corestore/namespace" user data instead of
// hashing a name (spec.md §4.6.6's bootstrap case).
func (s *Store) NamespaceFromCore(core engine.Core) *Store {
	child := s.newChild()
	child.bootstrapCore = core
	return child
}

// Session derives a child store sharing s's namespace unless
// overridden, with optional writability and manifest-version overrides
// (spec.md §4.6.1's child construction).
func (s *Store) Session(opts SessionOptions) *Store {
	child := s.newChild()
	if opts.Namespace != nil {
		ns := *opts.Namespace
		child.namespaceFixed = &ns
	}
	if opts.Writable != nil {
		child.writableDefault = *opts.Writable
	}
	if opts.Passive != nil {
		child.passive = *opts.Passive
	}
	if opts.ManifestVersion != 0 {
		child.manifestVersion = opts.ManifestVersion
	}
	return child
}

// Ready blocks until the store has finished its open protocol
// (spec.md §4.6.2), returning any error encountered. Every other
// operation calls it internally, so most callers never need to call
// it directly; it's exposed for callers that want to fail fast before
// doing anything else.
func (s *Store) Ready(ctx context.Context) error {
	return s.ensureReady(ctx)
}

// ensureReady drives the per-Store state machine (spec.md §4.6.11):
// Opening -> Opened on success, Opening -> Closed on failure. Safe to
// call concurrently; only the first caller does the work, everyone
// else awaits it.
func (s *Store) ensureReady(ctx context.Context) error {
	if s.parent != nil {
		if err := s.parent.ensureReady(ctx); err != nil {
			return err
		}
	}

	s.mu.Lock()
	switch s.st {
	case stateOpened:
		s.mu.Unlock()
		return nil
	case stateClosing, stateClosed:
		err := s.openErr
		if err == nil {
			err = ErrStoreClosed
		}
		s.mu.Unlock()
		return err
	}
	if s.openStarted {
		done := s.openDone
		s.mu.Unlock()
		select {
		case <-done:
			s.mu.Lock()
			err := s.openErr
			s.mu.Unlock()
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.openStarted = true
	s.mu.Unlock()

	var err error
	if s.parent == nil {
		err = s.openRoot(ctx)
	} else {
		err = s.openChild(ctx)
	}

	s.mu.Lock()
	s.openErr = err
	if err == nil {
		s.st = stateOpened
	} else {
		s.st = stateClosed
	}
	close(s.openDone)
	s.mu.Unlock()
	return err
}

func (s *Store) openRoot(ctx context.Context) error {
	sh := s.shared

	persisted, ok, err := sh.storage.GetSeed(ctx)
	if err != nil {
		return fmt.Errorf("corestore: reading persisted seed: %w", err)
	}

	switch {
	case sh.suppliedPrimary != nil:
		got, err := sh.storage.SetSeed(ctx, *sh.suppliedPrimary)
		if err != nil {
			return fmt.Errorf("corestore: persisting primary key: %w", err)
		}
		if got != *sh.suppliedPrimary {
			return ErrConflictingSeed
		}
		persisted = got
	case ok:
		// use the persisted seed as-is
	default:
		generated, err := keyderive.GeneratePrimaryKey()
		if err != nil {
			return fmt.Errorf("corestore: generating primary key: %w", err)
		}
		persisted, err = sh.storage.SetSeed(ctx, generated)
		if err != nil {
			return fmt.Errorf("corestore: persisting primary key: %w", err)
		}
	}

	buffer, err := secret.NewFromBytes(append([]byte(nil), persisted[:]...))
	if err != nil {
		return fmt.Errorf("corestore: protecting primary key: %w", err)
	}
	sh.mu.Lock()
	sh.primaryKey = buffer
	sh.mu.Unlock()

	s.ns = keyderive.DefaultNamespace
	return nil
}

func (s *Store) openChild(ctx context.Context) error {
	switch {
	case s.bootstrapCore != nil:
		value, ok, err := s.bootstrapCore.GetUserData(ctx, "corestore/namespace")
		if err != nil {
			return fmt.Errorf("corestore: reading bootstrap namespace: %w", err)
		}
		if !ok || len(value) != engine.KeySize {
			return fmt.Errorf("corestore: bootstrap core has no corestore/namespace user data")
		}
		copy(s.ns[:], value)
	case s.namespaceFixed != nil:
		s.ns = *s.namespaceFixed
	case s.namespaceName != nil:
		s.ns = keyderive.DeriveNamespace(s.parent.ns, []byte(*s.namespaceName))
	default:
		s.ns = s.parent.ns
	}
	return nil
}

// primaryKeyArray copies the store's primary key out of its
// secret.Buffer. Called only from code paths that already hold a
// derived-key computation to perform immediately; the copy is
// short-lived on the stack of the caller.
func (s *Store) primaryKeyArray() [32]byte {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()
	var out [32]byte
	copy(out[:], s.shared.primaryKey.Bytes())
	return out
}

