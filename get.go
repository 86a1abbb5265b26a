// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package corestore

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/corestore-go/corestore/engine"
	"github.com/corestore-go/corestore/internal/auth"
	"github.com/corestore-go/corestore/storage"
)

func hexID(id [engine.KeySize]byte) string { return hex.EncodeToString(id[:]) }

func storageAuthRecord(resolved auth.Resolved) storage.AuthRecord {
	return storage.AuthRecord{
		Key:      resolved.Key,
		Manifest: resolved.Manifest,
		KeyPair:  resolved.KeyPair,
	}
}

// Get resolves cfg's identity, interns or creates the corresponding
// core, and returns a Session handle to it (spec.md §4.6.3).
func (s *Store) Get(ctx context.Context, cfg SessionConfig) (*Session, error) {
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	closing := s.st == stateClosing || s.st == stateClosed
	s.mu.Unlock()
	if closing {
		return nil, ErrStoreClosed
	}

	sh := s.shared

	active := true
	if cfg.Active != nil {
		active = *cfg.Active
	}
	writable := s.writableDefault
	if cfg.Writable != nil {
		writable = *cfg.Writable
	}
	wait := true
	if cfg.Wait != nil {
		wait = *cfg.Wait
	}
	createIfMissing := true
	if cfg.CreateIfMissing != nil {
		createIfMissing = *cfg.CreateIfMissing
	}

	authOpts := auth.Options{
		Name:            cfg.Name,
		KeyPair:         cfg.KeyPair,
		Manifest:        cfg.Manifest,
		Key:             cfg.Key,
		DiscoveryKey:    cfg.DiscoveryKey,
		PrimaryKey:      s.primaryKeyArray(),
		Namespace:       s.ns,
		ManifestVersion: s.manifestVersion,
		CreateIfMissing: createIfMissing,
	}
	resolved, err := auth.Resolve(ctx, sh.engine, sh.storage, authOpts)
	if err != nil {
		return nil, err
	}
	if !createIfMissing {
		exists, err := sh.storage.Has(ctx, resolved.DiscoveryKey)
		if err != nil {
			return nil, fmt.Errorf("corestore: checking storage: %w", err)
		}
		if !exists {
			return nil, ErrStorageEmpty
		}
	}

	if cfg.Name != nil {
		existing, ok, err := sh.storage.GetAlias(ctx, s.ns, *cfg.Name)
		if err != nil {
			return nil, fmt.Errorf("corestore: checking alias table: %w", err)
		}
		if ok && existing != resolved.DiscoveryKey {
			return nil, ErrStoredKeyMismatch
		}
	}

	id := hexID(resolved.DiscoveryKey)

	var releaseExclusive func()
	if writable && cfg.Exclusive {
		release, err := sh.locks.Acquire(ctx, sh.closing, id)
		if err != nil {
			return nil, err
		}
		releaseExclusive = release
	}

	core, err := s.openCore(ctx, id, resolved, cfg, createIfMissing)
	if err != nil {
		if releaseExclusive != nil {
			releaseExclusive()
		}
		return nil, err
	}

	sess := &Session{
		store:            s,
		id:               id,
		core:             core,
		resolved:         resolved,
		active:           active,
		writable:         writable,
		wait:             wait,
		timeout:          cfg.Timeout,
		draft:            cfg.Draft,
		encryption:       cfg.Encryption,
		encryptionKey:    cfg.EncryptionKey,
		isBlockKey:       cfg.IsBlockKey,
		onWait:           cfg.OnWait,
		valueEncoding:    cfg.ValueEncoding,
		releaseExclusive: releaseExclusive,
	}

	sh.mu.Lock()
	sh.refcounts[id]++
	findingPeers := sh.findingPeersCount > 0
	sh.mu.Unlock()
	if findingPeers {
		sess.acquireFindingPeersToken()
	}

	s.sessions.Add(id, sess)

	if active && !s.passive && core.Replicator().Downloading() {
		if err := sh.streams.AttachAll(core); err != nil {
			sh.logger.Warn("corestore: attaching newly opened core to live streams failed", "discovery_key", id, "error", err)
		}
	}

	return sess, nil
}

// openCore interns the core for id via the registry's reservation
// protocol (spec.md §5's "concurrent-open" loop): only the caller that
// wins the Open reservation ever calls engine.Create for this
// discovery key; every other concurrent caller waits on the winner's
// Finish and then reuses the result, so at most one Core is ever
// constructed per discovery key regardless of how many goroutines call
// Get for the same identity at once.
func (s *Store) openCore(ctx context.Context, id string, resolved auth.Resolved, cfg SessionConfig, createIfMissing bool) (engine.Core, error) {
	sh := s.shared

	for {
		core, wait, owner := sh.registry.Open(resolved.DiscoveryKey)
		if owner {
			break
		}
		if wait == nil {
			return core, nil
		}
		select {
		case <-wait:
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-sh.closing:
			return nil, ErrStoreClosed
		}
	}

	core, err := s.createCore(ctx, id, resolved, cfg, createIfMissing)
	if err != nil {
		sh.registry.Finish(resolved.DiscoveryKey, nil, err)
		sh.knownMissing.Mark(id)
		return nil, err
	}
	sh.registry.Finish(resolved.DiscoveryKey, core, nil)

	core.OnDownloading(func(downloading bool) {
		if !downloading || s.passive {
			return
		}
		if err := sh.streams.AttachAll(core); err != nil {
			sh.logger.Warn("corestore: attaching downloading core to live streams failed", "discovery_key", id, "error", err)
		}
	})

	return core, nil
}

// createCore performs the actual engine.Create + Ready + auth/alias
// persistence for a discovery key this call has exclusively reserved
// via Registry.Open. Called at most once per discovery key.
func (s *Store) createCore(ctx context.Context, id string, resolved auth.Resolved, cfg SessionConfig, createIfMissing bool) (engine.Core, error) {
	sh := s.shared

	createOpts := engine.CreateOptions{
		DiscoveryKey:    resolved.DiscoveryKey,
		CreateIfMissing: createIfMissing,
		UserData:        map[string][]byte{"corestore/namespace": append([]byte(nil), s.ns[:]...)},
	}
	if cfg.Name != nil {
		createOpts.UserData["corestore/name"] = []byte(*cfg.Name)
		createOpts.Alias = &engine.Alias{Name: *cfg.Name, Namespace: s.ns}
	}

	switch {
	case cfg.Manifest != nil:
		createOpts.Manifest = resolved.Manifest
	case cfg.KeyPair != nil:
		createOpts.KeyPair = resolved.KeyPair
	case cfg.Name != nil:
		createOpts.KeyPair = resolved.KeyPair
		createOpts.Manifest = resolved.Manifest
	case cfg.Key != nil:
		key := resolved.Key
		createOpts.Key = &key
	default:
		// Opened by discovery key alone: no key material is known yet.
		// If this process created the core before, its auth record
		// carries what's needed to reopen it; otherwise the engine must
		// learn the manifest from a peer during replication.
		if record, ok, err := sh.storage.GetAuth(ctx, resolved.DiscoveryKey); err == nil && ok {
			createOpts.Manifest = record.Manifest
			createOpts.KeyPair = record.KeyPair
			if record.Manifest == nil && record.KeyPair == nil {
				key := record.Key
				createOpts.Key = &key
			}
		}
	}

	core, err := sh.engine.Create(ctx, sh.storage, createOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineFailure, err)
	}
	if err := core.Ready(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineFailure, err)
	}

	hasRealIdentity := cfg.Name != nil || cfg.KeyPair != nil || cfg.Manifest != nil || cfg.Key != nil
	if hasRealIdentity {
		if err := sh.storage.SetAuth(ctx, resolved.DiscoveryKey, storageAuthRecord(resolved)); err != nil {
			return nil, fmt.Errorf("corestore: persisting auth record: %w", err)
		}
	}
	if cfg.Name != nil {
		if err := sh.storage.SetAlias(ctx, s.ns, *cfg.Name, resolved.DiscoveryKey); err != nil {
			return nil, fmt.Errorf("corestore: persisting alias: %w", err)
		}
	}
	sh.knownMissing.Clear(id)

	return core, nil
}
