// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package corestore

import (
	"context"
	"fmt"

	"github.com/corestore-go/corestore/replication"
)

// Close tears this store down (spec.md §4.6.9). On the root store this
// closes every child, every live replication stream, the core
// registry, the storage backend, and wipes the primary key from
// memory. On a child store this only closes the sessions that child
// itself opened; siblings and the parent are untouched. Idempotent: a
// second call returns the result of the first.
func (s *Store) Close() error {
	// A store that never finished opening still needs its open error
	// resolved before Close can decide whether there's anything to tear
	// down; ignore the result, ensureReady already recorded s.st.
	_ = s.ensureReady(context.Background())

	s.mu.Lock()
	if s.closeStarted {
		done := s.closeDone
		s.mu.Unlock()
		<-done
		s.mu.Lock()
		err := s.closeErr
		s.mu.Unlock()
		return err
	}
	s.closeStarted = true
	s.closeDone = make(chan struct{})
	s.st = stateClosing
	s.mu.Unlock()

	if s.parent == nil {
		close(s.shared.closing)
	}

	s.sessions.All(func(_ string, sess *Session) { sess.Close() })

	var err error
	if s.parent == nil {
		err = s.closeRoot()
	}

	s.mu.Lock()
	s.st = stateClosed
	s.closeErr = err
	close(s.closeDone)
	s.mu.Unlock()
	return err
}

func (s *Store) closeRoot() error {
	sh := s.shared

	for _, child := range sh.allStores() {
		if child == s {
			continue
		}
		child.sessions.All(func(_ string, sess *Session) { sess.Close() })
	}

	if err := sh.streams.Destroy(func(ps *replication.ProtocolStream) error { return ps.Destroy() }); err != nil {
		return fmt.Errorf("corestore: closing streams: %w", err)
	}

	if err := sh.registry.Close(); err != nil {
		return fmt.Errorf("corestore: closing registry: %w", err)
	}
	if err := sh.storage.Close(); err != nil {
		return fmt.Errorf("corestore: closing storage: %w", err)
	}
	sh.mu.Lock()
	if sh.primaryKey != nil {
		sh.primaryKey.Close()
	}
	sh.mu.Unlock()
	return nil
}

// Suspend flushes and pauses the storage backend so its underlying
// file can be safely copied or backed up, and pauses the core
// registry's idle-GC ticker so a suspended store does not evict cores
// while suspended (spec.md §4.6.9's suspend pairing).
func (s *Store) Suspend(ctx context.Context) error {
	if err := s.ensureReady(ctx); err != nil {
		return err
	}
	s.shared.registry.Pause()
	if err := s.shared.storage.Suspend(ctx); err != nil {
		s.shared.registry.Resume()
		return err
	}
	return nil
}

// Resume undoes a prior Suspend.
func (s *Store) Resume(ctx context.Context) error {
	if err := s.ensureReady(ctx); err != nil {
		return err
	}
	if err := s.shared.storage.Resume(ctx); err != nil {
		return err
	}
	s.shared.registry.Resume()
	return nil
}
