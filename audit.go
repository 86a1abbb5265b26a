// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package corestore

import (
	"context"
	"iter"

	"github.com/corestore-go/corestore/engine"
)

// AuditEntry is one result yielded by Audit: a core's identity plus
// what the engine's audit found (and, unless DryRun, repaired).
type AuditEntry struct {
	DiscoveryKey [engine.KeySize]byte
	Key          [engine.KeySize]byte
	Result       engine.AuditResult
}

// Audit walks every core this store has ever created, opening each one
// with active: false (so the audit session triggers no replication
// attachment) and running the engine's audit against it (spec.md §4.7).
// Audit errors are yielded per-core, not returned from Audit itself.
func (s *Store) Audit(ctx context.Context, opts engine.AuditOptions) iter.Seq2[AuditEntry, error] {
	return func(yield func(AuditEntry, error) bool) {
		if err := s.ensureReady(ctx); err != nil {
			yield(AuditEntry{}, err)
			return
		}

		for entry, err := range s.shared.storage.CreateCoreStream(ctx) {
			if err != nil {
				if !yield(AuditEntry{}, err) {
					return
				}
				continue
			}

			active := false
			discoveryKey := entry.DiscoveryKey
			sess, err := s.Get(ctx, SessionConfig{DiscoveryKey: &discoveryKey, Active: &active})
			if err != nil {
				if !yield(AuditEntry{DiscoveryKey: discoveryKey}, err) {
					return
				}
				continue
			}

			key := sess.core.Key()
			result, auditErr := sess.core.Audit(ctx, opts)
			sess.Close()

			if !yield(AuditEntry{DiscoveryKey: discoveryKey, Key: key, Result: result}, auditErr) {
				return
			}
		}
	}
}
