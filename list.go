// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package corestore

import (
	"context"
	"iter"

	"github.com/corestore-go/corestore/engine"
)

// List returns a lazy, single-pass sequence of every discovery key
// created under namespace (spec.md §4.6.7). A nil namespace uses the
// calling store's own namespace. The sequence is not restartable;
// call List again to iterate a second time.
func (s *Store) List(ctx context.Context, namespace *[engine.KeySize]byte) iter.Seq2[[engine.KeySize]byte, error] {
	return func(yield func([engine.KeySize]byte, error) bool) {
		if err := s.ensureReady(ctx); err != nil {
			yield([engine.KeySize]byte{}, err)
			return
		}
		ns := s.ns
		if namespace != nil {
			ns = *namespace
		}
		for dk, err := range s.shared.storage.CreateDiscoveryKeyStream(ctx, &ns) {
			if !yield(dk, err) {
				return
			}
			if err != nil {
				return
			}
		}
	}
}
