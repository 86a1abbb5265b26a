// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package corestore

import "github.com/corestore-go/corestore/engine"

// Watch installs fn to be called with every core registered from now
// on, across the whole store hierarchy (spec.md §9's redesign of the
// original event-emitter core-open/core-close pattern into an explicit
// callback list). Installing a watcher never replays past
// registrations. Returns a handle for Unwatch.
func (s *Store) Watch(fn func(engine.Core)) int {
	return s.shared.registry.Watch(fn)
}

// Unwatch removes a watcher previously installed with Watch.
func (s *Store) Unwatch(handle int) {
	s.shared.registry.Unwatch(handle)
}
