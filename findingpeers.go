// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package corestore

import "sync"

// FindingPeers grants every session in the whole store hierarchy a
// grace token that suppresses "no peers found" outcomes until peer
// discovery has had a chance to run (spec.md §4.6.10). The counter is
// process-wide: nested FindingPeers calls compose, and tokens are only
// released once every acquirer has released. The returned func is the
// release; calling it more than once is a no-op.
func (s *Store) FindingPeers() func() {
	sh := s.shared

	sh.mu.Lock()
	sh.findingPeersCount++
	first := sh.findingPeersCount == 1
	sh.mu.Unlock()

	if first {
		forEachSession(sh, func(sess *Session) { sess.acquireFindingPeersToken() })
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			sh.mu.Lock()
			sh.findingPeersCount--
			last := sh.findingPeersCount == 0
			sh.mu.Unlock()

			if last {
				forEachSession(sh, func(sess *Session) { sess.releaseFindingPeersToken() })
			}
		})
	}
}

func forEachSession(sh *shared, fn func(*Session)) {
	for _, store := range sh.allStores() {
		store.sessions.All(func(_ string, sess *Session) { fn(sess) })
	}
}
