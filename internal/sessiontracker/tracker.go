// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sessiontracker

import "sync"

// Tracker is a per-core list of outstanding sessions, keyed by
// discovery key id (spec.md §4.3). It is generic over the session
// type so the root corestore package's Session type never needs to be
// visible from this package. Safe for concurrent use.
type Tracker[T any] struct {
	mu    sync.Mutex
	byID  map[string][]T
}

// New returns an empty tracker.
func New[T any]() *Tracker[T] {
	return &Tracker[T]{byID: make(map[string][]T)}
}

// Add appends session to the list for id, creating the list if this is
// the first session for that id.
func (t *Tracker[T]) Add(id string, session T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID[id] = append(t.byID[id], session)
}

// Remove deletes the first session for which equal returns true from
// id's list, then GCs the list if it is now empty. Returns whether a
// session was removed.
func (t *Tracker[T]) Remove(id string, equal func(T) bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	sessions, ok := t.byID[id]
	if !ok {
		return false
	}

	for i, session := range sessions {
		if !equal(session) {
			continue
		}
		sessions = append(sessions[:i], sessions[i+1:]...)
		if len(sessions) == 0 {
			delete(t.byID, id)
		} else {
			t.byID[id] = sessions
		}
		return true
	}
	return false
}

// Get returns a snapshot of the sessions registered for id. The
// returned slice is a copy; mutating it has no effect on the tracker.
func (t *Tracker[T]) Get(id string) []T {
	t.mu.Lock()
	defer t.mu.Unlock()
	sessions := t.byID[id]
	if len(sessions) == 0 {
		return nil
	}
	out := make([]T, len(sessions))
	copy(out, sessions)
	return out
}

// Count returns the number of sessions registered for id.
func (t *Tracker[T]) Count(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID[id])
}

// All calls fn for every live session across every id. Iteration order
// is unspecified. fn must not call back into the tracker.
func (t *Tracker[T]) All(fn func(id string, session T)) {
	t.mu.Lock()
	snapshot := make(map[string][]T, len(t.byID))
	for id, sessions := range t.byID {
		copied := make([]T, len(sessions))
		copy(copied, sessions)
		snapshot[id] = copied
	}
	t.mu.Unlock()

	for id, sessions := range snapshot {
		for _, session := range sessions {
			fn(id, session)
		}
	}
}
