// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package streamtracker

import (
	"fmt"
	"sync"

	"github.com/corestore-go/corestore/engine"
)

// Muxed is anything a Tracker can attach a core to: a peer stream that
// exposes the muxer object cores attach to.
type Muxed interface {
	Muxer() engine.Muxer
}

// Record is one tracked stream. Index reflects Record's current
// position in the tracker's internal slice, updated automatically on
// swap-remove; callers pass a Record back to Remove to identify which
// entry to drop.
type Record[T Muxed] struct {
	Value      T
	IsExternal bool

	index int
}

// Tracker is the ordered, positionally-indexed list of live peer
// streams. Safe for concurrent use.
type Tracker[T Muxed] struct {
	mu      sync.Mutex
	records []*Record[T]
}

// New returns an empty tracker.
func New[T Muxed]() *Tracker[T] {
	return &Tracker[T]{}
}

// Add registers a new stream and returns its tracking record.
// isExternal marks a caller-supplied stream that the tracker must
// never destroy itself.
func (t *Tracker[T]) Add(value T, isExternal bool) *Record[T] {
	t.mu.Lock()
	defer t.mu.Unlock()

	record := &Record[T]{Value: value, IsExternal: isExternal, index: len(t.records)}
	t.records = append(t.records, record)
	return record
}

// Remove removes record in O(1) by swapping the tail element into its
// slot and fixing the moved record's index. A no-op if record has
// already been removed.
func (t *Tracker[T]) Remove(record *Record[T]) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.records)
	if record.index < 0 || record.index >= n || t.records[record.index] != record {
		return
	}

	last := n - 1
	t.records[record.index] = t.records[last]
	t.records[record.index].index = record.index
	t.records[last] = nil
	t.records = t.records[:last]
	record.index = -1
}

// Len returns the number of tracked streams.
func (t *Tracker[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// AttachAll attaches core to every tracked stream's muxer that it
// isn't already attached to (spec.md §4.4's attach_all).
func (t *Tracker[T]) AttachAll(core engine.Core) error {
	t.mu.Lock()
	muxers := make([]engine.Muxer, len(t.records))
	for i, record := range t.records {
		muxers[i] = record.Value.Muxer()
	}
	t.mu.Unlock()

	replicator := core.Replicator()
	for _, muxer := range muxers {
		if replicator.Attached(muxer) {
			continue
		}
		if err := replicator.AttachTo(muxer); err != nil {
			return fmt.Errorf("streamtracker: attach all: %w", err)
		}
	}
	return nil
}

// Destroy iterates tracked streams in reverse insertion order and
// calls destroy on each one whose IsExternal is false, removing it
// from the tracker as it goes (spec.md §4.4's destroy(), invoked on
// root close). External streams are left both untouched and in place
// for the caller to manage.
func (t *Tracker[T]) Destroy(destroy func(T) error) error {
	t.mu.Lock()
	owned := make([]*Record[T], 0, len(t.records))
	for i := len(t.records) - 1; i >= 0; i-- {
		if !t.records[i].IsExternal {
			owned = append(owned, t.records[i])
		}
	}
	t.mu.Unlock()

	var errs []error
	for _, record := range owned {
		if err := destroy(record.Value); err != nil {
			errs = append(errs, err)
		}
		t.Remove(record)
	}

	if len(errs) > 0 {
		return fmt.Errorf("streamtracker: destroy: %d stream(s) failed to close, first error: %w", len(errs), errs[0])
	}
	return nil
}
