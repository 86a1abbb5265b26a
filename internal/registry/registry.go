// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/corestore-go/corestore/engine"
	"github.com/corestore-go/corestore/internal/clock"
)

// IdleTickInterval is how often the registry scans idle cores for
// eviction (spec.md §4.2: "every ~2 seconds").
const IdleTickInterval = 2 * time.Second

// IdleStrikes is the number of consecutive idle ticks a core survives
// before it is closed and evicted (spec.md §4.2: "after three
// consecutive ticks").
const IdleStrikes = 3

// entry is either pending (a caller is still constructing the core via
// the engine and no one else may proceed until Finish), closing (an
// idle eviction is tearing the core down), or resolved (core is live
// and non-nil). pending and closing are mutually exclusive; waitCh is
// non-nil in either case and closes when the state clears.
type entry struct {
	core    engine.Core
	idle    bool
	strikes int

	pending bool
	closing bool
	waitCh  chan struct{}
}

// Registry is the process-wide discovery-key→core map (spec.md §4.2).
// Safe for concurrent use.
type Registry struct {
	clk    clock.Clock
	logger *slog.Logger

	mu       sync.Mutex
	entries  map[string]*entry
	watchers []watcher
	nextID   int
	stopped  bool
	paused   bool

	ticker *clock.Ticker
	done   chan struct{}
}

type watcher struct {
	id int
	fn func(engine.Core)
}

// New returns an empty registry and starts its idle-GC ticker.
func New(clk clock.Clock, logger *slog.Logger) *Registry {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := &Registry{
		clk:     clk,
		logger:  logger,
		entries: make(map[string]*entry),
		done:    make(chan struct{}),
	}

	r.ticker = clk.NewTicker(IdleTickInterval)
	go r.runIdleGC()

	return r
}

func hexID(id [engine.KeySize]byte) string {
	return hex.EncodeToString(id[:])
}

// Get returns the live core for id, or ok=false if no core is
// registered, or the registered entry is currently closing or still
// pending construction (spec.md §4.2: a closing core "is reported as
// absent to callers").
func (r *Registry) Get(id [engine.KeySize]byte) (engine.Core, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[hexID(id)]
	if !ok || e.closing || e.pending {
		return nil, false
	}
	return e.core, true
}

// Open looks up id for the purpose of interning a core (spec.md §5's
// concurrent-open dedup loop, and §4.2's Resume contract). Three
// outcomes:
//
//   - A live, non-closing, non-pending core is already registered: it
//     is returned directly, with its idle strikes reset (this is the
//     "resume" case: any pending eviction is cancelled).
//   - The entry is closing, or another caller's Open for the same id
//     is still pending: wait is a channel that closes once that
//     resolves; the caller should retry Open.
//   - No entry exists: this call reserves id atomically. owner is
//     true, and the caller must call Finish exactly once before any
//     other caller's Open for id can proceed past the wait above. This
//     is what prevents two concurrent Get calls for the same identity
//     from each constructing and registering their own Core.
func (r *Registry) Open(id [engine.KeySize]byte) (core engine.Core, wait <-chan struct{}, owner bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := hexID(id)
	e, ok := r.entries[key]
	if !ok {
		e = &entry{pending: true, waitCh: make(chan struct{})}
		r.entries[key] = e
		return nil, nil, true
	}
	if e.closing || e.pending {
		return nil, e.waitCh, false
	}

	e.idle = false
	e.strikes = 0
	return e.core, nil, false
}

// Finish completes a reservation obtained from Open when it returned
// owner=true. err == nil installs core under id and fires every
// registered watcher (most recently installed first, spec.md §4.2's
// LIFO guarantee). err != nil releases the reservation instead,
// letting the next Open call retry construction from scratch.
func (r *Registry) Finish(id [engine.KeySize]byte, core engine.Core, err error) {
	key := hexID(id)

	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok || !e.pending {
		r.mu.Unlock()
		return
	}

	if err != nil {
		delete(r.entries, key)
		wait := e.waitCh
		r.mu.Unlock()
		close(wait)
		return
	}

	e.pending = false
	e.core = core
	wait := e.waitCh
	e.waitCh = nil
	watchers := make([]watcher, len(r.watchers))
	copy(watchers, r.watchers)
	r.mu.Unlock()

	core.OnIdle(func() { r.gc(id) })

	close(wait)
	for i := len(watchers) - 1; i >= 0; i-- {
		watchers[i].fn(core)
	}
}

// Set registers core under id directly, without going through the
// Open/Finish reservation protocol. Used by callers (and tests) that
// already know no concurrent opener can be racing them for id.
func (r *Registry) Set(id [engine.KeySize]byte, core engine.Core) {
	if _, _, owner := r.Open(id); !owner {
		// id was already registered or pending; overwrite is not a
		// well-defined operation here, so make this a no-op rather than
		// corrupt an in-flight reservation.
		return
	}
	r.Finish(id, core, nil)
}

// All returns a snapshot of every currently registered, live core
// (excludes closing and still-pending entries). Used for a stream's
// initial attachment burst (spec.md §4.6.5) and for audit/list
// bookkeeping that needs to see what's already live without waiting on
// a future Watch registration.
func (r *Registry) All() []engine.Core {
	r.mu.Lock()
	defer r.mu.Unlock()
	cores := make([]engine.Core, 0, len(r.entries))
	for _, e := range r.entries {
		if e.closing || e.pending {
			continue
		}
		cores = append(cores, e.core)
	}
	return cores
}

// gc marks the core registered under id as idle, arming it for
// eviction on the next three consecutive idle ticks.
func (r *Registry) gc(id [engine.KeySize]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}
	e, ok := r.entries[hexID(id)]
	if !ok || e.closing || e.pending {
		return
	}
	e.idle = true
	e.strikes = 0
}

// Watch installs fn to be called with every core registered from now
// on. Returns a handle for Unwatch. Installing a watcher never
// replays past registrations (spec.md §4.2).
func (r *Registry) Watch(fn func(engine.Core)) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.watchers = append(r.watchers, watcher{id: id, fn: fn})
	return id
}

// Unwatch removes a watcher previously installed with Watch.
func (r *Registry) Unwatch(handle int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, w := range r.watchers {
		if w.id == handle {
			r.watchers = append(r.watchers[:i], r.watchers[i+1:]...)
			return
		}
	}
}

func (r *Registry) runIdleGC() {
	for {
		select {
		case <-r.ticker.C:
			r.tick()
		case <-r.done:
			return
		}
	}
}

// Pause suspends idle-GC ticks: entries already idle keep their strike
// count but accrue no more until Resume (spec.md §4.6.9's Suspend,
// which must not evict cores out from under a paused storage backend).
func (r *Registry) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = true
}

// Resume undoes a prior Pause.
func (r *Registry) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = false
}

func (r *Registry) tick() {
	r.mu.Lock()
	if r.stopped || r.paused {
		r.mu.Unlock()
		return
	}
	var toClose []struct {
		id string
		e  *entry
	}
	for id, e := range r.entries {
		if e.closing || e.pending || !e.idle {
			continue
		}
		e.strikes++
		if e.strikes >= IdleStrikes {
			e.closing = true
			e.waitCh = make(chan struct{})
			toClose = append(toClose, struct {
				id string
				e  *entry
			}{id, e})
		}
	}
	r.mu.Unlock()

	for _, x := range toClose {
		go r.closeAndEvict(x.id, x.e)
	}
}

func (r *Registry) closeAndEvict(id string, e *entry) {
	if err := e.core.Close(); err != nil {
		r.logger.Warn("registry: idle core close failed", "discovery_key", id, "error", err)
	} else {
		r.logger.Info("registry: idle core evicted", "discovery_key", id)
	}

	r.mu.Lock()
	if r.entries[id] == e {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	close(e.waitCh)
}

// Close stops the idle-GC ticker, forbids reentrant idle callbacks,
// and awaits close of every registered core (spec.md §4.2).
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	r.ticker.Stop()
	close(r.done)

	var errs []error
	for _, e := range entries {
		if e.pending {
			<-e.waitCh
			// The reservation may have resolved into a live core while
			// Close was waiting (a Get racing the very start of Close,
			// per spec.md §5); e.waitCh closing happens-after Finish's
			// writes, so reading e.core here is safe without the lock.
			// A failed Finish leaves e.core nil, so there's nothing to
			// close in that case.
			if e.core == nil {
				continue
			}
		} else if e.closing {
			<-e.waitCh
			continue
		}
		if err := e.core.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	r.mu.Lock()
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	if len(errs) > 0 {
		return fmt.Errorf("registry: close: %d core(s) failed to close, first error: %w", len(errs), errs[0])
	}
	return nil
}
