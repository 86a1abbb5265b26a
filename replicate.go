// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package corestore

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/corestore-go/corestore/engine"
	"github.com/corestore-go/corestore/replication"
)

// Dialer opens an outbound replication stream to target. Both
// replication.TCPTransport and replication.WebRTCTransport satisfy
// this.
type Dialer interface {
	Dial(ctx context.Context, target string, opts replication.StreamOptions) (*replication.ProtocolStream, error)
}

// Accepter waits for an inbound replication stream. Both
// replication.TCPTransport and replication.WebRTCTransport satisfy
// this.
type Accepter interface {
	Accept(ctx context.Context, opts replication.StreamOptions) (*replication.ProtocolStream, error)
}

// ReplicateOptions selects how Replicate obtains its ProtocolStream
// (spec.md §4.6.5). Exactly one of Stream, Dialer, or Accepter should
// be set; Stream takes precedence if more than one is.
type ReplicateOptions struct {
	// Stream is a caller-owned stream, already connected. Replicate
	// attaches to it but leaves its lifecycle entirely to the caller;
	// Store.Close will not destroy it.
	Stream *replication.ProtocolStream

	// Dialer and Target together have Replicate dial out and own the
	// resulting stream itself.
	Dialer Dialer
	Target string

	// Accepter has Replicate wait for an inbound connection and own
	// the resulting stream itself.
	Accepter Accepter
}

// Replicate attaches the store's already-downloading cores to a peer
// stream and arranges for cores created or newly downloading later to
// be attached too (spec.md §4.6.5). It returns the ProtocolStream so
// the caller can inspect or, for an externally supplied one, keep
// managing it.
func (s *Store) Replicate(ctx context.Context, opts ReplicateOptions) (*replication.ProtocolStream, error) {
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}

	sh := s.shared

	var (
		ps         *replication.ProtocolStream
		isExternal bool
	)

	streamOpts := replication.StreamOptions{
		OnDiscoveryKey: func(discoveryKey [engine.KeySize]byte) {
			if ps == nil {
				return
			}
			s.HandlePeerDiscoveryKey(context.Background(), discoveryKey, ps.Muxer())
		},
		OnCoreClosed: func(discoveryKey [engine.KeySize]byte) {
			if ps == nil {
				return
			}
			sh.releaseReplicatorSession(ps.Muxer().StreamID(), hex.EncodeToString(discoveryKey[:]))
		},
	}

	switch {
	case opts.Stream != nil:
		ps = opts.Stream
		isExternal = true
	case opts.Dialer != nil:
		var err error
		ps, err = opts.Dialer.Dial(ctx, opts.Target, streamOpts)
		if err != nil {
			return nil, fmt.Errorf("corestore: dialing replication stream: %w", err)
		}
	case opts.Accepter != nil:
		var err error
		ps, err = opts.Accepter.Accept(ctx, streamOpts)
		if err != nil {
			return nil, fmt.Errorf("corestore: accepting replication stream: %w", err)
		}
	default:
		return nil, fmt.Errorf("corestore: Replicate: one of Stream, Dialer, or Accepter is required")
	}

	record := sh.streams.Add(ps, isExternal)

	watchHandle := sh.registry.Watch(func(core engine.Core) {
		if s.passive {
			return
		}
		if err := attachIfDownloading(core, ps); err != nil {
			sh.logger.Warn("corestore: attaching newly registered core to stream failed", "error", err)
		}
	})

	if !s.passive {
		for _, core := range sh.registry.All() {
			if err := attachIfDownloading(core, ps); err != nil {
				sh.logger.Warn("corestore: attaching existing core to stream failed", "error", err)
			}
		}
	}

	go func() {
		select {
		case <-ps.Opened():
			ps.Uncork()
		case <-ps.Closed():
		}
	}()

	go func() {
		<-ps.Closed()
		sh.registry.Unwatch(watchHandle)
		sh.streams.Remove(record)
		sh.releaseReplicatorSessionsForStream(ps.Muxer().StreamID())
	}()

	return ps, nil
}

func attachIfDownloading(core engine.Core, ps *replication.ProtocolStream) error {
	replicator := core.Replicator()
	if !replicator.Downloading() {
		return nil
	}
	if replicator.Attached(ps.Muxer()) {
		return nil
	}
	return replicator.AttachTo(ps.Muxer())
}

// HandlePeerDiscoveryKey implements spec.md §4.6.5's on_discovery_key
// handler: a peer has advertised a discovery key over muxer, and this
// store decides whether it has anything to offer for it. It is called
// automatically for streams Replicate itself dials or accepts, and is
// exported so a caller supplying its own ProtocolStream can wire it in
// too.
func (s *Store) HandlePeerDiscoveryKey(ctx context.Context, discoveryKey [engine.KeySize]byte, muxer engine.Muxer) {
	s.mu.Lock()
	closing := s.st == stateClosing || s.st == stateClosed
	s.mu.Unlock()
	if closing {
		return
	}

	sh := s.shared
	id := hex.EncodeToString(discoveryKey[:])

	if sh.knownMissing.Check(id) {
		return
	}

	if core, ok := sh.registry.Get(discoveryKey); ok {
		replicator := core.Replicator()
		if !replicator.Attached(muxer) {
			if err := replicator.AttachTo(muxer); err != nil {
				sh.logger.Warn("corestore: attaching known core to peer stream failed", "discovery_key", id, "error", err)
			}
		}
		return
	}

	has, err := sh.storage.Has(ctx, discoveryKey)
	if err != nil {
		sh.logger.Warn("corestore: checking storage for peer-advertised discovery key failed", "discovery_key", id, "error", err)
		return
	}
	if !has {
		sh.knownMissing.Mark(id)
		return
	}

	active := false
	createIfMissing := false
	sess, err := s.Get(ctx, SessionConfig{
		DiscoveryKey:    &discoveryKey,
		Active:          &active,
		CreateIfMissing: &createIfMissing,
	})
	if err != nil {
		sh.logger.Warn("corestore: opening peer-advertised core failed", "discovery_key", id, "error", err)
		return
	}

	replicator := sess.core.Replicator()
	if !replicator.Attached(muxer) {
		if err := replicator.AttachTo(muxer); err != nil {
			sh.logger.Warn("corestore: attaching peer-advertised core to stream failed", "discovery_key", id, "error", err)
			sess.Close()
			return
		}
	}

	// The core stays registered only because this session's refcount
	// keeps it alive (spec.md §4.6.5: "the core remains in the registry
	// because attachment holds a replicator session"). Closing sess
	// here would drop that refcount to zero and close the core Attach
	// just wired up. Instead it's held until the peer reports detaching
	// this discovery key or the stream itself closes.
	sh.holdReplicatorSession(muxer.StreamID(), id, sess)
}

// holdReplicatorSession keeps sess open on behalf of an on-demand
// attachment to a peer stream, replacing (and closing) any session
// already held for the same (streamID, id) pair.
func (sh *shared) holdReplicatorSession(streamID, id string, sess *Session) {
	sh.replMu.Lock()
	byStream, ok := sh.replSessions[streamID]
	if !ok {
		byStream = make(map[string]*Session)
		sh.replSessions[streamID] = byStream
	}
	previous := byStream[id]
	byStream[id] = sess
	sh.replMu.Unlock()

	if previous != nil {
		previous.Close()
	}
}

// releaseReplicatorSession closes and forgets the session held for
// (streamID, id), if any. Called when the peer reports detaching that
// discovery key from the stream.
func (sh *shared) releaseReplicatorSession(streamID, id string) {
	sh.replMu.Lock()
	var sess *Session
	if byStream, ok := sh.replSessions[streamID]; ok {
		sess = byStream[id]
		delete(byStream, id)
		if len(byStream) == 0 {
			delete(sh.replSessions, streamID)
		}
	}
	sh.replMu.Unlock()

	if sess != nil {
		sess.Close()
	}
}

// releaseReplicatorSessionsForStream closes every session held for
// streamID. Called once the stream itself has closed.
func (sh *shared) releaseReplicatorSessionsForStream(streamID string) {
	sh.replMu.Lock()
	byStream := sh.replSessions[streamID]
	delete(sh.replSessions, streamID)
	sh.replMu.Unlock()

	for _, sess := range byStream {
		sess.Close()
	}
}
