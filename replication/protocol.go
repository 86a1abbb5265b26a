// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replication

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/corestore-go/corestore/engine"
)

// Role identifies which side of a peer connection a ProtocolStream
// plays. It determines nothing about the wire protocol itself (both
// sides run the same frame loop); it exists purely so a transport can
// decide, e.g., which side offers the SDP.
type Role bool

const (
	// Initiator dials out to the peer.
	Initiator Role = true
	// Responder accepts an inbound connection.
	Responder Role = false
)

func (r Role) String() string {
	if r == Initiator {
		return "initiator"
	}
	return "responder"
}

// Muxer implements engine.Muxer for a single ProtocolStream. Cores
// attach to it via their engine.Replicator (spec.md §3's "Attach"
// operation); the muxer itself only needs a stable identity so
// StreamTracker can tell attached streams apart.
type Muxer struct {
	id string
}

func (m *Muxer) StreamID() string { return m.id }

// ProtocolStream is corestore's transport-agnostic replication
// connection (spec.md §4.6.5, §6). It wraps a single net.Conn (a
// detached WebRTC data channel or a TCP socket) with a minimal framed
// control protocol used to advertise and receive discovery keys, plus
// the cork/uncork discipline the store needs during its initial
// attachment burst.
type ProtocolStream struct {
	role   Role
	conn   net.Conn
	muxer  *Muxer
	logger *slog.Logger

	onDiscoveryKey func(discoveryKey [engine.KeySize]byte)
	onCoreClosed   func(discoveryKey [engine.KeySize]byte)

	opened     chan struct{}
	openedOnce sync.Once

	writeMu sync.Mutex
	mu      sync.Mutex
	corked  bool
	pending []frameBody

	closed    chan struct{}
	closeOnce sync.Once
}

// StreamOptions configures a ProtocolStream's callbacks.
type StreamOptions struct {
	// OnDiscoveryKey is invoked for every discovery key the remote peer
	// advertises (spec.md §4.6.5's on_discovery_key handler); the stream
	// does not filter out repeated advertisements.
	OnDiscoveryKey func(discoveryKey [engine.KeySize]byte)

	// OnCoreClosed is invoked when the remote peer reports it has
	// detached a core, so the local side can mirror the detach.
	OnCoreClosed func(discoveryKey [engine.KeySize]byte)
}

// newProtocolStream wraps conn and starts its background frame reader.
// The stream begins corked: nothing queued via AdvertiseDiscoveryKey is
// sent to the wire until Uncork is called, matching spec.md §4.6.5's
// "cork the muxer ... uncork after the noise handshake opens" sequence.
func newProtocolStream(id string, role Role, conn net.Conn, opts StreamOptions, logger *slog.Logger) *ProtocolStream {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &ProtocolStream{
		role:           role,
		conn:           conn,
		muxer:          &Muxer{id: id},
		logger:         logger,
		onDiscoveryKey: opts.OnDiscoveryKey,
		onCoreClosed:   opts.OnCoreClosed,
		opened:         make(chan struct{}),
		corked:         true,
		closed:         make(chan struct{}),
	}
	go s.readLoop()
	return s
}

// Muxer returns the engine.Muxer identity cores attach to.
func (s *ProtocolStream) Muxer() engine.Muxer { return s.muxer }

// Opened returns a channel that closes once the underlying transport
// connection is usable. Callers await it before uncorking (spec.md
// §4.6.5: "if the engine exposes only a noise_stream.opened future,
// await opened; uncork — do not uncork earlier").
func (s *ProtocolStream) Opened() <-chan struct{} { return s.opened }

// markOpened is called by the owning transport once the connection is
// ready to carry frames.
func (s *ProtocolStream) markOpened() {
	s.openedOnce.Do(func() { close(s.opened) })
}

// Closed returns a channel that closes once the stream has torn down,
// either because Destroy was called or because the frame reader hit a
// connection error. Callers use it to know when to drop a stream from
// their own bookkeeping (spec.md §4.6.5's stream teardown).
func (s *ProtocolStream) Closed() <-chan struct{} { return s.closed }

// Uncork flushes any discovery-key advertisements queued while corked
// and allows future advertisements to be sent immediately.
func (s *ProtocolStream) Uncork() error {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.corked = false
	s.mu.Unlock()

	for _, body := range pending {
		if err := s.writeLocked(body); err != nil {
			return err
		}
	}
	return nil
}

// Cork suspends outbound sends until Uncork is called; queued
// advertisements accumulate in memory instead.
func (s *ProtocolStream) Cork() {
	s.mu.Lock()
	s.corked = true
	s.mu.Unlock()
}

// AdvertiseDiscoveryKey tells the peer this side has a core under
// discoveryKey, so the peer's on_discovery_key handler can decide to
// open and attach it.
func (s *ProtocolStream) AdvertiseDiscoveryKey(discoveryKey [engine.KeySize]byte) error {
	body := frameBody{Kind: frameDiscoveryKey, DiscoveryKey: discoveryKey}

	s.mu.Lock()
	if s.corked {
		s.pending = append(s.pending, body)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	return s.writeLocked(body)
}

// Close reports to the peer that discoveryKey has been detached from
// this stream. It does not tear down the stream itself; use Destroy
// for that.
func (s *ProtocolStream) Close(discoveryKey [engine.KeySize]byte) error {
	return s.writeLocked(frameBody{Kind: frameCoreClosed, DiscoveryKey: discoveryKey})
}

// Destroy tears down the underlying connection. Safe to call more
// than once.
func (s *ProtocolStream) Destroy() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.conn.Close()
	})
	return err
}

func (s *ProtocolStream) writeLocked(body frameBody) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	select {
	case <-s.closed:
		return fmt.Errorf("replication: stream destroyed")
	default:
	}
	return writeFrame(s.conn, body)
}

func (s *ProtocolStream) readLoop() {
	for {
		body, err := readFrame(s.conn)
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			if err != io.EOF {
				s.logger.Debug("replication: frame read failed, closing stream", "error", err)
			}
			s.Destroy()
			return
		}

		switch body.Kind {
		case frameDiscoveryKey:
			if s.onDiscoveryKey != nil {
				s.onDiscoveryKey(body.DiscoveryKey)
			}
		case frameCoreClosed:
			if s.onCoreClosed != nil {
				s.onCoreClosed(body.DiscoveryKey)
			}
		default:
			s.logger.Warn("replication: unknown frame kind", "kind", body.Kind)
		}
	}
}
