// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replication

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"
)

// TCPTransport is the direct-reachability replication transport: no
// NAT traversal, no signaling round trip, just a listener and a
// dialer. It is the transport used for same-host and same-LAN
// replication and for tests, mirroring how the teacher daemon reaches
// for WebRTC only once plain TCP reachability cannot be assumed.
type TCPTransport struct {
	listener net.Listener
	id       string
	logger   *slog.Logger

	dialTimeout   time.Duration
	streamCounter atomic.Uint64
}

// NewTCPTransport listens on address (":0" for a random free port).
func NewTCPTransport(address, id string, logger *slog.Logger) (*TCPTransport, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("replication: listening on %s: %w", address, err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &TCPTransport{listener: listener, id: id, logger: logger, dialTimeout: 10 * time.Second}, nil
}

// Address returns the "host:port" this transport is listening on.
func (t *TCPTransport) Address() string { return t.listener.Addr().String() }

// Close stops accepting new connections.
func (t *TCPTransport) Close() error { return t.listener.Close() }

// Dial connects to a peer's TCPTransport at address and returns a
// ProtocolStream in the Initiator role.
func (t *TCPTransport) Dial(ctx context.Context, address string, opts StreamOptions) (*ProtocolStream, error) {
	conn, err := (&net.Dialer{Timeout: t.dialTimeout}).DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("replication: dialing %s: %w", address, err)
	}
	id := fmt.Sprintf("%s/%d", t.id, t.streamCounter.Add(1))
	stream := newProtocolStream(id, Initiator, conn, opts, t.logger)
	stream.markOpened()
	return stream, nil
}

// Accept blocks until a peer connects and returns a ProtocolStream in
// the Responder role.
func (t *TCPTransport) Accept(ctx context.Context, opts StreamOptions) (*ProtocolStream, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	results := make(chan result, 1)
	go func() {
		conn, err := t.listener.Accept()
		results <- result{conn, err}
	}()

	select {
	case r := <-results:
		if r.err != nil {
			return nil, fmt.Errorf("replication: accepting connection: %w", r.err)
		}
		id := fmt.Sprintf("%s/%d", t.id, t.streamCounter.Add(1))
		stream := newProtocolStream(id, Responder, r.conn, opts, t.logger)
		stream.markOpened()
		return stream, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
