// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package replication implements the transport-agnostic side of
// corestore's ProtocolStream / Muxer contract (spec.md §4.6.5, §6):
// establishing a peer connection, tracking which discovery keys are
// attached to it, and delivering discovery-key advertisements between
// peers so a store can open cores on demand.
//
// The noise handshake and the hypercore multiplexer itself are out of
// scope; ProtocolStream instead runs a small framed control protocol
// directly over the transport connection, sufficient to advertise and
// react to discovery keys. Two transports are provided:
// [WebRTCTransport] for NAT-traversing peer connections (adapted from
// bureau's daemon-to-daemon transport) and [TCPTransport] for
// same-host and same-LAN replication and tests.
package replication
