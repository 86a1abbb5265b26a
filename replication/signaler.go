// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replication

import "context"

// Signaler abstracts the mechanism for exchanging WebRTC session
// descriptions between two peers wanting to replicate. Production
// deployments might publish these through whatever rendezvous channel
// already connects the two stores (a discovery service, a shared
// Matrix room, a lookup DHT); [MemorySignaler] is the in-process
// implementation used by tests.
//
// The signaling model is vanilla ICE: all candidates are gathered
// before the SDP is published, so establishing a connection requires
// exactly one signaling round-trip (offer -> answer).
type Signaler interface {
	// PublishOffer publishes a complete SDP offer directed at peerID.
	PublishOffer(ctx context.Context, id, peerID, sdp string) error

	// PublishAnswer publishes a complete SDP answer in response to a
	// previously received offer from offererID.
	PublishAnswer(ctx context.Context, offererID, id, sdp string) error

	// PollOffers returns pending offers directed at id.
	PollOffers(ctx context.Context, id string) ([]SignalMessage, error)

	// PollAnswers returns pending answers to offers originated by id.
	PollAnswers(ctx context.Context, id string) ([]SignalMessage, error)
}

// SignalMessage carries one signaling exchange (offer or answer).
type SignalMessage struct {
	// PeerID identifies the other party: the offerer for a received
	// offer, the answerer for a received answer.
	PeerID string

	// SDP is the complete session description, ICE candidates included.
	SDP string

	// Sequence orders messages from the same peer so a poller can skip
	// ones it has already consumed.
	Sequence uint64
}
