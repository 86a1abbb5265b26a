// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replication

import (
	"context"
	"testing"
)

func TestMemorySignalerOfferAnswerRoundTrip(t *testing.T) {
	s := NewMemorySignaler()
	ctx := context.Background()

	if err := s.PublishOffer(ctx, "alice", "bob", "sdp-offer-1"); err != nil {
		t.Fatalf("PublishOffer: %v", err)
	}

	offers, err := s.PollOffers(ctx, "bob")
	if err != nil {
		t.Fatalf("PollOffers: %v", err)
	}
	if len(offers) != 1 || offers[0].PeerID != "alice" || offers[0].SDP != "sdp-offer-1" {
		t.Fatalf("offers = %+v", offers)
	}

	if err := s.PublishAnswer(ctx, "alice", "bob", "sdp-answer-1"); err != nil {
		t.Fatalf("PublishAnswer: %v", err)
	}
	answers, err := s.PollAnswers(ctx, "alice")
	if err != nil {
		t.Fatalf("PollAnswers: %v", err)
	}
	if len(answers) != 1 || answers[0].PeerID != "bob" || answers[0].SDP != "sdp-answer-1" {
		t.Fatalf("answers = %+v", answers)
	}
}

func TestMemorySignalerDoesNotReplayAlreadyPolled(t *testing.T) {
	s := NewMemorySignaler()
	ctx := context.Background()

	s.PublishOffer(ctx, "alice", "bob", "sdp-1")
	if _, err := s.PollOffers(ctx, "bob"); err != nil {
		t.Fatal(err)
	}

	offers, err := s.PollOffers(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(offers) != 0 {
		t.Fatalf("offers = %+v, want none (already consumed)", offers)
	}

	s.PublishOffer(ctx, "alice", "bob", "sdp-2")
	offers, err = s.PollOffers(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(offers) != 1 || offers[0].SDP != "sdp-2" {
		t.Fatalf("offers = %+v, want a single fresh offer", offers)
	}
}

func TestMemorySignalerFiltersByTarget(t *testing.T) {
	s := NewMemorySignaler()
	ctx := context.Background()

	s.PublishOffer(ctx, "alice", "bob", "sdp-to-bob")
	s.PublishOffer(ctx, "alice", "carol", "sdp-to-carol")

	offers, err := s.PollOffers(ctx, "carol")
	if err != nil {
		t.Fatal(err)
	}
	if len(offers) != 1 || offers[0].SDP != "sdp-to-carol" {
		t.Fatalf("offers = %+v", offers)
	}
}
