// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replication

import (
	"context"
	"sync"
	"sync/atomic"
)

var _ Signaler = (*MemorySignaler)(nil)

// MemorySignaler is an in-process Signaler for tests: two
// WebRTCTransport instances sharing one MemorySignaler can establish a
// PeerConnection without any external rendezvous service.
type MemorySignaler struct {
	mu       sync.Mutex
	offers   map[string]SignalMessage // key: "offerer|target"
	answers  map[string]SignalMessage // key: "offerer|target"
	lastSeen map[string]uint64        // key: "<label>:<id>:<key>"
	counter  atomic.Uint64
}

// NewMemorySignaler returns an empty in-process signaler.
func NewMemorySignaler() *MemorySignaler {
	return &MemorySignaler{
		offers:   make(map[string]SignalMessage),
		answers:  make(map[string]SignalMessage),
		lastSeen: make(map[string]uint64),
	}
}

func signalKey(a, b string) string { return a + "|" + b }

func (s *MemorySignaler) PublishOffer(_ context.Context, id, peerID, sdp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers[signalKey(id, peerID)] = SignalMessage{PeerID: id, SDP: sdp, Sequence: s.counter.Add(1)}
	return nil
}

func (s *MemorySignaler) PublishAnswer(_ context.Context, offererID, id, sdp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers[signalKey(offererID, id)] = SignalMessage{PeerID: id, SDP: sdp, Sequence: s.counter.Add(1)}
	return nil
}

func (s *MemorySignaler) PollOffers(_ context.Context, id string) ([]SignalMessage, error) {
	return s.poll(id, s.offers, "offers", func(key, id string) (string, bool) {
		target, ok := splitTarget(key)
		if !ok || target != id {
			return "", false
		}
		offerer, _ := splitOfferer(key)
		return offerer, true
	})
}

func (s *MemorySignaler) PollAnswers(_ context.Context, id string) ([]SignalMessage, error) {
	return s.poll(id, s.answers, "answers", func(key, id string) (string, bool) {
		offerer, ok := splitOfferer(key)
		if !ok || offerer != id {
			return "", false
		}
		return offerer, true
	})
}

type keyMatcher func(key, id string) (string, bool)

func (s *MemorySignaler) poll(id string, store map[string]SignalMessage, label string, match keyMatcher) ([]SignalMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var messages []SignalMessage
	for key, msg := range store {
		if _, ok := match(key, id); !ok {
			continue
		}
		seenKey := label + ":" + id + ":" + key
		if last, ok := s.lastSeen[seenKey]; ok && msg.Sequence <= last {
			continue
		}
		s.lastSeen[seenKey] = msg.Sequence
		messages = append(messages, msg)
	}
	return messages, nil
}

func splitOfferer(key string) (string, bool) {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return key[:i], true
		}
	}
	return "", false
}

func splitTarget(key string) (string, bool) {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '|' {
			return key[i+1:], true
		}
	}
	return "", false
}
