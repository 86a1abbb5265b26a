// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replication

import (
	"crypto/ed25519"
	"net"
	"testing"
)

func TestRunPeerAuthSucceedsWithMatchingKeys(t *testing.T) {
	alicePub, alicePriv, _ := ed25519.GenerateKey(nil)
	bobPub, bobPriv, _ := ed25519.GenerateKey(nil)

	alice := &KeyPairAuthenticator{PrivateKey: alicePriv, PeerKeys: map[string]ed25519.PublicKey{"bob": bobPub}}
	bob := &KeyPairAuthenticator{PrivateKey: bobPriv, PeerKeys: map[string]ed25519.PublicKey{"alice": alicePub}}

	connAlice, connBob := net.Pipe()
	defer connAlice.Close()
	defer connBob.Close()

	errs := make(chan error, 2)
	go func() { errs <- runPeerAuth(connAlice, alice, "alice", "bob") }()
	go func() { errs <- runPeerAuth(connBob, bob, "bob", "alice") }()

	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("runPeerAuth: %v", err)
		}
	}
}

func TestRunPeerAuthFailsWithWrongKey(t *testing.T) {
	_, alicePriv, _ := ed25519.GenerateKey(nil)
	impostorPub, _, _ := ed25519.GenerateKey(nil)
	bobPub, bobPriv, _ := ed25519.GenerateKey(nil)

	alice := &KeyPairAuthenticator{PrivateKey: alicePriv, PeerKeys: map[string]ed25519.PublicKey{"bob": bobPub}}
	// Bob has the wrong public key on file for alice.
	bob := &KeyPairAuthenticator{PrivateKey: bobPriv, PeerKeys: map[string]ed25519.PublicKey{"alice": impostorPub}}

	connAlice, connBob := net.Pipe()
	defer connAlice.Close()
	defer connBob.Close()

	errs := make(chan error, 2)
	go func() { errs <- runPeerAuth(connAlice, alice, "alice", "bob") }()
	go func() { errs <- runPeerAuth(connBob, bob, "bob", "alice") }()

	first, second := <-errs, <-errs
	if first == nil && second == nil {
		t.Fatal("expected at least one side to fail authentication")
	}
}
