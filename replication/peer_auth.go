// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replication

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"time"
)

const (
	authNonceSize     = 32
	authSignatureSize = ed25519.SignatureSize
	authTimeout       = 10 * time.Second
)

// PeerAuthenticator gives a replication transport an optional mutual
// authentication step, run once per peer connection before any
// ProtocolStream frames are exchanged. It binds the transport
// connection to the peers' Ed25519 identities (the same key pairs
// corestore derives for cores), independent of and prior to whatever
// per-core authentication a manifest's signers imply.
type PeerAuthenticator interface {
	// Sign signs message with the local identity's private key.
	Sign(message []byte) []byte

	// VerifyPeer verifies that signature over message was produced by
	// the peer identified by peerID's known public key.
	VerifyPeer(peerID string, message, signature []byte) error
}

// KeyPairAuthenticator is a PeerAuthenticator backed by a single local
// Ed25519 private key and a static table of known peer public keys.
type KeyPairAuthenticator struct {
	PrivateKey ed25519.PrivateKey
	PeerKeys   map[string]ed25519.PublicKey
}

func (a *KeyPairAuthenticator) Sign(message []byte) []byte {
	return ed25519.Sign(a.PrivateKey, message)
}

func (a *KeyPairAuthenticator) VerifyPeer(peerID string, message, signature []byte) error {
	pub, ok := a.PeerKeys[peerID]
	if !ok {
		return fmt.Errorf("replication: no known public key for peer %q", peerID)
	}
	if !ed25519.Verify(pub, message, signature) {
		return fmt.Errorf("replication: signature verification failed for peer %q", peerID)
	}
	return nil
}

// runPeerAuth executes a mutual challenge-response handshake over
// channel. Both peers run this simultaneously:
//
//  1. Send a random 32-byte nonce.
//  2. Read the peer's nonce.
//  3. Sign (peerNonce || peerID) — binding the response to the
//     specific challenger's identity — and send the signature.
//  4. Read the peer's signature and verify it against (ownNonce ||
//     id) using the peer's known public key.
//
// The id binding in step 3 stops a signature valid for peer A from
// being replayed to authenticate against peer B. Write and read are
// interleaved through a background goroutine so this works over
// synchronous connections (net.Pipe, an undetached data channel)
// where Write blocks until the peer Reads.
func runPeerAuth(channel io.ReadWriter, authenticator PeerAuthenticator, id, peerID string) error {
	nonce := make([]byte, authNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("replication: generating auth nonce: %w", err)
	}

	writeErrors := make(chan error, 1)
	signatureToSend := make(chan []byte, 1)

	go func() {
		if _, err := channel.Write(nonce); err != nil {
			writeErrors <- fmt.Errorf("replication: sending auth nonce: %w", err)
			return
		}
		signature, ok := <-signatureToSend
		if !ok {
			return
		}
		if _, err := channel.Write(signature); err != nil {
			writeErrors <- fmt.Errorf("replication: sending auth signature: %w", err)
			return
		}
		writeErrors <- nil
	}()

	peerNonce := make([]byte, authNonceSize)
	if _, err := io.ReadFull(channel, peerNonce); err != nil {
		close(signatureToSend)
		return fmt.Errorf("replication: reading peer nonce: %w", err)
	}

	signedMessage := make([]byte, 0, authNonceSize+len(peerID))
	signedMessage = append(signedMessage, peerNonce...)
	signedMessage = append(signedMessage, peerID...)
	signatureToSend <- authenticator.Sign(signedMessage)

	peerSignature := make([]byte, authSignatureSize)
	if _, err := io.ReadFull(channel, peerSignature); err != nil {
		return fmt.Errorf("replication: reading peer signature: %w", err)
	}

	if err := <-writeErrors; err != nil {
		return err
	}

	verifyMessage := make([]byte, 0, authNonceSize+len(id))
	verifyMessage = append(verifyMessage, nonce...)
	verifyMessage = append(verifyMessage, id...)
	if err := authenticator.VerifyPeer(peerID, verifyMessage, peerSignature); err != nil {
		return fmt.Errorf("replication: peer %s failed authentication: %w", peerID, err)
	}
	return nil
}
