// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replication

import (
	"context"
	"testing"
	"time"

	"github.com/corestore-go/corestore/engine"
)

func TestTCPTransportDialAndAccept(t *testing.T) {
	server, err := NewTCPTransport(":0", "server", nil)
	if err != nil {
		t.Fatalf("NewTCPTransport: %v", err)
	}
	t.Cleanup(func() { server.Close() })

	client, err := NewTCPTransport(":0", "client", nil)
	if err != nil {
		t.Fatalf("NewTCPTransport: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan [engine.KeySize]byte, 1)
	serverStreams := make(chan *ProtocolStream, 1)
	serverErrs := make(chan error, 1)
	go func() {
		stream, err := server.Accept(ctx, StreamOptions{
			OnDiscoveryKey: func(k [engine.KeySize]byte) { received <- k },
		})
		if err != nil {
			serverErrs <- err
			return
		}
		serverStreams <- stream
	}()

	clientStream, err := client.Dial(ctx, server.Address(), StreamOptions{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { clientStream.Destroy() })

	select {
	case err := <-serverErrs:
		t.Fatalf("Accept: %v", err)
	case serverStream := <-serverStreams:
		t.Cleanup(func() { serverStream.Destroy() })
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted the connection")
	}

	if err := clientStream.Uncork(); err != nil {
		t.Fatalf("Uncork: %v", err)
	}
	var key [engine.KeySize]byte
	key[0] = 42
	if err := clientStream.AdvertiseDiscoveryKey(key); err != nil {
		t.Fatalf("AdvertiseDiscoveryKey: %v", err)
	}

	select {
	case got := <-received:
		if got != key {
			t.Fatalf("got %x, want %x", got, key)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("discovery key never reached the server")
	}
}
