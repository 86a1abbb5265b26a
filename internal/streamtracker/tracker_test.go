// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package streamtracker

import (
	"context"
	"testing"

	"github.com/corestore-go/corestore/engine"
)

type fakeMuxer string

func (m fakeMuxer) StreamID() string { return string(m) }

type fakeStream struct {
	muxer  fakeMuxer
	closed bool
}

func (s *fakeStream) Muxer() engine.Muxer { return s.muxer }

func TestAddRemoveSwapsTail(t *testing.T) {
	tracker := New[*fakeStream]()

	a := tracker.Add(&fakeStream{muxer: "a"}, false)
	b := tracker.Add(&fakeStream{muxer: "b"}, false)
	c := tracker.Add(&fakeStream{muxer: "c"}, false)

	if tracker.Len() != 3 {
		t.Fatalf("Len = %d, want 3", tracker.Len())
	}

	tracker.Remove(a)
	if tracker.Len() != 2 {
		t.Fatalf("Len after remove = %d, want 2", tracker.Len())
	}

	// b and c should both still be independently removable, proving
	// the swap-remove fixed up whichever record moved into a's slot.
	tracker.Remove(b)
	tracker.Remove(c)
	if tracker.Len() != 0 {
		t.Fatalf("Len after removing all = %d, want 0", tracker.Len())
	}
}

func TestRemoveTwiceIsNoOp(t *testing.T) {
	tracker := New[*fakeStream]()
	a := tracker.Add(&fakeStream{muxer: "a"}, false)
	tracker.Remove(a)
	tracker.Remove(a)
	if tracker.Len() != 0 {
		t.Fatalf("Len = %d, want 0", tracker.Len())
	}
}

type fakeCore struct {
	replicator *fakeReplicator
}

func (c *fakeCore) Ready(ctx context.Context) error { return nil }
func (c *fakeCore) Close() error                    { return nil }
func (c *fakeCore) SetKeyPair(engine.KeyPair) error { return nil }
func (c *fakeCore) Key() [engine.KeySize]byte       { return [engine.KeySize]byte{} }
func (c *fakeCore) DiscoveryKey() [engine.KeySize]byte {
	return [engine.KeySize]byte{}
}
func (c *fakeCore) KeyPair() (engine.KeyPair, bool)     { return engine.KeyPair{}, false }
func (c *fakeCore) Replicator() engine.Replicator       { return c.replicator }
func (c *fakeCore) OnDownloading(fn func(bool))         {}
func (c *fakeCore) OnIdle(fn func())                    {}
func (c *fakeCore) Audit(context.Context, engine.AuditOptions) (engine.AuditResult, error) {
	return engine.AuditResult{}, nil
}
func (c *fakeCore) GetUserData(context.Context, string) ([]byte, bool, error) {
	return nil, false, nil
}
func (c *fakeCore) SetUserData(context.Context, string, []byte) error { return nil }

type fakeReplicator struct {
	attached map[string]bool
}

func (r *fakeReplicator) Downloading() bool { return true }
func (r *fakeReplicator) Attached(muxer engine.Muxer) bool {
	return r.attached[muxer.StreamID()]
}
func (r *fakeReplicator) AttachTo(muxer engine.Muxer) error {
	if r.attached == nil {
		r.attached = make(map[string]bool)
	}
	r.attached[muxer.StreamID()] = true
	return nil
}

func TestAttachAllSkipsAlreadyAttached(t *testing.T) {
	tracker := New[*fakeStream]()
	tracker.Add(&fakeStream{muxer: "a"}, false)
	tracker.Add(&fakeStream{muxer: "b"}, false)

	core := &fakeCore{replicator: &fakeReplicator{attached: map[string]bool{"a": true}}}

	if err := tracker.AttachAll(core); err != nil {
		t.Fatalf("AttachAll: %v", err)
	}
	if !core.replicator.attached["a"] || !core.replicator.attached["b"] {
		t.Fatalf("attached = %v, want both a and b attached", core.replicator.attached)
	}
}

func TestDestroySkipsExternalStreams(t *testing.T) {
	tracker := New[*fakeStream]()
	owned := &fakeStream{muxer: "owned"}
	external := &fakeStream{muxer: "external"}
	tracker.Add(owned, false)
	tracker.Add(external, true)

	var destroyed []string
	err := tracker.Destroy(func(s *fakeStream) error {
		s.closed = true
		destroyed = append(destroyed, string(s.muxer))
		return nil
	})
	if err != nil {
		t.Fatalf("Destroy: %v", err)
	}

	if len(destroyed) != 1 || destroyed[0] != "owned" {
		t.Fatalf("destroyed = %v, want [owned]", destroyed)
	}
	if external.closed {
		t.Fatal("Destroy closed an external stream")
	}
	if tracker.Len() != 1 {
		t.Fatalf("Len after Destroy = %d, want 1 (external stream stays tracked)", tracker.Len())
	}
}
