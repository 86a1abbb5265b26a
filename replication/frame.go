// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replication

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/corestore-go/corestore/engine"
	"github.com/corestore-go/corestore/internal/codec"
)

// maxFrameSize bounds a single control frame, guarding against a
// malformed or hostile peer sending an unbounded length prefix.
const maxFrameSize = 1 << 16

type frameKind uint8

const (
	frameDiscoveryKey frameKind = iota + 1
	frameCoreClosed
)

// frameBody is the CBOR payload carried by every control frame. Only
// the field relevant to Kind is populated.
type frameBody struct {
	Kind         frameKind          `cbor:"1,keyasint"`
	DiscoveryKey [engine.KeySize]byte `cbor:"2,keyasint"`
}

// writeFrame writes a length-prefixed, CBOR-encoded control frame.
// The 4-byte big-endian length prefix lets the reader know exactly how
// many bytes to buffer before decoding, since the underlying
// connection (a detached data channel or a raw TCP socket) offers no
// message boundaries of its own.
func writeFrame(w io.Writer, body frameBody) error {
	payload, err := codec.Marshal(body)
	if err != nil {
		return fmt.Errorf("replication: encoding frame: %w", err)
	}
	if len(payload) > maxFrameSize {
		return fmt.Errorf("replication: frame too large: %d bytes", len(payload))
	}

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("replication: writing frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("replication: writing frame body: %w", err)
	}
	return nil
}

// readFrame blocks until a complete frame has arrived and decodes it.
func readFrame(r io.Reader) (frameBody, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return frameBody{}, err
	}
	length := binary.BigEndian.Uint32(header)
	if length > maxFrameSize {
		return frameBody{}, fmt.Errorf("replication: peer sent oversized frame: %d bytes", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return frameBody{}, fmt.Errorf("replication: reading frame body: %w", err)
	}

	var body frameBody
	if err := codec.Unmarshal(payload, &body); err != nil {
		return frameBody{}, fmt.Errorf("replication: decoding frame: %w", err)
	}
	return body, nil
}
