// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replication

import "github.com/pion/webrtc/v4"

// ICEConfig holds the ICE server configuration used when a
// WebRTCTransport creates new PeerConnections. The zero value gathers
// only host candidates, which is sufficient for same-machine and
// same-LAN peers.
type ICEConfig struct {
	// Servers is the list of STUN/TURN servers to try, in order.
	Servers []webrtc.ICEServer
}

// STUNConfig is a convenience constructor for a config with a single
// STUN server and no TURN relay.
func STUNConfig(url string) ICEConfig {
	return ICEConfig{Servers: []webrtc.ICEServer{{URLs: []string{url}}}}
}
