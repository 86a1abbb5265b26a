// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replication

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
)

const (
	signalingPollInterval = 2 * time.Second
	iceGatherTimeout      = 15 * time.Second
	answerPollInterval    = 500 * time.Millisecond
	answerTimeout         = 30 * time.Second
	dataChannelOpenTimeout = 10 * time.Second

	replicationChannelLabel = "replication"
)

// WebRTCTransport establishes corestore ProtocolStreams over WebRTC
// data channels, giving replicate(role) NAT traversal without a
// direct TCP path between the two stores. Dial keeps one PeerConnection
// per peer (created on first use) and opens a fresh numbered
// "replication-N" data channel on it for each call; Accept delivers one
// stream per data channel the remote peer opens. There is no
// per-request multiplexing, since a ProtocolStream is itself the
// long-lived unit corestore replicates over.
type WebRTCTransport struct {
	signaler      Signaler
	id            string
	authenticator PeerAuthenticator
	logger        *slog.Logger

	configMu  sync.RWMutex
	iceConfig ICEConfig

	mu    sync.Mutex
	peers map[string]*webrtcPeer

	inbound chan inboundConn

	ready     chan struct{}
	readyOnce sync.Once

	closed    chan struct{}
	closeOnce sync.Once

	streamCounter atomic.Uint64
}

type webrtcPeer struct {
	connection  *webrtc.PeerConnection
	peerID      string
	established chan struct{}
}

type inboundConn struct {
	peerID string
	conn   net.Conn
}

// NewWebRTCTransport creates a transport identified as id in
// signaling. authenticator may be nil to skip peer authentication.
func NewWebRTCTransport(signaler Signaler, id string, iceConfig ICEConfig, authenticator PeerAuthenticator, logger *slog.Logger) *WebRTCTransport {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &WebRTCTransport{
		signaler:      signaler,
		id:            id,
		authenticator: authenticator,
		iceConfig:     iceConfig,
		logger:        logger,
		peers:         make(map[string]*webrtcPeer),
		inbound:       make(chan inboundConn, 16),
		ready:         make(chan struct{}),
		closed:        make(chan struct{}),
	}
}

// Serve starts the signaling poller. Callers must run this (typically
// in its own goroutine) before Accept can deliver inbound streams, and
// should await Ready before Dial-ing to avoid missing early offers.
func (wt *WebRTCTransport) Serve(ctx context.Context) {
	wt.readyOnce.Do(func() { close(wt.ready) })
	ticker := time.NewTicker(signalingPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-wt.closed:
			return
		case <-ticker.C:
			wt.processInboundOffers(ctx)
		}
	}
}

// Ready returns a channel closed once Serve has started polling.
func (wt *WebRTCTransport) Ready() <-chan struct{} { return wt.ready }

// UpdateICEConfig replaces the ICE server list used by PeerConnections
// created from now on.
func (wt *WebRTCTransport) UpdateICEConfig(config ICEConfig) {
	wt.configMu.Lock()
	defer wt.configMu.Unlock()
	wt.iceConfig = config
}

// Close tears down every PeerConnection and stops accepting new ones.
func (wt *WebRTCTransport) Close() error {
	wt.closeOnce.Do(func() { close(wt.closed) })
	wt.mu.Lock()
	defer wt.mu.Unlock()
	for peerID, peer := range wt.peers {
		peer.connection.Close()
		delete(wt.peers, peerID)
	}
	return nil
}

// Dial establishes a PeerConnection to peerID (if one does not already
// exist) and opens a fresh replication data channel on it, returning a
// ProtocolStream in the Initiator role.
func (wt *WebRTCTransport) Dial(ctx context.Context, peerID string, opts StreamOptions) (*ProtocolStream, error) {
	select {
	case <-wt.closed:
		return nil, net.ErrClosed
	default:
	}

	peer, err := wt.getOrCreatePeer(ctx, peerID)
	if err != nil {
		return nil, fmt.Errorf("replication: establishing connection to %s: %w", peerID, err)
	}

	select {
	case <-peer.established:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-wt.closed:
		return nil, net.ErrClosed
	}

	conn, err := wt.openDataChannel(peer)
	if err != nil {
		return nil, err
	}
	if wt.authenticator != nil {
		if err := runPeerAuth(conn, wt.authenticator, wt.id, peerID); err != nil {
			conn.Close()
			return nil, err
		}
	}

	id := fmt.Sprintf("%s/%d", wt.id, wt.streamCounter.Add(1))
	stream := newProtocolStream(id, Initiator, conn, opts, wt.logger)
	stream.markOpened()
	return stream, nil
}

// Accept blocks until an inbound connection arrives, authenticates it
// if an authenticator is configured, and returns it as a ProtocolStream
// in the Responder role.
func (wt *WebRTCTransport) Accept(ctx context.Context, opts StreamOptions) (*ProtocolStream, error) {
	select {
	case inbound := <-wt.inbound:
		if wt.authenticator != nil {
			if err := runPeerAuth(inbound.conn, wt.authenticator, wt.id, inbound.peerID); err != nil {
				inbound.conn.Close()
				return nil, err
			}
		}
		id := fmt.Sprintf("%s/%d", wt.id, wt.streamCounter.Add(1))
		stream := newProtocolStream(id, Responder, inbound.conn, opts, wt.logger)
		stream.markOpened()
		return stream, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-wt.closed:
		return nil, net.ErrClosed
	}
}

func (wt *WebRTCTransport) getOrCreatePeer(ctx context.Context, peerID string) (*webrtcPeer, error) {
	wt.mu.Lock()

	if peer, ok := wt.peers[peerID]; ok {
		state := peer.connection.ICEConnectionState()
		if state != webrtc.ICEConnectionStateFailed && state != webrtc.ICEConnectionStateClosed {
			wt.mu.Unlock()
			return peer, nil
		}
		peer.connection.Close()
		delete(wt.peers, peerID)
	}

	pc, err := wt.newPeerConnection()
	if err != nil {
		wt.mu.Unlock()
		return nil, fmt.Errorf("creating PeerConnection: %w", err)
	}

	peer := &webrtcPeer{connection: pc, peerID: peerID, established: make(chan struct{})}
	wt.peers[peerID] = peer
	wt.mu.Unlock()

	if err := wt.establishOutbound(ctx, peer); err != nil {
		wt.mu.Lock()
		if current, ok := wt.peers[peerID]; ok && current == peer {
			delete(wt.peers, peerID)
		}
		wt.mu.Unlock()
		pc.Close()
		return nil, err
	}
	return peer, nil
}

func (wt *WebRTCTransport) establishOutbound(ctx context.Context, peer *webrtcPeer) error {
	peerID := peer.peerID
	pc := peer.connection

	pc.OnDataChannel(func(dc *webrtc.DataChannel) { wt.handleInboundDataChannel(dc, peerID) })
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		wt.handleICEStateChange(peerID, peer, state)
	})

	if _, err := pc.CreateDataChannel("init", nil); err != nil {
		return fmt.Errorf("creating init data channel: %w", err)
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("creating SDP offer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("setting local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-time.After(iceGatherTimeout):
		return fmt.Errorf("ICE gathering timed out after %s", iceGatherTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := wt.signaler.PublishOffer(ctx, wt.id, peerID, pc.LocalDescription().SDP); err != nil {
		return fmt.Errorf("publishing SDP offer: %w", err)
	}

	answerSDP, err := wt.waitForAnswer(ctx, peerID)
	if err != nil {
		return fmt.Errorf("waiting for SDP answer from %s: %w", peerID, err)
	}
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answerSDP}
	if err := pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("setting remote description: %w", err)
	}
	return nil
}

func (wt *WebRTCTransport) waitForAnswer(ctx context.Context, peerID string) (string, error) {
	deadline := time.After(answerTimeout)
	ticker := time.NewTicker(answerPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			return "", fmt.Errorf("timed out after %s", answerTimeout)
		case <-ctx.Done():
			return "", ctx.Err()
		case <-wt.closed:
			return "", net.ErrClosed
		case <-ticker.C:
			answers, err := wt.signaler.PollAnswers(ctx, wt.id)
			if err != nil {
				wt.logger.Warn("replication: polling for SDP answer failed", "error", err)
				continue
			}
			for _, answer := range answers {
				if answer.PeerID == peerID {
					return answer.SDP, nil
				}
			}
		}
	}
}

func (wt *WebRTCTransport) processInboundOffers(ctx context.Context) {
	offers, err := wt.signaler.PollOffers(ctx, wt.id)
	if err != nil {
		wt.logger.Warn("replication: polling for SDP offers failed", "error", err)
		return
	}

	for _, offer := range offers {
		wt.mu.Lock()
		existing, hasExisting := wt.peers[offer.PeerID]
		wt.mu.Unlock()

		if hasExisting {
			state := existing.connection.ICEConnectionState()
			live := state != webrtc.ICEConnectionStateFailed && state != webrtc.ICEConnectionStateClosed
			if live && offer.PeerID > wt.id {
				// We are the canonical offerer (smaller id); ignore theirs.
				continue
			}
			wt.mu.Lock()
			existing.connection.Close()
			delete(wt.peers, offer.PeerID)
			wt.mu.Unlock()
		}

		if err := wt.answerOffer(ctx, offer); err != nil {
			wt.logger.Error("replication: answering offer failed", "peer", offer.PeerID, "error", err)
		}
	}
}

func (wt *WebRTCTransport) answerOffer(ctx context.Context, offer SignalMessage) error {
	pc, err := wt.newPeerConnection()
	if err != nil {
		return fmt.Errorf("creating PeerConnection: %w", err)
	}

	peer := &webrtcPeer{connection: pc, peerID: offer.PeerID, established: make(chan struct{})}
	pc.OnDataChannel(func(dc *webrtc.DataChannel) { wt.handleInboundDataChannel(dc, offer.PeerID) })
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		wt.handleICEStateChange(offer.PeerID, peer, state)
	})

	remoteOffer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}
	if err := pc.SetRemoteDescription(remoteOffer); err != nil {
		pc.Close()
		return fmt.Errorf("setting remote description: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return fmt.Errorf("creating SDP answer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return fmt.Errorf("setting local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-time.After(iceGatherTimeout):
		pc.Close()
		return fmt.Errorf("ICE gathering timed out after %s", iceGatherTimeout)
	case <-ctx.Done():
		pc.Close()
		return ctx.Err()
	}

	if err := wt.signaler.PublishAnswer(ctx, offer.PeerID, wt.id, pc.LocalDescription().SDP); err != nil {
		pc.Close()
		return fmt.Errorf("publishing SDP answer: %w", err)
	}

	wt.mu.Lock()
	wt.peers[offer.PeerID] = peer
	wt.mu.Unlock()
	return nil
}

func (wt *WebRTCTransport) handleInboundDataChannel(dc *webrtc.DataChannel, peerID string) {
	// The "init" channel only exists to force pion to include a data
	// channel section in the initial SDP offer; neither side sends on it.
	if dc.Label() == "init" {
		dc.OnOpen(func() { dc.Close() })
		return
	}

	dc.OnOpen(func() {
		rawChannel, err := dc.Detach()
		if err != nil {
			wt.logger.Error("replication: detaching inbound data channel failed", "peer", peerID, "error", err)
			return
		}
		conn := newDataChannelConn(rawChannel, wt.id+"/"+dc.Label(), peerID+"/"+dc.Label())
		select {
		case wt.inbound <- inboundConn{peerID: peerID, conn: conn}:
		case <-wt.closed:
			conn.Close()
		}
	})
}

func (wt *WebRTCTransport) handleICEStateChange(peerID string, peer *webrtcPeer, state webrtc.ICEConnectionState) {
	switch state {
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		select {
		case <-peer.established:
		default:
			close(peer.established)
		}
	case webrtc.ICEConnectionStateClosed:
		wt.mu.Lock()
		if current, ok := wt.peers[peerID]; ok && current == peer {
			delete(wt.peers, peerID)
		}
		wt.mu.Unlock()
	}
}

func (wt *WebRTCTransport) openDataChannel(peer *webrtcPeer) (net.Conn, error) {
	label := fmt.Sprintf("%s-%d", replicationChannelLabel, wt.streamCounter.Add(1))
	ordered := true
	dc, err := peer.connection.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, fmt.Errorf("creating data channel %s: %w", label, err)
	}

	openChan := make(chan struct{})
	dc.OnOpen(func() { close(openChan) })

	select {
	case <-openChan:
	case <-time.After(dataChannelOpenTimeout):
		dc.Close()
		return nil, fmt.Errorf("data channel %s did not open within %s", label, dataChannelOpenTimeout)
	case <-wt.closed:
		dc.Close()
		return nil, net.ErrClosed
	}

	rawChannel, err := dc.Detach()
	if err != nil {
		dc.Close()
		return nil, fmt.Errorf("detaching data channel %s: %w", label, err)
	}
	return newDataChannelConn(rawChannel, wt.id+"/"+label, peer.peerID+"/"+label), nil
}

func (wt *WebRTCTransport) newPeerConnection() (*webrtc.PeerConnection, error) {
	wt.configMu.RLock()
	config := webrtc.Configuration{ICEServers: wt.iceConfig.Servers}
	wt.configMu.RUnlock()

	settingEngine := webrtc.SettingEngine{}
	settingEngine.DetachDataChannels()
	settingEngine.SetIncludeLoopbackCandidate(true)

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	return api.NewPeerConnection(config)
}
