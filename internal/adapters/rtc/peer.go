// Package rtc wraps a pion PeerConnection as one side of a relayed call.
// The relay never touches media; this is what a client drives with the
// signaling it exchanges through a call room.
package rtc

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Peer uses trickle ICE: local candidates are reported through OnICECandidate
// as they are gathered instead of waiting for gathering to complete.
type Peer struct {
	pc   *webrtc.PeerConnection
	name string

	mu      sync.Mutex
	onICE   func(webrtc.ICECandidateInit)
	pending []webrtc.ICECandidateInit

	connected chan struct{}
	once      sync.Once
	closed    chan struct{}
	closeOnce sync.Once
}

func NewPeer(cfg webrtc.Configuration, name string) (*Peer, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	p := &Peer{
		pc:        pc,
		name:      name,
		connected: make(chan struct{}),
		closed:    make(chan struct{}),
	}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		p.mu.Lock()
		fn := p.onICE
		p.mu.Unlock()
		if fn != nil {
			fn(cand.ToJSON())
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer", p.name).Str("peer_connection_state", s.String()).Msg("Peer state")
		switch s {
		case webrtc.PeerConnectionStateConnected:
			p.once.Do(func() { close(p.connected) })
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			p.closeOnce.Do(func() { close(p.closed) })
		}
	})
	return p, nil
}

// OnICECandidate sets the callback that forwards local candidates to the room.
func (p *Peer) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	p.mu.Lock()
	p.onICE = fn
	p.mu.Unlock()
}

// CreateDataChannel opens a channel; must be called before CreateOffer to be negotiated.
func (p *Peer) CreateDataChannel(label string) (*webrtc.DataChannel, error) {
	return p.pc.CreateDataChannel(label, nil)
}

func (p *Peer) OnDataChannel(fn func(*webrtc.DataChannel)) {
	p.pc.OnDataChannel(fn)
}

func (p *Peer) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

// ApplyOffer sets the remote offer and returns the local answer.
func (p *Peer) ApplyOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := p.flushPending(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (p *Peer) ApplyAnswer(answer webrtc.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(answer); err != nil {
		return err
	}
	return p.flushPending()
}

// AddICECandidate applies a remote candidate, buffering it until the remote
// description is known since trickled candidates may overtake the offer.
func (p *Peer) AddICECandidate(ci webrtc.ICECandidateInit) error {
	p.mu.Lock()
	if p.pc.RemoteDescription() == nil {
		p.pending = append(p.pending, ci)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.pc.AddICECandidate(ci)
}

func (p *Peer) flushPending() error {
	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()
	for _, ci := range pending {
		if err := p.pc.AddICECandidate(ci); err != nil {
			return err
		}
	}
	return nil
}

func (p *Peer) SignalingState() webrtc.SignalingState {
	return p.pc.SignalingState()
}

// WaitConnected blocks until the peer connection is up, fails or ctx ends.
func (p *Peer) WaitConnected(ctx context.Context) error {
	select {
	case <-p.connected:
		return nil
	case <-p.closed:
		return webrtc.ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Peer) Close() error {
	err := p.pc.Close()
	if err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("peer", p.name).Msg("close error")
	} else {
		log.Info().Str("module", "rtc").Str("peer", p.name).Msg("closed")
	}
	return err
}
