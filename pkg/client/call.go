package client

import (
	"context"
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/tidwall/gjson"

	"github.com/dkeye/Tutor/internal/adapters/rtc"
	"github.com/dkeye/Tutor/internal/domain"
	"github.com/dkeye/Tutor/internal/protocol"
)

type CallClient struct {
	*conn
	booking domain.BookingID
}

// DialCall opens a call-room connection. token may be empty when Authenticate
// will be used later.
func DialCall(ctx context.Context, url, token string) (*CallClient, error) {
	c, err := dial(ctx, url, token)
	if err != nil {
		return nil, err
	}
	c.start()
	return &CallClient{conn: c}, nil
}

func (c *CallClient) Join(ctx context.Context, booking domain.BookingID, role domain.Role) (*protocol.RoomJoined, error) {
	if err := c.send(protocol.JoinRoom{Type: protocol.TypeJoinRoom, BookingID: booking, Role: role}); err != nil {
		return nil, err
	}
	data, err := c.Expect(ctx, protocol.TypeRoomJoined)
	if err != nil {
		return nil, err
	}
	var joined protocol.RoomJoined
	if err := json.Unmarshal(data, &joined); err != nil {
		return nil, err
	}
	c.booking = booking
	return &joined, nil
}

func (c *CallClient) signal(typ string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s := protocol.Signal{Type: typ, BookingID: c.booking}
	switch typ {
	case protocol.TypeCallOffer:
		s.Offer = raw
	case protocol.TypeCallAnswer:
		s.Answer = raw
	case protocol.TypeICECandidate:
		s.Candidate = raw
	}
	return c.send(s)
}

func (c *CallClient) Offer(desc webrtc.SessionDescription) error {
	return c.signal(protocol.TypeCallOffer, desc)
}

func (c *CallClient) Answer(desc webrtc.SessionDescription) error {
	return c.signal(protocol.TypeCallAnswer, desc)
}

func (c *CallClient) Candidate(ci webrtc.ICECandidateInit) error {
	return c.signal(protocol.TypeICECandidate, ci)
}

// SendRaw writes a frame exactly as given.
func (c *CallClient) SendRaw(frame []byte) error {
	return c.sendRaw(frame)
}

func (c *CallClient) End() error {
	return c.send(protocol.Signal{Type: protocol.TypeEndCall, BookingID: c.booking})
}

// Drive wires peer to the room: local candidates are trickled out and
// inbound offers, answers and candidates are applied until the call ends,
// the peer leaves or ctx is done. The offerer calls Offer itself first.
func (c *CallClient) Drive(ctx context.Context, peer *rtc.Peer) error {
	peer.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		_ = c.Candidate(ci)
	})
	for {
		data, err := c.Next(ctx)
		if err != nil {
			return err
		}
		switch gjson.GetBytes(data, "type").String() {
		case protocol.TypeCallOffer:
			var desc webrtc.SessionDescription
			if err := json.Unmarshal([]byte(gjson.GetBytes(data, "offer").Raw), &desc); err != nil {
				return err
			}
			answer, err := peer.ApplyOffer(desc)
			if err != nil {
				return err
			}
			if err := c.Answer(answer); err != nil {
				return err
			}
		case protocol.TypeCallAnswer:
			var desc webrtc.SessionDescription
			if err := json.Unmarshal([]byte(gjson.GetBytes(data, "answer").Raw), &desc); err != nil {
				return err
			}
			if err := peer.ApplyAnswer(desc); err != nil {
				return err
			}
		case protocol.TypeICECandidate:
			var ci webrtc.ICECandidateInit
			if err := json.Unmarshal([]byte(gjson.GetBytes(data, "candidate").Raw), &ci); err != nil {
				return err
			}
			if err := peer.AddICECandidate(ci); err != nil {
				return err
			}
		case protocol.TypeCallEnded, protocol.TypeUserLeft:
			return nil
		case protocol.TypeError:
			return serverError(data)
		}
	}
}
