package protocol

import (
	"encoding/json"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Tutor/internal/domain"
)

// ValidateSignal checks the opaque payload of a signal when strict signaling is on.
// It never alters the bytes that get relayed.
func ValidateSignal(s *Signal) error {
	switch s.Type {
	case TypeCallOffer:
		return validateDescription(s.Offer, webrtc.SDPTypeOffer)
	case TypeCallAnswer:
		return validateDescription(s.Answer, webrtc.SDPTypeAnswer)
	case TypeICECandidate:
		return validateCandidate(s.Candidate)
	}
	return nil
}

func validateDescription(raw json.RawMessage, want webrtc.SDPType) error {
	if len(raw) == 0 {
		return domain.ProtocolError("missing %s", want)
	}
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(raw, &desc); err != nil {
		return domain.ProtocolError("malformed session description")
	}
	if desc.Type != want {
		return domain.ProtocolError("expected %s, got %s", want, desc.Type)
	}
	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(desc.SDP)); err != nil {
		return domain.ProtocolError("invalid sdp")
	}
	return nil
}

func validateCandidate(raw json.RawMessage) error {
	if len(raw) == 0 {
		return domain.ProtocolError("missing candidate")
	}
	var cand webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &cand); err != nil {
		return domain.ProtocolError("malformed ice candidate")
	}
	return nil
}
