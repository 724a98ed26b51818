package app

import (
	"github.com/dkeye/Tutor/internal/core"
	"github.com/dkeye/Tutor/internal/domain"
	"github.com/dkeye/Tutor/internal/metrics"
	"github.com/rs/zerolog/log"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

type Policy interface {
	OnBackPressure(room domain.RoomID, member core.Member) BackpressureAction
}

// SimplePolicy kicks any member that cannot keep up. Closing the transport
// sends the member down the normal leave path.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.RoomID, core.Member) BackpressureAction {
	return KickMember
}

// ApplyBackpressure runs policy over the members a broadcast could not reach.
func ApplyBackpressure(p Policy, room domain.RoomID, res core.PublishResult) {
	if p == nil {
		p = SimplePolicy{}
	}
	for _, m := range res.Dropped {
		metrics.FramesDropped.WithLabelValues(string(room.Kind())).Inc()
		switch p.OnBackPressure(room, m) {
		case KickMember:
			log.Warn().Str("module", "app.policy").Str("room", string(room)).Str("cid", string(m.Info.ConnectionID)).Msg("kicking slow member")
			m.Conn.Close()
		case DropFrame:
			log.Debug().Str("module", "app.policy").Str("room", string(room)).Str("cid", string(m.Info.ConnectionID)).Msg("frame dropped")
		}
	}
}
