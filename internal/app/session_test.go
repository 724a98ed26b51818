package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dkeye/Tutor/internal/core"
	"github.com/dkeye/Tutor/internal/domain"
)

type stubConn struct {
	mu     sync.Mutex
	sent   int
	closed bool
}

func (c *stubConn) TrySend(core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent++
	return nil
}

func (c *stubConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func TestSessionTransitions(t *testing.T) {
	s := NewSession("c1", domain.RoomCall, &stubConn{})
	if s.State() != StateConnecting {
		t.Fatalf("initial state %s", s.State())
	}
	if s.Transition(StateActive, StateJoined) {
		t.Error("transition from a state the session is not in must fail")
	}
	if !s.Transition(StateAwaitingJoin, StateConnecting) {
		t.Error("connecting -> awaiting-join refused")
	}
	if prev := s.Swap(StateDisconnected); prev != StateAwaitingJoin {
		t.Errorf("swap returned %s", prev)
	}
}

func TestSessionRefusesUserSwapWhileJoined(t *testing.T) {
	s := NewSession("c1", domain.RoomCall, &stubConn{})
	if err := s.Authenticate(&domain.Identity{UserID: "a"}); err != nil {
		t.Fatal(err)
	}
	s.Bind("booking:B1", "B1", domain.RoleStudent)
	if err := s.Authenticate(&domain.Identity{UserID: "b"}); !errors.Is(err, domain.ErrProtocol) {
		t.Errorf("expected protocol error, got %v", err)
	}
	if m := s.Member(); m.Info.UserID != "a" || m.Info.Role != domain.RoleStudent {
		t.Errorf("member %+v", m.Info)
	}
	if room := s.Unbind(); room != "booking:B1" || s.Room() != "" || s.Booking() != "" {
		t.Errorf("unbind left %q/%q", s.Room(), s.Booking())
	}
}

func TestApplyBackpressureKicks(t *testing.T) {
	slow := &stubConn{}
	res := core.PublishResult{Dropped: []core.Member{core.NewMember(core.MemberInfo{ConnectionID: "x"}, slow)}}
	ApplyBackpressure(nil, "booking:B1", res)
	if !slow.closed {
		t.Error("slow member not kicked")
	}
}

func TestSessionsCancelAll(t *testing.T) {
	reg := NewSessions()
	var canceled int
	for _, id := range []core.ConnectionID{"a", "b"} {
		_, cancel := context.WithCancel(context.Background())
		s := NewSession(id, domain.RoomChat, &stubConn{})
		_ = s.Authenticate(&domain.Identity{UserID: "u"})
		reg.Bind(s, func() { canceled++; cancel() })
	}
	if reg.Count(domain.RoomChat) != 2 || reg.Count(domain.RoomCall) != 0 {
		t.Fatalf("counts wrong")
	}
	if n := reg.CancelAll(); n != 2 || canceled != 2 {
		t.Errorf("canceled %d/%d", n, canceled)
	}
	reg.Unbind("a")
	if _, ok := reg.Get("a"); ok {
		t.Error("unbound session still present")
	}
}
