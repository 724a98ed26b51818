package signal_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/tidwall/gjson"

	httpadapter "github.com/dkeye/Tutor/internal/adapters/http"
	"github.com/dkeye/Tutor/internal/adapters/rtc"
	"github.com/dkeye/Tutor/internal/app"
	"github.com/dkeye/Tutor/internal/app/call"
	"github.com/dkeye/Tutor/internal/app/chat"
	"github.com/dkeye/Tutor/internal/app/oracle"
	"github.com/dkeye/Tutor/internal/auth"
	"github.com/dkeye/Tutor/internal/config"
	"github.com/dkeye/Tutor/internal/core"
	"github.com/dkeye/Tutor/internal/domain"
	"github.com/dkeye/Tutor/internal/protocol"
	"github.com/dkeye/Tutor/internal/store"
	"github.com/dkeye/Tutor/pkg/client"
)

type harness struct {
	base string
	v    *auth.Verifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	st := store.NewMemoryStore()
	if err := st.PutBooking(ctx, &domain.Booking{ID: "b1", StudentID: "s1", TutorID: "t1", Status: domain.BookingConfirmed}); err != nil {
		t.Fatal(err)
	}
	rooms := core.NewRegistry()
	v := auth.NewVerifier("jwt-secret")
	cfg := &config.Config{
		Mode:       "test",
		Secret:     "cookie-secret",
		ReadLimit:  1 << 16,
		PingPeriod: time.Second,
		PongWait:   2 * time.Second,
		WriteWait:  time.Second,
		SendBuffer: 32,
	}
	r := httpadapter.SetupRouter(ctx, cfg, httpadapter.Deps{
		Verifier: v,
		Sessions: app.NewSessions(),
		Rooms:    rooms,
		Call:     call.NewRelay(rooms, oracle.New(st, nil), call.Options{}),
		Chat:     chat.NewService(rooms, st, chat.Options{}),
		Store:    st,
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &harness{base: "ws" + strings.TrimPrefix(srv.URL, "http"), v: v}
}

func (h *harness) token(t *testing.T, user domain.UserID, role domain.Role) string {
	t.Helper()
	tok, err := h.v.Issue(domain.Identity{UserID: user, Role: role}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (h *harness) call(t *testing.T, ctx context.Context, user domain.UserID, role domain.Role) *client.CallClient {
	t.Helper()
	c, err := client.DialCall(ctx, h.base+"/api/ws/call", h.token(t, user, role))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestCallHandshakeOverWebsocket(t *testing.T) {
	h := newHarness(t)
	ctx := testCtx(t)

	student := h.call(t, ctx, "s1", domain.RoleStudent)
	joined, err := student.Join(ctx, "b1", domain.RoleStudent)
	if err != nil {
		t.Fatal(err)
	}
	if joined.RoomSize != 1 {
		t.Errorf("student room size = %d", joined.RoomSize)
	}

	tutor := h.call(t, ctx, "t1", domain.RoleTutor)
	if joined, err = tutor.Join(ctx, "b1", domain.RoleTutor); err != nil {
		t.Fatal(err)
	}
	if joined.RoomSize != 2 {
		t.Errorf("tutor room size = %d", joined.RoomSize)
	}
	data, err := student.Expect(ctx, protocol.TypeUserJoined)
	if err != nil {
		t.Fatal(err)
	}
	if gjson.GetBytes(data, "userId").String() != "t1" {
		t.Errorf("user-joined: %s", data)
	}

	offer := `{"type":"offer","sdp":"v=0\r\nopaque"}`
	if err := student.SendRaw([]byte(`{"type":"call-offer","bookingId":"b1","offer":` + offer + `}`)); err != nil {
		t.Fatal(err)
	}
	data, err = tutor.Expect(ctx, protocol.TypeCallOffer)
	if err != nil {
		t.Fatal(err)
	}
	if got := gjson.GetBytes(data, "offer").Raw; got != offer {
		t.Errorf("offer relayed as %s", got)
	}
	if gjson.GetBytes(data, "from").String() != "s1" || gjson.GetBytes(data, "role").String() != "student" {
		t.Errorf("relay header: %s", data)
	}

	if err := tutor.End(); err != nil {
		t.Fatal(err)
	}
	if _, err := student.Expect(ctx, protocol.TypeCallEnded); err != nil {
		t.Fatal(err)
	}

	_ = tutor.Close()
	data, err = student.Expect(ctx, protocol.TypeUserLeft)
	if err != nil {
		t.Fatal(err)
	}
	if gjson.GetBytes(data, "userId").String() != "t1" {
		t.Errorf("user-left: %s", data)
	}
}

func TestOutsiderIsRefused(t *testing.T) {
	h := newHarness(t)
	ctx := testCtx(t)

	c := h.call(t, ctx, "x9", domain.RoleStudent)
	_, err := c.Join(ctx, "b1", domain.RoleStudent)
	var se *client.ServerError
	if !errors.As(err, &se) || se.Code != domain.KindAuthorization {
		t.Fatalf("join by outsider: %v", err)
	}
	// still usable
	if err := c.Ping(ctx); err != nil {
		t.Errorf("ping after refusal: %v", err)
	}
}

func TestLateAuthentication(t *testing.T) {
	h := newHarness(t)
	ctx := testCtx(t)

	c, err := client.DialCall(ctx, h.base+"/api/ws/call", "")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	_, err = c.Join(ctx, "b1", domain.RoleStudent)
	var se *client.ServerError
	if !errors.As(err, &se) || se.Code != domain.KindAuthenticationRequired {
		t.Fatalf("anonymous join: %v", err)
	}
	if err := c.Authenticate(ctx, "garbage"); err == nil {
		t.Error("garbage token accepted")
	}
	if err := c.Authenticate(ctx, h.token(t, "s1", domain.RoleStudent)); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Join(ctx, "b1", domain.RoleStudent); err != nil {
		t.Fatalf("join after authenticate: %v", err)
	}
}

func TestPeersNegotiateThroughRelay(t *testing.T) {
	h := newHarness(t)
	ctx := testCtx(t)

	student := h.call(t, ctx, "s1", domain.RoleStudent)
	if _, err := student.Join(ctx, "b1", domain.RoleStudent); err != nil {
		t.Fatal(err)
	}
	tutor := h.call(t, ctx, "t1", domain.RoleTutor)
	if _, err := tutor.Join(ctx, "b1", domain.RoleTutor); err != nil {
		t.Fatal(err)
	}

	offerer, err := rtc.NewPeer(webrtc.Configuration{}, "student")
	if err != nil {
		t.Fatal(err)
	}
	defer offerer.Close()
	answerer, err := rtc.NewPeer(webrtc.Configuration{}, "tutor")
	if err != nil {
		t.Fatal(err)
	}
	defer answerer.Close()

	driven := make(chan error, 1)
	go func() { driven <- tutor.Drive(ctx, answerer) }()

	if _, err := offerer.CreateDataChannel("lesson"); err != nil {
		t.Fatal(err)
	}
	offer, err := offerer.CreateOffer()
	if err != nil {
		t.Fatal(err)
	}
	if err := student.Offer(offer); err != nil {
		t.Fatal(err)
	}
	data, err := student.Expect(ctx, protocol.TypeCallAnswer)
	if err != nil {
		t.Fatal(err)
	}
	var answer webrtc.SessionDescription
	if err := json.Unmarshal([]byte(gjson.GetBytes(data, "answer").Raw), &answer); err != nil {
		t.Fatal(err)
	}
	if err := offerer.ApplyAnswer(answer); err != nil {
		t.Fatal(err)
	}
	if offerer.SignalingState() != webrtc.SignalingStateStable {
		t.Errorf("offerer state %s", offerer.SignalingState())
	}

	if err := student.End(); err != nil {
		t.Fatal(err)
	}
	if err := <-driven; err != nil {
		t.Errorf("drive: %v", err)
	}
}

func TestChatReconcilesOverWebsocket(t *testing.T) {
	h := newHarness(t)
	ctx := testCtx(t)
	conv := domain.NewConversationID("s1", "t1")

	student, err := client.DialChat(ctx, h.base+"/api/ws/chat", h.token(t, "s1", domain.RoleStudent), "s1")
	if err != nil {
		t.Fatal(err)
	}
	defer student.Close()
	if _, err := student.Join(ctx, conv); err != nil {
		t.Fatal(err)
	}

	tutor, err := client.DialChat(ctx, h.base+"/api/ws/chat?conversationId="+string(conv), h.token(t, "t1", domain.RoleTutor), "t1")
	if err != nil {
		t.Fatal(err)
	}
	defer tutor.Close()
	if _, err := tutor.Expect(ctx, protocol.TypeMessages); err != nil {
		t.Fatal(err)
	}

	tmp, err := student.Send("hi")
	if err != nil {
		t.Fatal(err)
	}
	data, err := student.Expect(ctx, protocol.TypeMessageSent)
	if err != nil {
		t.Fatal(err)
	}
	if gjson.GetBytes(data, "clientId").String() != tmp {
		t.Errorf("clientId not echoed: %s", data)
	}
	msgs := student.Messages()
	if len(msgs) != 1 || msgs[0].Text != "hi" || protocol.IsTemporaryID(string(msgs[0].ID)) {
		t.Fatalf("sender timeline: %+v", msgs)
	}

	if _, err := tutor.Expect(ctx, protocol.TypeNewMessage); err != nil {
		t.Fatal(err)
	}
	if got := tutor.Messages(); len(got) != 1 || got[0].ID != msgs[0].ID {
		t.Fatalf("recipient timeline: %+v", got)
	}

	list, err := tutor.Request(ctx, protocol.MethodListConversations, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := json.Marshal(list.Result)
	if !strings.Contains(string(raw), `"t1":1`) {
		t.Errorf("unread for tutor: %s", raw)
	}
	if _, err := tutor.Request(ctx, protocol.MethodMarkRead, "", nil); err != nil {
		t.Fatal(err)
	}

	_, err = tutor.Request(ctx, protocol.MethodEditMessage, string(msgs[0].ID), protocol.EditPayload{Text: "nope"})
	var se *client.ServerError
	if !errors.As(err, &se) || se.Code != domain.KindAuthorization {
		t.Errorf("edit by recipient: %v", err)
	}
}

func TestRejectedSendDropsOptimisticEcho(t *testing.T) {
	h := newHarness(t)
	ctx := testCtx(t)
	conv := domain.NewConversationID("s1", "t1")

	c, err := client.DialChat(ctx, h.base+"/api/ws/chat", h.token(t, "s1", domain.RoleStudent), "s1")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if _, err := c.Join(ctx, conv); err != nil {
		t.Fatal(err)
	}

	tmp, err := c.Send("   ")
	if err != nil {
		t.Fatal(err)
	}
	data, err := c.Expect(ctx, protocol.TypeError)
	if err != nil {
		t.Fatal(err)
	}
	if gjson.GetBytes(data, "clientId").String() != tmp {
		t.Errorf("error not tagged with %s: %s", tmp, data)
	}
	if got := c.Entries(); len(got) != 0 {
		t.Errorf("pending echo kept: %+v", got)
	}
}
