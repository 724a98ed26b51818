package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/Tutor/internal/app"
	"github.com/dkeye/Tutor/internal/app/call"
	"github.com/dkeye/Tutor/internal/app/chat"
	"github.com/dkeye/Tutor/internal/app/oracle"
	"github.com/dkeye/Tutor/internal/auth"
	"github.com/dkeye/Tutor/internal/config"
	"github.com/dkeye/Tutor/internal/core"
	"github.com/dkeye/Tutor/internal/domain"
	"github.com/dkeye/Tutor/internal/store"
)

type fixture struct {
	router   *gin.Engine
	store    *store.MemoryStore
	sessions *app.Sessions
	v        *auth.Verifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st := store.NewMemoryStore()
	rooms := core.NewRegistry()
	sessions := app.NewSessions()
	v := auth.NewVerifier("jwt-secret")
	cfg := &config.Config{Mode: "test", Secret: "cookie-secret", SendBuffer: 8}
	r := SetupRouter(context.Background(), cfg, Deps{
		Verifier: v,
		Sessions: sessions,
		Rooms:    rooms,
		Call:     call.NewRelay(rooms, oracle.New(st, nil), call.Options{}),
		Chat:     chat.NewService(rooms, st, chat.Options{}),
		Store:    st,
	})
	return &fixture{router: r, store: st, sessions: sessions, v: v}
}

func (f *fixture) do(t *testing.T, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if user != "" {
		tok, err := f.v.Issue(domain.Identity{UserID: domain.UserID(user), Role: domain.RoleStudent}, time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	f.sessions.Bind(app.NewSession("c1", domain.RoomChat, nil), nil)
	f.sessions.Bind(app.NewSession("c2", domain.RoomChat, nil), nil)
	f.sessions.Bind(app.NewSession("v1", domain.RoomCall, nil), nil)
	w := f.do(t, http.MethodGet, "/healthz", "", "")
	if w.Code != http.StatusOK {
		t.Errorf("healthz: %d", w.Code)
	}
	var health struct {
		Status   string         `json:"status"`
		Sessions map[string]int `json:"sessions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "ok" || health.Sessions["chat"] != 2 || health.Sessions["call"] != 1 {
		t.Errorf("healthz body: %s", w.Body.String())
	}
	if w := f.do(t, http.MethodGet, "/metrics", "", ""); w.Code != http.StatusOK {
		t.Errorf("metrics: %d", w.Code)
	}
}

func TestProtectedRoutesRequireIdentity(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/api/rooms", "/api/conversations"} {
		w := f.do(t, http.MethodGet, path, "", "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: %d", path, w.Code)
		}
	}
	if w := f.do(t, http.MethodGet, "/api/rooms", "u1", ""); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"rooms":[]`) {
		t.Errorf("rooms: %d %s", w.Code, w.Body.String())
	}
}

func TestConversationLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w := f.do(t, http.MethodPost, "/api/conversations", "u1", `{"targetUserId":"u2"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("initiate: %d %s", w.Code, w.Body.String())
	}
	var sum domain.ConversationSummary
	if err := json.Unmarshal(w.Body.Bytes(), &sum); err != nil {
		t.Fatal(err)
	}
	conv := domain.NewConversationID("u1", "u2")
	if sum.ConversationID != conv {
		t.Fatalf("conversation id %q", sum.ConversationID)
	}

	if w := f.do(t, http.MethodPost, "/api/conversations", "u1", `{"targetUserId":"u1"}`); w.Code != http.StatusBadRequest {
		t.Errorf("self initiate: %d", w.Code)
	}

	msg := &domain.Message{ID: "m1", ConversationID: conv, SenderID: "u1", Text: "hi", CreatedAt: time.Now().UTC()}
	if _, err := f.store.AppendMessage(ctx, msg); err != nil {
		t.Fatal(err)
	}

	w = f.do(t, http.MethodGet, "/api/conversations/"+string(conv)+"/messages", "u2", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"text":"hi"`) {
		t.Errorf("history: %d %s", w.Code, w.Body.String())
	}
	if w := f.do(t, http.MethodGet, "/api/conversations/"+string(conv)+"/messages", "u3", ""); w.Code != http.StatusForbidden {
		t.Errorf("outsider history: %d", w.Code)
	}

	w = f.do(t, http.MethodGet, "/api/conversations", "u2", "")
	if !strings.Contains(w.Body.String(), `"u2":1`) {
		t.Errorf("unread before read: %s", w.Body.String())
	}
	if w := f.do(t, http.MethodPost, "/api/conversations/"+string(conv)+"/read", "u2", ""); w.Code != http.StatusOK {
		t.Errorf("mark read: %d", w.Code)
	}
	if got, _ := f.store.GetConversation(ctx, conv); got.Unread("u2") != 0 {
		t.Errorf("unread after read = %d", got.Unread("u2"))
	}

	if w := f.do(t, http.MethodPatch, "/api/messages/m1", "u2", `{"text":"edited"}`); w.Code != http.StatusForbidden {
		t.Errorf("edit by recipient: %d", w.Code)
	}
	w = f.do(t, http.MethodPatch, "/api/messages/m1", "u1", `{"text":"edited"}`)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"edited":true`) {
		t.Errorf("edit: %d %s", w.Code, w.Body.String())
	}

	if w := f.do(t, http.MethodDelete, "/api/messages/m1?mode=sideways", "u1", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad mode: %d", w.Code)
	}
	w = f.do(t, http.MethodDelete, "/api/messages/m1?mode=everyone", "u1", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"deleted":"everyone"`) {
		t.Errorf("tombstone: %d %s", w.Code, w.Body.String())
	}

	if w := f.do(t, http.MethodDelete, "/api/conversations/"+string(conv), "u2", ""); w.Code != http.StatusNoContent {
		t.Errorf("hide: %d", w.Code)
	}
	w = f.do(t, http.MethodGet, "/api/conversations", "u2", "")
	if strings.Contains(w.Body.String(), string(conv)) {
		t.Errorf("hidden conversation listed: %s", w.Body.String())
	}
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrAuthenticationRequired, http.StatusUnauthorized},
		{domain.AuthorizationError("nope"), http.StatusForbidden},
		{domain.ProtocolError("bad"), http.StatusBadRequest},
		{domain.PersistenceError("down", nil), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := statusOf(c.err); got != c.want {
			t.Errorf("%v: %d, want %d", c.err, got, c.want)
		}
	}
}
