package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/dkeye/Tutor/internal/domain"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("secret")
	tok, err := v.Issue(domain.Identity{UserID: "u1", Role: domain.RoleTutor}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	id, err := v.Verify(tok)
	if err != nil {
		t.Fatal(err)
	}
	if id.UserID != "u1" || id.Role != domain.RoleTutor {
		t.Errorf("identity %+v", id)
	}
}

func TestVerifyRejects(t *testing.T) {
	v := NewVerifier("secret")
	other := NewVerifier("other")
	foreign, _ := other.Issue(domain.Identity{UserID: "u1"}, time.Hour)

	past := NewVerifier("secret")
	past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _ := past.Issue(domain.Identity{UserID: "u1"}, time.Hour)

	noSubject, _ := v.Issue(domain.Identity{}, time.Hour)

	for name, tok := range map[string]string{
		"empty":      "",
		"garbage":    "not.a.jwt",
		"bad secret": foreign,
		"expired":    expired,
		"no subject": noSubject,
	} {
		if _, err := v.Verify(tok); err == nil {
			t.Errorf("%s: accepted", name)
		}
	}
}

func newRouter(v *Verifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(sessions.Sessions("test", cookie.NewStore([]byte("cookie-secret"))))
	r.Use(Middleware(v))
	r.POST("/session", Login(v))
	r.GET("/me", Require(), func(c *gin.Context) { c.JSON(http.StatusOK, IdentityFrom(c)) })
	return r
}

func TestMiddlewareSources(t *testing.T) {
	v := NewVerifier("secret")
	r := newRouter(v)
	tok, _ := v.Issue(domain.Identity{UserID: "u1", Role: domain.RoleStudent}, time.Hour)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous: %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"userId":"u1"`) {
		t.Errorf("bearer: %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?token="+tok, nil))
	if w.Code != http.StatusOK {
		t.Errorf("query token: %d", w.Code)
	}
}

func TestSessionLogin(t *testing.T) {
	v := NewVerifier("secret")
	r := newRouter(v)
	tok, _ := v.Issue(domain.Identity{UserID: "u2", Role: domain.RoleTutor}, time.Hour)

	body, _ := json.Marshal(map[string]string{"token": tok})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/session", strings.NewReader(string(body))))
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d %s", w.Code, w.Body.String())
	}
	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("no session cookie")
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"userId":"u2"`) {
		t.Errorf("cookie session: %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/session", strings.NewReader(`{"token":"bogus"}`)))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad token login: %d", w.Code)
	}
}
