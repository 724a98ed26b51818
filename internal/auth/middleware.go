package auth

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Tutor/internal/domain"
)

const (
	identityKey    = "identity"
	sessionUserKey = "uid"
	sessionRoleKey = "role"
)

// TokenFrom extracts a bearer token from the Authorization header or the
// "token" query parameter, which browsers need for websocket upgrades.
func TokenFrom(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	return c.Query("token")
}

// Middleware attaches an identity when one can be established, from a token
// or the cookie session. It never rejects; see Require.
func Middleware(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tok := TokenFrom(c); tok != "" {
			id, err := v.Verify(tok)
			if err != nil {
				log.Info().Str("module", "auth").Str("path", c.FullPath()).Msg("rejected token")
			} else {
				c.Set(identityKey, id)
			}
		}
		if _, ok := c.Get(identityKey); !ok {
			if id := fromSession(c); id != nil {
				c.Set(identityKey, id)
			}
		}
		c.Next()
	}
}

func fromSession(c *gin.Context) *domain.Identity {
	if _, ok := c.Get(sessions.DefaultKey); !ok {
		return nil
	}
	s := sessions.Default(c)
	uid, _ := s.Get(sessionUserKey).(string)
	if uid == "" {
		return nil
	}
	role, _ := s.Get(sessionRoleKey).(string)
	id, err := domain.NewIdentity(uid, domain.Role(role))
	if err != nil {
		return nil
	}
	return id
}

// IdentityFrom returns the identity Middleware attached, if any.
func IdentityFrom(c *gin.Context) *domain.Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(*domain.Identity); ok {
			return id
		}
	}
	return nil
}

// Require aborts with 401 when no identity is attached.
func Require() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IdentityFrom(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
				"code":  domain.KindAuthenticationRequired,
			})
			return
		}
		c.Next()
	}
}

type sessionRequest struct {
	Token string `json:"token" binding:"required"`
}

// Login stores the identity of a verified token in the cookie session so
// browser websocket upgrades carry it without a query token.
func Login(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "token required", "code": domain.KindProtocol})
			return
		}
		id, err := v.Verify(req.Token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "code": domain.KindAuthenticationRequired})
			return
		}
		s := sessions.Default(c)
		s.Set(sessionUserKey, string(id.UserID))
		s.Set(sessionRoleKey, string(id.Role))
		if err := s.Save(); err != nil {
			log.Error().Str("module", "auth").Err(err).Msg("session save failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session unavailable", "code": domain.KindPersistence})
			return
		}
		log.Info().Str("module", "auth").Str("user", string(id.UserID)).Msg("session opened")
		c.JSON(http.StatusOK, id)
	}
}

// Logout clears the cookie session.
func Logout() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		s.Clear()
		_ = s.Save()
		c.Status(http.StatusNoContent)
	}
}
