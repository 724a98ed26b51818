package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Tutor/internal/app"
	"github.com/dkeye/Tutor/internal/app/chat"
	"github.com/dkeye/Tutor/internal/auth"
	"github.com/dkeye/Tutor/internal/core"
	"github.com/dkeye/Tutor/internal/domain"
	"github.com/dkeye/Tutor/internal/store"
)

type handlers struct {
	chat     *chat.Service
	sessions *app.Sessions
	rooms    core.Rooms
	store    store.Store
}

type InitiateRequest struct {
	TargetUserID domain.UserID `json:"targetUserId"`
}

type EditRequest struct {
	Text string `json:"text"`
}

func statusOf(err error) int {
	switch domain.KindOf(err) {
	case domain.KindAuthenticationRequired:
		return http.StatusUnauthorized
	case domain.KindAuthorization:
		return http.StatusForbidden
	case domain.KindProtocol:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": domain.ReasonOf(err), "code": domain.KindOf(err)})
}

func user(c *gin.Context) domain.UserID {
	return auth.IdentityFrom(c).UserID
}

func (h *handlers) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": gin.H{
		"call": h.sessions.Count(domain.RoomCall),
		"chat": h.sessions.Count(domain.RoomChat),
	}})
}

func (h *handlers) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.rooms.List()})
}

func (h *handlers) listConversations(c *gin.Context) {
	list, err := h.chat.List(c.Request.Context(), user(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": list})
}

func (h *handlers) initiate(c *gin.Context) {
	var req InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, domain.ProtocolError("invalid body"))
		return
	}
	sum, err := h.chat.Initiate(c.Request.Context(), user(c), req.TargetUserID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *handlers) markRead(c *gin.Context) {
	conv := domain.ConversationID(c.Param("id"))
	if err := h.chat.MarkRead(c.Request.Context(), user(c), conv); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversationId": conv, "unreadCount": 0})
}

func (h *handlers) hideConversation(c *gin.Context) {
	if err := h.chat.Hide(c.Request.Context(), user(c), domain.ConversationID(c.Param("id"))); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) history(c *gin.Context) {
	conv := domain.ConversationID(c.Param("id"))
	msgs, err := h.chat.History(c.Request.Context(), user(c), conv)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversationId": conv, "messages": msgs})
}

func (h *handlers) editMessage(c *gin.Context) {
	var req EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, domain.ProtocolError("invalid body"))
		return
	}
	msg, err := h.chat.Edit(c.Request.Context(), user(c), domain.MessageID(c.Param("id")), req.Text)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *handlers) deleteMessage(c *gin.Context) {
	mode, ok := domain.ParseDeleteMode(c.DefaultQuery("mode", "mine"))
	if !ok {
		fail(c, domain.ProtocolError("unknown delete mode %q", c.Query("mode")))
		return
	}
	msg, err := h.chat.Delete(c.Request.Context(), user(c), domain.MessageID(c.Param("id")), mode)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}
