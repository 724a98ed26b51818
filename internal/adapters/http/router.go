package http

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Tutor/internal/adapters/signal"
	"github.com/dkeye/Tutor/internal/app"
	"github.com/dkeye/Tutor/internal/app/call"
	"github.com/dkeye/Tutor/internal/app/chat"
	"github.com/dkeye/Tutor/internal/auth"
	"github.com/dkeye/Tutor/internal/config"
	"github.com/dkeye/Tutor/internal/core"
	"github.com/dkeye/Tutor/internal/store"
)

// Deps are the collaborators the router serves.
type Deps struct {
	Verifier *auth.Verifier
	Sessions *app.Sessions
	Rooms    core.Rooms
	Call     *call.Relay
	Chat     *chat.Service
	Store    store.Store
}

func SetupRouter(ctx context.Context, cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	cookies := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("TutorSessions", cookies))
	r.Use(auth.Middleware(d.Verifier))

	srv := signal.NewServer(d.Verifier, d.Sessions, signal.ConnOptions{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		PongWait:   cfg.PongWait,
		WriteWait:  cfg.WriteWait,
		SendBuffer: cfg.SendBuffer,
	})
	h := &handlers{chat: d.Chat, sessions: d.Sessions, rooms: d.Rooms, store: d.Store}

	r.GET("/healthz", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.POST("/session", auth.Login(d.Verifier))
	api.DELETE("/session", auth.Logout())

	api.GET("/ws/call", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Msg("ws call endpoint hit")
		srv.ServeCall(ctx, c, d.Call)
	})
	api.GET("/ws/chat", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("conversation", c.Query("conversationId")).Msg("ws chat endpoint hit")
		srv.ServeChat(ctx, c, d.Chat, d.Chat)
	})

	authed := api.Group("", auth.Require())
	authed.GET("/rooms", h.listRooms)

	conv := authed.Group("/conversations")
	conv.GET("", h.listConversations)
	conv.POST("", h.initiate)
	conv.POST("/:id/read", h.markRead)
	conv.DELETE("/:id", h.hideConversation)
	conv.GET("/:id/messages", h.history)

	msgs := authed.Group("/messages")
	msgs.PATCH("/:id", h.editMessage)
	msgs.DELETE("/:id", h.deleteMessage)

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
