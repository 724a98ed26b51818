// Package signal serves call and chat rooms over websockets.
package signal

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/tidwall/gjson"

	"github.com/dkeye/Tutor/internal/app"
	"github.com/dkeye/Tutor/internal/auth"
	"github.com/dkeye/Tutor/internal/core"
	"github.com/dkeye/Tutor/internal/domain"
	"github.com/dkeye/Tutor/internal/protocol"
)

// Relay is what a room protocol exposes to the transport.
// call.Relay and chat.Service implement it.
type Relay interface {
	Open(s *app.Session)
	Handle(ctx context.Context, s *app.Session, typ string, data []byte) error
	Disconnect(s *app.Session)
}

// Joiner lets a chat connection join from the upgrade query.
type Joiner interface {
	Join(ctx context.Context, s *app.Session, conv domain.ConversationID) error
}

type Server struct {
	verifier *auth.Verifier
	sessions *app.Sessions
	opts     ConnOptions
	upgrader websocket.Upgrader
}

func NewServer(verifier *auth.Verifier, sessions *app.Sessions, opts ConnOptions) *Server {
	return &Server{
		verifier: verifier,
		sessions: sessions,
		opts:     opts.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeCall upgrades to a call-room connection. Identity may come from the
// upgrade request or a later authenticate frame.
func (srv *Server) ServeCall(ctx context.Context, c *gin.Context, relay Relay) {
	srv.serve(ctx, c, domain.RoomCall, relay, nil)
}

// ServeChat upgrades to a chat connection; ?conversationId= joins immediately.
func (srv *Server) ServeChat(ctx context.Context, c *gin.Context, relay Relay, joiner Joiner) {
	conv := domain.ConversationID(c.Query("conversationId"))
	var onOpen func(context.Context, *app.Session)
	if conv != "" {
		onOpen = func(ctx context.Context, s *app.Session) {
			if err := joiner.Join(ctx, s, conv); err != nil {
				srv.reject(s, err)
			}
		}
	}
	srv.serve(ctx, c, domain.RoomChat, relay, onOpen)
}

func (srv *Server) serve(ctx context.Context, c *gin.Context, kind domain.RoomKind, relay Relay, onOpen func(context.Context, *app.Session)) {
	ws, err := srv.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := newWsConn(ws, srv.opts.SendBuffer)
	s := app.NewSession(core.ConnectionID(uuid.NewString()), kind, conn)
	if id := auth.IdentityFrom(c); id != nil {
		_ = s.Authenticate(id)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	srv.sessions.Bind(s, cancel)
	defer srv.sessions.Unbind(s.ID)

	log.Info().Str("module", "signal").Str("cid", string(s.ID)).Str("kind", string(kind)).Bool("identified", s.Identity() != nil).Msg("new WS connection")

	relay.Open(s)
	if onOpen != nil {
		onOpen(ctx, s)
	}

	var wg conc.WaitGroup
	wg.Go(func() { writePump(ctx, conn, srv.opts) })
	wg.Go(func() {
		defer func() {
			conn.Close()
			relay.Disconnect(s)
			log.Info().Str("module", "signal").Str("cid", string(s.ID)).Msg("connection closed")
		}()
		readPump(conn, srv.opts, func(data []byte) { srv.dispatch(ctx, s, relay, data) })
	})
	wg.Wait()
}

// dispatch peeks the frame type and routes it. Frames shared by both room
// kinds are answered here.
func (srv *Server) dispatch(ctx context.Context, s *app.Session, relay Relay, data []byte) {
	if !gjson.ValidBytes(data) {
		srv.reject(s, domain.ProtocolError("malformed frame"))
		return
	}
	typ := gjson.GetBytes(data, "type")
	if typ.Type != gjson.String || typ.Str == "" {
		srv.reject(s, domain.ProtocolError("missing type"))
		return
	}

	switch typ.Str {
	case protocol.TypePing:
		_ = s.Send(protocol.Envelope{Type: protocol.TypePong})
	case protocol.TypeAuthenticate:
		srv.authenticate(s, gjson.GetBytes(data, "token").String())
	default:
		if err := relay.Handle(ctx, s, typ.Str, data); err != nil {
			srv.reject(s, err)
		}
	}
}

func (srv *Server) authenticate(s *app.Session, token string) {
	id, err := srv.verifier.Verify(token)
	if err != nil {
		srv.reject(s, &domain.Error{Kind: domain.KindAuthenticationRequired, Reason: "invalid token"})
		return
	}
	if err := s.Authenticate(id); err != nil {
		srv.reject(s, err)
		return
	}
	_ = s.Send(protocol.Authenticated{Type: protocol.TypeAuthenticated, UserID: id.UserID, Role: id.Role})
	log.Info().Str("module", "signal").Str("cid", string(s.ID)).Str("user", string(id.UserID)).Msg("authenticated")
}

// reject reports an operation failure; the connection stays open.
func (srv *Server) reject(s *app.Session, err error) {
	log.Info().Str("module", "signal").Str("cid", string(s.ID)).Str("code", string(domain.KindOf(err))).Err(err).Msg("operation rejected")
	_ = s.SendError(err)
}
