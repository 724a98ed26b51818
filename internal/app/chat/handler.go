package chat

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Tutor/internal/app"
	"github.com/dkeye/Tutor/internal/domain"
	"github.com/dkeye/Tutor/internal/protocol"
)

// Handle dispatches one inbound chat frame of type typ. Request failures are
// answered inside the response frame, so only join and message errors are returned.
func (c *Service) Handle(ctx context.Context, s *app.Session, typ string, data []byte) error {
	switch typ {
	case protocol.TypeJoin:
		var msg protocol.Join
		if err := protocol.Decode(data, &msg); err != nil {
			return err
		}
		return c.Join(ctx, s, msg.ConversationID)
	case protocol.TypeMessage:
		var msg protocol.Message
		if err := protocol.Decode(data, &msg); err != nil {
			return err
		}
		_, err := c.Send(ctx, s, msg)
		if err != nil && msg.ClientID != "" {
			// Tagged so the client can drop its optimistic echo.
			e := protocol.NewError(err)
			e.ClientID = msg.ClientID
			log.Info().Str("module", "app.chat").Str("cid", string(s.ID)).Str("code", string(e.Code)).Err(err).Msg("message rejected")
			return s.Send(e)
		}
		return err
	case protocol.TypeRequest:
		var req protocol.Request
		if err := protocol.Decode(data, &req); err != nil {
			return err
		}
		return s.Send(c.Request(ctx, s, req))
	}
	return domain.ProtocolError("unknown message type %q", typ)
}

// Request runs a control operation for the session's user.
// An empty target on conversation methods means the joined conversation.
func (c *Service) Request(ctx context.Context, s *app.Session, req protocol.Request) protocol.Response {
	id := s.Identity()
	if id == nil {
		return protocol.ErrorResponse(req.RequestID, domain.ErrAuthenticationRequired)
	}
	result, err := c.request(ctx, s, id.UserID, req)
	if err != nil {
		return protocol.ErrorResponse(req.RequestID, err)
	}
	return protocol.OKResponse(req.RequestID, result)
}

func (c *Service) request(ctx context.Context, s *app.Session, user domain.UserID, req protocol.Request) (any, error) {
	conv := domain.ConversationID(req.Target)
	if conv == "" {
		conv = domain.ConversationID(s.Room())
	}

	switch req.Method {
	case protocol.MethodMarkRead:
		if err := c.MarkRead(ctx, user, conv); err != nil {
			return nil, err
		}
		return map[string]any{"conversationId": conv, "unreadCount": 0}, nil

	case protocol.MethodInitiate:
		return c.Initiate(ctx, user, domain.UserID(req.Target))

	case protocol.MethodDeleteConversation:
		if err := c.Hide(ctx, user, conv); err != nil {
			return nil, err
		}
		return map[string]any{"conversationId": conv, "hidden": true}, nil

	case protocol.MethodEditMessage:
		var p protocol.EditPayload
		if err := protocol.Decode(req.Payload, &p); err != nil {
			return nil, err
		}
		return c.Edit(ctx, user, domain.MessageID(req.Target), p.Text)

	case protocol.MethodDeleteMessage:
		var p protocol.DeletePayload
		if err := protocol.Decode(req.Payload, &p); err != nil {
			return nil, err
		}
		mode, ok := domain.ParseDeleteMode(p.Mode)
		if !ok {
			return nil, domain.ProtocolError("unknown delete mode %q", p.Mode)
		}
		return c.Delete(ctx, user, domain.MessageID(req.Target), mode)

	case protocol.MethodListConversations:
		return c.List(ctx, user)
	}
	return nil, domain.ProtocolError("unknown method %q", req.Method)
}
