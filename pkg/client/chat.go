package client

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/dkeye/Tutor/internal/domain"
	"github.com/dkeye/Tutor/internal/protocol"
)

// ChatClient keeps a reconciled timeline of the joined conversation.
type ChatClient struct {
	*conn
	user     domain.UserID
	timeline *protocol.Timeline
}

func DialChat(ctx context.Context, url, token string, user domain.UserID) (*ChatClient, error) {
	c, err := dial(ctx, url, token)
	if err != nil {
		return nil, err
	}
	cc := &ChatClient{conn: c, user: user, timeline: protocol.NewTimeline(0)}
	c.onFrame = cc.apply
	c.start()
	return cc, nil
}

func (c *ChatClient) apply(typ string, data []byte) {
	switch typ {
	case protocol.TypeMessages:
		var m protocol.Messages
		if json.Unmarshal(data, &m) == nil {
			c.timeline.Reset(m.Messages)
		}
	case protocol.TypeMessageSent:
		var m protocol.MessageSent
		if json.Unmarshal(data, &m) == nil {
			c.timeline.Confirm(m.Message, m.ClientID)
		}
	case protocol.TypeNewMessage:
		var m protocol.NewMessage
		if json.Unmarshal(data, &m) == nil {
			c.timeline.Confirm(m.Message, "")
		}
	case protocol.TypeMessageUpdated:
		var m protocol.MessageUpdated
		if json.Unmarshal(data, &m) == nil {
			c.timeline.Update(m.Message)
		}
	case protocol.TypeError:
		// A rejected send was never recorded, so its echo must go.
		if tmp := gjson.GetBytes(data, "clientId").String(); protocol.IsTemporaryID(tmp) {
			c.timeline.Remove(domain.MessageID(tmp))
		}
	}
}

// Join subscribes to conv and waits for its history.
func (c *ChatClient) Join(ctx context.Context, conv domain.ConversationID) ([]domain.Message, error) {
	if err := c.send(protocol.Join{Type: protocol.TypeJoin, ConversationID: conv}); err != nil {
		return nil, err
	}
	data, err := c.Expect(ctx, protocol.TypeMessages)
	if err != nil {
		return nil, err
	}
	var m protocol.Messages
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m.Messages, nil
}

// Send renders text optimistically and ships it; it returns the temporary id.
func (c *ChatClient) Send(text string) (string, error) {
	tmp := c.timeline.AddLocal(c.user, text, time.Now())
	return tmp, c.send(protocol.Message{Type: protocol.TypeMessage, Text: text, ClientID: tmp})
}

// Request runs a control method and waits for its response.
func (c *ChatClient) Request(ctx context.Context, method, target string, payload any) (*protocol.Response, error) {
	req := protocol.Request{Type: protocol.TypeRequest, RequestID: uuid.NewString(), Method: method, Target: target}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		req.Payload = raw
	}
	if err := c.send(req); err != nil {
		return nil, err
	}
	for {
		data, err := c.Expect(ctx, protocol.TypeResponse)
		if err != nil {
			return nil, err
		}
		if gjson.GetBytes(data, "requestId").String() != req.RequestID {
			continue
		}
		var resp protocol.Response
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, err
		}
		if !resp.OK && resp.Error != nil {
			return &resp, &ServerError{Code: resp.Error.Code, Message: resp.Error.Message}
		}
		return &resp, nil
	}
}

// Messages returns the current timeline, optimistic entries included.
func (c *ChatClient) Messages() []domain.Message {
	return c.timeline.Messages()
}

func (c *ChatClient) Entries() []protocol.Entry {
	return c.timeline.Entries()
}
