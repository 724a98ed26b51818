// Package client dials the call and chat websocket endpoints.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/dkeye/Tutor/internal/domain"
	"github.com/dkeye/Tutor/internal/protocol"
)

const inboxSize = 256

var ErrClosed = errors.New("client: connection closed")

// ServerError is an error frame received from the server.
type ServerError struct {
	Code    domain.ErrorKind
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type conn struct {
	ws      *websocket.Conn
	inbox   chan []byte
	done    chan struct{}
	onFrame func(typ string, data []byte)

	wmu sync.Mutex
}

// dial connects to url; a non-empty token is sent as a bearer header.
func dial(ctx context.Context, url, token string) (*conn, error) {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, h)
	if err != nil {
		return nil, err
	}
	return &conn{
		ws:    ws,
		inbox: make(chan []byte, inboxSize),
		done:  make(chan struct{}),
	}, nil
}

func (c *conn) start() {
	go c.readLoop()
}

func (c *conn) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			log.Debug().Str("module", "client").Err(err).Msg("read loop finished")
			return
		}
		typ := gjson.GetBytes(data, "type").String()
		if c.onFrame != nil {
			c.onFrame(typ, data)
		}
		select {
		case c.inbox <- data:
		default:
			log.Warn().Str("module", "client").Str("type", typ).Msg("inbox full, frame dropped")
		}
	}
}

func (c *conn) send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.sendRaw(b)
}

func (c *conn) sendRaw(b []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

// Authenticate attaches an identity to an already open connection.
func (c *conn) Authenticate(ctx context.Context, token string) error {
	if err := c.send(protocol.Authenticate{Type: protocol.TypeAuthenticate, Token: token}); err != nil {
		return err
	}
	_, err := c.Expect(ctx, protocol.TypeAuthenticated)
	return err
}

func (c *conn) Ping(ctx context.Context) error {
	if err := c.send(protocol.Envelope{Type: protocol.TypePing}); err != nil {
		return err
	}
	_, err := c.Expect(ctx, protocol.TypePong)
	return err
}

// Next returns the next inbound frame.
func (c *conn) Next(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.inbox:
		return data, nil
	case <-c.done:
		select {
		case data := <-c.inbox:
			return data, nil
		default:
		}
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Expect skips frames until one of types arrives. An error frame ends the
// wait with a *ServerError unless "error" is itself expected.
func (c *conn) Expect(ctx context.Context, types ...string) ([]byte, error) {
	for {
		data, err := c.Next(ctx)
		if err != nil {
			return nil, err
		}
		typ := gjson.GetBytes(data, "type").String()
		for _, t := range types {
			if t == typ {
				return data, nil
			}
		}
		if typ == protocol.TypeError {
			return nil, serverError(data)
		}
	}
}

func serverError(data []byte) error {
	var e protocol.Error
	if err := json.Unmarshal(data, &e); err != nil {
		return err
	}
	return &ServerError{Code: e.Code, Message: e.Message}
}

// Done is closed once the server side is gone.
func (c *conn) Done() <-chan struct{} { return c.done }

func (c *conn) Close() error {
	c.wmu.Lock()
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.wmu.Unlock()
	return c.ws.Close()
}
