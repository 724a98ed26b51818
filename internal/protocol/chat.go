package protocol

import (
	"encoding/json"

	"github.com/dkeye/Tutor/internal/domain"
)

// Chat-room frame types.
const (
	TypeJoin           = "join"
	TypeMessages       = "messages"
	TypeMessage        = "message"
	TypeMessageSent    = "message-sent"
	TypeNewMessage     = "new-message"
	TypeMessageUpdated = "message-updated"
	TypeRequest        = "request"
	TypeResponse       = "response"
)

// Request/response methods on a chat connection.
const (
	MethodMarkRead           = "mark-read"
	MethodInitiate           = "initiate"
	MethodDeleteConversation = "delete-conversation"
	MethodEditMessage        = "edit-message"
	MethodDeleteMessage      = "delete-message"
	MethodListConversations  = "list-conversations"
)

type Join struct {
	Type           string                `json:"type"`
	ConversationID domain.ConversationID `json:"conversationId"`
}

type Messages struct {
	Type           string                `json:"type"`
	ConversationID domain.ConversationID `json:"conversationId"`
	Messages       []domain.Message      `json:"messages"`
}

// Message is a client send. ClientID is the temporary id of the optimistic echo.
type Message struct {
	Type       string `json:"type"`
	Text       string `json:"text"`
	SenderName string `json:"senderName,omitempty"`
	ClientID   string `json:"clientId,omitempty"`
}

// MessageSent confirms a send to its author, echoing the temporary id.
type MessageSent struct {
	Type     string         `json:"type"`
	Message  domain.Message `json:"message"`
	ClientID string         `json:"clientId,omitempty"`
}

type NewMessage struct {
	Type    string         `json:"type"`
	Message domain.Message `json:"message"`
}

type MessageUpdated struct {
	Type    string         `json:"type"`
	Message domain.Message `json:"message"`
}

// Request is a control operation: method, target id and a method-specific payload.
type Request struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId"`
	Method    string          `json:"method"`
	Target    string          `json:"target,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type Response struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	OK        bool   `json:"ok"`
	Result    any    `json:"result,omitempty"`
	Error     *Error `json:"error,omitempty"`
}

type EditPayload struct {
	Text string `json:"text"`
}

type DeletePayload struct {
	Mode string `json:"mode"`
}

func OKResponse(id string, result any) Response {
	return Response{Type: TypeResponse, RequestID: id, OK: true, Result: result}
}

func ErrorResponse(id string, err error) Response {
	e := NewError(err)
	e.RequestID = id
	return Response{Type: TypeResponse, RequestID: id, Error: &e}
}
