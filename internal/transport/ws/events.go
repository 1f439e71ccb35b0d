package ws

import (
	"encoding/json"
	"time"

	"github.com/vedran77/agroconnect/internal/domain"
)

// Event types - Client → Server
const (
	EventTypeConversationsSubscribe = "conversations.subscribe"
	EventTypeConversationOpen       = "conversation.open"
	EventTypeConversationClose      = "conversation.close"
	EventTypeMessageSend            = "message.send"
	EventTypeMessagesDelivered      = "messages.delivered"
	EventTypePing                   = "ping"
)

// Event types - Server → Client
const (
	EventTypeConversationsSnapshot = "conversations.snapshot"
	EventTypeMessagesSnapshot      = "messages.snapshot"
	EventTypeMessageSent           = "message.sent"
	EventTypePong                  = "pong"
	EventTypeError                 = "error"
)

// Event is the base envelope for all WebSocket messages.
type Event struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Timestamp      int64           `json:"ts,omitempty"`
}

// --- Client → Server payloads ---

type ConversationPayload struct {
	ConversationID string `json:"conversation_id"`
}

type MessageSendPayload struct {
	Content string `json:"content"`
	Nonce   string `json:"nonce,omitempty"`
}

// --- Server → Client payloads ---

type ConversationsSnapshotPayload struct {
	Conversations []domain.Conversation `json:"conversations"`
}

type MessagesSnapshotPayload struct {
	ConversationID string           `json:"conversation_id"`
	Messages       []domain.Message `json:"messages"`
}

type MessageSentPayload struct {
	ID    string `json:"id"`
	Nonce string `json:"nonce,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Nonce   string `json:"nonce,omitempty"`
}

// NewEvent creates a server→client event with the current timestamp.
func NewEvent(eventType string, conversationID string, payload any) (*Event, error) {
	var data json.RawMessage
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return nil, err
		}
	}
	return &Event{
		Type:           eventType,
		ConversationID: conversationID,
		Payload:        data,
		Timestamp:      time.Now().Unix(),
	}, nil
}

// conversationID reads the target conversation from the payload, falling
// back to the envelope.
func (e *Event) conversationID() string {
	var p ConversationPayload
	if len(e.Payload) > 0 && json.Unmarshal(e.Payload, &p) == nil && p.ConversationID != "" {
		return p.ConversationID
	}
	return e.ConversationID
}
