package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/vedran77/agroconnect/internal/chat"
	"github.com/vedran77/agroconnect/internal/domain"
	"github.com/vedran77/agroconnect/internal/service"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	eventTimeout   = 10 * time.Second
	maxMessageSize = 16 << 10
	sendBufSize    = 256
)

// Client represents a single WebSocket connection and the chat session it
// drives.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	identity domain.Identity
	session  *chat.Session
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	send     chan []byte
	done     chan struct{}
	stopOnce sync.Once
}

func NewClient(hub *Hub, conn *websocket.Conn, identity domain.Identity) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		hub:      hub,
		conn:     conn,
		identity: identity,
		logger:   hub.logger.With(zap.String("user_id", identity.UserID)),
		ctx:      ctx,
		cancel:   cancel,
		send:     make(chan []byte, sendBufSize),
		done:     make(chan struct{}),
	}
	c.session = chat.NewSession(identity, hub.directory, hub.log, chat.Handlers{
		Conversations: func(convs []domain.Conversation) {
			c.emit(EventTypeConversationsSnapshot, "", ConversationsSnapshotPayload{Conversations: convs})
		},
		Messages: func(conversationID string, msgs []domain.Message) {
			c.emit(EventTypeMessagesSnapshot, conversationID, MessagesSnapshotPayload{
				ConversationID: conversationID,
				Messages:       msgs,
			})
		},
	}, hub.window, hub.logger)
	return c
}

// ReadPump reads events from the WebSocket until the connection or the
// client is closed. It blocks.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	for {
		var event Event
		err := wsjson.Read(c.ctx, c.conn, &event)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				c.logger.Debug("client gone")
			} else {
				c.logger.Warn("read error", zap.Error(err))
			}
			return
		}

		c.handleEvent(&event)
	}
}

// WritePump writes queued events to the WebSocket and keeps it alive with
// pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.cancel()
	}()

	for {
		select {
		case message := <-c.send:
			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.logger.Warn("write error", zap.Error(err))
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				c.logger.Warn("ping error", zap.Error(err))
				return
			}

		case <-c.done:
			return
		}
	}
}

// shutdown tears down the session and stops both pumps. Safe to call more
// than once.
func (c *Client) shutdown() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.cancel()
		c.session.Close()
	})
}

// handleEvent routes an incoming client event.
func (c *Client) handleEvent(event *Event) {
	ctx, cancel := context.WithTimeout(c.ctx, eventTimeout)
	defer cancel()

	switch event.Type {
	case EventTypeConversationsSubscribe:
		if err := c.session.Start(); err != nil {
			c.sendErr(err, "")
		}

	case EventTypeConversationOpen:
		id := event.conversationID()
		if id == "" {
			c.sendError("INVALID_PAYLOAD", "conversation_id required", "")
			return
		}
		if err := c.session.Open(ctx, id); err != nil {
			c.sendErr(err, "")
		}

	case EventTypeConversationClose:
		c.session.Back()

	case EventTypeMessageSend:
		var p MessageSendPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendError("INVALID_PAYLOAD", "invalid message.send payload", "")
			return
		}
		msg, err := c.session.Send(ctx, p.Content)
		if err != nil {
			c.sendErr(err, p.Nonce)
			return
		}
		c.emit(EventTypeMessageSent, msg.ConversationID, MessageSentPayload{ID: msg.ID, Nonce: p.Nonce})

	case EventTypeMessagesDelivered:
		id := event.conversationID()
		if id == "" {
			c.sendError("INVALID_PAYLOAD", "conversation_id required", "")
			return
		}
		if err := c.session.MarkDelivered(ctx, id); err != nil {
			c.sendErr(err, "")
		}

	case EventTypePing:
		c.emit(EventTypePong, "", nil)

	default:
		c.sendError("UNKNOWN_EVENT", "unknown event type: "+event.Type, "")
	}
}

// emit queues an event for the write pump. A client that cannot keep up is
// disconnected rather than silently missing snapshots.
func (c *Client) emit(eventType, conversationID string, payload any) {
	evt, err := NewEvent(eventType, conversationID, payload)
	if err != nil {
		c.logger.Error("encoding event", zap.String("type", eventType), zap.Error(err))
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		c.logger.Error("encoding event", zap.String("type", eventType), zap.Error(err))
		return
	}

	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.logger.Warn("send buffer full, disconnecting")
		c.cancel()
	}
}

func (c *Client) sendError(code, message, nonce string) {
	c.emit(EventTypeError, "", ErrorPayload{Code: code, Message: message, Nonce: nonce})
}

// sendErr maps session and service errors onto error events.
func (c *Client) sendErr(err error, nonce string) {
	switch {
	case errors.Is(err, chat.ErrNoOpenConversation):
		c.sendError("NO_OPEN_CONVERSATION", "Open a conversation first", nonce)
	case errors.Is(err, chat.ErrSessionClosed):
		c.sendError("SESSION_CLOSED", err.Error(), nonce)
	case errors.Is(err, service.ErrEmptyMessage):
		c.sendError("MISSING_CONTENT", "Message content is required", nonce)
	case errors.Is(err, service.ErrMessageTooLong):
		c.sendError("MESSAGE_TOO_LONG", err.Error(), nonce)
	case errors.Is(err, service.ErrMissingConversationID):
		c.sendError("INVALID_ID", "Invalid conversation ID", nonce)
	case errors.Is(err, service.ErrConversationNotFound):
		c.sendError("NOT_FOUND", "Conversation not found", nonce)
	case errors.Is(err, service.ErrNotParticipant):
		c.sendError("FORBIDDEN", "You are not a participant of this conversation", nonce)
	case errors.Is(err, service.ErrInvalidRole):
		c.sendError("INVALID_ROLE", err.Error(), nonce)
	case errors.Is(err, service.ErrOpenConversationFailed),
		errors.Is(err, service.ErrSendFailed),
		errors.Is(err, service.ErrMarkReadFailed),
		errors.Is(err, service.ErrMarkDeliveredFailed):
		c.sendError("INTERNAL", err.Error(), nonce)
	default:
		c.logger.Error("unhandled error", zap.Error(err))
		c.sendError("INTERNAL", "Something went wrong", nonce)
	}
}
