// Package chat drives the conversation screen of one connected user: the
// conversation list, and at most one open conversation whose messages stream
// in live.
package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/vedran77/agroconnect/internal/domain"
	"go.uber.org/zap"
)

var (
	ErrNoOpenConversation = errors.New("no conversation is open")
	ErrSessionClosed      = errors.New("session is closed")
)

type State int

const (
	StateList State = iota
	StateOpen
)

func (s State) String() string {
	if s == StateOpen {
		return "open"
	}
	return "list"
}

// Directory is the conversation directory as seen by a session.
type Directory interface {
	Authorize(ctx context.Context, id string, caller domain.Identity) (*domain.Conversation, error)
	Subscribe(userID string, role domain.Role, onUpdate func([]domain.Conversation)) (unsubscribe func())
}

// Log is the message log as seen by a session.
type Log interface {
	Append(ctx context.Context, conversationID, senderID, senderName string, senderRole domain.Role, text string) (*domain.Message, error)
	Subscribe(conversationID string, limit int, onUpdate func([]domain.Message)) (unsubscribe func())
	MarkRead(ctx context.Context, conversationID, readerID string, readerRole domain.Role) error
	MarkDelivered(ctx context.Context, conversationID, readerID string) error
}

// Handlers receive snapshots. They run on feed goroutines while the session
// lock is held, so they must not call back into the Session.
type Handlers struct {
	Conversations func([]domain.Conversation)
	Messages      func(conversationID string, msgs []domain.Message)
}

type Session struct {
	identity  domain.Identity
	directory Directory
	log       Log
	handlers  Handlers
	logger    *zap.Logger
	window    int

	mu           sync.Mutex
	state        State
	openID       string
	generation   uint64
	stopList     func()
	stopMessages func()
	closed       bool
}

// NewSession returns a session in the list state. Nothing is subscribed
// until Start. window is passed to the message log; zero means its default.
func NewSession(identity domain.Identity, directory Directory, log Log, handlers Handlers, window int, logger *zap.Logger) *Session {
	return &Session{
		identity:  identity,
		directory: directory,
		log:       log,
		handlers:  handlers,
		window:    window,
		logger:    logger.With(zap.String("user_id", identity.UserID), zap.Stringer("role", identity.Role)),
	}
}

func (s *Session) Identity() domain.Identity { return s.identity }

// State returns the current state and, when open, the conversation id.
func (s *Session) State() (State, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.openID
}

// Start subscribes to the user's conversation list. Calling it again is a
// no-op.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.stopList != nil {
		return nil
	}

	s.stopList = s.directory.Subscribe(s.identity.UserID, s.identity.Role, func(convs []domain.Conversation) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed || s.handlers.Conversations == nil {
			return
		}
		s.handlers.Conversations(convs)
	})
	return nil
}

// Open switches to the given conversation. The previous message
// subscription, if any, is torn down first. Messages from the other party
// are marked read once on entry.
func (s *Session) Open(ctx context.Context, conversationID string) error {
	if _, err := s.directory.Authorize(ctx, conversationID, s.identity); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	prev := s.detachLocked()
	s.generation++
	gen := s.generation
	s.state = StateOpen
	s.openID = conversationID
	s.stopMessages = s.log.Subscribe(conversationID, s.window, func(msgs []domain.Message) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed || s.generation != gen || s.handlers.Messages == nil {
			return
		}
		s.handlers.Messages(conversationID, msgs)
	})
	s.mu.Unlock()

	if prev != nil {
		prev()
	}

	if err := s.log.MarkRead(ctx, conversationID, s.identity.UserID, s.identity.Role); err != nil {
		// The conversation stays open; counters catch up on the next open.
		s.logger.Warn("marking opened conversation read", zap.String("conversation_id", conversationID), zap.Error(err))
	}
	return nil
}

// Back closes the open conversation and returns to the list.
func (s *Session) Back() {
	s.mu.Lock()
	stop := s.detachLocked()
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// Send appends text to the open conversation as the session's user. The
// message reaches the screen through the live subscription, not through
// the return value.
func (s *Session) Send(ctx context.Context, text string) (*domain.Message, error) {
	s.mu.Lock()
	closed, state, id := s.closed, s.state, s.openID
	s.mu.Unlock()

	if closed {
		return nil, ErrSessionClosed
	}
	if state != StateOpen {
		return nil, ErrNoOpenConversation
	}
	return s.log.Append(ctx, id, s.identity.UserID, s.identity.DisplayName, s.identity.Role, text)
}

// MarkDelivered records that this user's client received the other party's
// messages in conversationID.
func (s *Session) MarkDelivered(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}

	if _, err := s.directory.Authorize(ctx, conversationID, s.identity); err != nil {
		return err
	}
	return s.log.MarkDelivered(ctx, conversationID, s.identity.UserID)
}

// Close tears down every subscription. The session cannot be reused.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	stopMessages := s.detachLocked()
	stopList := s.stopList
	s.stopList = nil
	s.mu.Unlock()

	if stopMessages != nil {
		stopMessages()
	}
	if stopList != nil {
		stopList()
	}
}

// detachLocked resets to the list state and returns the message
// unsubscribe func for the caller to run after releasing mu.
func (s *Session) detachLocked() func() {
	stop := s.stopMessages
	s.stopMessages = nil
	s.state = StateList
	s.openID = ""
	s.generation++
	return stop
}
