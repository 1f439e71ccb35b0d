package service

import (
	"context"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/vedran77/agroconnect/internal/domain"
	"github.com/vedran77/agroconnect/internal/repository"
	"github.com/vedran77/agroconnect/pkg/validator"
	"go.uber.org/zap"
)

const (
	DefaultMessageWindow = 50
	MaxMessageWindow     = 100
)

// MessageService is the append-only message log of every conversation.
type MessageService struct {
	messages      repository.MessageRepository
	conversations repository.ConversationRepository
	feed          Feed
	logger        *zap.Logger
	window        int
	timeout       time.Duration
}

func NewMessageService(
	messages repository.MessageRepository,
	conversations repository.ConversationRepository,
	feed Feed,
	logger *zap.Logger,
) *MessageService {
	return &MessageService{
		messages:      messages,
		conversations: conversations,
		feed:          feed,
		logger:        logger.Named("messages"),
		window:        DefaultMessageWindow,
		timeout:       defaultQueryTimeout,
	}
}

// SetWindow changes the number of messages returned when a caller passes no
// limit.
func (s *MessageService) SetWindow(n int) {
	if n > 0 {
		s.window = min(n, MaxMessageWindow)
	}
}

func (s *MessageService) SetQueryTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// Append stores a new message and, in the same atomic write, updates the
// conversation summary and bumps the counterpart's unread counter.
func (s *MessageService) Append(ctx context.Context, conversationID, senderID, senderName string, senderRole domain.Role, text string) (*domain.Message, error) {
	if conversationID == "" {
		return nil, ErrMissingConversationID
	}
	if !senderRole.Valid() {
		return nil, ErrInvalidRole
	}
	if text = validator.SanitizeText(text); text == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > validator.MaxMessageLength {
		return nil, ErrMessageTooLong
	}

	log := s.logger.With(zap.String("conversation_id", conversationID), zap.String("sender_id", senderID))

	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		log.Error("loading conversation for send", zap.Error(err))
		return nil, ErrSendFailed
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	if !conv.HasParticipant(senderID, senderRole) {
		return nil, ErrNotParticipant
	}

	msg := &domain.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderName:     senderName,
		SenderRole:     senderRole,
		Text:           text,
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		log.Error("appending message", zap.Error(err))
		return nil, ErrSendFailed
	}

	s.feed.Publish(append(participantTopics(conv), conversationTopic(conversationID))...)
	return msg, nil
}

// Fetch returns up to limit of the most recent messages, oldest first. A
// conversation with no messages, or none at all, yields an empty slice.
func (s *MessageService) Fetch(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	if conversationID == "" {
		return nil, ErrMissingConversationID
	}

	msgs, err := s.messages.ListRecent(ctx, conversationID, s.clampLimit(limit))
	if err != nil {
		s.logger.Error("listing messages", zap.String("conversation_id", conversationID), zap.Error(err))
		return nil, ErrFetchFailed
	}

	// Stores return newest first; readers always get chronological order.
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Before(&msgs[j]) })
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return msgs, nil
}

// Subscribe delivers the full message window now and after every change in
// the conversation. The caller must invoke the returned func on teardown.
func (s *MessageService) Subscribe(conversationID string, limit int, onUpdate func([]domain.Message)) (unsubscribe func()) {
	return s.feed.Subscribe(conversationTopic(conversationID), func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		msgs, err := s.Fetch(ctx, conversationID, limit)
		if err != nil {
			return
		}
		onUpdate(msgs)
	})
}

// MarkRead marks every message from the other party as read and zeroes the
// reader's unread counter. Repeating it without new messages is a no-op.
func (s *MessageService) MarkRead(ctx context.Context, conversationID, readerID string, readerRole domain.Role) error {
	if conversationID == "" {
		return ErrMissingConversationID
	}
	if !readerRole.Valid() {
		return ErrInvalidRole
	}

	changed, err := s.messages.MarkRead(ctx, conversationID, readerID, readerRole)
	if err != nil {
		s.logger.Error("marking conversation read",
			zap.String("conversation_id", conversationID), zap.String("reader_id", readerID), zap.Error(err))
		return ErrMarkReadFailed
	}
	if changed {
		s.feed.Publish(conversationTopic(conversationID), participantTopic(readerRole, readerID))
	}
	return nil
}

// MarkDelivered records that the reader's client received the other party's
// messages.
func (s *MessageService) MarkDelivered(ctx context.Context, conversationID, readerID string) error {
	if conversationID == "" {
		return ErrMissingConversationID
	}

	n, err := s.messages.MarkDelivered(ctx, conversationID, readerID)
	if err != nil {
		s.logger.Error("marking conversation delivered",
			zap.String("conversation_id", conversationID), zap.String("reader_id", readerID), zap.Error(err))
		return ErrMarkDeliveredFailed
	}
	if n > 0 {
		s.feed.Publish(conversationTopic(conversationID))
	}
	return nil
}

func (s *MessageService) clampLimit(limit int) int {
	if limit <= 0 {
		return s.window
	}
	return min(limit, MaxMessageWindow)
}
