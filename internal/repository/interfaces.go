package repository

import (
	"context"
	"errors"

	"github.com/vedran77/agroconnect/internal/domain"
)

// ErrConversationMissing is returned by writes that reference a conversation
// the store does not hold.
var ErrConversationMissing = errors.New("conversation does not exist")

type ConversationRepository interface {
	// Create inserts conv unless its farmer/shop pair is already taken. The
	// stored record is returned either way; created reports which happened.
	Create(ctx context.Context, conv *domain.Conversation) (stored *domain.Conversation, created bool, err error)
	GetByID(ctx context.Context, id string) (*domain.Conversation, error)
	GetByParticipants(ctx context.Context, farmerID, shopID string) (*domain.Conversation, error)
	// ListByParticipant returns every conversation where userID is the role
	// participant. Order is unspecified.
	ListByParticipant(ctx context.Context, role domain.Role, userID string) ([]domain.Conversation, error)
}

type MessageRepository interface {
	// Append stores msg and updates the parent conversation summary and the
	// counterpart unread counter in one atomic write. ID, Status, CreatedAt
	// and Seq are assigned by the store.
	Append(ctx context.Context, msg *domain.Message) error
	// ListRecent returns up to limit messages, newest first.
	ListRecent(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)
	// MarkRead marks every message not sent by readerID as read and resets
	// the reader's unread counter. changed is false when nothing was touched.
	MarkRead(ctx context.Context, conversationID, readerID string, readerRole domain.Role) (changed bool, err error)
	// MarkDelivered advances sent messages not authored by readerID.
	MarkDelivered(ctx context.Context, conversationID, readerID string) (int64, error)
}

//go:generate mockgen -source=interfaces.go -destination=mocks/mock_repository.go -package=mocks
