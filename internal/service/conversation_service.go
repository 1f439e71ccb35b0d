package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/vedran77/agroconnect/internal/domain"
	"github.com/vedran77/agroconnect/internal/repository"
	"go.uber.org/zap"
)

const defaultQueryTimeout = 10 * time.Second

// ConversationService is the directory of farmer/shop conversations.
type ConversationService struct {
	repo    repository.ConversationRepository
	feed    Feed
	logger  *zap.Logger
	timeout time.Duration
}

func NewConversationService(repo repository.ConversationRepository, feed Feed, logger *zap.Logger) *ConversationService {
	return &ConversationService{
		repo:    repo,
		feed:    feed,
		logger:  logger.Named("conversations"),
		timeout: defaultQueryTimeout,
	}
}

// SetQueryTimeout bounds the reads issued by live subscriptions.
func (s *ConversationService) SetQueryTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// GetOrCreate returns the conversation between the farmer and the shop,
// creating it with zeroed counters on first contact.
func (s *ConversationService) GetOrCreate(ctx context.Context, farmerID, farmerName, shopID, shopName string) (*domain.Conversation, error) {
	farmerID, farmerName = strings.TrimSpace(farmerID), strings.TrimSpace(farmerName)
	shopID, shopName = strings.TrimSpace(shopID), strings.TrimSpace(shopName)
	if farmerID == "" || farmerName == "" || shopID == "" || shopName == "" {
		return nil, ErrMissingParticipant
	}
	if farmerID == shopID {
		return nil, ErrCannotContactSelf
	}

	log := s.logger.With(zap.String("farmer_id", farmerID), zap.String("shop_id", shopID))

	conv, err := s.repo.GetByParticipants(ctx, farmerID, shopID)
	if err != nil {
		log.Error("looking up conversation", zap.Error(err))
		return nil, ErrOpenConversationFailed
	}
	if conv != nil {
		return conv, nil
	}

	conv, created, err := s.repo.Create(ctx, &domain.Conversation{
		Farmer: domain.Participant{ID: farmerID, Name: farmerName},
		Shop:   domain.Participant{ID: shopID, Name: shopName},
	})
	if err != nil {
		log.Error("creating conversation", zap.Error(err))
		return nil, ErrOpenConversationFailed
	}
	if created {
		log.Info("conversation created", zap.String("conversation_id", conv.ID))
		s.feed.Publish(participantTopics(conv)...)
	}
	return conv, nil
}

// Get returns the conversation or nil when it does not exist.
func (s *ConversationService) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	if id == "" {
		return nil, ErrMissingConversationID
	}
	conv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("loading conversation", zap.String("conversation_id", id), zap.Error(err))
		return nil, ErrOpenConversationFailed
	}
	return conv, nil
}

// Authorize loads the conversation and checks the caller takes part in it
// under the caller's role.
func (s *ConversationService) Authorize(ctx context.Context, id string, caller domain.Identity) (*domain.Conversation, error) {
	conv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	if !conv.HasParticipant(caller.UserID, caller.Role) {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

// ListForUser returns the caller's conversations, most recently active
// first.
func (s *ConversationService) ListForUser(ctx context.Context, userID string, role domain.Role) ([]domain.Conversation, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	convs, err := s.repo.ListByParticipant(ctx, role, userID)
	if err != nil {
		s.logger.Error("listing conversations",
			zap.String("user_id", userID), zap.Stringer("role", role), zap.Error(err))
		return nil, ErrListConversationsFailed
	}

	// The store filters only; ordering is done here so no compound index is
	// needed on the backend.
	sortByActivity(convs)
	if convs == nil {
		convs = []domain.Conversation{}
	}
	return convs, nil
}

// Subscribe delivers the caller's sorted conversation list now and again
// after every change to any of them. Failed refreshes are logged and
// skipped. The caller must invoke the returned func on teardown.
func (s *ConversationService) Subscribe(userID string, role domain.Role, onUpdate func([]domain.Conversation)) (unsubscribe func()) {
	if !role.Valid() {
		s.logger.Warn("subscribe with invalid role", zap.String("user_id", userID), zap.Stringer("role", role))
		return func() {}
	}

	return s.feed.Subscribe(participantTopic(role, userID), func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		convs, err := s.ListForUser(ctx, userID, role)
		if err != nil {
			return
		}
		onUpdate(convs)
	})
}

func sortByActivity(convs []domain.Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		if !convs[i].UpdatedAt.Equal(convs[j].UpdatedAt) {
			return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
		}
		return convs[i].ID < convs[j].ID
	})
}
