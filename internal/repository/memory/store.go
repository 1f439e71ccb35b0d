// Package memory is an in-process implementation of the repository
// interfaces. It keeps the same atomicity guarantees as the SQL stores and
// can be told to fail specific writes.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/agroconnect/internal/domain"
	"github.com/vedran77/agroconnect/internal/repository"
)

type pairKey struct {
	farmerID string
	shopID   string
}

// Store implements repository.ConversationRepository and
// repository.MessageRepository.
type Store struct {
	mu            sync.Mutex
	conversations map[string]*domain.Conversation
	byPair        map[pairKey]string
	messages      map[string][]*domain.Message
	seq           int64
	lastStamp     time.Time
	now           func() time.Time

	conversationFault error
}

func New() *Store {
	return &Store{
		conversations: make(map[string]*domain.Conversation),
		byPair:        make(map[pairKey]string),
		messages:      make(map[string][]*domain.Message),
		now:           time.Now,
	}
}

// SetClock replaces the time source used for server timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailConversationUpdates makes every write that touches a conversation's
// summary or counters fail with err. Pass nil to clear.
func (s *Store) FailConversationUpdates(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversationFault = err
}

// stamp returns a strictly increasing server timestamp. Caller holds mu.
func (s *Store) stamp() time.Time {
	t := s.now().UTC()
	if !t.After(s.lastStamp) {
		t = s.lastStamp.Add(time.Microsecond)
	}
	s.lastStamp = t
	return t
}

func (s *Store) Create(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{farmerID: conv.Farmer.ID, shopID: conv.Shop.ID}
	if id, ok := s.byPair[key]; ok {
		return copyConversation(s.conversations[id]), false, nil
	}

	now := s.stamp()
	stored := &domain.Conversation{
		ID:        uuid.NewString(),
		Farmer:    conv.Farmer,
		Shop:      conv.Shop,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.conversations[stored.ID] = stored
	s.byPair[key] = stored.ID
	return copyConversation(stored), true, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, nil
	}
	return copyConversation(conv), nil
}

func (s *Store) GetByParticipants(ctx context.Context, farmerID, shopID string) (*domain.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byPair[pairKey{farmerID: farmerID, shopID: shopID}]
	if !ok {
		return nil, nil
	}
	return copyConversation(s.conversations[id]), nil
}

func (s *Store) ListByParticipant(ctx context.Context, role domain.Role, userID string) ([]domain.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var convs []domain.Conversation
	for _, conv := range s.conversations {
		if role.Participant(conv).ID == userID {
			convs = append(convs, *copyConversation(conv))
		}
	}
	return convs, nil
}

func (s *Store) Append(ctx context.Context, msg *domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	counterpart := msg.SenderRole.Counterpart()
	if !counterpart.Valid() {
		return fmt.Errorf("unknown sender role %q", msg.SenderRole)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[msg.ConversationID]
	if !ok {
		return repository.ErrConversationMissing
	}
	// Both halves are validated before either is applied.
	if s.conversationFault != nil {
		return fmt.Errorf("updating conversation summary: %w", s.conversationFault)
	}

	s.seq++
	stored := *msg
	stored.ID = uuid.NewString()
	stored.Status = domain.StatusSent
	stored.CreatedAt = s.stamp()
	stored.Seq = s.seq

	s.messages[conv.ID] = append(s.messages[conv.ID], &stored)
	conv.LastMessage = &domain.MessageSummary{Text: stored.Text, SenderID: stored.SenderID, SentAt: stored.CreatedAt}
	conv.UpdatedAt = stored.CreatedAt
	*counterpart.Unread(&conv.Unread)++

	*msg = stored
	return nil
}

func (s *Store) ListRecent(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.messages[conversationID]
	out := make([]domain.Message, 0, min(limit, len(stored)))
	for i := len(stored) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *stored[i])
	}
	return out, nil
}

func (s *Store) MarkRead(ctx context.Context, conversationID, readerID string, readerRole domain.Role) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !readerRole.Valid() {
		return false, fmt.Errorf("unknown reader role %q", readerRole)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return false, nil
	}
	counter := readerRole.Unread(&conv.Unread)

	var pending []*domain.Message
	for _, m := range s.messages[conversationID] {
		if m.SenderID != readerID && m.Status != domain.StatusRead {
			pending = append(pending, m)
		}
	}
	if len(pending) == 0 && *counter == 0 {
		return false, nil
	}
	if s.conversationFault != nil {
		return false, fmt.Errorf("resetting unread counter: %w", s.conversationFault)
	}

	for _, m := range pending {
		m.Status = domain.StatusRead
	}
	*counter = 0
	return true, nil
}

func (s *Store) MarkDelivered(ctx context.Context, conversationID, readerID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, m := range s.messages[conversationID] {
		if m.SenderID != readerID && m.Status == domain.StatusSent {
			m.Status = domain.StatusDelivered
			n++
		}
	}
	return n, nil
}

func copyConversation(c *domain.Conversation) *domain.Conversation {
	out := *c
	if c.LastMessage != nil {
		last := *c.LastMessage
		out.LastMessage = &last
	}
	return &out
}
