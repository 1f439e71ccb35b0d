package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/agroconnect/internal/domain"
	"github.com/vedran77/agroconnect/internal/feed"
	"github.com/vedran77/agroconnect/internal/repository/mocks"
	"github.com/vedran77/agroconnect/pkg/validator"
	"go.uber.org/zap"
)

func TestMessageService_Append(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path - unread counter tracks sends", func(t *testing.T) {
		f := newFixture(t)
		id := f.open(t, "f1", "Alice", "s1", "Green Valley")

		for i := 0; i < 3; i++ {
			msg, err := f.messages.Append(ctx, id, "f1", "Alice", domain.RoleFarmer, fmt.Sprintf("msg %d", i))
			require.NoError(t, err)
			assert.NotEmpty(t, msg.ID)
			assert.Equal(t, domain.StatusSent, msg.Status)
			assert.False(t, msg.CreatedAt.IsZero())
		}

		conv, err := f.conversations.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 3, conv.Unread.Shop)
		assert.Equal(t, 0, conv.Unread.Farmer)
		require.NotNil(t, conv.LastMessage)
		assert.Equal(t, "msg 2", conv.LastMessage.Text)
		assert.Equal(t, "f1", conv.LastMessage.SenderID)
	})

	t.Run("text is trimmed and markup stripped", func(t *testing.T) {
		f := newFixture(t)
		id := f.open(t, "f1", "Alice", "s1", "Green Valley")

		msg, err := f.messages.Append(ctx, id, "f1", "Alice", domain.RoleFarmer, "  <b>NPK</b> 10-10-10  ")
		require.NoError(t, err)
		assert.Equal(t, "NPK 10-10-10", msg.Text)
	})

	t.Run("punctuation is stored as typed", func(t *testing.T) {
		f := newFixture(t)
		id := f.open(t, "f1", "Alice", "s1", "Green Valley")

		for _, text := range []string{"NPK & urea?", "price < 50 cedis", "I <3 this", `"quoted" it's`} {
			msg, err := f.messages.Append(ctx, id, "f1", "Alice", domain.RoleFarmer, text)
			require.NoError(t, err)
			assert.Equal(t, text, msg.Text)

			conv, err := f.conversations.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, text, conv.LastMessage.Text)
		}

		msgs, err := f.messages.Fetch(ctx, id, 0)
		require.NoError(t, err)
		require.Len(t, msgs, 4)
		assert.Equal(t, `"quoted" it's`, msgs[3].Text)
	})

	t.Run("length is checked after sanitizing", func(t *testing.T) {
		f := newFixture(t)
		id := f.open(t, "f1", "Alice", "s1", "Green Valley")

		text := "<b>" + strings.Repeat("a", validator.MaxMessageLength) + "</b>"
		msg, err := f.messages.Append(ctx, id, "f1", "Alice", domain.RoleFarmer, text)
		require.NoError(t, err)
		assert.Len(t, msg.Text, validator.MaxMessageLength)
	})

	t.Run("sad path - validation", func(t *testing.T) {
		f := newFixture(t)
		id := f.open(t, "f1", "Alice", "s1", "Green Valley")

		tests := []struct {
			name   string
			convID string
			sender string
			role   domain.Role
			text   string
			want   error
		}{
			{"whitespace only", id, "f1", domain.RoleFarmer, " \n\t ", ErrEmptyMessage},
			{"too long", id, "f1", domain.RoleFarmer, strings.Repeat("a", validator.MaxMessageLength+1), ErrMessageTooLong},
			{"no conversation id", "", "f1", domain.RoleFarmer, "hi", ErrMissingConversationID},
			{"bad role", id, "f1", domain.Role("admin"), "hi", ErrInvalidRole},
			{"unknown conversation", "nope", "f1", domain.RoleFarmer, "hi", ErrConversationNotFound},
			{"outsider", id, "f2", domain.RoleFarmer, "hi", ErrNotParticipant},
			{"wrong role for id", id, "f1", domain.RoleShopOwner, "hi", ErrNotParticipant},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := f.messages.Append(ctx, tt.convID, tt.sender, "Alice", tt.role, tt.text)
				assert.ErrorIs(t, err, tt.want)
			})
		}

		msgs, err := f.messages.Fetch(ctx, id, 0)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})

	t.Run("max length is accepted", func(t *testing.T) {
		f := newFixture(t)
		id := f.open(t, "f1", "Alice", "s1", "Green Valley")

		_, err := f.messages.Append(ctx, id, "f1", "Alice", domain.RoleFarmer, strings.Repeat("é", validator.MaxMessageLength))
		assert.NoError(t, err)
	})

	t.Run("sad path - failed summary update leaves nothing behind", func(t *testing.T) {
		f := newFixture(t)
		id := f.open(t, "f1", "Alice", "s1", "Green Valley")
		before, err := f.conversations.Get(ctx, id)
		require.NoError(t, err)

		f.store.FailConversationUpdates(errors.New("disk full"))
		_, err = f.messages.Append(ctx, id, "f1", "Alice", domain.RoleFarmer, "hello")
		assert.ErrorIs(t, err, ErrSendFailed)
		assert.NotContains(t, err.Error(), "disk full")
		f.store.FailConversationUpdates(nil)

		msgs, err := f.messages.Fetch(ctx, id, 0)
		require.NoError(t, err)
		assert.Empty(t, msgs)

		after, err := f.conversations.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, before.Unread, after.Unread)
		assert.Nil(t, after.LastMessage)
	})

	t.Run("sad path - store error is generic", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		convRepo := mocks.NewMockConversationRepository(ctrl)
		msgRepo := mocks.NewMockMessageRepository(ctrl)
		svc := NewMessageService(msgRepo, convRepo, feed.NewBroker(), zap.NewNop())

		conv := &domain.Conversation{
			ID:     "c1",
			Farmer: domain.Participant{ID: "f1", Name: "Alice"},
			Shop:   domain.Participant{ID: "s1", Name: "Green Valley"},
		}
		convRepo.EXPECT().GetByID(gomock.Any(), "c1").Return(conv, nil)
		msgRepo.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errors.New("pq: deadlock detected"))

		_, err := svc.Append(ctx, "c1", "f1", "Alice", domain.RoleFarmer, "hello")
		assert.ErrorIs(t, err, ErrSendFailed)
		assert.NotContains(t, err.Error(), "deadlock")
	})

	t.Run("publishes the conversation and both lists", func(t *testing.T) {
		f := newFixture(t)
		rf := newRecordingFeed(t)
		svc := NewMessageService(f.store, f.store, rf, zap.NewNop())
		id := f.open(t, "f1", "Alice", "s1", "Green Valley")

		_, err := svc.Append(ctx, id, "s1", "Green Valley", domain.RoleShopOwner, "hi")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{
			"participant:farmer:f1",
			"participant:shop_owner:s1",
			"conversation:" + id,
		}, rf.Published())
	})
}

func TestMessageService_Fetch(t *testing.T) {
	ctx := context.Background()

	t.Run("chronological under concurrent senders", func(t *testing.T) {
		f := newFixture(t)
		id := f.open(t, "f1", "Alice", "s1", "Green Valley")

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				sender, name, role := "f1", "Alice", domain.RoleFarmer
				if i%2 == 1 {
					sender, name, role = "s1", "Green Valley", domain.RoleShopOwner
				}
				_, err := f.messages.Append(ctx, id, sender, name, role, fmt.Sprintf("m%d", i))
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		msgs, err := f.messages.Fetch(ctx, id, 0)
		require.NoError(t, err)
		require.Len(t, msgs, 20)
		for i := 1; i < len(msgs); i++ {
			assert.True(t, msgs[i-1].Before(&msgs[i]), "messages %d and %d out of order", i-1, i)
		}

		conv, err := f.conversations.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 10, conv.Unread.Farmer)
		assert.Equal(t, 10, conv.Unread.Shop)
		assert.Equal(t, msgs[len(msgs)-1].Text, conv.LastMessage.Text)
	})

	t.Run("window keeps the most recent", func(t *testing.T) {
		f := newFixture(t)
		id := f.open(t, "f1", "Alice", "s1", "Green Valley")
		for i := 0; i < 8; i++ {
			_, err := f.messages.Append(ctx, id, "f1", "Alice", domain.RoleFarmer, fmt.Sprintf("m%d", i))
			require.NoError(t, err)
		}

		msgs, err := f.messages.Fetch(ctx, id, 3)
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		assert.Equal(t, []string{"m5", "m6", "m7"}, []string{msgs[0].Text, msgs[1].Text, msgs[2].Text})

		f.messages.SetWindow(5)
		msgs, err = f.messages.Fetch(ctx, id, 0)
		require.NoError(t, err)
		assert.Len(t, msgs, 5)
		assert.Equal(t, "m3", msgs[0].Text)
	})

	t.Run("limit is capped", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		msgRepo := mocks.NewMockMessageRepository(ctrl)
		svc := NewMessageService(msgRepo, mocks.NewMockConversationRepository(ctrl), feed.NewBroker(), zap.NewNop())

		msgRepo.EXPECT().ListRecent(gomock.Any(), "c1", MaxMessageWindow).Return(nil, nil)
		msgRepo.EXPECT().ListRecent(gomock.Any(), "c1", DefaultMessageWindow).Return(nil, nil)

		msgs, err := svc.Fetch(ctx, "c1", 10_000)
		require.NoError(t, err)
		assert.NotNil(t, msgs)
		_, err = svc.Fetch(ctx, "c1", -1)
		require.NoError(t, err)
	})

	t.Run("unknown conversation is empty", func(t *testing.T) {
		f := newFixture(t)
		msgs, err := f.messages.Fetch(ctx, "missing", 0)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})

	t.Run("sad path", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		msgRepo := mocks.NewMockMessageRepository(ctrl)
		svc := NewMessageService(msgRepo, mocks.NewMockConversationRepository(ctrl), feed.NewBroker(), zap.NewNop())

		_, err := svc.Fetch(ctx, "", 0)
		assert.ErrorIs(t, err, ErrMissingConversationID)

		msgRepo.EXPECT().ListRecent(gomock.Any(), "c1", DefaultMessageWindow).Return(nil, errors.New("io timeout"))
		_, err = svc.Fetch(ctx, "c1", 0)
		assert.ErrorIs(t, err, ErrFetchFailed)
	})
}

func TestMessageService_MarkRead(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path - counter reset and statuses read", func(t *testing.T) {
		f := newFixture(t)
		id := f.open(t, "f1", "Alice", "s1", "Green Valley")
		for i := 0; i < 3; i++ {
			_, err := f.messages.Append(ctx, id, "f1", "Alice", domain.RoleFarmer, fmt.Sprintf("m%d", i))
			require.NoError(t, err)
		}
		_, err := f.messages.Append(ctx, id, "s1", "Green Valley", domain.RoleShopOwner, "reply")
		require.NoError(t, err)

		require.NoError(t, f.messages.MarkRead(ctx, id, "s1", domain.RoleShopOwner))

		conv, err := f.conversations.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 0, conv.Unread.Shop)
		assert.Equal(t, 1, conv.Unread.Farmer)

		msgs, err := f.messages.Fetch(ctx, id, 0)
		require.NoError(t, err)
		for _, m := range msgs {
			if m.SenderID == "f1" {
				assert.Equal(t, domain.StatusRead, m.Status)
			} else {
				assert.Equal(t, domain.StatusSent, m.Status, "own messages are untouched")
			}
		}
	})

	t.Run("repeat is a silent no-op", func(t *testing.T) {
		f := newFixture(t)
		rf := newRecordingFeed(t)
		svc := NewMessageService(f.store, f.store, rf, zap.NewNop())
		id := f.open(t, "f1", "Alice", "s1", "Green Valley")
		_, err := f.messages.Append(ctx, id, "f1", "Alice", domain.RoleFarmer, "hi")
		require.NoError(t, err)

		require.NoError(t, svc.MarkRead(ctx, id, "s1", domain.RoleShopOwner))
		published := len(rf.Published())
		require.NoError(t, svc.MarkRead(ctx, id, "s1", domain.RoleShopOwner))
		assert.Len(t, rf.Published(), published)

		conv, err := f.conversations.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 0, conv.Unread.Shop)
	})

	t.Run("sad path", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		msgRepo := mocks.NewMockMessageRepository(ctrl)
		svc := NewMessageService(msgRepo, mocks.NewMockConversationRepository(ctrl), feed.NewBroker(), zap.NewNop())

		assert.ErrorIs(t, svc.MarkRead(ctx, "", "s1", domain.RoleShopOwner), ErrMissingConversationID)
		assert.ErrorIs(t, svc.MarkRead(ctx, "c1", "s1", domain.Role("")), ErrInvalidRole)

		msgRepo.EXPECT().MarkRead(gomock.Any(), "c1", "s1", domain.RoleShopOwner).Return(false, errors.New("conn reset"))
		assert.ErrorIs(t, svc.MarkRead(ctx, "c1", "s1", domain.RoleShopOwner), ErrMarkReadFailed)
	})
}

func TestMessageService_MarkDelivered(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.open(t, "f1", "Alice", "s1", "Green Valley")
	_, err := f.messages.Append(ctx, id, "f1", "Alice", domain.RoleFarmer, "hi")
	require.NoError(t, err)

	require.NoError(t, f.messages.MarkDelivered(ctx, id, "s1"))
	msgs, err := f.messages.Fetch(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.StatusDelivered, msgs[0].Status)

	// delivered never overrides read
	require.NoError(t, f.messages.MarkRead(ctx, id, "s1", domain.RoleShopOwner))
	require.NoError(t, f.messages.MarkDelivered(ctx, id, "s1"))
	msgs, err = f.messages.Fetch(ctx, id, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRead, msgs[0].Status)

	assert.ErrorIs(t, f.messages.MarkDelivered(ctx, "", "s1"), ErrMissingConversationID)
}

func TestMessageService_Subscribe(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.open(t, "f1", "Alice", "s1", "Green Valley")

	updates := make(chan []domain.Message, 16)
	unsub := f.messages.Subscribe(id, 0, func(msgs []domain.Message) { updates <- msgs })
	defer unsub()

	requireSnapshot(t, updates, func(msgs []domain.Message) bool { return len(msgs) == 0 })

	_, err := f.messages.Append(ctx, id, "f1", "Alice", domain.RoleFarmer, "first")
	require.NoError(t, err)
	_, err = f.messages.Append(ctx, id, "s1", "Green Valley", domain.RoleShopOwner, "second")
	require.NoError(t, err)

	got := requireSnapshot(t, updates, func(msgs []domain.Message) bool { return len(msgs) == 2 })
	assert.Equal(t, "first", got[0].Text)
	assert.Equal(t, "second", got[1].Text)

	require.NoError(t, f.messages.MarkRead(ctx, id, "s1", domain.RoleShopOwner))
	requireSnapshot(t, updates, func(msgs []domain.Message) bool {
		return len(msgs) == 2 && msgs[0].Status == domain.StatusRead
	})
}

func TestFarmerAndShopConversation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	conv, err := f.conversations.GetOrCreate(ctx, "f1", "Alice", "s1", "Green Valley")
	require.NoError(t, err)
	assert.Equal(t, domain.UnreadCounters{Farmer: 0, Shop: 0}, conv.Unread)

	m1, err := f.messages.Append(ctx, conv.ID, "f1", "Alice", domain.RoleFarmer, "Do you have NPK 10-10-10?")
	require.NoError(t, err)

	shopList, err := f.conversations.ListForUser(ctx, "s1", domain.RoleShopOwner)
	require.NoError(t, err)
	require.Len(t, shopList, 1)
	assert.Equal(t, 1, shopList[0].Unread.Shop)
	assert.Equal(t, "Do you have NPK 10-10-10?", shopList[0].LastMessage.Text)

	require.NoError(t, f.messages.MarkRead(ctx, conv.ID, "s1", domain.RoleShopOwner))

	m2, err := f.messages.Append(ctx, conv.ID, "s1", "Green Valley", domain.RoleShopOwner, "Yes, in stock")
	require.NoError(t, err)

	msgs, err := f.messages.Fetch(ctx, conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, m1.ID, msgs[0].ID)
	assert.Equal(t, domain.StatusRead, msgs[0].Status)
	assert.Equal(t, m2.ID, msgs[1].ID)
	assert.Equal(t, domain.StatusSent, msgs[1].Status)

	farmerList, err := f.conversations.ListForUser(ctx, "f1", domain.RoleFarmer)
	require.NoError(t, err)
	require.Len(t, farmerList, 1)
	assert.Equal(t, domain.UnreadCounters{Farmer: 1, Shop: 0}, farmerList[0].Unread)
	assert.Equal(t, "Yes, in stock", farmerList[0].LastMessage.Text)
	assert.False(t, farmerList[0].UpdatedAt.Before(m2.CreatedAt.Add(-time.Nanosecond)))
}
