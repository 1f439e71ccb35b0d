package postgres

import (
	"context"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"

	"github.com/vedran77/agroconnect/internal/database"
	"github.com/vedran77/agroconnect/internal/domain"
	"github.com/vedran77/agroconnect/internal/feed"
	"github.com/vedran77/agroconnect/internal/repository"
)

var (
	_ repository.ConversationRepository = (*ConversationRepo)(nil)
	_ repository.MessageRepository      = (*MessageRepo)(nil)
)

// testPool is nil when no container runtime is available.
var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("agroconnect"),
		postgres.WithUsername("agroconnect"),
		postgres.WithPassword("password"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		log.Printf("postgres container unavailable, skipping integration tests: %v", err)
		os.Exit(m.Run())
	}

	code := func() int {
		defer func() {
			if err := container.Terminate(ctx); err != nil {
				log.Printf("failed to terminate container: %v", err)
			}
		}()

		connStr, err := container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			log.Printf("failed to get connection string: %v", err)
			return 1
		}
		testPool, err = pgxpool.New(ctx, connStr)
		if err != nil {
			log.Printf("failed to create pool: %v", err)
			return 1
		}
		defer testPool.Close()

		if err := database.Migrate(ctx, testPool); err != nil {
			log.Printf("failed to migrate: %v", err)
			return 1
		}
		return m.Run()
	}()
	os.Exit(code)
}

func requirePool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testPool == nil {
		t.Skip("postgres container not available")
	}
	return testPool
}

func newConversation(t *testing.T, repo *ConversationRepo, farmerID, shopID string) *domain.Conversation {
	t.Helper()
	conv, created, err := repo.Create(context.Background(), &domain.Conversation{
		Farmer: domain.Participant{ID: farmerID, Name: "Alice"},
		Shop:   domain.Participant{ID: shopID, Name: "Green Valley"},
	})
	require.NoError(t, err)
	require.True(t, created)
	return conv
}

func TestConversationRepo_Create(t *testing.T) {
	pool := requirePool(t)
	repo := NewConversationRepo(pool)
	ctx := context.Background()

	first := newConversation(t, repo, "pg-f1", "pg-s1")

	t.Run("same pair returns existing record", func(t *testing.T) {
		again, created, err := repo.Create(ctx, &domain.Conversation{
			Farmer: domain.Participant{ID: "pg-f1", Name: "Alice"},
			Shop:   domain.Participant{ID: "pg-s1", Name: "Green Valley"},
		})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, again.ID)
	})

	t.Run("concurrent creates converge", func(t *testing.T) {
		var wg sync.WaitGroup
		ids := make([]string, 8)
		for i := range ids {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				conv, _, err := repo.Create(ctx, &domain.Conversation{
					Farmer: domain.Participant{ID: "pg-f2", Name: "Bob"},
					Shop:   domain.Participant{ID: "pg-s2", Name: "Agro Hub"},
				})
				if assert.NoError(t, err) {
					ids[i] = conv.ID
				}
			}(i)
		}
		wg.Wait()
		for _, id := range ids {
			assert.Equal(t, ids[0], id)
		}
	})

	t.Run("list filters on participant", func(t *testing.T) {
		convs, err := repo.ListByParticipant(ctx, domain.RoleFarmer, "pg-f1")
		require.NoError(t, err)
		require.Len(t, convs, 1)
		assert.Equal(t, first.ID, convs[0].ID)
	})
}

func TestMessageRepo_AppendAndMarkRead(t *testing.T) {
	pool := requirePool(t)
	convs := NewConversationRepo(pool)
	msgs := NewMessageRepo(pool)
	ctx := context.Background()

	conv := newConversation(t, convs, "pg-f3", "pg-s3")
	for _, text := range []string{"first", "second"} {
		require.NoError(t, msgs.Append(ctx, &domain.Message{
			ConversationID: conv.ID,
			SenderID:       "pg-f3",
			SenderName:     "Alice",
			SenderRole:     domain.RoleFarmer,
			Text:           text,
		}))
	}

	got, err := convs.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Unread.Shop)
	assert.Equal(t, "second", got.LastMessage.Text)

	list, err := msgs.ListRecent(ctx, conv.ID, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].Text)

	changed, err := msgs.MarkRead(ctx, conv.ID, "pg-s3", domain.RoleShopOwner)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = msgs.MarkRead(ctx, conv.ID, "pg-s3", domain.RoleShopOwner)
	require.NoError(t, err)
	assert.False(t, changed)

	err = msgs.Append(ctx, &domain.Message{
		ConversationID: "missing",
		SenderID:       "pg-f3",
		SenderName:     "Alice",
		SenderRole:     domain.RoleFarmer,
		Text:           "orphan",
	})
	assert.Error(t, err)
}

func TestMessageRepo_ConcurrentAppendAndMarkRead(t *testing.T) {
	pool := requirePool(t)
	convs := NewConversationRepo(pool)
	msgs := NewMessageRepo(pool)
	ctx := context.Background()

	conv := newConversation(t, convs, "pg-f4", "pg-s4")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, msgs.Append(ctx, &domain.Message{
				ConversationID: conv.ID,
				SenderID:       "pg-f4",
				SenderName:     "Alice",
				SenderRole:     domain.RoleFarmer,
				Text:           "any news?",
			}))
		}()
		go func() {
			defer wg.Done()
			_, err := msgs.MarkRead(ctx, conv.ID, "pg-s4", domain.RoleShopOwner)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	list, err := msgs.ListRecent(ctx, conv.ID, 100)
	require.NoError(t, err)
	require.Len(t, list, 20)
	unread := 0
	for _, m := range list {
		if m.Status != domain.StatusRead {
			unread++
		}
	}

	got, err := convs.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, unread, got.Unread.Shop, "counter must match the farmer messages still unread")
}

func TestChangeRelay_ForwardsForeignNotices(t *testing.T) {
	pool := requirePool(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listenerBroker := feed.NewBroker()
	defer listenerBroker.Close()
	listener := NewChangeRelay(pool, listenerBroker, zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- listener.Listen(ctx) }()

	refreshed := make(chan struct{}, 8)
	unsub := listenerBroker.Subscribe("conversation:relay", func() { refreshed <- struct{}{} })
	defer unsub()
	<-refreshed // initial snapshot

	sender := NewChangeRelay(pool, feed.NewBroker(), zap.NewNop())
	require.Eventually(t, func() bool {
		sender.Publish("conversation:relay")
		select {
		case <-refreshed:
			return true
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
