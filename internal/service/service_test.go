package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vedran77/agroconnect/internal/feed"
	"github.com/vedran77/agroconnect/internal/repository/memory"
	"go.uber.org/zap/zaptest"
)

type fixture struct {
	store         *memory.Store
	broker        *feed.Broker
	conversations *ConversationService
	messages      *MessageService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	broker := feed.NewBroker()
	t.Cleanup(broker.Close)
	logger := zaptest.NewLogger(t)

	return &fixture{
		store:         store,
		broker:        broker,
		conversations: NewConversationService(store, broker, logger),
		messages:      NewMessageService(store, store, broker, logger),
	}
}

// recordingFeed counts publications and otherwise behaves like a Broker.
type recordingFeed struct {
	*feed.Broker
	mu        sync.Mutex
	published []string
}

func (f *recordingFeed) Publish(topics ...string) {
	f.mu.Lock()
	f.published = append(f.published, topics...)
	f.mu.Unlock()
	f.Broker.Publish(topics...)
}

func (f *recordingFeed) Published() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.published...)
}

func newRecordingFeed(t *testing.T) *recordingFeed {
	t.Helper()
	f := &recordingFeed{Broker: feed.NewBroker()}
	t.Cleanup(f.Broker.Close)
	return f
}

func (f *fixture) open(t *testing.T, farmerID, farmerName, shopID, shopName string) string {
	t.Helper()
	conv, err := f.conversations.GetOrCreate(context.Background(), farmerID, farmerName, shopID, shopName)
	require.NoError(t, err)
	return conv.ID
}
