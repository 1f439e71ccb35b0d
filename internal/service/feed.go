package service

import (
	"fmt"

	"github.com/vedran77/agroconnect/internal/domain"
)

// Feed carries change signals between writers and live subscriptions.
// feed.Broker and postgres.ChangeRelay implement it.
type Feed interface {
	Publish(topics ...string)
	Subscribe(topic string, refresh func()) (unsubscribe func())
}

func conversationTopic(conversationID string) string {
	return "conversation:" + conversationID
}

func participantTopic(role domain.Role, userID string) string {
	return fmt.Sprintf("participant:%s:%s", role, userID)
}

// participantTopics returns the list topics of both members of conv.
func participantTopics(conv *domain.Conversation) []string {
	return []string{
		participantTopic(domain.RoleFarmer, conv.Farmer.ID),
		participantTopic(domain.RoleShopOwner, conv.Shop.ID),
	}
}
