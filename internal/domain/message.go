package domain

import "time"

type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

var statusRank = map[MessageStatus]int{
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// Rank orders statuses; a message only ever moves to a higher rank.
func (s MessageStatus) Rank() int {
	return statusRank[s]
}

type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	SenderID       string        `json:"sender_id"`
	SenderName     string        `json:"sender_name"`
	SenderRole     Role          `json:"sender_role"`
	Text           string        `json:"text"`
	Status         MessageStatus `json:"status"`
	Edited         bool          `json:"edited"`
	CreatedAt      time.Time     `json:"created_at"`
	// Seq breaks ties between messages stored with the same timestamp.
	Seq int64 `json:"-"`
}

// Before reports whether m sorts ahead of o in a conversation.
func (m *Message) Before(o *Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return m.Seq < o.Seq
}
