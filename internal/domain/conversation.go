package domain

import "time"

type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UnreadCounters holds one counter per role.
type UnreadCounters struct {
	Farmer int `json:"farmer"`
	Shop   int `json:"shop"`
}

type MessageSummary struct {
	Text     string    `json:"text"`
	SenderID string    `json:"sender_id"`
	SentAt   time.Time `json:"sent_at"`
}

// Conversation is the unique thread between one farmer and one shop.
type Conversation struct {
	ID          string          `json:"id"`
	Farmer      Participant     `json:"farmer"`
	Shop        Participant     `json:"shop"`
	LastMessage *MessageSummary `json:"last_message,omitempty"`
	Unread      UnreadCounters  `json:"unread"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// HasParticipant reports whether userID takes part in c as role.
func (c *Conversation) HasParticipant(userID string, role Role) bool {
	if !role.Valid() || userID == "" {
		return false
	}
	return role.Participant(c).ID == userID
}
