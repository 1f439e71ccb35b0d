package service

import "errors"

// Validation and precondition errors are returned as-is so callers can
// tell the user what to fix.
var (
	ErrEmptyMessage          = errors.New("message text is empty")
	ErrMessageTooLong        = errors.New("message text is too long")
	ErrMissingConversationID = errors.New("conversation id is required")
	ErrMissingParticipant    = errors.New("farmer and shop id and name are required")
	ErrCannotContactSelf     = errors.New("cannot start a conversation with yourself")
	ErrInvalidRole           = errors.New("role must be farmer or shop_owner")
	ErrConversationNotFound  = errors.New("conversation not found")
	ErrNotParticipant        = errors.New("you are not a participant of this conversation")
)

// Store failures collapse into one error per operation. The underlying
// cause is logged, not returned.
var (
	ErrOpenConversationFailed  = errors.New("failed to open conversation")
	ErrListConversationsFailed = errors.New("failed to list conversations")
	ErrSendFailed              = errors.New("failed to send message")
	ErrFetchFailed             = errors.New("failed to fetch messages")
	ErrMarkReadFailed          = errors.New("failed to mark messages as read")
	ErrMarkDeliveredFailed     = errors.New("failed to mark messages as delivered")
)
