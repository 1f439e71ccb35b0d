package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vedran77/agroconnect/internal/service"
	"github.com/vedran77/agroconnect/pkg/validator"
	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies; the longest message is far below it.
const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func writeValidationErrors(w http.ResponseWriter, errs validator.ValidationErrors) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error": map[string]any{
			"code":   "VALIDATION_ERROR",
			"fields": errs,
		},
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return false
	}
	return true
}

// writeServiceError maps service errors onto the HTTP error envelope.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "MISSING_CONTENT", "Message content is required")
	case errors.Is(err, service.ErrMessageTooLong):
		writeError(w, http.StatusBadRequest, "MESSAGE_TOO_LONG", err.Error())
	case errors.Is(err, service.ErrMissingConversationID):
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
	case errors.Is(err, service.ErrMissingParticipant):
		writeError(w, http.StatusBadRequest, "MISSING_PARTICIPANT", err.Error())
	case errors.Is(err, service.ErrCannotContactSelf):
		writeError(w, http.StatusBadRequest, "CANNOT_CONTACT_SELF", "Cannot start a conversation with yourself")
	case errors.Is(err, service.ErrInvalidRole):
		writeError(w, http.StatusBadRequest, "INVALID_ROLE", err.Error())
	case errors.Is(err, service.ErrConversationNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Conversation not found")
	case errors.Is(err, service.ErrNotParticipant):
		writeError(w, http.StatusForbidden, "FORBIDDEN", "You are not a participant of this conversation")
	case errors.Is(err, service.ErrOpenConversationFailed),
		errors.Is(err, service.ErrListConversationsFailed),
		errors.Is(err, service.ErrSendFailed),
		errors.Is(err, service.ErrFetchFailed),
		errors.Is(err, service.ErrMarkReadFailed),
		errors.Is(err, service.ErrMarkDeliveredFailed):
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
	default:
		logger.Error("unhandled service error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
	}
}
