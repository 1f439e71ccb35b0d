package handlers

import (
	"net/http"
	"strconv"

	"github.com/vedran77/agroconnect/internal/domain"
	"github.com/vedran77/agroconnect/internal/service"
	"github.com/vedran77/agroconnect/internal/transport/http/middleware"
	"github.com/vedran77/agroconnect/pkg/validator"
	"go.uber.org/zap"
)

type MessageHandler struct {
	conversations *service.ConversationService
	messages      *service.MessageService
	logger        *zap.Logger
}

func NewMessageHandler(conversations *service.ConversationService, messages *service.MessageService, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{conversations: conversations, messages: messages, logger: logger.Named("http")}
}

type messageListResponse struct {
	Messages []domain.Message `json:"messages"`
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetIdentity(r.Context())

	var input struct {
		Content string `json:"content"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}
	if errs := validator.ValidateMessage(input.Content); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	msg, err := h.messages.Append(r.Context(), r.PathValue("id"), caller.UserID, caller.DisplayName, caller.Role, input.Content)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetIdentity(r.Context())
	convID := r.PathValue("id")

	if _, err := h.conversations.Authorize(r.Context(), convID, caller); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= service.MaxMessageWindow {
			limit = l
		}
	}

	msgs, err := h.messages.Fetch(r.Context(), convID, limit)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, messageListResponse{Messages: msgs})
}

func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetIdentity(r.Context())
	convID := r.PathValue("id")

	if _, err := h.conversations.Authorize(r.Context(), convID, caller); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if err := h.messages.MarkRead(r.Context(), convID, caller.UserID, caller.Role); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetIdentity(r.Context())
	convID := r.PathValue("id")

	if _, err := h.conversations.Authorize(r.Context(), convID, caller); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if err := h.messages.MarkDelivered(r.Context(), convID, caller.UserID); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
