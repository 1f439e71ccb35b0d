package handlers

import (
	"net/http"

	"github.com/vedran77/agroconnect/internal/domain"
	"github.com/vedran77/agroconnect/internal/service"
	"github.com/vedran77/agroconnect/internal/transport/http/middleware"
	"github.com/vedran77/agroconnect/pkg/validator"
	"go.uber.org/zap"
)

type ConversationHandler struct {
	conversations *service.ConversationService
	logger        *zap.Logger
}

func NewConversationHandler(conversations *service.ConversationService, logger *zap.Logger) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, logger: logger.Named("http")}
}

// GetOrCreate opens the conversation between the caller and the counterpart
// named in the body. A farmer names a shop, a shop owner names a farmer.
func (h *ConversationHandler) GetOrCreate(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetIdentity(r.Context())

	var input struct {
		ShopID     string `json:"shop_id"`
		ShopName   string `json:"shop_name"`
		FarmerID   string `json:"farmer_id"`
		FarmerName string `json:"farmer_name"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}

	named := map[domain.Role]domain.Participant{
		domain.RoleFarmer:    {ID: input.FarmerID, Name: input.FarmerName},
		domain.RoleShopOwner: {ID: input.ShopID, Name: input.ShopName},
	}
	other := named[caller.Role.Counterpart()]
	if errs := validator.ValidateContact(caller, other.ID, other.Name); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	self := domain.Participant{ID: caller.UserID, Name: caller.DisplayName}
	farmer, shop, ok := caller.Role.Arrange(self, other)
	if !ok {
		writeServiceError(w, h.logger, service.ErrInvalidRole)
		return
	}

	conv, err := h.conversations.GetOrCreate(r.Context(), farmer.ID, farmer.Name, shop.ID, shop.Name)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetIdentity(r.Context())

	convs, err := h.conversations.ListForUser(r.Context(), caller.UserID, caller.Role)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, convs)
}

func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetIdentity(r.Context())

	conv, err := h.conversations.Authorize(r.Context(), r.PathValue("id"), caller)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}
