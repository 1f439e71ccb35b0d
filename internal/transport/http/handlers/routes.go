package handlers

import "net/http"

// Register mounts the REST API on mux behind auth.
func Register(mux *http.ServeMux, auth func(http.Handler) http.Handler, conversations *ConversationHandler, messages *MessageHandler) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ok"}`))
	})

	// Conversations
	mux.Handle("POST /api/v1/conversations", auth(http.HandlerFunc(conversations.GetOrCreate)))
	mux.Handle("GET /api/v1/conversations", auth(http.HandlerFunc(conversations.List)))
	mux.Handle("GET /api/v1/conversations/{id}", auth(http.HandlerFunc(conversations.Get)))

	// Messages
	mux.Handle("GET /api/v1/conversations/{id}/messages", auth(http.HandlerFunc(messages.List)))
	mux.Handle("POST /api/v1/conversations/{id}/messages", auth(http.HandlerFunc(messages.Send)))
	mux.Handle("POST /api/v1/conversations/{id}/read", auth(http.HandlerFunc(messages.MarkRead)))
	mux.Handle("POST /api/v1/conversations/{id}/delivered", auth(http.HandlerFunc(messages.MarkDelivered)))
}
