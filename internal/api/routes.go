package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// RegisterRoutes mounts the page, the JSON endpoints and the chat socket.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Index)
	r.Get("/api/persona", h.GetPersona)

	r.Post("/configure", h.Configure)
	r.Post("/chat", h.Chat)
	r.Post("/chat-with-image", h.ChatWithImage)
	r.Post("/reset-conversation", h.ResetConversation)
	r.Post("/change-context", h.ChangeContext)

	r.Get("/ws/chat", h.ChatSocket)

	if h.uploads != nil {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", h.uploads.Handler()))
	}
}

func requestID(r *http.Request) string {
	return chiMiddleware.GetReqID(r.Context())
}
