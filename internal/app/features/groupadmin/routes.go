// internal/app/features/groupadmin/routes.go
package groupadmin

import (
	"github.com/go-chi/chi/v5"

	"github.com/groupmart/groupmart/internal/app/system/auth"
)

// Routes returns the admin router. Every endpoint requires an admin
// session.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireAdmin)

	r.Post("/groups", h.HandleCreateGroup)
	r.Post("/groups/{id}/status", h.HandleForceStatus)
	r.Post("/groups/{id}/flags", h.HandleSetFlags)
	r.Get("/groups/{id}/participants", h.HandleListParticipants)

	return r
}
