// internal/app/features/groupbuy/routes.go
package groupbuy

import "github.com/go-chi/chi/v5"

// Routes returns the storefront router for group-buy endpoints. Joining
// is open to anonymous callers; quantity changes and cancellation resolve
// the caller from the session, so the engine rejects them when no user is
// signed in.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/{id}", h.HandleView)
	r.Post("/{id}/join", h.HandleJoin)
	r.Post("/{id}/quantity", h.HandleModifyQuantity)
	r.Post("/{id}/cancel", h.HandleCancel)
	return r
}
