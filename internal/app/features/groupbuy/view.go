// internal/app/features/groupbuy/view.go
package groupbuy

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/groupmart/groupmart/internal/app/system/timeouts"
)

// HandleView serves the public snapshot of a group. The count and status
// in the payload are recomputed from the ledger on every request.
func (h *Handler) HandleView(w http.ResponseWriter, r *http.Request) {
	groupID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: "invalid group id"})
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "group-buy view")
	defer cancel()

	view, err := h.Engine.GetGroupView(ctx, groupID)
	if err != nil {
		writeEngineError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
