// internal/app/features/groupbuy/cancel.go
package groupbuy

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/groupmart/groupmart/internal/app/system/auth"
	"github.com/groupmart/groupmart/internal/app/system/timeouts"
)

// HandleCancel withdraws the current user from a group entirely. The
// response reports whether vacated slots were backfilled from the next
// batch and whether that batch reopened as a result.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	groupID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: "invalid group id"})
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "group-buy cancel")
	defer cancel()

	res, err := h.Engine.Cancel(ctx, groupID, auth.CurrentUserID(r))
	if err != nil {
		writeEngineError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
