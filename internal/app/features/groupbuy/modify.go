// internal/app/features/groupbuy/modify.go
package groupbuy

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/groupmart/groupmart/internal/app/system/auth"
	"github.com/groupmart/groupmart/internal/app/system/timeouts"
)

type quantityRequest struct {
	Quantity int64  `json:"quantity"`
	Contact  string `json:"contact"`
}

// HandleModifyQuantity sets the caller's total quantity in a group. The
// body carries the new absolute total, not a delta. A total of zero is
// rejected; withdrawing entirely is the cancel endpoint's job.
func (h *Handler) HandleModifyQuantity(w http.ResponseWriter, r *http.Request) {
	groupID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: "invalid group id"})
		return
	}

	var req quantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: "invalid JSON body"})
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "group-buy modify quantity")
	defer cancel()

	if err := h.Engine.ModifyQuantity(ctx, groupID, auth.CurrentUserID(r), req.Quantity, h.sanitize.Sanitize(req.Contact)); err != nil {
		writeEngineError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quantity": req.Quantity})
}
