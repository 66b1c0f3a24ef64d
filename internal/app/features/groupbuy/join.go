// internal/app/features/groupbuy/join.go
package groupbuy

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/groupmart/groupmart/internal/app/system/auth"
	"github.com/groupmart/groupmart/internal/app/system/timeouts"
)

type joinRequest struct {
	Quantity int64  `json:"quantity"`
	Contact  string `json:"contact"`
}

// HandleJoin reserves slots in a group for the current user (or an
// anonymous caller). The response names the batch the participation
// actually landed in, which may be an earlier one of the same series.
func (h *Handler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	groupID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: "invalid group id"})
		return
	}

	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: "invalid JSON body"})
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "group-buy join")
	defer cancel()

	res, err := h.Engine.Join(ctx, groupID, auth.CurrentUserID(r), req.Quantity, h.sanitize.Sanitize(req.Contact))
	if err != nil {
		writeEngineError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
