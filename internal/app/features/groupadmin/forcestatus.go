// internal/app/features/groupadmin/forcestatus.go
package groupadmin

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	engine "github.com/groupmart/groupmart/internal/app/groupbuy"
	"github.com/groupmart/groupmart/internal/app/system/timeouts"
)

type forceStatusRequest struct {
	Status string `json:"status"`
}

// HandleForceStatus sets a group's status directly, bypassing derivation.
// Closing out a stale batch or reopening one that was ended by mistake
// both land here. The override survives until the next ledger write, when
// derivation takes over again (except for ended, which is sticky).
func (h *Handler) HandleForceStatus(w http.ResponseWriter, r *http.Request) {
	groupID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: "invalid group id"})
		return
	}

	var req forceStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: "invalid JSON body"})
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "admin force status")
	defer cancel()

	switch err := h.Engine.AdminForceStatus(ctx, groupID, req.Status); {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
	case errors.Is(err, engine.ErrInvalidStatus):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_status", Message: "status must be open, locked, or ended"})
	case errors.Is(err, engine.ErrGroupNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "group_not_found", Message: "group not found"})
	case errors.Is(err, engine.ErrConcurrencyConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: "conflict", Message: "the group is busy; retry"})
	default:
		h.Log.Error("force status failed", zap.String("group_id", groupID.Hex()), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal error"})
	}
}
