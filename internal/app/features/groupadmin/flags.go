// internal/app/features/groupadmin/flags.go
package groupadmin

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/groupmart/groupmart/internal/app/system/timeouts"
)

type flagsRequest struct {
	AutoRenew *bool `json:"auto_renew"`
	IsHot     *bool `json:"is_hot"`
}

// HandleSetFlags toggles auto_renew and is_hot. Omitted fields keep their
// current values, so the two flags can be flipped independently.
func (h *Handler) HandleSetFlags(w http.ResponseWriter, r *http.Request) {
	groupID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: "invalid group id"})
		return
	}

	var req flagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: "invalid JSON body"})
		return
	}
	if req.AutoRenew == nil && req.IsHot == nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: "no flags in request"})
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "admin set flags")
	defer cancel()

	if err := h.Groups.SetFlags(ctx, groupID, req.AutoRenew, req.IsHot); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "group_not_found", Message: "group not found"})
			return
		}
		h.Log.Error("set flags failed", zap.String("group_id", groupID.Hex()), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
