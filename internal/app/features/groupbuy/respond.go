// internal/app/features/groupbuy/respond.go
package groupbuy

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	engine "github.com/groupmart/groupmart/internal/app/groupbuy"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Available *int64 `json:"available,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// writeEngineError maps the engine's error taxonomy to HTTP. Business
// failures come back as their own codes; persistence failures are logged
// and surfaced as a bare 500 so storage details never leak.
func writeEngineError(w http.ResponseWriter, log *zap.Logger, err error) {
	var slots *engine.InsufficientSlotsError

	switch {
	case errors.Is(err, engine.ErrGroupNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "group_not_found", Message: "group not found"})
	case errors.As(err, &slots):
		writeJSON(w, http.StatusConflict, errorBody{Error: "insufficient_slots", Message: slots.Error(), Available: &slots.Available})
	case errors.Is(err, engine.ErrInsufficientSlots):
		writeJSON(w, http.StatusConflict, errorBody{Error: "insufficient_slots", Message: err.Error()})
	case errors.Is(err, engine.ErrGroupEnded):
		writeJSON(w, http.StatusConflict, errorBody{Error: "group_ended", Message: "this group has ended"})
	case errors.Is(err, engine.ErrInvalidQuantity):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_quantity", Message: "quantity must be positive; use cancel to withdraw"})
	case errors.Is(err, engine.ErrInvalidStatus):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_status", Message: err.Error()})
	case errors.Is(err, engine.ErrNotParticipant):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_participant", Message: "no active participation in this group"})
	case errors.Is(err, engine.ErrConcurrencyConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: "conflict", Message: "the group changed underneath this request; retry", Retryable: true})
	default:
		log.Error("group-buy operation failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal error"})
	}
}
