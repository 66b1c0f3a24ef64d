// internal/app/features/groupadmin/participants.go
package groupadmin

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/groupmart/groupmart/internal/app/system/timeouts"
)

type participantRow struct {
	ID       primitive.ObjectID  `json:"id"`
	UserID   *primitive.ObjectID `json:"user_id,omitempty"`
	Quantity int64               `json:"quantity"`
	Contact  string              `json:"contact"`
	JoinedAt time.Time           `json:"joined_at"`
}

type participantsResponse struct {
	GroupID      primitive.ObjectID `json:"group_id"`
	Total        int64              `json:"total"`
	Participants []participantRow   `json:"participants"`
}

// HandleListParticipants returns the raw ledger for a group in join
// order, plus the summed quantity the derivation works from.
func (h *Handler) HandleListParticipants(w http.ResponseWriter, r *http.Request) {
	groupID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: "invalid group id"})
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "admin list participants")
	defer cancel()

	if _, err := h.Groups.GetByID(ctx, groupID); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "group_not_found", Message: "group not found"})
			return
		}
		h.Log.Error("load group failed", zap.String("group_id", groupID.Hex()), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal error"})
		return
	}

	rows, err := h.Parts.ListByGroup(ctx, groupID)
	if err != nil {
		h.Log.Error("list participants failed", zap.String("group_id", groupID.Hex()), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal error"})
		return
	}

	res := participantsResponse{GroupID: groupID, Participants: make([]participantRow, 0, len(rows))}
	for _, p := range rows {
		res.Total += p.Quantity
		res.Participants = append(res.Participants, participantRow{
			ID:       p.ID,
			UserID:   p.UserID,
			Quantity: p.Quantity,
			Contact:  p.Contact,
			JoinedAt: p.JoinedAt,
		})
	}
	writeJSON(w, http.StatusOK, res)
}
