// internal/app/features/groupadmin/create.go
package groupadmin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	groupstore "github.com/groupmart/groupmart/internal/app/store/groups"
	"github.com/groupmart/groupmart/internal/app/system/timeouts"
	"github.com/groupmart/groupmart/internal/domain/models"
)

type createGroupRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	PriceCents  int64    `json:"price_cents"`
	Features    []string `json:"features"`
	ImageURL    string   `json:"image_url"`
	TargetCount int64    `json:"target_count"`
	AutoRenew   bool     `json:"auto_renew"`
	IsHot       bool     `json:"is_hot"`
}

// HandleCreateGroup creates a new group listing. Titles are unique
// case-insensitively across the whole collection, which is also what
// keeps batch numbering in a series collision-free.
func (h *Handler) HandleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: "invalid JSON body"})
		return
	}

	req.Title = strings.TrimSpace(h.sanitize.Sanitize(req.Title))
	if req.Title == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: "title is required"})
		return
	}
	if req.TargetCount <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: "target_count must be positive"})
		return
	}
	if req.PriceCents < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: "price_cents must not be negative"})
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "admin create group")
	defer cancel()

	created, err := h.Groups.Create(ctx, models.Group{
		Title:       req.Title,
		Description: h.sanitize.Sanitize(req.Description),
		PriceCents:  req.PriceCents,
		Features:    h.sanitizeAll(req.Features),
		ImageURL:    strings.TrimSpace(req.ImageURL),
		TargetCount: req.TargetCount,
		AutoRenew:   req.AutoRenew,
		IsHot:       req.IsHot,
	})
	if err != nil {
		if errors.Is(err, groupstore.ErrDuplicateGroupTitle) {
			writeJSON(w, http.StatusConflict, errorBody{Error: "duplicate_title", Message: "a group with this title already exists"})
			return
		}
		h.Log.Error("create group failed", zap.String("title", req.Title), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal error"})
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) sanitizeAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(h.sanitize.Sanitize(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
