// internal/app/groupbuy/capacity.go
package groupbuy

import (
	"context"
	"errors"

	groupstore "github.com/groupmart/groupmart/internal/app/store/groups"
	"github.com/groupmart/groupmart/internal/app/system/status"
	"github.com/groupmart/groupmart/internal/domain/models"
)

// recompute rebuilds a group's cached count from the ledger and re-derives
// its status, then persists both with a version check. The count is always
// the exact aggregation sum, never an incremental adjustment: partial
// failures then cannot leave drift behind, only a stale cache that the
// next recompute repairs.
//
// g must be the copy read under the group's lock in this operation; its
// Version is what the persist is conditioned on. Returns the updated copy
// and whether this recompute locked the group (the auto-renewal trigger).
func (e *Engine) recompute(ctx context.Context, g models.Group) (models.Group, bool, error) {
	sum, err := e.parts.SumByGroup(ctx, g.ID)
	if err != nil {
		return g, false, persistErr("count recompute", err)
	}

	newStatus := status.Derive(sum, g.TargetCount, g.Status)
	if err := e.groups.ApplyCount(ctx, g.ID, g.Version, sum, newStatus); err != nil {
		if errors.Is(err, groupstore.ErrVersionConflict) {
			return g, false, ErrConcurrencyConflict
		}
		return g, false, persistErr("count persist", err)
	}

	justLocked := g.Status != status.Locked && newStatus == status.Locked
	g.CurrentCount = sum
	g.Status = newStatus
	g.Version++
	return g, justLocked, nil
}
