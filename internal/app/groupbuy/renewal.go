// internal/app/groupbuy/renewal.go
package groupbuy

import (
	"context"
	"fmt"

	"github.com/dalemusser/waffle/pantry/text"
	"go.uber.org/zap"

	"github.com/groupmart/groupmart/internal/domain/models"
)

// maybeSpawnSuccessor runs when a group transitions into Locked. If the
// group auto-renews and no other batch in the series still has room, it
// creates the next batch from the filled group's template.
//
// The batch number is the count of all batches ever created in the series
// (Ended ones included), so numbers are never reused.
func (e *Engine) maybeSpawnSuccessor(ctx context.Context, filled models.Group) error {
	if !filled.AutoRenew {
		return nil
	}

	base := BaseTitle(filled.Title)
	baseCI := text.Fold(base)

	siblings, err := e.groups.ListSeries(ctx, baseCI)
	if err != nil {
		return persistErr("renewal series scan", err)
	}
	for _, sib := range siblings {
		if sib.ID == filled.ID {
			continue
		}
		if sib.Available() > 0 {
			// The series already has room elsewhere; no new batch.
			return nil
		}
	}

	total, err := e.groups.CountSeries(ctx, baseCI)
	if err != nil {
		return persistErr("renewal series count", err)
	}

	parentID := filled.ID
	successor := models.Group{
		Title:         fmt.Sprintf("%s #%d", base, total+1),
		Description:   filled.Description,
		PriceCents:    filled.PriceCents,
		Features:      filled.Features,
		ImageURL:      filled.ImageURL,
		TargetCount:   filled.TargetCount,
		AutoRenew:     filled.AutoRenew,
		IsHot:         filled.IsHot,
		ParentGroupID: &parentID,
	}
	created, err := e.groups.Create(ctx, successor)
	if err != nil {
		return persistErr("renewal batch create", err)
	}

	e.log.Info("auto-renewal spawned successor batch",
		zap.String("filled_group", filled.ID.Hex()),
		zap.String("new_group", created.ID.Hex()),
		zap.String("title", created.Title))
	return nil
}
