// internal/app/groupbuy/ledger.go
package groupbuy

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/groupmart/groupmart/internal/domain/models"
)

// Ledger operations. These are deliberately unexported: every mutation
// must be paired with a capacity recompute in the same transaction, which
// only the orchestrator does.

// addParticipation appends one ledger row. Each join event (and each
// quantity increase) gets its own row; a user's total in a group is the
// sum over their rows.
func (e *Engine) addParticipation(ctx context.Context, groupID primitive.ObjectID, userID *primitive.ObjectID, quantity int64, contact string) (models.Participation, error) {
	row, err := e.parts.Insert(ctx, models.Participation{
		GroupID:  groupID,
		UserID:   userID,
		Quantity: quantity,
		Contact:  contact,
	})
	if err != nil {
		return models.Participation{}, persistErr("ledger insert", err)
	}
	return row, nil
}

// trimFIFO removes amount units from the given rows, oldest first. Whole
// rows are deleted until the remainder fits inside one row, which is then
// reduced in place. rows must already be sorted oldest-first.
func (e *Engine) trimFIFO(ctx context.Context, rows []models.Participation, amount int64) error {
	remaining := amount
	for _, row := range rows {
		if remaining <= 0 {
			break
		}
		if row.Quantity <= remaining {
			if err := e.parts.DeleteByID(ctx, row.ID); err != nil {
				return persistErr("ledger row delete", err)
			}
			remaining -= row.Quantity
			continue
		}
		if err := e.parts.UpdateQuantity(ctx, row.ID, row.Quantity-remaining); err != nil {
			return persistErr("ledger row update", err)
		}
		remaining = 0
	}
	return nil
}

// removeAllForUser deletes every row a user holds in a group and returns
// how many rows went away.
func (e *Engine) removeAllForUser(ctx context.Context, groupID, userID primitive.ObjectID) (int64, error) {
	n, err := e.parts.DeleteByGroupAndUser(ctx, groupID, userID)
	if err != nil {
		return 0, persistErr("ledger delete", err)
	}
	return n, nil
}

// userRows loads a user's rows in a group, oldest first.
func (e *Engine) userRows(ctx context.Context, groupID, userID primitive.ObjectID) ([]models.Participation, error) {
	rows, err := e.parts.ListByGroupAndUser(ctx, groupID, userID)
	if err != nil {
		return nil, persistErr("ledger read", err)
	}
	return rows, nil
}

func sumQuantities(rows []models.Participation) int64 {
	var total int64
	for _, r := range rows {
		total += r.Quantity
	}
	return total
}
