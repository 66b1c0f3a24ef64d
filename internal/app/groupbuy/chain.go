// internal/app/groupbuy/chain.go
package groupbuy

import (
	"context"
	"regexp"
	"sort"

	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/groupmart/groupmart/internal/domain/models"
)

var batchSuffix = regexp.MustCompile(` #[0-9]+$`)

// BaseTitle strips the " #N" batch suffix, yielding the title shared by
// every batch in a series.
func BaseTitle(title string) string {
	return batchSuffix.ReplaceAllString(title, "")
}

// forwardTarget resolves where a join against g actually lands. Earlier
// batches fill first: the earliest-created non-Ended sibling that was
// created strictly before g and can hold the whole quantity wins; with no
// such sibling the join stays on g.
//
// This runs before the group lock is taken; the availability seen here is
// only a routing hint and is re-checked under the lock.
func (e *Engine) forwardTarget(ctx context.Context, g models.Group, quantity int64) (models.Group, bool, error) {
	siblings, err := e.groups.ListSeries(ctx, text.Fold(BaseTitle(g.Title)))
	if err != nil {
		return g, false, persistErr("series lookup", err)
	}
	for _, sib := range siblings {
		if sib.ID == g.ID || !sib.CreatedAt.Before(g.CreatedAt) {
			continue
		}
		if sib.Available() >= quantity {
			return sib, true, nil
		}
	}
	return g, false, nil
}

// backfillEntrant is one migration candidate: all of one participant's
// rows in the donor batch. Anonymous rows are keyed by their own row id,
// so two anonymous entries are never merged.
type backfillEntrant struct {
	userID *primitive.ObjectID
	rows   []models.Participation
	total  int64
}

func (b backfillEntrant) earliestJoin() models.Participation { return b.rows[0] }

// backfill migrates participants from child into parent until vacancy is
// consumed. Candidates are taken FIFO by earliest join; a participant
// whose whole quantity does not fit is skipped, never split, and the walk
// continues since a later smaller participant may still fit.
//
// Only the immediate (most recently created) child is ever drained; the
// chain is not walked further down even when the child cannot fill the
// vacancy, which bounds the cost of a single cancellation.
//
// Returns the total quantity migrated. Counters of both groups are left
// for the caller to recompute.
func (e *Engine) backfill(ctx context.Context, parent, child models.Group, vacancy int64) (int64, error) {
	rows, err := e.parts.ListByGroup(ctx, child.ID)
	if err != nil {
		return 0, persistErr("backfill read", err)
	}

	entrants := groupRowsByParticipant(rows)

	var migrated int64
	for _, ent := range entrants {
		if vacancy <= 0 {
			break
		}
		if ent.total > vacancy {
			continue
		}

		ids := make([]primitive.ObjectID, len(ent.rows))
		for i, r := range ent.rows {
			ids[i] = r.ID
		}
		if _, err := e.parts.ReassignGroup(ctx, ids, parent.ID); err != nil {
			return migrated, persistErr("backfill reassign", err)
		}
		// Orders follow the participation so a later cancel finds them.
		// Anonymous rows have no user to match orders on, so their orders
		// stay put.
		if ent.userID != nil {
			if _, err := e.orders.ReassignGroup(ctx, child.ID, parent.ID, ent.userID); err != nil {
				return migrated, persistErr("backfill order reassign", err)
			}
		}
		vacancy -= ent.total
		migrated += ent.total
	}
	return migrated, nil
}

// groupRowsByParticipant merges a batch's rows per user (anonymous rows
// stand alone) and orders the result FIFO by earliest join.
func groupRowsByParticipant(rows []models.Participation) []backfillEntrant {
	byUser := make(map[primitive.ObjectID]*backfillEntrant)
	var entrants []*backfillEntrant

	for _, row := range rows {
		if row.UserID == nil {
			row := row
			entrants = append(entrants, &backfillEntrant{rows: []models.Participation{row}, total: row.Quantity})
			continue
		}
		if ent, ok := byUser[*row.UserID]; ok {
			ent.rows = append(ent.rows, row)
			ent.total += row.Quantity
			continue
		}
		uid := *row.UserID
		ent := &backfillEntrant{userID: &uid, rows: []models.Participation{row}, total: row.Quantity}
		byUser[uid] = ent
		entrants = append(entrants, ent)
	}

	// rows arrive oldest-first, so each entrant's rows[0] is their
	// earliest join. Sort entrants by that, stable on row id.
	sort.SliceStable(entrants, func(i, j int) bool {
		a, b := entrants[i].earliestJoin(), entrants[j].earliestJoin()
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.ID.Hex() < b.ID.Hex()
	})

	out := make([]backfillEntrant, len(entrants))
	for i, e := range entrants {
		out[i] = *e
	}
	return out
}
