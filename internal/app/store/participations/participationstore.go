// internal/app/store/participations/participationstore.go
package participationstore

import (
	"context"
	"time"

	"github.com/groupmart/groupmart/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store owns the participations collection: the ledger rows every group
// count is derived from. Mutations here are only reached through the
// group-buy orchestrator, which pairs each one with a counter recompute
// in the same transaction.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("participations")}
}

// joinOrder sorts rows oldest-first; ties break on _id so the order is
// stable for FIFO removal and backfill priority.
var joinOrder = bson.D{{Key: "joined_at", Value: 1}, {Key: "_id", Value: 1}}

func (s *Store) Insert(ctx context.Context, p models.Participation) (models.Participation, error) {
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now().UTC()
	}
	if _, err := s.c.InsertOne(ctx, p); err != nil {
		return models.Participation{}, err
	}
	return p, nil
}

// ListByGroup returns all rows for a group, oldest join first.
func (s *Store) ListByGroup(ctx context.Context, groupID primitive.ObjectID) ([]models.Participation, error) {
	return s.find(ctx, bson.M{"group_id": groupID})
}

// ListByGroupAndUser returns a user's rows in a group, oldest join first.
func (s *Store) ListByGroupAndUser(ctx context.Context, groupID, userID primitive.ObjectID) ([]models.Participation, error) {
	return s.find(ctx, bson.M{"group_id": groupID, "user_id": userID})
}

func (s *Store) find(ctx context.Context, filter bson.M) ([]models.Participation, error) {
	cur, err := s.c.Find(ctx, filter, options.Find().SetSort(joinOrder))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rows []models.Participation
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// SumByGroup returns the exact quantity sum over a group's rows. This is
// the authoritative figure the cached Group.CurrentCount is rebuilt from.
func (s *Store) SumByGroup(ctx context.Context, groupID primitive.ObjectID) (int64, error) {
	return s.sum(ctx, bson.M{"group_id": groupID})
}

// SumByGroupAndUser returns one user's total reserved quantity in a group.
func (s *Store) SumByGroupAndUser(ctx context.Context, groupID, userID primitive.ObjectID) (int64, error) {
	return s.sum(ctx, bson.M{"group_id": groupID, "user_id": userID})
}

func (s *Store) sum(ctx context.Context, match bson.M) (int64, error) {
	cur, err := s.c.Aggregate(ctx, []bson.M{
		{"$match": match},
		{"$group": bson.M{"_id": nil, "total": bson.M{"$sum": "$quantity"}}},
	})
	if err != nil {
		return 0, err
	}
	defer cur.Close(ctx)

	if cur.Next(ctx) {
		var row struct {
			Total int64 `bson:"total"`
		}
		if err := cur.Decode(&row); err != nil {
			return 0, err
		}
		return row.Total, nil
	}
	return 0, cur.Err()
}

// UpdateQuantity sets a single row's quantity (partial FIFO removal hits
// only the boundary row this way).
func (s *Store) UpdateQuantity(ctx context.Context, id primitive.ObjectID, quantity int64) error {
	res, err := s.c.UpdateByID(ctx, id, bson.M{"$set": bson.M{"quantity": quantity}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// DeleteByID removes one row.
func (s *Store) DeleteByID(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// DeleteByGroupAndUser removes all of a user's rows in a group and returns
// how many were deleted.
func (s *Store) DeleteByGroupAndUser(ctx context.Context, groupID, userID primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"group_id": groupID, "user_id": userID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// ReassignGroup moves the given rows to another group by rewriting
// group_id in place. Quantity and joined_at are untouched so a migrated
// participant keeps their original join-time ordering.
func (s *Store) ReassignGroup(ctx context.Context, ids []primitive.ObjectID, toGroupID primitive.ObjectID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.c.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		bson.M{"$set": bson.M{"group_id": toGroupID}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
