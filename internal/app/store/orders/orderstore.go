// internal/app/store/orders/orderstore.go
package orderstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/groupmart/groupmart/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Store is the group-buy engine's surface onto the order subsystem: create
// an order on join, cancel it on withdrawal, and keep it pointing at the
// batch the participation actually lives in. Payment lifecycle belongs to
// checkout and is not handled here.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("orders")}
}

func (s *Store) Create(ctx context.Context, o models.Order) (models.Order, error) {
	now := time.Now().UTC()
	o.ID = primitive.NewObjectID()
	o.OrderNo = uuid.NewString()
	if o.Status == "" {
		o.Status = models.OrderStatusPending
	}
	o.CreatedAt = now
	o.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, o); err != nil {
		return models.Order{}, err
	}
	return o, nil
}

// CancelByGroupAndUser marks a user's non-cancelled orders in a group as
// cancelled. Returns how many orders were updated.
func (s *Store) CancelByGroupAndUser(ctx context.Context, groupID primitive.ObjectID, userID *primitive.ObjectID) (int64, error) {
	filter := bson.M{
		"group_id": groupID,
		"status":   bson.M{"$ne": models.OrderStatusCancelled},
	}
	if userID != nil {
		filter["user_id"] = *userID
	} else {
		filter["user_id"] = bson.M{"$exists": false}
	}
	res, err := s.c.UpdateMany(ctx, filter, bson.M{
		"$set": bson.M{"status": models.OrderStatusCancelled, "updated_at": time.Now().UTC()},
	})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// ReassignGroup repoints a user's orders at another batch, so an order
// keeps tracking the participation it paid for across migration.
func (s *Store) ReassignGroup(ctx context.Context, fromGroupID, toGroupID primitive.ObjectID, userID *primitive.ObjectID) (int64, error) {
	filter := bson.M{
		"group_id": fromGroupID,
		"status":   bson.M{"$ne": models.OrderStatusCancelled},
	}
	if userID != nil {
		filter["user_id"] = *userID
	} else {
		filter["user_id"] = bson.M{"$exists": false}
	}
	res, err := s.c.UpdateMany(ctx, filter, bson.M{
		"$set": bson.M{"group_id": toGroupID, "updated_at": time.Now().UTC()},
	})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
