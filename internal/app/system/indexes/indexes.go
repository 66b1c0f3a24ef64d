// internal/app/system/indexes/indexes.go

// Package indexes creates the MongoDB indexes the engine's queries rely
// on. EnsureSchema runs this at startup; tests run it against their
// throwaway databases so uniqueness behaves the same there.
package indexes

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureAll creates every index, idempotently.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	groups := []mongo.IndexModel{
		// Batch titles are unique; the series prefix query also runs
		// against title_ci.
		{
			Keys:    bson.D{{Key: "title_ci", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		// Backfill child lookup.
		{Keys: bson.D{{Key: "parent_group_id", Value: 1}, {Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
	}
	if _, err := db.Collection("groups").Indexes().CreateMany(ctx, groups); err != nil {
		return err
	}

	participations := []mongo.IndexModel{
		// Ledger reads are always per group, join-time ordered.
		{Keys: bson.D{{Key: "group_id", Value: 1}, {Key: "joined_at", Value: 1}}},
		{Keys: bson.D{{Key: "group_id", Value: 1}, {Key: "user_id", Value: 1}}},
	}
	if _, err := db.Collection("participations").Indexes().CreateMany(ctx, participations); err != nil {
		return err
	}

	orders := []mongo.IndexModel{
		{Keys: bson.D{{Key: "group_id", Value: 1}, {Key: "user_id", Value: 1}, {Key: "status", Value: 1}}},
		{
			Keys:    bson.D{{Key: "order_no", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := db.Collection("orders").Indexes().CreateMany(ctx, orders); err != nil {
		return err
	}

	return nil
}
