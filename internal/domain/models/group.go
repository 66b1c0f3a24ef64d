// internal/domain/models/group.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Group is a sellable pooled offer (one batch in a group-buy series).
//
// NOTE:
//   - Participant rows are not embedded; all participation lives in the
//     participations collection. CurrentCount is a cached projection of
//     that collection and is always recomputed from it, never adjusted
//     by deltas.
//   - Batches of the same offer share a base title; successor batches
//     carry a " #N" suffix and point back at the batch that spawned them
//     via ParentGroupID.
type Group struct {
	ID      primitive.ObjectID `bson:"_id" json:"id"`
	Title   string             `bson:"title" json:"title"`
	TitleCI string             `bson:"title_ci" json:"title_ci"`

	Description string   `bson:"description" json:"description"`
	PriceCents  int64    `bson:"price_cents" json:"price_cents"`
	Features    []string `bson:"features,omitempty" json:"features,omitempty"`
	ImageURL    string   `bson:"image_url" json:"image_url"`

	TargetCount  int64  `bson:"target_count" json:"target_count"`
	CurrentCount int64  `bson:"current_count" json:"current_count"`
	Status       string `bson:"status" json:"status"`

	AutoRenew bool `bson:"auto_renew" json:"auto_renew"`
	IsHot     bool `bson:"is_hot" json:"is_hot"`

	// ParentGroupID links a spawned batch to its predecessor. Nil for
	// batches created directly by an admin.
	ParentGroupID *primitive.ObjectID `bson:"parent_group_id,omitempty" json:"parent_group_id,omitempty"`

	// Version guards counter persistence; every recompute bumps it.
	Version int64 `bson:"version" json:"version"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Available reports the remaining joinable capacity (never negative).
func (g Group) Available() int64 {
	if g.TargetCount <= g.CurrentCount {
		return 0
	}
	return g.TargetCount - g.CurrentCount
}
