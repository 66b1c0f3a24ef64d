// internal/domain/models/participation.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Participation is one reservation row in the ledger. A user may hold
// several rows in the same group (each join/increase appends a row); the
// user's total is always the sum over their rows.
//
// UserID is nil for anonymous participants. JoinedAt orders rows for FIFO
// removal and for backfill priority, so migration reassigns GroupID in
// place rather than copying the row.
type Participation struct {
	ID       primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	GroupID  primitive.ObjectID  `bson:"group_id" json:"group_id"`
	UserID   *primitive.ObjectID `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Quantity int64               `bson:"quantity" json:"quantity"`
	Contact  string              `bson:"contact" json:"contact"`
	JoinedAt time.Time           `bson:"joined_at" json:"joined_at"`
}
