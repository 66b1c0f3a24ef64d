// internal/domain/models/order.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Order status values.
const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusCancelled = "cancelled"
)

// Order is the thin purchase record the checkout subsystem owns. The
// group-buy engine only creates one on join and marks it cancelled when
// the participation is withdrawn; payment state belongs to checkout.
type Order struct {
	ID          primitive.ObjectID  `bson:"_id" json:"id"`
	OrderNo     string              `bson:"order_no" json:"order_no"`
	GroupID     primitive.ObjectID  `bson:"group_id" json:"group_id"`
	UserID      *primitive.ObjectID `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Quantity    int64               `bson:"quantity" json:"quantity"`
	AmountCents int64               `bson:"amount_cents" json:"amount_cents"`
	Status      string              `bson:"status" json:"status"`
	CreatedAt   time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time           `bson:"updated_at" json:"updated_at"`
}
