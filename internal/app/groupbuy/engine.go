// internal/app/groupbuy/engine.go

// Package groupbuy is the group-buy lifecycle engine: the participation
// ledger, group capacity tracking, batch-chain migration, and auto-renewal
// of filled batches, sequenced behind a single orchestrator.
//
// Every entry point (storefront join, quantity change, cancellation, the
// order-creation path) goes through this package so the migration rules
// live in exactly one place.
package groupbuy

import (
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	groupstore "github.com/groupmart/groupmart/internal/app/store/groups"
	orderstore "github.com/groupmart/groupmart/internal/app/store/orders"
	participationstore "github.com/groupmart/groupmart/internal/app/store/participations"
	"github.com/groupmart/groupmart/internal/app/system/grouplock"
)

// Engine holds the stores and the per-group lock table. It is stateless
// per request apart from the lock table; all coordination state lives in
// the database.
type Engine struct {
	db     *mongo.Database
	groups *groupstore.Store
	parts  *participationstore.Store
	orders *orderstore.Store
	locks  *grouplock.Keyed
	log    *zap.Logger
}

func New(db *mongo.Database, logger *zap.Logger) *Engine {
	return &Engine{
		db:     db,
		groups: groupstore.New(db),
		parts:  participationstore.New(db),
		orders: orderstore.New(db),
		locks:  grouplock.New(),
		log:    logger,
	}
}
