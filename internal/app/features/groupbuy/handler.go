// internal/app/features/groupbuy/handler.go
package groupbuy

import (
	"github.com/microcosm-cc/bluemonday"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	engine "github.com/groupmart/groupmart/internal/app/groupbuy"
)

// Handler is the shared dependency container for the storefront group-buy
// routes. All of them delegate to the one engine instance so every entry
// point shares the same per-group serialization.
type Handler struct {
	Engine   *engine.Engine
	Log      *zap.Logger
	sanitize *bluemonday.Policy
}

// NewHandler constructs the storefront group-buy handler. Called from
// bootstrap.BuildHandler once the database and logger exist.
func NewHandler(db *mongo.Database, logger *zap.Logger) *Handler {
	return &Handler{
		Engine:   engine.New(db, logger),
		Log:      logger,
		sanitize: bluemonday.StrictPolicy(),
	}
}
