// internal/app/features/groupadmin/handler.go
package groupadmin

import (
	"github.com/microcosm-cc/bluemonday"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	engine "github.com/groupmart/groupmart/internal/app/groupbuy"
	groupstore "github.com/groupmart/groupmart/internal/app/store/groups"
	participationstore "github.com/groupmart/groupmart/internal/app/store/participations"
)

// Handler serves the admin surface: creating groups, forcing status,
// flipping flags, and inspecting the participant ledger. Status changes
// go through the engine so they take the same per-group lock as the
// storefront operations.
type Handler struct {
	Engine   *engine.Engine
	Groups   *groupstore.Store
	Parts    *participationstore.Store
	Log      *zap.Logger
	sanitize *bluemonday.Policy
}

func NewHandler(db *mongo.Database, eng *engine.Engine, logger *zap.Logger) *Handler {
	return &Handler{
		Engine:   eng,
		Groups:   groupstore.New(db),
		Parts:    participationstore.New(db),
		Log:      logger,
		sanitize: bluemonday.StrictPolicy(),
	}
}
