// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	groupadminfeature "github.com/groupmart/groupmart/internal/app/features/groupadmin"
	groupbuyfeature "github.com/groupmart/groupmart/internal/app/features/groupbuy"
	healthfeature "github.com/groupmart/groupmart/internal/app/features/health"
	"github.com/groupmart/groupmart/internal/app/system/auth"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed. The storefront and admin features share
// one engine instance so every state transition on a group funnels through
// the same per-group lock.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	r := chi.NewRouter()

	// Global auth middleware: loads SessionUser into context if logged in.
	// This makes the current user available to all handlers via auth.CurrentUser(r).
	r.Use(sessionMgr.LoadSessionUser)

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	// Storefront group-buy endpoints
	groupbuyHandler := groupbuyfeature.NewHandler(deps.MongoDatabase, logger)
	r.Mount("/groupbuy", groupbuyfeature.Routes(groupbuyHandler))

	// Admin endpoints share the storefront's engine so forced status
	// changes contend on the same locks as joins and cancels.
	adminHandler := groupadminfeature.NewHandler(deps.MongoDatabase, groupbuyHandler.Engine, logger)
	r.Mount("/admin", groupadminfeature.Routes(adminHandler))

	return r, nil
}
