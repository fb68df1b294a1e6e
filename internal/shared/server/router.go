package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"appgen-backend/internal/apps"
	"appgen-backend/internal/generation"
	"appgen-backend/internal/shared/config"
	"appgen-backend/internal/shared/metrics"
	"appgen-backend/internal/shared/server/middleware"
	"appgen-backend/internal/shared/server/respond"
)

// RouterDeps carries the handlers the router mounts.
type RouterDeps struct {
	Config            config.Config
	AppHandler        *apps.Handler
	GenerationHandler *generation.Handler
	AssetDir          string
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	r.GET("/healthz", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/metrics", metrics.Handler())
	if deps.AssetDir != "" {
		r.Static(deps.Config.PublicAssetBase, deps.AssetDir)
	}

	api := r.Group("/v1")
	deps.AppHandler.RegisterRoutes(api)
	deps.GenerationHandler.RegisterRoutes(api)

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
