package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/pmahajan3105/releasenote-sub004/internal/config"
	"github.com/pmahajan3105/releasenote-sub004/internal/http/handler"
	httpmiddleware "github.com/pmahajan3105/releasenote-sub004/internal/http/middleware"
	"github.com/pmahajan3105/releasenote-sub004/internal/middleware"
)

// RouteLimiters groups the named rate-limit policies applied per route class.
// Any nil limiter disables limiting for that class.
type RouteLimiters struct {
	API    *middleware.RateLimiter
	OAuth  *middleware.RateLimiter
	Public *middleware.RateLimiter
}

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, integrations *handler.IntegrationHandler, auth *httpmiddleware.Auth, limits RouteLimiters) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/healthz", limits.Public.Handler(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	group := r.Group("/integrations", auth.RequireSession)
	{
		group.GET("", limits.API.Handler(), integrations.List)
		group.DELETE("/:provider", limits.API.Handler(), integrations.Disconnect)
		group.POST("/:provider/sync", limits.API.Handler(), integrations.Sync)
		group.GET("/:provider/changes", limits.API.Handler(), integrations.Changes)

		// The authorization round-trip gets its own, tighter budget so a
		// misbehaving client cannot mint state records at the API rate.
		group.GET("/:provider/connect", limits.OAuth.Handler(), integrations.Connect)
		group.GET("/:provider/callback", limits.OAuth.Handler(), integrations.Callback)
	}

	return r
}
