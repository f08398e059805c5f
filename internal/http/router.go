package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/Wynand91/fedauth/internal/config"
	"github.com/Wynand91/fedauth/internal/http/handler"
	"github.com/Wynand91/fedauth/internal/http/middleware"
	"github.com/Wynand91/fedauth/internal/session"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(
	cfg config.Config,
	authHandler *handler.AuthHandler,
	adminHandler *handler.AdminHandler,
	authMiddleware *middleware.Auth,
	store session.Store,
	rateLimiter *middleware.RateLimiter,
	logger *zap.Logger,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	authGroup := r.Group("/auth")
	{
		oidc := authGroup.Group("/oidc", middleware.Sessions(cfg, store, logger))
		{
			oidc.POST("/login", authHandler.Login)
			oidc.GET("/authenticate", authHandler.Authenticate)
			oidc.GET("/authenticate/:alias", authHandler.AuthenticateAlias)
			oidc.GET("/callback", authHandler.Callback)
			oidc.POST("/exchange", authHandler.Exchange)
		}

		authGroup.GET("/me", authMiddleware.ValidateJWT, authHandler.Me)
	}

	admin := r.Group("/admin/providers", authMiddleware.ValidateJWT, authMiddleware.RequireSuperuser)
	{
		admin.GET("/federated", adminHandler.ListFederated)
		admin.POST("/federated", adminHandler.CreateFederated)
		admin.PUT("/federated/:domain", adminHandler.UpdateFederated)

		admin.GET("/generic", adminHandler.ListGeneric)
		admin.POST("/generic", adminHandler.CreateGeneric)
		admin.PUT("/generic/:alias", adminHandler.UpdateGeneric)
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
