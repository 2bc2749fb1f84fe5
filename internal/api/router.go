package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"push-relay-backend/config"
	"push-relay-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.Config, handler *Handler) *gin.Engine {
	r := gin.Default()

	// Liveness/readiness, outside the API groups.
	r.GET("/health", handler.Health)
	r.GET("/health/live", handler.Health)
	r.GET("/health/ready", handler.Ready)

	// Unauthenticated surface: token-bucket limited per IP, responses cached
	// for the process lifetime.
	cacheStore := cache.New(5*time.Minute, 10*time.Minute)
	public := r.Group("/api")
	public.Use(mw.IPRateLimiter(rate.Limit(10), 5))
	{
		public.GET("/vapid_public_key", mw.Cache(cacheStore, 5*time.Minute), handler.GetVAPIDPublicKey)
	}

	// Tenant surface: fixed-window admission control per presented key runs
	// before the key is ever looked up.
	authed := r.Group("/api")
	authed.Use(
		mw.KeyRateLimiter(cfg.Server.RateLimitPerWindow, cfg.Server.RateLimitWindow()),
		handler.RequireAuth(),
	)
	{
		authed.POST("/subscriptions/register", handler.RegisterSubscription)
		authed.DELETE("/subscriptions/:userKey", handler.RevokeSubscription)
		authed.GET("/subscriptions/permissions/:userKey", handler.GetPermissions)

		authed.POST("/notifications/send", handler.SendNotification)
		authed.GET("/notifications/status/:messageId", handler.GetNotificationStatus)
	}

	return r
}
