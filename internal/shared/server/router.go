package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"inbound-backend/internal/shared/metrics"
	"inbound-backend/internal/shared/server/middleware"
	"inbound-backend/internal/shared/server/respond"
)

// RouteRegistrar attaches routes to a group.
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// HealthCheck reports a dependency failure, or nil when healthy.
type HealthCheck func(c *gin.Context) error

// RouterDeps are the handlers and checks the router serves.
type RouterDeps struct {
	Webhook       RouteRegistrar
	WebhookLimit  middleware.RateLimitRule
	Health        map[string]HealthCheck
	EnableMetrics bool
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
	)

	hooks := r.Group("/webhook")
	if deps.WebhookLimit.Enabled() {
		hooks.Use(middleware.RateLimit(deps.WebhookLimit, nil))
	}
	if deps.Webhook != nil {
		deps.Webhook.RegisterRoutes(hooks)
	}

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		checks := gin.H{}
		healthy := true
		for name, check := range deps.Health {
			if err := check(c); err != nil {
				checks[name] = err.Error()
				healthy = false
				continue
			}
			checks[name] = "ok"
		}
		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, gin.H{"ok": healthy, "checks": checks})
	})

	if deps.EnableMetrics {
		r.GET("/metrics", metrics.Handler())
	}

	return r
}
