// Package http holds the contract between the router and the HTTP-facing
// modules. Today the only module is the inbound WhatsApp webhook.
package http

import (
	"orderbot_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Module mounts its own routes; the router never knows individual endpoints.
type Module interface {
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext is what a module gets to register against.
type RouterContext struct {
	Engine *gin.Engine
	// V1 is the /api/v1 group.
	V1 *gin.RouterGroup
	// WebhookRateLimiter throttles gateway callbacks per source IP.
	WebhookRateLimiter *httpkit.IPRateLimiter
}
