// Package webhook provides the inbound WhatsApp webhook module.
// This file defines the module that encapsulates webhook setup and route registration.
package webhook

import (
	apphttp "orderbot_backend/internal/http"
	"orderbot_backend/platform/validator"
)

// Module is the webhook bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	secret  string
}

// NewModule creates the webhook module around an ingestion service.
func NewModule(service *Service, val *validator.Validator, secret string) *Module {
	return &Module{
		handler: NewHandler(service, val),
		secret:  secret,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts webhook routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/webhook")
	if ctx.WebhookRateLimiter != nil {
		group.Use(ctx.WebhookRateLimiter.RateLimit())
	}
	group.Use(SignatureMiddleware(m.secret))
	group.POST("/whatsapp", m.handler.HandleMessage)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
