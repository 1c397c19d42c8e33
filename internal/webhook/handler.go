package webhook

import (
	"orderbot_backend/platform/apperr"
	"orderbot_backend/platform/httpkit"
	"orderbot_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	errInvalidRequest = "invalid request body"
	errValidation     = "validation error"
)

// Handler handles webhook HTTP requests.
type Handler struct {
	service *Service
	val     *validator.Validator
}

// NewHandler creates a new webhook handler.
func NewHandler(service *Service, val *validator.Validator) *Handler {
	return &Handler{service: service, val: val}
}

// HandleMessage stores one WhatsApp message event. It answers 202 when a live
// reply turn was queued for the message and 200 otherwise.
// POST /api/v1/webhook/whatsapp
func (h *Handler) HandleMessage(c *gin.Context) {
	var req MessagePayload
	if !h.bindAndValidate(c, &req) {
		return
	}

	resp, err := h.service.Ingest(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}

	if resp.Enqueued {
		httpkit.Accepted(c, resp)
		return
	}
	httpkit.OK(c, resp)
}

func (h *Handler) bindAndValidate(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.HandleError(c, apperr.BadRequest(errInvalidRequest).WithDetails(err.Error()))
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.HandleError(c, apperr.Validation(errValidation).WithDetails(err.Error()))
		return false
	}
	return true
}
