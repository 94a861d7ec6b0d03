package notification

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/movesmart/maas-backend/pkg/common"
)

// Handler exposes the notification send API for internal services.
type Handler struct {
	service *Service
}

// NewHandler creates a new notification handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterInternalRoutes mounts the server-to-server endpoints.
func (h *Handler) RegisterInternalRoutes(rg *gin.RouterGroup) {
	rg.POST("/notifications/send", h.Send)
}

// Send persists a notification for a recipient list and queues the pushes.
func (h *Handler) Send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	ids, err := h.service.Send(c.Request.Context(), &req)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.SuccessResponse(c, gin.H{"notification_user_ids": ids})
}
