package carpool

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/movesmart/maas-backend/pkg/common"
)

// ProcessRequest triggers relation cleanup after a membership change. UserID
// is nil when the whole group was disabled.
type ProcessRequest struct {
	GroupID int64  `json:"group_id" binding:"required"`
	UserID  *int64 `json:"user_id"`
}

// Handler exposes the group-relation maintenance endpoint, called by the
// group management flow after a member leaves or a group is disabled.
type Handler struct {
	service *Service
}

// NewHandler creates a new carpool handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterInternalRoutes mounts the server-to-server endpoints.
func (h *Handler) RegisterInternalRoutes(rg *gin.RouterGroup) {
	rg.POST("/carpool/process-relations", h.ProcessRelations)
}

// ProcessRelations cleans up invitations and matches for a group change.
func (h *Handler) ProcessRelations(c *gin.Context) {
	var req ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.ProcessCarpoolRelationForGroup(c.Request.Context(), req.GroupID, req.UserID); err != nil {
		common.RespondError(c, err)
		return
	}
	common.SuccessResponse(c, gin.H{"status": "processed"})
}
