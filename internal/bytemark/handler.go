package bytemark

import (
	"github.com/gin-gonic/gin"

	"github.com/movesmart/maas-backend/pkg/common"
	"github.com/movesmart/maas-backend/pkg/middleware"
)

// Handler exposes the transit ticket API.
type Handler struct {
	service *Service
}

// NewHandler creates a new bytemark handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the ticket endpoints on an authenticated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/tickets", h.GetTickets)
}

// GetTickets returns the caller's pass cache, refreshing it first.
func (h *Handler) GetTickets(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		common.RespondError(c, common.NewTokenRequiredError())
		return
	}

	cache, err := h.service.Tickets(c.Request.Context(), userID)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	if cache == nil {
		common.SuccessResponse(c, gin.H{"passes": []PassEntry{}, "passes4": []PassEntry{}})
		return
	}
	common.SuccessResponse(c, cache)
}
