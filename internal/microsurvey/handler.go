package microsurvey

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/movesmart/maas-backend/pkg/common"
	"github.com/movesmart/maas-backend/pkg/middleware"
)

// Handler exposes the microsurvey API. The trigger and forms endpoints are
// server-to-server; consent and cancel are user-facing.
type Handler struct {
	orch *Orchestrator
}

// NewHandler creates a new microsurvey handler
func NewHandler(orch *Orchestrator) *Handler {
	return &Handler{orch: orch}
}

// RegisterRoutes mounts the user-facing endpoints on an authenticated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	survey := rg.Group("/survey")
	{
		survey.POST("/consent", h.Consent)
		survey.POST("/cancel", h.Cancel)
	}
}

// RegisterInternalRoutes mounts the batch and ingestion endpoints.
func (h *Handler) RegisterInternalRoutes(rg *gin.RouterGroup) {
	survey := rg.Group("/survey")
	{
		survey.POST("/trigger", h.Trigger)
		survey.POST("/forms-response", h.FormsResponse)
	}
}

// Consent records the caller's survey consent.
func (h *Handler) Consent(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		common.RespondError(c, common.NewTokenRequiredError())
		return
	}

	if err := h.orch.Consent(c.Request.Context(), userID); err != nil {
		common.RespondError(c, err)
		return
	}
	common.SuccessResponse(c, gin.H{"status": "consented"})
}

// Cancel aborts the caller's in-flight survey.
func (h *Handler) Cancel(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		common.RespondError(c, common.NewTokenRequiredError())
		return
	}

	if err := h.orch.Cancel(c.Request.Context(), userID); err != nil {
		common.RespondError(c, err)
		return
	}
	common.SuccessResponse(c, gin.H{"status": "cancelled"})
}

// Trigger starts surveys for a batch of users.
func (h *Handler) Trigger(c *gin.Context) {
	var req TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	surveyID, err := strconv.ParseInt(c.DefaultQuery("survey_id", "1"), 10, 64)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid survey_id")
		return
	}

	started, err := h.orch.Trigger(c.Request.Context(), &req, surveyID)
	if err != nil {
		if errors.Is(err, ErrNoTriggerTarget) {
			common.ErrorResponse(c, http.StatusBadRequest, "user_ids or action required")
			return
		}
		common.RespondError(c, err)
		return
	}
	common.SuccessResponse(c, gin.H{"started": started})
}

// FormsResponse ingests one form submission.
func (h *Handler) FormsResponse(c *gin.Context) {
	var resp FormsResponse
	if err := c.ShouldBindJSON(&resp); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.orch.HandleFormsResponse(c.Request.Context(), &resp); err != nil {
		common.RespondError(c, err)
		return
	}
	common.SuccessResponse(c, gin.H{"status": "accepted"})
}
