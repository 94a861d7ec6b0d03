package ledger

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/movesmart/maas-backend/pkg/common"
	"github.com/movesmart/maas-backend/pkg/middleware"
)

// Handler exposes the wallet API.
type Handler struct {
	service *Service
}

// NewHandler creates a new ledger handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the wallet endpoints on an authenticated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	wallet := rg.Group("/wallet")
	{
		wallet.GET("", h.GetBalance)
		wallet.GET("/history", h.GetHistory)
		wallet.POST("/transact", h.Transact)
	}
}

// GetBalance returns the caller's wallet balance.
func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		common.RespondError(c, common.NewTokenRequiredError())
		return
	}

	balance, err := h.service.Balance(c.Request.Context(), userID)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	common.SuccessResponse(c, balance)
}

// GetHistory returns the caller's ledger entries, newest first.
func (h *Handler) GetHistory(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		common.RespondError(c, common.NewTokenRequiredError())
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	entries, err := h.service.History(c.Request.Context(), userID, limit, offset)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	common.SuccessResponseWithMeta(c, entries, &common.Meta{Limit: limit, Offset: offset})
}

// Transact applies a signed points delta to the caller's wallet.
func (h *Handler) Transact(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		common.RespondError(c, common.NewTokenRequiredError())
		return
	}

	var req TransactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.service.Transact(c.Request.Context(), userID, req.ActivityType, req.Delta, req.Note)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	common.SuccessResponse(c, result)
}
