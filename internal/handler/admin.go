package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/genstudio/server/internal/auth"
)

type grantRequest struct {
	UserID string  `json:"user_id" binding:"required"`
	Amount float64 `json:"amount" binding:"required,gt=0"`
	Remark string  `json:"remark"`
}

// GrantCredits handles POST /api/v1/admin/credits/grant.
func (h *Handler) GrantCredits(c *gin.Context) {
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and a positive amount are required"})
		return
	}
	ctx := c.Request.Context()

	if _, err := h.users.GetByID(ctx, req.UserID); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "look up user"})
		return
	}

	if err := h.billing.Grant(ctx, req.UserID, req.Amount, req.Remark); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "grant credits"})
		return
	}

	balance, err := h.billing.Balance(ctx, req.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "look up balance"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": req.UserID, "balance": balance})
}

type statusRequest struct {
	Status string `json:"status" binding:"required,oneof=active banned suspended"`
}

// SetUserStatus handles POST /api/v1/admin/users/:id/status.
func (h *Handler) SetUserStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be one of active, banned, suspended"})
		return
	}

	userID := c.Param("id")
	if err := h.users.SetStatus(c.Request.Context(), userID, req.Status); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("set status %q", req.Status)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "status": req.Status})
}
