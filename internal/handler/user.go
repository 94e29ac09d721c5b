package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	appctx "github.com/genstudio/server/internal/context"
)

// Me returns the caller's profile with balance and remaining free quota.
func (h *Handler) Me(c *gin.Context) {
	user := appctx.MustGetUser(c)
	ctx := c.Request.Context()

	balance, err := h.billing.Balance(ctx, user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "look up balance"})
		return
	}
	freeRemaining, err := h.billing.FreeRemaining(ctx, &user.ID, c.ClientIP())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "look up quota"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":             user.ID,
		"email":          user.Email,
		"nickname":       user.Nickname,
		"email_verified": user.EmailVerified,
		"balance":        balance,
		"free_remaining": freeRemaining,
	})
}

// MyTransactions lists the caller's recent ledger entries.
func (h *Handler) MyTransactions(c *gin.Context) {
	user := appctx.MustGetUser(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	txs, err := h.billing.Transactions(c.Request.Context(), user.ID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list transactions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

// ResetAPIKey regenerates the caller's API key. The old key stops
// working immediately.
func (h *Handler) ResetAPIKey(c *gin.Context) {
	user := appctx.MustGetUser(c)

	updated, err := h.users.ResetAPIKey(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reset api key"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"api_key": updated.APIKey})
}
