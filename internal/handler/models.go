package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Models returns the checkpoint and VAE choices the engine currently
// offers, so the frontend can populate its pickers.
func (h *Handler) Models(c *gin.Context) {
	opts, err := h.engine.ObjectInfo(c.Request.Context())
	if err != nil {
		log.Warn().Err(err).Msg("object info query failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "generation engine unavailable"})
		return
	}
	c.JSON(http.StatusOK, opts)
}
