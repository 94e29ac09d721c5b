package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/genstudio/server/internal/model"
	"github.com/genstudio/server/internal/service"
	"github.com/genstudio/server/internal/workflow"
)

// GarmentUpload handles POST /api/v1/garment/upload. The person photo is
// stored and exchanged for an expiring token, so the later swap request
// only carries the garment.
func (h *Handler) GarmentUpload(c *gin.Context) {
	path, err := h.saveUpload(c, "person")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.uploads.Put(c.Request.Context(), path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store upload token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"upload_token": token,
		"expires_in":   h.cfg.PendingUploadTTL.Seconds(),
	})
}

// GarmentSwap handles POST /api/v1/garment/swap. The person image comes
// from a prior upload token; the garment image rides in the form.
func (h *Handler) GarmentSwap(c *gin.Context) {
	token := c.PostForm("upload_token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing upload_token"})
		return
	}

	personPath, err := h.uploads.Take(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, service.ErrUploadExpired) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "upload token expired, upload the person photo again"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resolve upload token"})
		return
	}

	garmentPath, err := h.saveUpload(c, "garment")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	params := paramsFromForm(c)
	params.Images = map[string]string{
		workflow.RolePerson:  personPath,
		workflow.RoleGarment: garmentPath,
	}

	h.runGeneration(c, model.KindGarmentSwap, params)
}
