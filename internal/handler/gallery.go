package handler

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	appctx "github.com/genstudio/server/internal/context"
	"github.com/genstudio/server/internal/model"
	"github.com/genstudio/server/internal/store"
)

// DownloadOutput serves a relocated artifact by its stable filename.
// Path traversal is rejected before touching the filesystem.
func (h *Handler) DownloadOutput(c *gin.Context) {
	name := c.Param("filename")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filename"})
		return
	}
	c.File(filepath.Join(h.cfg.OutputDir, name))
}

// Gallery lists the newest results for the public wall.
func (h *Handler) Gallery(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	recs, err := h.store.GalleryImages(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list gallery"})
		return
	}
	items := make([]gin.H, 0, len(recs))
	for _, rec := range recs {
		items = append(items, gin.H{
			"id":         rec.ID,
			"filename":   rec.Filename,
			"download":   "/outputs/" + rec.Filename,
			"kind":       rec.Kind,
			"created_at": rec.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"images": items})
}

// MyImages lists the caller's recent results.
func (h *Handler) MyImages(c *gin.Context) {
	user := appctx.MustGetUser(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	recs, err := h.store.RecentImages(c.Request.Context(), user.ID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list images"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"images": recs})
}

// RateImage handles POST /api/v1/images/:id/rating. One rating per
// image per caller; a repeat call overwrites.
func (h *Handler) RateImage(c *gin.Context) {
	imageID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image id"})
		return
	}

	var req model.RatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rating must be between 1 and 5"})
		return
	}

	if _, err := h.store.GetImage(c.Request.Context(), uint(imageID)); err != nil {
		if errors.Is(err, store.ErrImageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "look up image"})
		return
	}

	rating, err := h.store.SaveRating(c.Request.Context(), uint(imageID), appctx.UserID(c), req.Rating, req.Comment)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save rating"})
		return
	}
	c.JSON(http.StatusOK, rating)
}

// SubmitSurvey stores the user-experience questionnaire.
func (h *Handler) SubmitSurvey(c *gin.Context) {
	var req model.SurveyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "answers must be between 1 and 5"})
		return
	}

	rec := &model.SurveyResponse{
		UserID:     appctx.UserID(c),
		Q1:         req.Q1,
		Q2:         req.Q2,
		Q3:         req.Q3,
		Q4:         req.Q4,
		Q5:         req.Q5,
		Suggestion: strings.TrimSpace(req.Suggestion),
	}
	if err := h.store.CreateSurvey(c.Request.Context(), rec); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save survey"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": rec.ID})
}
