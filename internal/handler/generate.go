package handler

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/genstudio/server/internal/artifact"
	"github.com/genstudio/server/internal/billing"
	"github.com/genstudio/server/internal/comfy"
	appctx "github.com/genstudio/server/internal/context"
	"github.com/genstudio/server/internal/model"
	"github.com/genstudio/server/internal/service"
	"github.com/genstudio/server/internal/workflow"
)

// Generate handles POST /api/v1/generate/:kind. The kind selects a
// template and binding table; form fields override template defaults.
func (h *Handler) Generate(c *gin.Context) {
	kind, ok := model.ParseKind(c.Param("kind"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown generation kind %q", c.Param("kind"))})
		return
	}

	spec, _ := service.SpecFor(kind)

	params := paramsFromForm(c)
	for _, role := range spec.ImageRoles {
		path, err := h.saveUpload(c, role)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if params.Images == nil {
			params.Images = map[string]string{}
		}
		params.Images[role] = path
	}

	h.runGeneration(c, kind, params)
}

// runGeneration is shared by Generate and GarmentSwap.
func (h *Handler) runGeneration(c *gin.Context, kind model.Kind, params workflow.Params) {
	caller := service.Caller{
		UserID: appctx.UserID(c),
		IP:     c.ClientIP(),
	}

	outcome, err := h.generator.Generate(c.Request.Context(), caller, kind, params)
	if err != nil {
		writeGenerateError(c, err)
		return
	}

	rec := outcome.Record
	c.JSON(http.StatusOK, model.GenerateResponse{
		ID:          rec.ID,
		Filename:    rec.Filename,
		Download:    "/outputs/" + rec.Filename,
		Kind:        rec.Kind,
		CostCredits: rec.CostCredits,
		FreeTier:    outcome.FreeTier,
	})
}

// paramsFromForm collects the optional overrides. Absent fields stay
// empty strings and are skipped during patching.
func paramsFromForm(c *gin.Context) workflow.Params {
	return workflow.Params{
		Prompt:         strings.TrimSpace(c.PostForm("prompt")),
		NegativePrompt: strings.TrimSpace(c.PostForm("negative_prompt")),
		Seed:           strings.TrimSpace(c.PostForm("seed")),
		Steps:          strings.TrimSpace(c.PostForm("steps")),
		CFG:            strings.TrimSpace(c.PostForm("cfg")),
		SamplerName:    strings.TrimSpace(c.PostForm("sampler_name")),
		Scheduler:      strings.TrimSpace(c.PostForm("scheduler")),
		Denoise:        strings.TrimSpace(c.PostForm("denoise")),
		Width:          strings.TrimSpace(c.PostForm("width")),
		Height:         strings.TrimSpace(c.PostForm("height")),
		Checkpoint:     strings.TrimSpace(c.PostForm("checkpoint")),
		VAE:            strings.TrimSpace(c.PostForm("vae")),
	}
}

// saveUpload stores one multipart file under the upload dir with a fresh
// name, returning the saved path.
func (h *Handler) saveUpload(c *gin.Context, field string) (string, error) {
	file, err := c.FormFile(field)
	if err != nil {
		return "", fmt.Errorf("missing required file %q", field)
	}
	return h.saveMultipart(c, file)
}

func (h *Handler) saveMultipart(c *gin.Context, file *multipart.FileHeader) (string, error) {
	if err := os.MkdirAll(h.cfg.UploadDir, 0o755); err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if ext == "" {
		ext = ".png"
	}
	dst := filepath.Join(h.cfg.UploadDir, uuid.NewString()+ext)
	if err := c.SaveUploadedFile(file, dst); err != nil {
		return "", fmt.Errorf("save upload: %w", err)
	}
	return dst, nil
}

// writeGenerateError maps orchestration errors onto HTTP statuses.
func writeGenerateError(c *gin.Context, err error) {
	var (
		invalidParam *workflow.InvalidParamError
		tplErr       *workflow.TemplateError
		rejected     *comfy.RejectedError
		noArtifact   *artifact.NoArtifactError
	)

	switch {
	case errors.As(err, &invalidParam):
		c.JSON(http.StatusBadRequest, gin.H{"error": invalidParam.Error()})
	case errors.Is(err, service.ErrUnknownKind):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUploadExpired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "upload token expired, upload again"})
	case errors.Is(err, billing.ErrQuotaExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "daily free quota exceeded, register or try again tomorrow"})
	case errors.Is(err, billing.ErrInsufficientCredits):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "insufficient credits"})
	case errors.As(err, &rejected):
		c.JSON(http.StatusBadGateway, gin.H{"error": "engine rejected the job", "detail": rejected.Error()})
	case errors.Is(err, comfy.ErrEngineUnreachable), errors.Is(err, comfy.ErrConnectionLost):
		c.JSON(http.StatusBadGateway, gin.H{"error": "generation engine unavailable"})
	case errors.Is(err, comfy.ErrTimedOut):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "generation timed out"})
	case errors.Is(err, workflow.ErrTemplateNotFound), errors.As(err, &tplErr):
		log.Error().Err(err).Msg("workflow template failure")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "workflow template unavailable"})
	case errors.As(err, &noArtifact):
		log.Error().Err(err).Msg("no artifact resolved")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generation produced no output"})
	default:
		log.Error().Err(err).Msg("generation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generation failed"})
	}
}
