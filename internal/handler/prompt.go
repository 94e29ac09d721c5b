package handler

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// ─────────────────────────────────────────────
// Prompt presets and expansion
// ─────────────────────────────────────────────

var qualityTokens = []string{
	"best quality",
	"masterpiece",
	"ultra-detailed",
	"highres",
}

var negativeDefault = strings.Join([]string{
	"lowres",
	"blurry",
	"worst quality",
	"bad anatomy",
	"bad hands",
	"extra digits",
	"missing fingers",
	"watermark",
	"logo",
	"text",
	"jpeg artifacts",
}, ", ")

type stylePreset struct {
	Name     string   `json:"name"`
	Positive []string `json:"positive"`
}

var stylePresets = map[string]stylePreset{
	"photoreal": {
		Name: "Photoreal",
		Positive: []string{
			"photorealistic",
			"cinematic lighting",
			"shallow depth of field",
			"film grain",
			"skin texture",
			"sharp focus",
		},
	},
	"anime": {
		Name: "Anime",
		Positive: []string{
			"anime style",
			"vibrant colors",
			"cel shading",
			"sharp lines",
			"highly detailed",
			"dynamic lighting",
		},
	},
	"illustration": {
		Name: "Illustration",
		Positive: []string{
			"digital illustration",
			"soft shading",
			"concept art",
			"artstation trending",
			"volumetric lighting",
		},
	},
	"studio": {
		Name: "Studio",
		Positive: []string{
			"studio lighting",
			"softbox",
			"rim light",
			"key light",
			"clean background",
		},
	},
}

var (
	altSeparators = regexp.MustCompile(`[、，；;]+`)
	runsOfSpace   = regexp.MustCompile(`\s+`)
	commaSpacing  = regexp.MustCompile(`\s*,\s*`)
)

// normalizePrompt collapses newlines, CJK separators and whitespace into
// tidy comma separation.
func normalizePrompt(text string) string {
	text = strings.ReplaceAll(text, "\n", ", ")
	text = altSeparators.ReplaceAllString(text, ", ")
	text = strings.TrimSpace(runsOfSpace.ReplaceAllString(text, " "))
	return commaSpacing.ReplaceAllString(text, ", ")
}

// inferStyle guesses a preset from the prompt text when none was chosen.
func inferStyle(prompt string) string {
	lower := strings.ToLower(prompt)
	for _, k := range []string{"anime", "manga"} {
		if strings.Contains(lower, k) {
			return "anime"
		}
	}
	for _, k := range []string{"photo", "realistic", "photograph"} {
		if strings.Contains(lower, k) {
			return "photoreal"
		}
	}
	return ""
}

// PromptPresets returns the quality tokens, default negative prompt and
// style presets the frontend offers.
func (h *Handler) PromptPresets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"quality":          qualityTokens,
		"negative_default": negativeDefault,
		"styles":           stylePresets,
	})
}

type promptExpandRequest struct {
	Prompt         string `json:"prompt"`
	Style          string `json:"style"`
	IncludeQuality *bool  `json:"include_quality"`
}

// PromptExpand handles POST /api/v1/prompt/expand: prefixes quality
// tokens and a style preset onto the caller's prompt, then normalizes.
func (h *Handler) PromptExpand(c *gin.Context) {
	var req promptExpandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	src := strings.TrimSpace(req.Prompt)
	if src == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing prompt"})
		return
	}

	var parts []string
	if req.IncludeQuality == nil || *req.IncludeQuality {
		parts = append(parts, qualityTokens...)
	}

	styleKey := strings.TrimSpace(req.Style)
	if _, ok := stylePresets[styleKey]; !ok {
		styleKey = inferStyle(src)
	}
	if preset, ok := stylePresets[styleKey]; ok {
		parts = append(parts, preset.Positive...)
	}

	parts = append(parts, src)

	c.JSON(http.StatusOK, gin.H{
		"prompt":              normalizePrompt(strings.Join(parts, ", ")),
		"negative_suggestion": negativeDefault,
		"applied_style":       styleKey,
	})
}
