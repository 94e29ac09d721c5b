package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePrompt(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"a red fox", "a red fox"},
		{"a red fox\nin the snow", "a red fox, in the snow"},
		{"fox、snow，forest", "fox, snow, forest"},
		{"fox  ,   snow", "fox, snow"},
		{"  fox ; snow ", "fox, snow"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, normalizePrompt(tc.in), "input %q", tc.in)
	}
}

func TestInferStyle(t *testing.T) {
	assert.Equal(t, "anime", inferStyle("cute anime girl"))
	assert.Equal(t, "photoreal", inferStyle("a realistic portrait"))
	assert.Equal(t, "", inferStyle("a red fox"))
}

func expandRequest(t *testing.T, body any) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := &Handler{}
	r.POST("/expand", h.PromptExpand)

	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/expand", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPromptExpand(t *testing.T) {
	w := expandRequest(t, gin.H{"prompt": "a red fox", "style": "photoreal"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Prompt             string `json:"prompt"`
		NegativeSuggestion string `json:"negative_suggestion"`
		AppliedStyle       string `json:"applied_style"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Contains(t, resp.Prompt, "best quality")
	assert.Contains(t, resp.Prompt, "photorealistic")
	assert.Contains(t, resp.Prompt, "a red fox")
	assert.Equal(t, "photoreal", resp.AppliedStyle)
	assert.Contains(t, resp.NegativeSuggestion, "watermark")
}

func TestPromptExpandInfersStyle(t *testing.T) {
	w := expandRequest(t, gin.H{"prompt": "anime character on a rooftop"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "anime", resp["applied_style"])
}

func TestPromptExpandWithoutQuality(t *testing.T) {
	off := false
	w := expandRequest(t, gin.H{"prompt": "a red fox", "include_quality": off})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotContains(t, resp["prompt"], "masterpiece")
}

func TestPromptExpandMissingPrompt(t *testing.T) {
	w := expandRequest(t, gin.H{"style": "anime"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
